// Package types holds the extraction targets shared across packages.
// It depends only on the schema package, which describes them to the model.
package types

import "github.com/jackzampolin/docextract/internal/schema"

// Invoice is the document entity extracted from invoice text.
// Every field is optional: a nil pointer or slice means the model found no
// value for it.
type Invoice struct {
	InvoiceNumber       *string     `json:"invoice_number"`
	PurchaseOrderNumber *string     `json:"purchase_order_number"`
	CustomerName        *string     `json:"customer_name"`
	CustomerAddress     *string     `json:"customer_address"`
	DeliveryDate        *string     `json:"delivery_date"` // YYYY-MM-DD
	PayableBy           *string     `json:"payable_by"`    // YYYY-MM-DD
	Products            []Product   `json:"products"`
	Returns             []Product   `json:"returns"`
	TotalQuantity       *float64    `json:"total_quantity"`
	TotalPrice          *float64    `json:"total_price"`
	ProductsSignatures  []Signature `json:"products_signatures"`
	ReturnsSignatures   []Signature `json:"returns_signatures"`
}

// Product is one line of the products or returns table, in document order.
type Product struct {
	ID          *string  `json:"id"`
	Description *string  `json:"description"`
	UnitPrice   *float64 `json:"unit_price"`
	Quantity    float64  `json:"quantity"`
	Total       *float64 `json:"total"`
	Reason      *string  `json:"reason"` // returns only
}

// Signature records whether a signature block was signed and by whom.
type Signature struct {
	Type     *string `json:"type"` // e.g. "Distributor", "Customer"
	Name     *string `json:"name"`
	IsSigned *bool   `json:"is_signed"`
}

// InvoiceSchema describes Invoice for schema generation. Field names and
// order must match the json tags above.
func InvoiceSchema() schema.Field {
	return schema.Field{
		Name: "invoice",
		Kind: schema.Object,
		Fields: []schema.Field{
			nullableString("invoice_number"),
			nullableString("purchase_order_number"),
			nullableString("customer_name"),
			nullableString("customer_address"),
			nullableString("delivery_date"),
			nullableString("payable_by"),
			nullableList("products", productSchema()),
			nullableList("returns", productSchema()),
			nullableNumber("total_quantity"),
			nullableNumber("total_price"),
			nullableList("products_signatures", signatureSchema()),
			nullableList("returns_signatures", signatureSchema()),
		},
	}
}

func productSchema() schema.Field {
	return schema.Field{
		Kind: schema.Object,
		Fields: []schema.Field{
			nullableString("id"),
			nullableString("description"),
			nullableNumber("unit_price"),
			{Name: "quantity", Kind: schema.Number, Nullability: schema.NonNullable},
			nullableNumber("total"),
			nullableString("reason"),
		},
	}
}

func signatureSchema() schema.Field {
	return schema.Field{
		Kind: schema.Object,
		Fields: []schema.Field{
			nullableString("type"),
			nullableString("name"),
			{Name: "is_signed", Kind: schema.Boolean, Nullability: schema.Nullable},
		},
	}
}

func nullableString(name string) schema.Field {
	return schema.Field{Name: name, Kind: schema.String, Nullability: schema.Nullable}
}

func nullableNumber(name string) schema.Field {
	return schema.Field{Name: name, Kind: schema.Number, Nullability: schema.Nullable}
}

// nullableList wraps an item descriptor in a nullable array. List items are
// left null-oblivious.
func nullableList(name string, item schema.Field) schema.Field {
	return schema.Field{Name: name, Kind: schema.Array, Nullability: schema.Nullable, Items: &item}
}
