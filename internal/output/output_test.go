package output

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type line struct {
	ID       *string `json:"id"`
	Quantity float64 `json:"quantity"`
}

type doc struct {
	InvoiceNumber string `json:"invoice_number"`
	Products      []line `json:"products"`
	Returns       []line `json:"returns"`
}

func sample() doc {
	id := "A1"
	return doc{
		InvoiceNumber: "3381",
		Products:      []line{{ID: &id, Quantity: 3}, {Quantity: 1}},
	}
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, sample()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	want := `{
  "invoice_number": "3381",
  "products": [
    {
      "id": "A1",
      "quantity": 3
    },
    {
      "id": null,
      "quantity": 1
    }
  ],
  "returns": null
}
`
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatYAML, sample()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	want := `invoice_number: "3381"
products:
  - id: A1
    quantity: 3
  - id: null
    quantity: 1
returns: null
`
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, Format("toml"), sample()); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "inv"+FormatYAML.Ext())

	if err := WriteFile(path, FormatYAML, sample()); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), `invoice_number: "3381"`) {
		t.Errorf("unexpected content:\n%s", data)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the output file, found %d entries", len(entries))
	}
}
