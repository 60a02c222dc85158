// Package schema builds the JSON Schema documents sent as structured output
// constraints and enforces the strict-mode rules providers require.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Properties maps property names to sub-schemas in declaration order.
type Properties = orderedmap.OrderedMap[string, *Node]

// NewProperties returns an empty ordered property map.
func NewProperties() *Properties {
	return orderedmap.New[string, *Node]()
}

// Node is one fragment of a JSON Schema document.
//
// A nil Required means the keyword is absent; a non-nil empty slice
// serializes as "required": [].
type Node struct {
	Type                 Types
	Description          string
	Enum                 []any
	Properties           *Properties
	Items                *Node
	AnyOf                []*Node
	Required             []string
	AdditionalProperties *bool
}

// nodeJSON fixes the keyword order used on the wire.
type nodeJSON struct {
	Type                 Types       `json:"type,omitempty"`
	Description          string      `json:"description,omitempty"`
	Enum                 []any       `json:"enum,omitempty"`
	Properties           *Properties `json:"properties,omitempty"`
	Items                *Node       `json:"items,omitempty"`
	AnyOf                []*Node     `json:"anyOf,omitempty"`
	Required             *[]string   `json:"required,omitempty"`
	AdditionalProperties *bool       `json:"additionalProperties,omitempty"`
}

// MarshalJSON emits keywords in a fixed order and properties in insertion
// order, so the same tree always produces the same bytes.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{
		Type:                 n.Type,
		Description:          n.Description,
		Enum:                 n.Enum,
		Properties:           n.Properties,
		Items:                n.Items,
		AnyOf:                n.AnyOf,
		AdditionalProperties: n.AdditionalProperties,
	}
	if n.Required != nil {
		required := n.Required
		out.Required = &required
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses a schema fragment. Boolean schemas are rejected
// because they carry no shape information.
func (n *Node) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("true")) || bytes.Equal(trimmed, []byte("false")) {
		return fmt.Errorf("%w: boolean schema %s", ErrUnrepresentable, trimmed)
	}

	var in nodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*n = Node{
		Type:                 in.Type,
		Description:          in.Description,
		Enum:                 in.Enum,
		Properties:           in.Properties,
		Items:                in.Items,
		AnyOf:                in.AnyOf,
		AdditionalProperties: in.AdditionalProperties,
	}
	if in.Required != nil {
		n.Required = *in.Required
		if n.Required == nil {
			n.Required = []string{}
		}
	}
	return nil
}

// Marshal serializes the tree to compact JSON text.
func Marshal(n *Node) (json.RawMessage, error) {
	if n == nil {
		return nil, fmt.Errorf("schema node is nil")
	}
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize schema: %w", err)
	}
	return b, nil
}

// Parse decodes schema text into a Node tree.
func Parse(raw []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return &n, nil
}

// IsObject reports whether the node's type includes "object".
func (n *Node) IsObject() bool {
	return n != nil && n.Type.Has(TypeObject)
}

// Property returns the named property schema, or nil.
func (n *Node) Property(name string) *Node {
	if n == nil || n.Properties == nil {
		return nil
	}
	p, _ := n.Properties.Get(name)
	return p
}

// PropertyNames returns property keys in declaration order.
func (n *Node) PropertyNames() []string {
	if n == nil || n.Properties == nil {
		return nil
	}
	names := make([]string, 0, n.Properties.Len())
	for pair := n.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Clone returns a deep copy of the tree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Type:        slices.Clone(n.Type),
		Description: n.Description,
		Enum:        slices.Clone(n.Enum),
		Items:       n.Items.Clone(),
		Required:    slices.Clone(n.Required),
	}
	if n.AdditionalProperties != nil {
		v := *n.AdditionalProperties
		out.AdditionalProperties = &v
	}
	if n.Properties != nil {
		out.Properties = NewProperties()
		for pair := n.Properties.Oldest(); pair != nil; pair = pair.Next() {
			out.Properties.Set(pair.Key, pair.Value.Clone())
		}
	}
	if n.AnyOf != nil {
		out.AnyOf = make([]*Node, len(n.AnyOf))
		for i, alt := range n.AnyOf {
			out.AnyOf[i] = alt.Clone()
		}
	}
	return out
}
