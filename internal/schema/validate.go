package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Compiled is a schema ready to validate documents.
type Compiled struct {
	schema *jsonschema.Schema
}

// Compile checks that the tree is a well-formed draft 2020-12 schema and
// prepares it for validation.
func Compile(n *Node) (*Compiled, error) {
	raw, err := Marshal(n)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &Compiled{schema: compiled}, nil
}

// Validate checks a JSON document against the schema.
func (c *Compiled) Validate(doc []byte) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("failed to decode document for validation: %w", err)
	}
	if err := c.schema.Validate(v); err != nil {
		return fmt.Errorf("document does not match schema: %w", err)
	}
	return nil
}
