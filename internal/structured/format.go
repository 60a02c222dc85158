package structured

import (
	"fmt"
	"regexp"

	"github.com/jackzampolin/docextract/internal/providers"
	"github.com/jackzampolin/docextract/internal/schema"
)

// Schema names are sent to providers verbatim and must match their naming rule.
var schemaNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// NewResponseFormat closes node with schema.Strict and serializes it into a
// json_schema response format. The schema is closed whether or not strict is
// set; strict only asks the provider to enforce it.
func NewResponseFormat(name, description string, strict bool, node *schema.Node) (*providers.ResponseFormat, error) {
	if !schemaNamePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: schema name %q must match %s", ErrInvalidOptions, name, schemaNamePattern)
	}
	if node == nil {
		return nil, fmt.Errorf("%w: schema is required", ErrInvalidOptions)
	}
	if !node.IsObject() {
		return nil, fmt.Errorf("%w: root schema must be an object, got %v", schema.ErrUnrepresentable, node.Type)
	}
	node = schema.Strict(node)
	if err := schema.Verify(node); err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrUnrepresentable, err)
	}
	raw, err := schema.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", name, err)
	}
	return &providers.ResponseFormat{
		Type:        providers.ResponseFormatJSONSchema,
		Name:        name,
		Description: description,
		Strict:      strict,
		Schema:      raw,
	}, nil
}
