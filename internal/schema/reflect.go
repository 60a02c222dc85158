package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Reflect derives a Schema Node tree from a Go value's struct tags. It is the
// runtime counterpart of Generate and is used to catch drift between a static
// descriptor and the struct it describes.
//
// Go types carry no nullability annotation, so every reflected field is
// null-oblivious and Options.NullObliviousAsNullable applies to all nodes
// below the root.
func Reflect(v any, opts Options) (*Node, error) {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	reflected := r.Reflect(v)

	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize reflected schema: %w", err)
	}

	var root Node
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrepresentable, err)
	}
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: root must be an object, got %v", ErrUnrepresentable, root.Type)
	}
	if err := checkTyped(&root, "$"); err != nil {
		return nil, err
	}

	if opts.NullObliviousAsNullable {
		markNullable(&root, true)
	}
	return &root, nil
}

// checkTyped rejects nodes that constrain nothing, such as the empty schema
// reflected for interface fields.
func checkTyped(n *Node, path string) error {
	if len(n.Type) == 0 && len(n.AnyOf) == 0 {
		return fmt.Errorf("%w: %s: untyped field", ErrUnrepresentable, path)
	}
	if n.Type.Has(TypeArray) && n.Items == nil {
		return fmt.Errorf("%w: %s: array without an item type", ErrUnrepresentable, path)
	}
	if n.Properties != nil {
		for pair := n.Properties.Oldest(); pair != nil; pair = pair.Next() {
			if pair.Value == nil {
				return fmt.Errorf("%w: %s.%s: empty schema", ErrUnrepresentable, path, pair.Key)
			}
			if err := checkTyped(pair.Value, path+"."+pair.Key); err != nil {
				return err
			}
		}
	}
	if n.Items != nil {
		if err := checkTyped(n.Items, path+"[]"); err != nil {
			return err
		}
	}
	return nil
}

func markNullable(n *Node, root bool) {
	if !root && len(n.Type) > 0 && !n.Type.Nullable() {
		n.Type = append(n.Type, TypeNull)
	}
	if n.Properties != nil {
		for pair := n.Properties.Oldest(); pair != nil; pair = pair.Next() {
			markNullable(pair.Value, false)
		}
	}
	if n.Items != nil {
		markNullable(n.Items, false)
	}
}
