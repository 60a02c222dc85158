package schema

import (
	"errors"
	"fmt"
)

// ErrUnrepresentable is returned when a shape has no strict JSON Schema form.
var ErrUnrepresentable = errors.New("unrepresentable schema construct")

// Kind is the JSON type of a described field.
type Kind string

const (
	String  Kind = TypeString
	Number  Kind = TypeNumber
	Integer Kind = TypeInteger
	Boolean Kind = TypeBoolean
	Object  Kind = TypeObject
	Array   Kind = TypeArray
)

// Nullability records whether a field was explicitly annotated.
type Nullability int

const (
	// NullOblivious fields carry no annotation; Options decides.
	NullOblivious Nullability = iota
	Nullable
	NonNullable
)

// Field statically describes one field of a record and, for objects and
// arrays, its nested shape.
type Field struct {
	Name        string
	Kind        Kind
	Nullability Nullability
	Description string
	Enum        []string

	// Fields lists object properties in output order.
	Fields []Field
	// Items describes array elements. Its Name is ignored.
	Items *Field
}

// Options controls schema generation.
type Options struct {
	// NullObliviousAsNullable treats unannotated fields as nullable. Strict
	// providers reject ambiguity, so the default is non-nullable.
	NullObliviousAsNullable bool
}

// Generate maps a field descriptor to a Schema Node tree. The root must be an
// object and is always emitted as non-nullable.
func Generate(root Field, opts Options) (*Node, error) {
	if root.Kind != Object {
		return nil, fmt.Errorf("%w: root must be an object, got %q", ErrUnrepresentable, root.Kind)
	}
	root.Nullability = NonNullable
	return generateField(root, "$", opts)
}

func generateField(f Field, path string, opts Options) (*Node, error) {
	n := &Node{
		Description: f.Description,
	}

	switch f.Kind {
	case String, Number, Integer, Boolean:
		if len(f.Enum) > 0 {
			if f.Kind != String {
				return nil, fmt.Errorf("%w: %s: enum requires a string field", ErrUnrepresentable, path)
			}
			n.Enum = make([]any, 0, len(f.Enum)+1)
			for _, v := range f.Enum {
				n.Enum = append(n.Enum, v)
			}
		}
	case Object:
		n.Properties = NewProperties()
		for _, child := range f.Fields {
			if child.Name == "" {
				return nil, fmt.Errorf("%w: %s: property without a name", ErrUnrepresentable, path)
			}
			if _, exists := n.Properties.Get(child.Name); exists {
				return nil, fmt.Errorf("%w: %s: duplicate property %q", ErrUnrepresentable, path, child.Name)
			}
			sub, err := generateField(child, path+"."+child.Name, opts)
			if err != nil {
				return nil, err
			}
			n.Properties.Set(child.Name, sub)
		}
	case Array:
		if f.Items == nil {
			return nil, fmt.Errorf("%w: %s: array without an item type", ErrUnrepresentable, path)
		}
		items, err := generateField(*f.Items, path+"[]", opts)
		if err != nil {
			return nil, err
		}
		n.Items = items
	case "":
		return nil, fmt.Errorf("%w: %s: untyped field", ErrUnrepresentable, path)
	default:
		return nil, fmt.Errorf("%w: %s: unsupported kind %q", ErrUnrepresentable, path, f.Kind)
	}

	n.Type = Types{string(f.Kind)}
	if isNullable(f.Nullability, opts) {
		n.Type = append(n.Type, TypeNull)
		if n.Enum != nil {
			// enum is checked independently of type, so null must be listed too
			n.Enum = append(n.Enum, nil)
		}
	}
	return n, nil
}

func isNullable(nb Nullability, opts Options) bool {
	switch nb {
	case Nullable:
		return true
	case NonNullable:
		return false
	default:
		return opts.NullObliviousAsNullable
	}
}
