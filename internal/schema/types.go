package schema

import (
	"encoding/json"
	"fmt"
	"slices"
)

// JSON Schema primitive type names.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
	TypeNull    = "null"
)

// Types is the value of the "type" keyword. A single type serializes as a
// string, a union as an array (e.g. ["string","null"]).
type Types []string

// Has reports whether t includes name.
func (t Types) Has(name string) bool {
	return slices.Contains(t, name)
}

// Nullable reports whether t admits null.
func (t Types) Nullable() bool {
	return t.Has(TypeNull)
}

// Primary returns the first non-null type, or "" if there is none.
func (t Types) Primary() string {
	for _, name := range t {
		if name != TypeNull {
			return name
		}
	}
	return ""
}

func (t Types) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

func (t *Types) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = Types{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("type must be a string or array of strings: %w", err)
	}
	*t = Types(many)
	return nil
}
