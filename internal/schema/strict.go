package schema

import (
	"fmt"
	"slices"
)

// Strict returns a copy of the tree rewritten for strict structured output.
// Every node whose type includes "object" gets additionalProperties=false and
// a required list naming all of its properties. Keywords already present are
// kept as-is, which makes Strict idempotent. The input is not modified.
//
// Nested objects are reached through properties, array items and anyOf
// alternatives, so lists of records are closed as well.
func Strict(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := n.Clone()
	closeNode(out)
	return out
}

func closeNode(n *Node) {
	if n.Items != nil {
		closeNode(n.Items)
	}
	for _, alt := range n.AnyOf {
		if alt != nil {
			closeNode(alt)
		}
	}

	if !n.IsObject() {
		return
	}

	if n.AdditionalProperties == nil {
		closed := false
		n.AdditionalProperties = &closed
	}

	required := make([]string, 0)
	if n.Properties != nil {
		for pair := n.Properties.Oldest(); pair != nil; pair = pair.Next() {
			required = append(required, pair.Key)
			if pair.Value != nil {
				closeNode(pair.Value)
			}
		}
	}

	if n.Required == nil {
		n.Required = required
	}
}

// Verify checks that every object node in the tree is closed and lists each
// of its properties, and nothing else, as required. The error names the JSON
// path of the first violation.
func Verify(n *Node) error {
	if n == nil {
		return fmt.Errorf("schema node is nil")
	}
	return verifyNode(n, "$")
}

func verifyNode(n *Node, path string) error {
	if n.IsObject() {
		if n.AdditionalProperties == nil || *n.AdditionalProperties {
			return fmt.Errorf("%s: object must set additionalProperties to false", path)
		}
		names := n.PropertyNames()
		if len(names) != len(n.Required) {
			return fmt.Errorf("%s: required lists %d keys, object declares %d properties", path, len(n.Required), len(names))
		}
		for _, name := range names {
			if !slices.Contains(n.Required, name) {
				return fmt.Errorf("%s: property %q is not required", path, name)
			}
		}
		for _, name := range n.Required {
			if !slices.Contains(names, name) {
				return fmt.Errorf("%s: required key %q is not a declared property", path, name)
			}
		}
	}

	if n.Properties != nil {
		for pair := n.Properties.Oldest(); pair != nil; pair = pair.Next() {
			if pair.Value == nil {
				continue
			}
			if err := verifyNode(pair.Value, path+".properties."+pair.Key); err != nil {
				return err
			}
		}
	}
	if n.Items != nil {
		if err := verifyNode(n.Items, path+".items"); err != nil {
			return err
		}
	}
	for i, alt := range n.AnyOf {
		if alt == nil {
			continue
		}
		if err := verifyNode(alt, fmt.Sprintf("%s.anyOf[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}
