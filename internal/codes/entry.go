package codes

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-irbridge/internal/transmit"
)

// Entry is one node of a code table.
//
// A leaf carries a transmit.Payload. A table carries ordered child entries.
// The nil *Entry is a valid empty table; every accessor is nil-safe.
type Entry struct {
	payload  transmit.Payload
	scalar   string
	keys     []string
	children map[string]*Entry
}

// Parse decodes a code table from YAML or JSON source.
func Parse(src []byte) (*Entry, error) {
	var e Entry
	if err := yaml.Unmarshal(src, &e); err != nil {
		return nil, fmt.Errorf("parsing code table: %w", err)
	}
	return &e, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *Entry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.AliasNode:
		return e.UnmarshalYAML(node.Alias)
	case yaml.MappingNode:
		e.children = make(map[string]*Entry, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			child := &Entry{}
			if err := child.UnmarshalYAML(node.Content[i+1]); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if _, dup := e.children[key]; !dup {
				e.keys = append(e.keys, key)
			}
			e.children[key] = child
		}
		return nil
	case yaml.ScalarNode:
		e.scalar = node.Value
		return node.Decode(&e.payload)
	default:
		return node.Decode(&e.payload)
	}
}

// IsTable reports whether the entry holds child entries.
func (e *Entry) IsTable() bool {
	return e != nil && e.children != nil
}

// Keys returns the table keys in configuration order.
func (e *Entry) Keys() []string {
	if e == nil {
		return nil
	}
	return e.keys
}

// Get returns the child for key, or nil.
func (e *Entry) Get(key string) *Entry {
	if e == nil || e.children == nil {
		return nil
	}
	return e.children[key]
}

// Has reports whether key is present and not empty.
func (e *Entry) Has(key string) bool {
	child := e.Get(key)
	return child != nil && !child.IsEmpty()
}

// IsEmpty reports whether the entry carries neither a code nor children.
func (e *Entry) IsEmpty() bool {
	return e == nil || (e.payload.IsZero() && len(e.children) == 0)
}

// Payload returns what should be transmitted for this entry. A table
// with a "data" key yields that child's payload; any other table yields the
// zero payload.
func (e *Entry) Payload() transmit.Payload {
	if e == nil {
		return transmit.Payload{}
	}
	if e.IsTable() {
		return e.Get("data").Payload()
	}
	return e.payload
}

// Code is shorthand for Get(key).Payload().
func (e *Entry) Code(key string) transmit.Payload {
	return e.Get(key).Payload()
}

// Attr returns the scalar value stored under key, such as "pseudo-mode".
func (e *Entry) Attr(key string) string {
	child := e.Get(key)
	if child == nil {
		return ""
	}
	return child.scalar
}

// Leaf builds a leaf entry. It is mostly useful to tests and adapters that
// synthesise tables.
func Leaf(p transmit.Payload) *Entry {
	e := &Entry{payload: p}
	if !p.IsSequence() {
		e.scalar = p.Code
	}
	return e
}
