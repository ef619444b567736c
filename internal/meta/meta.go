// Package meta models YUI module metadata blocks and renders them in a
// deterministic, order-insensitive canonical form.
package meta

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/yuimeta/internal/lang"
)

// Kind is the syntactic kind of a metadata value.
type Kind int

const (
	Object Kind = iota
	Array
	String
	Number
	Bool
	Null
	// Raw is any other expression, kept as its source text.
	Raw
)

// Well-known metadata keys.
const (
	RequiresKey = "requires"
	PathKey     = "path"
	FullpathKey = "fullpath"
)

// IsPathKey reports whether key only carries location information.
func IsPathKey(key string) bool {
	return key == PathKey || key == FullpathKey
}

// Value is a node of a metadata tree.
//
// For String, Text holds the decoded string value. For every other scalar
// kind it holds the source text.
type Value struct {
	Kind  Kind
	Text  string
	Props []Property
	Elems []*Value
}

// Property is one entry of an object literal.
//
// Verbatim entries (spreads, methods) have no key/value split and are
// rendered as their source text. Computed keys are rendered unquoted.
type Property struct {
	Key      string
	Computed bool
	Verbatim string
	Value    *Value
}

// IsVerbatim reports whether p is rendered as raw source text.
func (p Property) IsVerbatim() bool { return p.Value == nil }

// Get returns the value of the last property named key, or nil.
func (v *Value) Get(key string) *Value {
	if v == nil || v.Kind != Object {
		return nil
	}
	var found *Value
	for _, p := range v.Props {
		if !p.IsVerbatim() && !p.Computed && p.Key == key {
			found = p.Value
		}
	}
	return found
}

// Has reports whether v is an object with a property named key.
func (v *Value) Has(key string) bool {
	return v.Get(key) != nil
}

// HasNonPathKey reports whether v is an object with at least one property
// that is not a path-only key.
func (v *Value) HasNonPathKey() bool {
	if v == nil || v.Kind != Object {
		return false
	}
	for _, p := range v.Props {
		if p.IsVerbatim() || p.Computed || !IsPathKey(p.Key) {
			return true
		}
	}
	return false
}

// HasNonEmptyArray reports whether any top-level property holds a
// non-empty array.
func (v *Value) HasNonEmptyArray() bool {
	if v == nil || v.Kind != Object {
		return false
	}
	for _, p := range v.Props {
		if p.Value != nil && p.Value.Kind == Array && len(p.Value.Elems) > 0 {
			return true
		}
	}
	return false
}

// WithoutPaths returns a new object holding the top-level properties of v
// that are not path-only keys. A non-object v yields an empty object.
// Property values are shared with v, not copied.
func (v *Value) WithoutPaths() *Value {
	out := &Value{Kind: Object}
	if v == nil || v.Kind != Object {
		return out
	}
	for _, p := range v.Props {
		if !p.IsVerbatim() && !p.Computed && IsPathKey(p.Key) {
			continue
		}
		out.Props = append(out.Props, p)
	}
	return out
}

// SortKeys returns a copy of object v with its top-level properties sorted
// by key. Nested values are shared with v.
func (v *Value) SortKeys() *Value {
	if v == nil || v.Kind != Object {
		return v
	}
	out := &Value{Kind: Object, Props: append([]Property(nil), v.Props...)}
	sort.SliceStable(out.Props, func(i, j int) bool {
		return propertySortKey(out.Props[i]) < propertySortKey(out.Props[j])
	})
	return out
}

// Clone returns a deep copy of v.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	c := &Value{Kind: v.Kind, Text: v.Text}
	if v.Props != nil {
		c.Props = make([]Property, len(v.Props))
		for i, p := range v.Props {
			p.Value = p.Value.Clone()
			c.Props[i] = p
		}
	}
	if v.Elems != nil {
		c.Elems = make([]*Value, len(v.Elems))
		for i, e := range v.Elems {
			c.Elems[i] = e.Clone()
		}
	}
	return c
}

// FromNode builds a Value from a tree-sitter expression node.
func FromNode(node *sitter.Node, source []byte) *Value {
	switch node.Type() {
	case "object":
		v := &Value{Kind: Object, Props: []Property{}}
		for _, child := range lang.NamedChildren(node) {
			v.Props = append(v.Props, propertyFromNode(child, source))
		}
		return v
	case "array":
		v := &Value{Kind: Array, Elems: []*Value{}}
		for _, child := range lang.NamedChildren(node) {
			v.Elems = append(v.Elems, FromNode(child, source))
		}
		return v
	case "string":
		return &Value{Kind: String, Text: decodeString(lang.NodeText(node, source))}
	case "number":
		return &Value{Kind: Number, Text: lang.NodeText(node, source)}
	case "true", "false":
		return &Value{Kind: Bool, Text: node.Type()}
	case "null":
		return &Value{Kind: Null, Text: "null"}
	case "parenthesized_expression":
		if kids := lang.NamedChildren(node); len(kids) == 1 {
			return FromNode(kids[0], source)
		}
	}
	return &Value{Kind: Raw, Text: lang.NodeText(node, source)}
}

func propertyFromNode(node *sitter.Node, source []byte) Property {
	switch node.Type() {
	case "pair":
		key := node.ChildByFieldName("key")
		val := node.ChildByFieldName("value")
		if key == nil || val == nil {
			break
		}
		p := Property{Value: FromNode(val, source)}
		switch key.Type() {
		case "string":
			p.Key = decodeString(lang.NodeText(key, source))
		case "computed_property_name":
			p.Key = lang.NodeText(key, source)
			p.Computed = true
		default:
			p.Key = lang.NodeText(key, source)
		}
		return p
	case "shorthand_property_identifier":
		name := lang.NodeText(node, source)
		return Property{Key: name, Value: &Value{Kind: Raw, Text: name}}
	}
	return Property{Verbatim: lang.NodeText(node, source)}
}

// ErrNotLiteral is returned by Parse when the text is not a single
// expression.
var ErrNotLiteral = errors.New("not a metadata literal")

// Parse parses the text of a JavaScript expression, typically an object
// literal, into a Value.
func Parse(text string) (*Value, error) {
	src := []byte("(" + text + "\n)")
	tree, err := lang.JavaScript().NewParser().ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, ErrNotLiteral
	}
	stmts := lang.NamedChildren(root)
	if len(stmts) != 1 || stmts[0].Type() != "expression_statement" {
		return nil, ErrNotLiteral
	}
	exprs := lang.NamedChildren(stmts[0])
	if len(exprs) != 1 {
		return nil, ErrNotLiteral
	}
	return FromNode(exprs[0], src), nil
}
