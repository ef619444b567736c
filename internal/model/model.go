// Package model defines core data structures for yuimeta.
package model

import (
	"sort"

	"github.com/phobologic/yuimeta/internal/meta"
)

// Range is a half-open byte range [Start, End) into a source buffer.
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by r.
func (r Range) Len() int { return r.End - r.Start }

// Contains reports whether o lies entirely within r.
func (r Range) Contains(o Range) bool {
	return r.Start <= o.Start && o.End <= r.End
}

// Document is the immutable raw text of one source file.
// Nothing in yuimeta mutates Source; patches produce new buffers.
type Document struct {
	Path   string
	Source []byte
}

// RecordKind tags the variant carried by a Record.
type RecordKind string

const (
	ModuleKind RecordKind = "module"
	GroupKind  RecordKind = "group"
)

// Record is the result of locating a known shape inside a Document.
// Exactly one of Module or Groups is set, as indicated by Kind.
type Record struct {
	Kind   RecordKind
	Module *ModuleRecord
	Groups []*GroupRecord
}

// ModuleRecord describes a single YUI.add() registration call.
type ModuleRecord struct {
	Name string
	Doc  *Document

	// Call covers the whole registration call expression. Args holds the
	// range of each positional argument in order. Close is the offset of
	// the closing parenthesis of the argument list.
	Call  Range
	Args  []Range
	Close int

	Body Range

	// MetaRange is nil when the call has no fourth argument.
	MetaRange *Range
	Meta      *meta.Value

	canonical *string
}

// HasVersion reports whether the call carries a version argument.
func (m *ModuleRecord) HasVersion() bool { return len(m.Args) >= 3 }

// Canonical returns the canonical form of the module metadata, computing it
// on first access. It returns "" when the module has no metadata.
func (m *ModuleRecord) Canonical() string {
	if m.Meta == nil {
		return ""
	}
	if m.canonical == nil {
		c := meta.Canonicalize(m.Meta)
		m.canonical = &c
	}
	return *m.canonical
}

// Invalidate drops cached values derived from the metadata subtree.
func (m *ModuleRecord) Invalidate() {
	m.canonical = nil
}

// GroupRecord is one `<root>.GlobalConfig.groups.<Name> = {...}` assignment.
type GroupRecord struct {
	Name    string
	Doc     *Document
	Modules map[string]*meta.Value
	// Order lists module names in source order.
	Order []string
}

// LoaderEntry is the loader-side metadata for one module.
type LoaderEntry struct {
	Module    string
	Group     string
	GroupFile string
	Block     *meta.Value
}

// Index maps module names to their loader entries. It is built once from
// all group records and only read afterwards.
type Index struct {
	entries map[string]*LoaderEntry
	groups  map[string]string
}

// NewIndex merges group records in order. A module listed by more than one
// group keeps the entry from the last record; overridden reports the names
// that were replaced.
func NewIndex(records []*GroupRecord) (idx *Index, overridden []string) {
	idx = &Index{
		entries: make(map[string]*LoaderEntry),
		groups:  make(map[string]string),
	}
	for _, g := range records {
		idx.groups[g.Name] = g.Doc.Path
		for _, name := range g.Order {
			if _, dup := idx.entries[name]; dup {
				overridden = append(overridden, name)
			}
			idx.entries[name] = &LoaderEntry{
				Module:    name,
				Group:     g.Name,
				GroupFile: g.Doc.Path,
				Block:     g.Modules[name],
			}
		}
	}
	return idx, overridden
}

// Lookup returns the loader entry for a module name.
func (idx *Index) Lookup(name string) (*LoaderEntry, bool) {
	e, ok := idx.entries[name]
	return e, ok
}

// GroupFile returns the file that defined the named group.
func (idx *Index) GroupFile(group string) string {
	return idx.groups[group]
}

// Groups returns the group names in the index, sorted.
func (idx *Index) Groups() []string {
	out := make([]string, 0, len(idx.groups))
	for g := range idx.groups {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of modules in the index.
func (idx *Index) Len() int { return len(idx.entries) }

// Entries returns all loader entries.
func (idx *Index) Entries() []*LoaderEntry {
	out := make([]*LoaderEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e)
	}
	return out
}

// Action indicates what reconciliation decided for a module.
type Action string

const (
	NoOp     Action = "noop"
	Inject   Action = "inject"
	Strip    Action = "strip"
	Mismatch Action = "mismatch"
)

// Result is the outcome of reconciling one module against its loader entry.
//
// Block is set for Inject. Expected and Actual are set for Mismatch;
// HasExpected is false when the loader has no meaningful metadata.
type Result struct {
	Action      Action
	Block       *meta.Value
	Expected    string
	HasExpected bool
	Actual      string
}
