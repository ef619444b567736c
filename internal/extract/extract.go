// Package extract locates YUI module registrations and loader group
// configurations in JavaScript sources using tree-sitter.
package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/yuimeta/internal/lang"
	"github.com/phobologic/yuimeta/internal/model"
)

// ErrNotModule is returned when a file contains no registration call.
var ErrNotModule = errors.New("no YUI.add() registration found")

// MalformedError reports a registration call whose arguments do not have
// the expected shape.
type MalformedError struct {
	Path   string
	Line   int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("%s:%d: malformed YUI.add() call: %s", e.Path, e.Line, e.Reason)
}

// SyntaxError reports a source file tree-sitter could not parse cleanly.
type SyntaxError struct {
	Path   string
	Line   int
	Column int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: syntax error", e.Path, e.Line, e.Column)
}

// Extractor locates one kind of record in a parsed document.
type Extractor interface {
	Kind() model.RecordKind
	Locate(root *sitter.Node, doc *model.Document) (*model.Record, error)
}

// ReadDocument loads a source file.
func ReadDocument(path string) (*model.Document, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &model.Document{Path: path, Source: source}, nil
}

// Extract parses doc with parser and runs ex over the resulting tree.
// The parser must be created for JavaScript and must not be shared
// between goroutines.
func Extract(ctx context.Context, parser *sitter.Parser, ex Extractor, doc *model.Document) (*model.Record, error) {
	tree, err := parser.ParseCtx(ctx, nil, doc.Source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", doc.Path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		bad := firstError(root)
		if bad == nil {
			bad = root
		}
		p := bad.StartPoint()
		return nil, &SyntaxError{Path: doc.Path, Line: int(p.Row) + 1, Column: int(p.Column) + 1}
	}
	rec, err := ex.Locate(root, doc)
	if err != nil {
		return nil, err
	}
	if rec.Kind != ex.Kind() {
		return nil, fmt.Errorf("%s: %s extractor returned a %s record", doc.Path, ex.Kind(), rec.Kind)
	}
	return rec, nil
}

func firstError(node *sitter.Node) *sitter.Node {
	if node.Type() == "ERROR" || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil || !child.HasError() && !child.IsMissing() {
			continue
		}
		if found := firstError(child); found != nil {
			return found
		}
	}
	return nil
}

type match struct {
	start    uint32
	captures map[string]*sitter.Node
}

// matches runs the named query over root and returns the matches that
// satisfied their predicates, ordered by start offset so that an enclosing
// match precedes the matches nested inside it.
func matches(queryName string, root *sitter.Node, source []byte) ([]match, error) {
	q, err := lang.JavaScript().GetQuery(queryName)
	if err != nil {
		return nil, err
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, root)

	var out []match
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, source)
		if len(m.Captures) == 0 {
			continue
		}

		mt := match{start: m.Captures[0].Node.StartByte(), captures: make(map[string]*sitter.Node, len(m.Captures))}
		for _, c := range m.Captures {
			mt.captures[q.CaptureNameForId(c.Index)] = c.Node
			if c.Node.StartByte() < mt.start {
				mt.start = c.Node.StartByte()
			}
		}
		out = append(out, mt)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out, nil
}

func rangeOf(node *sitter.Node) model.Range {
	return model.Range{Start: int(node.StartByte()), End: int(node.EndByte())}
}

func lineOf(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}
