package extract

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/yuimeta/internal/lang"
	"github.com/phobologic/yuimeta/internal/meta"
	"github.com/phobologic/yuimeta/internal/model"
)

// ModuleExtractor finds the YUI.add(name, factory, version, metadata) call
// of a module source file.
type ModuleExtractor struct{}

// Kind implements Extractor.
func (ModuleExtractor) Kind() model.RecordKind { return model.ModuleKind }

// Locate implements Extractor. It returns ErrNotModule when no
// registration call exists and a *MalformedError when the first one does
// not have a string name and a function factory.
func (ModuleExtractor) Locate(root *sitter.Node, doc *model.Document) (*model.Record, error) {
	found, err := matches(lang.ModuleQuery, root, doc.Source)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotModule
	}

	// Only the first, outermost registration counts.
	call := found[0].captures["registration"]
	argsNode := found[0].captures["arguments"]
	if call == nil || argsNode == nil {
		return nil, ErrNotModule
	}

	rec, err := moduleRecord(call, argsNode, doc)
	if err != nil {
		return nil, err
	}
	return &model.Record{Kind: model.ModuleKind, Module: rec}, nil
}

func moduleRecord(call, argsNode *sitter.Node, doc *model.Document) (*model.ModuleRecord, error) {
	malformed := func(reason string) error {
		return &MalformedError{Path: doc.Path, Line: lineOf(call), Reason: reason}
	}

	args := lang.NamedChildren(argsNode)
	if len(args) < 2 {
		return nil, malformed("expected at least a name and a factory function")
	}
	for _, a := range args {
		if a.Type() == "spread_element" {
			return nil, malformed("spread arguments are not supported")
		}
	}
	if args[0].Type() != "string" {
		return nil, malformed("module name must be a string literal")
	}
	if !lang.IsFunction(args[1].Type()) {
		return nil, malformed("second argument must be a function")
	}
	body := args[1].ChildByFieldName("body")
	if body == nil {
		return nil, malformed("factory function has no body")
	}

	closing := int(argsNode.EndByte()) - 1
	if closing < 0 || doc.Source[closing] != ')' {
		return nil, malformed("unterminated argument list")
	}

	rec := &model.ModuleRecord{
		Name:  meta.FromNode(args[0], doc.Source).Text,
		Doc:   doc,
		Call:  rangeOf(call),
		Close: closing,
		Body:  rangeOf(body),
	}
	for _, a := range args {
		rec.Args = append(rec.Args, rangeOf(a))
	}
	if rec.Name == "" {
		return nil, malformed("module name is empty")
	}
	if len(args) >= 4 {
		r := rangeOf(args[3])
		rec.MetaRange = &r
		rec.Meta = meta.FromNode(args[3], doc.Source)
	}
	return rec, nil
}
