package extract

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/yuimeta/internal/lang"
	"github.com/phobologic/yuimeta/internal/meta"
	"github.com/phobologic/yuimeta/internal/model"
)

// GroupExtractor finds `<root>.GlobalConfig.groups.<name> = {...}`
// assignments in a loader configuration file.
type GroupExtractor struct{}

// Kind implements Extractor.
func (GroupExtractor) Kind() model.RecordKind { return model.GroupKind }

// Locate implements Extractor. Groups without a `modules` object are
// skipped; the first assignment for a group name wins and assignments
// nested inside an accepted one are ignored. A file without any group
// yields a record with no groups.
func (GroupExtractor) Locate(root *sitter.Node, doc *model.Document) (*model.Record, error) {
	found, err := matches(lang.GroupQuery, root, doc.Source)
	if err != nil {
		return nil, err
	}

	rec := &model.Record{Kind: model.GroupKind}
	seen := make(map[string]struct{})
	var accepted []model.Range

	for _, m := range found {
		assign := m.captures["assignment"]
		nameNode := m.captures["name"]
		config := m.captures["config"]
		if assign == nil || nameNode == nil || config == nil {
			continue
		}

		r := rangeOf(assign)
		if nested(accepted, r) {
			continue
		}
		name := lang.NodeText(nameNode, doc.Source)
		if _, dup := seen[name]; dup {
			continue
		}

		modules := modulesObject(config, doc.Source)
		if modules == nil {
			continue
		}
		seen[name] = struct{}{}
		accepted = append(accepted, r)
		rec.Groups = append(rec.Groups, groupRecord(name, modules, doc))
	}
	return rec, nil
}

func nested(accepted []model.Range, r model.Range) bool {
	for _, a := range accepted {
		if a.Contains(r) {
			return true
		}
	}
	return false
}

// modulesObject returns the value of the last `modules` property of a
// group configuration object if it is an object literal.
func modulesObject(config *sitter.Node, source []byte) *meta.Value {
	var modules *sitter.Node
	for _, child := range lang.NamedChildren(config) {
		if child.Type() != "pair" {
			continue
		}
		key := child.ChildByFieldName("key")
		val := child.ChildByFieldName("value")
		if key == nil || val == nil || val.Type() != "object" {
			continue
		}
		if keyName(key, source) == "modules" {
			modules = val
		}
	}
	if modules == nil {
		return nil
	}
	return meta.FromNode(modules, source)
}

func keyName(key *sitter.Node, source []byte) string {
	switch key.Type() {
	case "property_identifier":
		return lang.NodeText(key, source)
	case "string":
		return meta.FromNode(key, source).Text
	}
	return ""
}

func groupRecord(name string, modules *meta.Value, doc *model.Document) *model.GroupRecord {
	g := &model.GroupRecord{
		Name:    name,
		Doc:     doc,
		Modules: make(map[string]*meta.Value),
	}
	for _, p := range modules.Props {
		if p.IsVerbatim() || p.Computed {
			continue
		}
		if _, dup := g.Modules[p.Key]; !dup {
			g.Order = append(g.Order, p.Key)
		}
		g.Modules[p.Key] = p.Value
	}
	return g
}
