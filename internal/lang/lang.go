// Package lang provides a language registry mapping file extensions to
// tree-sitter languages and their embedded query files.
package lang

import (
	"embed"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

//go:embed queries/*.scm
var queryFS embed.FS

// Query names understood by Language.GetQuery.
const (
	ModuleQuery = "module"
	GroupQuery  = "group"
)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language

	mu      sync.Mutex
	queries map[string]*compiledQuery
}

type compiledQuery struct {
	once  sync.Once
	query *sitter.Query
	err   error
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.GetLanguage())
	return p
}

// GetQuery returns the named compiled query (safe to share across goroutines).
// Query files live in queries/<language>-<name>.scm.
func (l *Language) GetQuery(name string) (*sitter.Query, error) {
	l.mu.Lock()
	if l.queries == nil {
		l.queries = make(map[string]*compiledQuery)
	}
	cq, ok := l.queries[name]
	if !ok {
		cq = &compiledQuery{}
		l.queries[name] = cq
	}
	l.mu.Unlock()

	cq.once.Do(func() {
		data, err := queryFS.ReadFile(fmt.Sprintf("queries/%s-%s.scm", l.Name, name))
		if err != nil {
			cq.err = fmt.Errorf("reading query file: %w", err)
			return
		}
		q, err := sitter.NewQuery(data, l.lang)
		if err != nil {
			cq.err = fmt.Errorf("compiling query: %w", err)
			return
		}
		cq.query = q
	})
	return cq.query, cq.err
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

// extensionMap is built lazily after all init() functions have run.
var extensionMap map[string]string
var extensionOnce sync.Once

func getExtensionMap() map[string]string {
	extensionOnce.Do(func() {
		extensionMap = make(map[string]string)
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				extensionMap[ext] = l.Name
			}
		}
	})
	return extensionMap
}

// ForExtension returns the language name for a file extension, or "" if unsupported.
func ForExtension(ext string) string {
	return getExtensionMap()[ext]
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// NamedChildren returns the named children of node, skipping comments.
func NamedChildren(node *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}
