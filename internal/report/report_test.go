package report

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/yuimeta/internal/extract"
	"github.com/phobologic/yuimeta/internal/lang"
	"github.com/phobologic/yuimeta/internal/model"
	"github.com/phobologic/yuimeta/internal/reconcile"
)

func moduleRecord(t *testing.T, path, src string) *model.ModuleRecord {
	t.Helper()
	doc := &model.Document{Path: path, Source: []byte(src)}
	rec, err := extract.Extract(context.Background(), lang.JavaScript().NewParser(), extract.ModuleExtractor{}, doc)
	require.NoError(t, err)
	return rec.Module
}

func TestMismatchDiff(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := Mismatch(&buf, NewPalette(&buf, true), &reconcile.MismatchError{
		Group:       "app",
		Module:      "app-core",
		GroupFile:   "config/app.js",
		ModuleFile:  "src/core.js",
		Expected:    "{\n    \"requires\": [\n        \"io\"\n    ]\n}",
		HasExpected: true,
		Actual:      "{\n    \"requires\": [\n        \"node\"\n    ]\n}",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `Metadata mismatch for module "app-core" in group "app"`)
	assert.Contains(t, out, "  loader: config/app.js\n")
	assert.Contains(t, out, "  module: src/core.js\n")
	assert.Contains(t, out, "loader <> module\n")
	assert.Contains(t, out, "-         \"io\"\n")
	assert.Contains(t, out, "+         \"node\"\n")
	assert.Contains(t, out, "  {\n")
	assert.NotContains(t, out, "\x1b[", "no-color output contains escape codes")
}

func TestMismatchWithoutLoaderMetadata(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := Mismatch(&buf, NewPalette(&buf, true), &reconcile.MismatchError{
		Group:      "app",
		Module:     "app-core",
		GroupFile:  "config/app.js",
		ModuleFile: "src/core.js",
		Actual:     "{\n    \"requires\": [\n        \"node\"\n    ]\n}",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `declares metadata that loader group "app" lacks`)
	for _, line := range []string{"+ {", `+     "requires": [`, `+         "node"`, "+ }"} {
		assert.Contains(t, out, line+"\n")
	}
	assert.NotContains(t, out, "- ")
}

func TestDiffIdentical(t *testing.T) {
	t.Parallel()

	p := NewPalette(&bytes.Buffer{}, true)
	got := Diff(p, "{}", "{}")
	assert.Equal(t, "  {}\n", got)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	src := `/* header */
YUI.add('foo', function (Y) {
        var x = 1;
            Y.Foo = x;
}, '3.4.0', {requires: ['node'], path: 'foo.js'});
/* footer */
`
	s := Summarize(moduleRecord(t, "src/foo.js", src))

	assert.Equal(t, "foo", s.Name)
	assert.Equal(t, "src/foo.js", s.File)
	assert.Equal(t, "3.4.0", s.Version)
	assert.Equal(t, "{\n    \"requires\": [\n        \"node\"\n    ]\n}", s.Canonical)
	assert.Contains(t, s.Metadata, `"path": "foo.js"`)
	assert.Equal(t, "/* header */\nvar x = 1;\n    Y.Foo = x;\n/* footer */", s.Body)
}

func TestSummarizeNoMetadata(t *testing.T) {
	t.Parallel()

	s := Summarize(moduleRecord(t, "bar.js", "YUI.add('bar', function (Y) {});\n"))
	assert.Equal(t, "bar", s.Name)
	assert.Empty(t, s.Version)
	assert.Empty(t, s.Metadata)
	assert.Empty(t, s.Canonical)
	assert.Empty(t, s.Body)
}

func TestShow(t *testing.T) {
	t.Parallel()

	recs := []*model.ModuleRecord{
		moduleRecord(t, "a.js", "YUI.add('a', function (Y) { Y.A = 1; });\n"),
		moduleRecord(t, "b.js", "YUI.add('b', function (Y) {}, '1.0');\n"),
	}
	var buf bytes.Buffer
	require.NoError(t, Show(&buf, recs))

	docs := strings.Split(buf.String(), "---\n")
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0], "name: a\n")
	assert.Contains(t, docs[0], "Y.A = 1;")
	assert.Contains(t, docs[1], "name: b\n")
	assert.Contains(t, docs[1], "version:")
	assert.Contains(t, docs[1], "1.0")
}

func TestDedent(t *testing.T) {
	t.Parallel()

	in := "\n\t\tif (a) {\n\t\t\tb();\n\t\t}\n\n"
	assert.Equal(t, "if (a) {\n\tb();\n}", dedent(in))
	assert.Equal(t, "", dedent("\n   \n"))
}
