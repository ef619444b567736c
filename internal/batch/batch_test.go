package batch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/phobologic/yuimeta/internal/extract"
	"github.com/phobologic/yuimeta/internal/lang"
	"github.com/phobologic/yuimeta/internal/logging"
	"github.com/phobologic/yuimeta/internal/model"
	"github.com/phobologic/yuimeta/internal/patch"
	"github.com/phobologic/yuimeta/internal/reconcile"
)

const loaderConfig = `YUI.GlobalConfig = YUI.GlobalConfig || {};
YUI.GlobalConfig.groups.app = {
    base: '/js/',
    modules: {
        'app-core': {path: 'core.js', requires: ['node', 'io']},
        'app-plain': {path: 'plain.js'},
        'app-drift': {requires: ['node']}
    }
};
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func testContext(buf *bytes.Buffer) context.Context {
	log := logging.New(zerolog.SyncWriter(buf), logging.Config{Level: "debug", Format: "json"})
	return logging.WithLogger(context.Background(), log)
}

func loadIndex(t *testing.T, dir string) *model.Index {
	t.Helper()
	cfg := writeFile(t, dir, "config.js", loaderConfig)
	idx, err := LoadIndex(context.Background(), []string{cfg}, Options{Jobs: 2})
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	return idx
}

func TestLoadIndex(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	idx := loadIndex(t, dir)
	if idx.Len() != 3 {
		t.Errorf("Len() = %d, want 3", idx.Len())
	}
	e, ok := idx.Lookup("app-core")
	if !ok {
		t.Fatal("app-core missing")
	}
	if e.Group != "app" || e.GroupFile != filepath.Join(dir, "config.js") {
		t.Errorf("entry = %+v", e)
	}
}

func TestLoadIndexLaterFileWins(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	a := writeFile(t, dir, "a.js", "YUI.GlobalConfig.groups.first = {modules: {x: {requires: ['a']}}};\n")
	b := writeFile(t, dir, "b.js", "YUI.GlobalConfig.groups.second = {modules: {x: {requires: ['b']}}};\n")

	var logs bytes.Buffer
	idx, err := LoadIndex(testContext(&logs), []string{a, b}, Options{Jobs: 2})
	if err != nil {
		t.Fatal(err)
	}
	e, _ := idx.Lookup("x")
	if e.Group != "second" {
		t.Errorf("group = %q, want second", e.Group)
	}
	if !strings.Contains(logs.String(), "more than one group") {
		t.Errorf("expected override warning, logs:\n%s", logs.String())
	}
}

func TestLoadIndexMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadIndex(context.Background(), []string{filepath.Join(t.TempDir(), "nope.js")}, Options{})
	var f *Failure
	if !errors.As(err, &f) || len(f.Errs) != 1 {
		t.Fatalf("err = %v, want a Failure with one error", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want it to wrap ErrNotExist", err)
	}
}

func TestRunInjectAndStrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	idx := loadIndex(t, dir)

	core := writeFile(t, dir, "core.js", "YUI.add('app-core', function (Y) {\n    Y.core = 1;\n}, '1.0');\n")
	plain := writeFile(t, dir, "plain.js", "YUI.add('app-plain', function (Y) {\n}, '1.0', {path: 'plain.js'});\n")
	other := writeFile(t, dir, "other.js", "var notAModule = true;\n")
	orphan := writeFile(t, dir, "orphan.js", "YUI.add('orphan', function (Y) {});\n")

	var logs bytes.Buffer
	outcomes, err := Run(testContext(&logs), idx, []string{core, plain, other, orphan}, Options{Jobs: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := make([]model.Action, len(outcomes))
	for i, o := range outcomes {
		got[i] = o.Action
	}
	want := []model.Action{model.Inject, model.Strip, "", model.NoOp}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("actions (-want +got):\n%s", diff)
	}
	if outcomes[2].Skipped == "" {
		t.Error("non-module file was not skipped")
	}

	wantCore := `YUI.add('app-core', function (Y) {
    Y.core = 1;
}, '1.0', {
    "requires": [
        "node",
        "io"
    ]
});
`
	if diff := cmp.Diff(wantCore, readFile(t, core)); diff != "" {
		t.Errorf("core.js (-want +got):\n%s", diff)
	}
	if got := readFile(t, plain); got != "YUI.add('app-plain', function (Y) {\n}, '1.0');\n" {
		t.Errorf("plain.js = %q", got)
	}
	if !strings.Contains(logs.String(), "no loader config found") {
		t.Errorf("expected missing entry warning, logs:\n%s", logs.String())
	}

	var s Summary
	for _, o := range outcomes {
		s.Add(o)
	}
	if diff := cmp.Diff(Summary{Files: 4, Modules: 3, NoOp: 1, Injected: 1, Stripped: 1, Skipped: 1}, s); diff != "" {
		t.Errorf("summary (-want +got):\n%s", diff)
	}

	// A second pass finds nothing to do.
	outcomes, err = Run(context.Background(), idx, []string{core, plain}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range outcomes {
		if o.Action != model.NoOp {
			t.Errorf("%s: second pass action = %s", o.File, o.Action)
		}
	}
}

func TestRefreshAfterPatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	parser := lang.JavaScript().NewParser()

	doc := &model.Document{Path: "mod.js", Source: []byte("YUI.add('app-core', function (Y) {}, '1.0', {path: 'core.js'});\n")}
	rec, err := extract.Extract(ctx, parser, extract.ModuleExtractor{}, doc)
	if err != nil {
		t.Fatal(err)
	}
	m := rec.Module
	before := m.Canonical()

	res := reconcile.Decide(nil, m.Meta)
	if res.Action != model.Strip {
		t.Fatalf("action = %s, want strip", res.Action)
	}
	newDoc, changed, err := patch.Writer{DryRun: true}.Apply(m, res)
	if err != nil || !changed {
		t.Fatalf("Apply = %v, %v", changed, err)
	}

	if err := refresh(ctx, parser, m, newDoc); err != nil {
		t.Fatal(err)
	}
	if m.Doc != newDoc || m.Meta != nil || m.MetaRange != nil {
		t.Errorf("record still describes the old source: %+v", m)
	}
	if got := m.Canonical(); got != "" {
		t.Errorf("Canonical() = %q after strip, was %q", got, before)
	}
	if got := string(newDoc.Source[m.Args[2].Start:m.Args[2].End]); got != "'1.0'" {
		t.Errorf("version argument = %q", got)
	}
}

func TestRunMismatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	idx := loadIndex(t, dir)

	src := "YUI.add('app-drift', function (Y) {}, '1.0', {requires: ['io']});\n"
	drift := writeFile(t, dir, "drift.js", src)

	_, err := Run(context.Background(), idx, []string{drift}, Options{Jobs: 1})
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("err = %v, want *Failure", err)
	}
	if len(f.Mismatches) != 1 || len(f.Errs) != 0 {
		t.Fatalf("failure = %+v", f)
	}
	mm := f.Mismatches[0]
	if mm.Module != "app-drift" || mm.Group != "app" || mm.ModuleFile != drift {
		t.Errorf("mismatch = %+v", mm)
	}
	var target *reconcile.MismatchError
	if !errors.As(err, &target) {
		t.Error("errors.As did not find the MismatchError")
	}
	if got := readFile(t, drift); got != src {
		t.Errorf("mismatched file was modified: %q", got)
	}
}

func TestRunDryRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	idx := loadIndex(t, dir)

	src := "YUI.add('app-core', function (Y) {});\n"
	core := writeFile(t, dir, "core.js", src)

	outcomes, err := Run(context.Background(), idx, []string{core}, Options{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if outcomes[0].Action != model.Inject || outcomes[0].Written {
		t.Errorf("outcome = %+v", outcomes[0])
	}
	if got := readFile(t, core); got != src {
		t.Errorf("dry run modified file: %q", got)
	}
}

func TestRunSkipsLargeFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	idx := loadIndex(t, dir)

	src := "YUI.add('app-core', function (Y) {});\n"
	core := writeFile(t, dir, "core.js", src)

	outcomes, err := Run(context.Background(), idx, []string{core}, Options{MaxFileSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if outcomes[0].Skipped == "" {
		t.Errorf("outcome = %+v, want skipped", outcomes[0])
	}
	if got := readFile(t, core); got != src {
		t.Errorf("skipped file was modified: %q", got)
	}
}

func TestRunMissingFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	idx := loadIndex(t, dir)

	_, err := Run(context.Background(), idx, []string{filepath.Join(dir, "gone.js")}, Options{})
	var f *Failure
	if !errors.As(err, &f) || len(f.Errs) != 1 {
		t.Fatalf("err = %v, want one I/O error", err)
	}
}

func TestModules(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	a := writeFile(t, dir, "a.js", "YUI.add('a', function (Y) {});\n")
	b := writeFile(t, dir, "b.js", "var b = 1;\n")
	c := writeFile(t, dir, "c.js", "YUI.add('c', function (Y) {}, '1.0', {requires: []});\n")

	recs, err := Modules(context.Background(), []string{a, b, c}, Options{Jobs: 3})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range recs {
		names = append(names, r.Name)
	}
	if diff := cmp.Diff([]string{"a", "c"}, names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
}

func TestFailureError(t *testing.T) {
	t.Parallel()

	f := &Failure{
		Mismatches: []*reconcile.MismatchError{{Module: "a"}, {Module: "b"}},
		Errs:       []error{errors.New("reading x.js: boom")},
	}
	if got := f.Error(); got != "2 metadata mismatch(es); reading x.js: boom" {
		t.Errorf("Error() = %q", got)
	}
}
