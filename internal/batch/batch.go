// Package batch runs extraction and reconciliation over many files with
// bounded concurrency.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/yuimeta/internal/extract"
	"github.com/phobologic/yuimeta/internal/lang"
	"github.com/phobologic/yuimeta/internal/logging"
	"github.com/phobologic/yuimeta/internal/model"
	"github.com/phobologic/yuimeta/internal/patch"
	"github.com/phobologic/yuimeta/internal/reconcile"
)

// DefaultMaxFileSize is the size above which module files are skipped.
const DefaultMaxFileSize = 1_000_000

// Options controls a reconciliation run.
type Options struct {
	// Jobs bounds the number of files processed at once. Zero or less
	// means GOMAXPROCS.
	Jobs int
	// MaxFileSize skips module files larger than this many bytes. Zero
	// disables the check.
	MaxFileSize int64
	DryRun      bool
}

func (o Options) jobs() int {
	if o.Jobs > 0 {
		return o.Jobs
	}
	return runtime.GOMAXPROCS(0)
}

// Outcome is what happened to one module file.
type Outcome struct {
	File    string
	Module  string
	Group   string
	Action  model.Action
	Written bool
	Skipped string
}

// Summary counts outcomes of a run.
type Summary struct {
	Files    int
	Modules  int
	NoOp     int
	Injected int
	Stripped int
	Mismatch int
	Skipped  int
}

// Add folds o into s.
func (s *Summary) Add(o Outcome) {
	s.Files++
	if o.Skipped != "" {
		s.Skipped++
		return
	}
	s.Modules++
	switch o.Action {
	case model.NoOp:
		s.NoOp++
	case model.Inject:
		s.Injected++
	case model.Strip:
		s.Stripped++
	case model.Mismatch:
		s.Mismatch++
	}
}

// Failure collects every mismatch and I/O error seen during a run.
type Failure struct {
	Mismatches []*reconcile.MismatchError
	Errs       []error
}

func (f *Failure) Error() string {
	var parts []string
	if n := len(f.Mismatches); n > 0 {
		parts = append(parts, fmt.Sprintf("%d metadata mismatch(es)", n))
	}
	for _, err := range f.Errs {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes the underlying errors to errors.Is and errors.As.
func (f *Failure) Unwrap() []error {
	out := make([]error, 0, len(f.Mismatches)+len(f.Errs))
	for _, m := range f.Mismatches {
		out = append(out, m)
	}
	return append(out, f.Errs...)
}

func (f *Failure) empty() bool {
	return len(f.Mismatches) == 0 && len(f.Errs) == 0
}

func (f *Failure) add(err error) {
	var mm *reconcile.MismatchError
	if errors.As(err, &mm) {
		f.Mismatches = append(f.Mismatches, mm)
		return
	}
	f.Errs = append(f.Errs, err)
}

// each runs fn for every index in [0, n) with at most jobs running at
// once. The first error stops new calls from being scheduled; calls
// already running are left to finish. Every error is returned in index
// order.
func each(ctx context.Context, n, jobs int, fn func(i int, parser *sitter.Parser) error) []error {
	errs := make([]error, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	parsers := sync.Pool{New: func() any { return lang.JavaScript().NewParser() }}

	for i := 0; i < n; i++ {
		i := i
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			parser := parsers.Get().(*sitter.Parser)
			defer parsers.Put(parser)

			errs[i] = fn(i, parser)
			return errs[i]
		})
	}
	_ = g.Wait()

	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}

// LoadIndex extracts the group assignments of every config file and merges
// them in the order given. Unreadable files fail the load; files that do
// not parse are logged and skipped.
func LoadIndex(ctx context.Context, files []string, opts Options) (*model.Index, error) {
	log := logging.FromContext(ctx)
	perFile := make([][]*model.GroupRecord, len(files))

	errs := each(ctx, len(files), opts.jobs(), func(i int, parser *sitter.Parser) error {
		doc, err := extract.ReadDocument(files[i])
		if err != nil {
			return err
		}
		rec, err := extract.Extract(ctx, parser, extract.GroupExtractor{}, doc)
		var syn *extract.SyntaxError
		if errors.As(err, &syn) {
			log.Warn().Str("file", doc.Path).Int("line", syn.Line).Msg("config file does not parse, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		if len(rec.Groups) == 0 {
			log.Debug().Str("file", doc.Path).Msg("no loader groups found")
		}
		perFile[i] = rec.Groups
		return nil
	})
	if len(errs) > 0 {
		return nil, &Failure{Errs: errs}
	}

	var records []*model.GroupRecord
	for _, groups := range perFile {
		for _, g := range groups {
			log.Debug().Str("file", g.Doc.Path).Str("group", g.Name).Int("modules", len(g.Order)).Msg("loaded group")
			records = append(records, g)
		}
	}

	idx, overridden := model.NewIndex(records)
	log.Debug().Int("files", len(files)).Int("modules", idx.Len()).Msg("loader index built")
	for _, name := range overridden {
		e, _ := idx.Lookup(name)
		log.Warn().Str("module", name).Str("group", e.Group).Str("file", e.GroupFile).
			Msg("module listed by more than one group, using the last")
	}
	return idx, nil
}

// Run reconciles every module file against idx, patching files whose
// metadata should be injected or stripped. Outcomes are returned in the
// order of files. When any mismatch or I/O error occurs the returned error
// is a *Failure; outcomes of files not processed after the first failure
// are zero.
func Run(ctx context.Context, idx *model.Index, files []string, opts Options) ([]Outcome, error) {
	w := patch.Writer{DryRun: opts.DryRun}
	outcomes := make([]Outcome, len(files))

	errs := each(ctx, len(files), opts.jobs(), func(i int, parser *sitter.Parser) error {
		o, err := reconcileFile(ctx, parser, w, idx, files[i], opts)
		outcomes[i] = o
		return err
	})
	if len(errs) > 0 {
		f := &Failure{}
		for _, err := range errs {
			f.add(err)
		}
		return outcomes, f
	}
	return outcomes, nil
}

func reconcileFile(ctx context.Context, parser *sitter.Parser, w patch.Writer, idx *model.Index, path string, opts Options) (Outcome, error) {
	log := logging.FromContext(ctx).With().Str("file", path).Logger()
	o := Outcome{File: path}

	if opts.MaxFileSize > 0 {
		fi, err := os.Stat(path)
		if err != nil {
			return o, fmt.Errorf("reading %s: %w", path, err)
		}
		if fi.Size() > opts.MaxFileSize {
			log.Warn().Int64("size", fi.Size()).Int64("max", opts.MaxFileSize).Msg("file too large, skipping")
			o.Skipped = "too large"
			return o, nil
		}
	}

	doc, err := extract.ReadDocument(path)
	if err != nil {
		return o, err
	}
	rec, err := extract.Extract(ctx, parser, extract.ModuleExtractor{}, doc)
	if skip, ok := skipReason(err); ok {
		if errors.Is(err, extract.ErrNotModule) {
			log.Debug().Msg(skip)
		} else {
			log.Warn().Err(err).Msg(skip)
		}
		o.Skipped = skip
		return o, nil
	}
	if err != nil {
		return o, err
	}

	m := rec.Module
	o.Module = m.Name
	log = log.With().Str("module", m.Name).Logger()

	entry, ok := idx.Lookup(m.Name)
	if !ok {
		log.Warn().Msg("no loader config found for module")
		o.Action = model.NoOp
		return o, nil
	}
	o.Group = entry.Group

	res, err := reconcile.Check(entry, m)
	o.Action = res.Action
	if err != nil {
		return o, err
	}
	if res.Action != model.Inject && res.Action != model.Strip {
		return o, nil
	}

	newDoc, changed, err := w.Apply(m, res)
	if err != nil {
		return o, err
	}
	if !changed {
		o.Action = model.NoOp
		return o, nil
	}
	o.Written = !opts.DryRun

	if err := refresh(ctx, parser, m, newDoc); err != nil {
		return o, err
	}

	ev := log.Info().Str("group", entry.Group).Str("action", string(res.Action))
	if opts.DryRun {
		ev.Msg("would update metadata (dry run)")
	} else {
		ev.Msg("updated metadata")
	}
	return o, nil
}

// refresh re-extracts m from its patched document so that its ranges,
// metadata and canonical form describe the new source.
func refresh(ctx context.Context, parser *sitter.Parser, m *model.ModuleRecord, doc *model.Document) error {
	rec, err := extract.Extract(ctx, parser, extract.ModuleExtractor{}, doc)
	if err != nil {
		return fmt.Errorf("re-reading patched %s: %w", doc.Path, err)
	}
	*m = *rec.Module
	m.Invalidate()
	return nil
}

// skipReason classifies the extraction errors that leave a file alone
// instead of failing the run.
func skipReason(err error) (string, bool) {
	var mal *extract.MalformedError
	var syn *extract.SyntaxError
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, extract.ErrNotModule):
		return "not a module", true
	case errors.As(err, &mal):
		return "malformed registration call", true
	case errors.As(err, &syn):
		return "file does not parse", true
	}
	return "", false
}

// Modules extracts the registration call of every file. Files that are
// not modules are logged and left out.
func Modules(ctx context.Context, files []string, opts Options) ([]*model.ModuleRecord, error) {
	log := logging.FromContext(ctx)
	recs := make([]*model.ModuleRecord, len(files))

	errs := each(ctx, len(files), opts.jobs(), func(i int, parser *sitter.Parser) error {
		doc, err := extract.ReadDocument(files[i])
		if err != nil {
			return err
		}
		rec, err := extract.Extract(ctx, parser, extract.ModuleExtractor{}, doc)
		if skip, ok := skipReason(err); ok {
			log.Warn().Err(err).Str("file", doc.Path).Msg(skip)
			return nil
		}
		if err != nil {
			return err
		}
		recs[i] = rec.Module
		return nil
	})
	if len(errs) > 0 {
		return nil, &Failure{Errs: errs}
	}

	out := recs[:0]
	for _, r := range recs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}
