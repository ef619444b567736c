// Package patch rewrites the metadata argument of a YUI.add() call.
package patch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/phobologic/yuimeta/internal/meta"
	"github.com/phobologic/yuimeta/internal/model"
)

// Compute returns the source of rec's document with res applied. Edits are
// always computed from the original buffer, which is left untouched.
// changed is false when res requires no edit.
func Compute(rec *model.ModuleRecord, res model.Result) (out []byte, changed bool, err error) {
	src := rec.Doc.Source

	switch res.Action {
	case model.Inject:
		if res.Block == nil {
			return nil, false, fmt.Errorf("%s: inject without a metadata block", rec.Doc.Path)
		}
		text := meta.Render(res.Block)

		if rec.MetaRange != nil {
			return splice(src, *rec.MetaRange, text), true, nil
		}
		if len(rec.Args) < 2 {
			return nil, false, fmt.Errorf("%s: registration call has %d arguments", rec.Doc.Path, len(rec.Args))
		}

		// Insert after the last argument, ahead of any trailing comma and
		// the closing parenthesis.
		at := rec.Args[len(rec.Args)-1].End
		insert := ""
		if !rec.HasVersion() {
			insert += `, ""`
		}
		insert += ", " + text
		return splice(src, model.Range{Start: at, End: at}, insert), true, nil

	case model.Strip:
		if rec.MetaRange == nil {
			return src, false, nil
		}
		// Later arguments must keep their positions, so the metadata is
		// emptied in place instead of removed.
		if len(rec.Args) > 4 {
			if rec.Meta != nil && rec.Meta.Kind == meta.Object && len(rec.Meta.Props) == 0 {
				return src, false, nil
			}
			return splice(src, *rec.MetaRange, "{}"), true, nil
		}
		// Metadata is the fourth argument, so a version argument precedes
		// it. Drop everything from the end of the version through the
		// metadata, separator included.
		return splice(src, model.Range{Start: rec.Args[2].End, End: rec.MetaRange.End}, ""), true, nil

	case model.NoOp, model.Mismatch:
		return src, false, nil
	}
	return nil, false, fmt.Errorf("unknown action %q", res.Action)
}

// splice returns a new buffer with r replaced by text.
func splice(src []byte, r model.Range, text string) []byte {
	out := make([]byte, 0, len(src)-r.Len()+len(text))
	out = append(out, src[:r.Start]...)
	out = append(out, text...)
	out = append(out, src[r.End:]...)
	return out
}

// Writer persists patched sources.
type Writer struct {
	// DryRun discards computed buffers instead of writing them.
	DryRun bool
}

// Apply computes the patch for res and writes it. It returns the document
// holding the new source, or the original document when nothing changed.
func (w Writer) Apply(rec *model.ModuleRecord, res model.Result) (*model.Document, bool, error) {
	out, changed, err := Compute(rec, res)
	if err != nil || !changed {
		return rec.Doc, false, err
	}
	if err := w.Write(rec.Doc.Path, out); err != nil {
		return rec.Doc, false, err
	}
	return &model.Document{Path: rec.Doc.Path, Source: out}, true, nil
}

// Write replaces the file at path with data. The new contents go to a
// temporary file in the same directory which is then renamed over path,
// so readers see either the old or the new file.
func (w Writer) Write(path string, data []byte) error {
	if w.DryRun {
		return nil
	}

	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		return cleanup(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
