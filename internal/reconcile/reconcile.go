// Package reconcile decides how a module's inline metadata relates to the
// metadata its loader group declares for it.
package reconcile

import (
	"fmt"

	"github.com/phobologic/yuimeta/internal/meta"
	"github.com/phobologic/yuimeta/internal/model"
)

// Decide compares loader metadata against module metadata (nil when the
// registration call has none) and returns the action to take.
//
// The loader wins whenever it declares requires and the module's own copy
// is missing or its requires is not an array. Otherwise both sides are
// compared in canonical form. When the loader carries nothing but path
// keys, module metadata holding a non-empty list cannot be moved into the
// loader automatically and is reported; any other object literal is
// stripped. Metadata that is not an object literal is never touched then.
func Decide(loader, module *meta.Value) model.Result {
	if loader.HasNonPathKey() {
		filtered := loader.WithoutPaths()
		if filtered.Has(meta.RequiresKey) && !hasRequiresArray(module) {
			return model.Result{Action: model.Inject, Block: filtered.SortKeys()}
		}

		expected := meta.Canonicalize(filtered)
		actual := canonicalOrEmpty(module)
		if expected != actual {
			return model.Result{
				Action:      model.Mismatch,
				Expected:    expected,
				HasExpected: true,
				Actual:      actual,
			}
		}
		return model.Result{Action: model.NoOp}
	}

	// A reference or call in the metadata position cannot be inspected,
	// so it is left alone.
	if module == nil || module.Kind != meta.Object {
		return model.Result{Action: model.NoOp}
	}
	if module.WithoutPaths().HasNonEmptyArray() {
		return model.Result{Action: model.Mismatch, Actual: meta.Canonicalize(module)}
	}
	return model.Result{Action: model.Strip}
}

// hasRequiresArray reports whether module metadata exists and holds an
// array under the requires key. A requires value of any other shape is
// treated like a missing one and gets overwritten by the loader's.
func hasRequiresArray(module *meta.Value) bool {
	req := module.Get(meta.RequiresKey)
	return req != nil && req.Kind == meta.Array
}

func canonicalOrEmpty(v *meta.Value) string {
	if v == nil {
		return meta.Canonicalize(&meta.Value{Kind: meta.Object})
	}
	return meta.Canonicalize(v.WithoutPaths())
}

// MismatchError is returned when loader and module metadata disagree in a
// way that needs a human to resolve.
type MismatchError struct {
	Group      string
	Module     string
	GroupFile  string
	ModuleFile string

	// Expected is the loader's canonical metadata; HasExpected is false
	// when the loader declares none.
	Expected    string
	HasExpected bool
	Actual      string
}

func (e *MismatchError) Error() string {
	if !e.HasExpected {
		return fmt.Sprintf("module %q (%s) declares metadata missing from loader group %q (%s)",
			e.Module, e.ModuleFile, e.Group, e.GroupFile)
	}
	return fmt.Sprintf("module %q (%s) metadata does not match loader group %q (%s)",
		e.Module, e.ModuleFile, e.Group, e.GroupFile)
}

// Check reconciles a module record against its loader entry. A Mismatch
// decision is returned as a *MismatchError alongside the result.
func Check(entry *model.LoaderEntry, rec *model.ModuleRecord) (model.Result, error) {
	res := Decide(entry.Block, rec.Meta)
	if res.Action != model.Mismatch {
		return res, nil
	}
	return res, &MismatchError{
		Group:       entry.Group,
		Module:      rec.Name,
		GroupFile:   entry.GroupFile,
		ModuleFile:  rec.Doc.Path,
		Expected:    res.Expected,
		HasExpected: res.HasExpected,
		Actual:      res.Actual,
	}
}
