// Package report renders reconciliation failures and module summaries for
// the terminal.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/phobologic/yuimeta/internal/reconcile"
)

// Palette styles the parts of a mismatch report.
type Palette struct {
	Loader lipgloss.Style
	Module lipgloss.Style
	Same   lipgloss.Style
	Header lipgloss.Style
}

// NewPalette returns the styles for w. With noColor every style is plain.
func NewPalette(w io.Writer, noColor bool) Palette {
	r := lipgloss.NewRenderer(w)
	if noColor {
		plain := r.NewStyle()
		return Palette{Loader: plain, Module: plain, Same: plain, Header: plain}
	}
	return Palette{
		Loader: r.NewStyle().Foreground(lipgloss.Color("1")),
		Module: r.NewStyle().Foreground(lipgloss.Color("2")),
		Same:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Header: r.NewStyle().Bold(true),
	}
}

// Mismatch writes a report for e: which module and group disagree, where
// they live, and a line diff from the loader's canonical metadata to the
// module's. Without loader metadata the module block is printed whole.
func Mismatch(w io.Writer, p Palette, e *reconcile.MismatchError) error {
	var b strings.Builder

	title := fmt.Sprintf("Metadata mismatch for module %q in group %q", e.Module, e.Group)
	if !e.HasExpected {
		title = fmt.Sprintf("Module %q declares metadata that loader group %q lacks", e.Module, e.Group)
	}
	b.WriteString(p.Header.Render(title))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "  loader: %s\n", e.GroupFile)
	fmt.Fprintf(&b, "  module: %s\n", e.ModuleFile)
	b.WriteString(p.Loader.Render("loader") + p.Same.Render(" <> ") + p.Module.Render("module"))
	b.WriteByte('\n')

	if !e.HasExpected {
		for _, line := range splitLines(e.Actual) {
			b.WriteString(p.Module.Render("+ " + line))
			b.WriteByte('\n')
		}
	} else {
		b.WriteString(Diff(p, e.Expected, e.Actual))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Diff renders a line diff of expected against actual: removed lines use
// the loader style, added lines the module style.
func Diff(p Palette, expected, actual string) string {
	a := splitLines(expected)
	bl := splitLines(actual)

	var b strings.Builder
	emit := func(style lipgloss.Style, prefix string, lines []string) {
		for _, line := range lines {
			b.WriteString(style.Render(prefix + line))
			b.WriteByte('\n')
		}
	}

	for _, op := range difflib.NewMatcher(a, bl).GetOpCodes() {
		switch op.Tag {
		case 'e':
			emit(p.Same, "  ", a[op.I1:op.I2])
		case 'd':
			emit(p.Loader, "- ", a[op.I1:op.I2])
		case 'i':
			emit(p.Module, "+ ", bl[op.J1:op.J2])
		case 'r':
			emit(p.Loader, "- ", a[op.I1:op.I2])
			emit(p.Module, "+ ", bl[op.J1:op.J2])
		}
	}
	return b.String()
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
