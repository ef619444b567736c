package report

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/phobologic/yuimeta/internal/meta"
	"github.com/phobologic/yuimeta/internal/model"
)

// ModuleSummary is the printable view of a module registration.
type ModuleSummary struct {
	Name      string `yaml:"name"`
	File      string `yaml:"file"`
	Version   string `yaml:"version,omitempty"`
	Metadata  string `yaml:"metadata,omitempty"`
	Canonical string `yaml:"canonical,omitempty"`
	Body      string `yaml:"body"`
}

var blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)

// Summarize builds the summary of rec. Body is the factory body without
// its braces, dedented, framed by the block comments found before and
// after the registration call.
func Summarize(rec *model.ModuleRecord) ModuleSummary {
	src := rec.Doc.Source
	s := ModuleSummary{
		Name: rec.Name,
		File: rec.Doc.Path,
	}
	if rec.HasVersion() {
		v := rec.Args[2]
		if parsed, err := meta.Parse(string(src[v.Start:v.End])); err == nil && parsed.Kind != meta.Object {
			s.Version = parsed.Text
		}
	}
	if rec.Meta != nil {
		s.Metadata = meta.Render(rec.Meta)
		s.Canonical = rec.Canonical()
	}

	inner := ""
	if rec.Body.Len() >= 2 {
		inner = dedent(string(src[rec.Body.Start+1 : rec.Body.End-1]))
	}
	before := strings.Join(blockComment.FindAllString(string(src[:rec.Call.Start]), -1), "\n")
	after := strings.Join(blockComment.FindAllString(string(src[rec.Call.End:]), -1), "\n")

	var parts []string
	for _, part := range []string{before, inner, after} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	s.Body = strings.Join(parts, "\n")
	return s
}

// Show writes the summaries of recs as a YAML stream.
func Show(w io.Writer, recs []*model.ModuleRecord) error {
	for i, rec := range recs {
		data, err := yaml.Marshal(Summarize(rec))
		if err != nil {
			return fmt.Errorf("encoding %s: %w", rec.Doc.Path, err)
		}
		if i > 0 {
			if _, err := io.WriteString(w, "---\n"); err != nil {
				return err
			}
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return nil
}

// dedent trims blank leading and trailing lines and removes the
// indentation common to all non-blank lines.
func dedent(s string) string {
	lines := strings.Split(s, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}

	prefix := ""
	first := true
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix, first = indent, false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}

	for i, line := range lines {
		lines[i] = strings.TrimRight(strings.TrimPrefix(line, prefix), " \t")
	}
	return strings.Join(lines, "\n")
}
