// Package toon implements TOON (Token-Oriented Object Notation) encoding
// of the loader index.
package toon

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/phobologic/yuimeta/internal/meta"
	"github.com/phobologic/yuimeta/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a loader index into TOON format: one table of groups and
// their files, one table of modules with their metadata keys and requires.
func Encode(idx *model.Index) string {
	var parts []string

	var groupRows [][]string
	for _, g := range idx.Groups() {
		groupRows = append(groupRows, []string{g, idx.GroupFile(g)})
	}
	parts = append(parts, formatTabular("groups", []string{"name", "file"}, groupRows))

	entries := idx.Entries()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Group != entries[j].Group {
			return entries[i].Group < entries[j].Group
		}
		return entries[i].Module < entries[j].Module
	})

	var moduleRows [][]string
	for _, e := range entries {
		moduleRows = append(moduleRows, []string{
			e.Module,
			e.Group,
			strings.Join(keys(e.Block), " "),
			strings.Join(requires(e.Block), " "),
		})
	}
	parts = append(parts, formatTabular("modules", []string{"name", "group", "keys", "requires"}, moduleRows))

	return strings.Join(parts, "\n")
}

// keys lists the non-path keys of a metadata block in sorted order.
func keys(v *meta.Value) []string {
	var out []string
	for _, p := range v.WithoutPaths().Props {
		if p.IsVerbatim() {
			continue
		}
		out = append(out, p.Key)
	}
	sort.Strings(out)
	return out
}

func requires(v *meta.Value) []string {
	req := v.Get(meta.RequiresKey)
	if req == nil || req.Kind != meta.Array {
		return nil
	}
	out := make([]string, 0, len(req.Elems))
	for _, e := range req.Elems {
		out = append(out, e.Text)
	}
	return out
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
