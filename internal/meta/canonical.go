package meta

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

const indentUnit = "    "

// Canonicalize returns the comparison form of v: path-only keys dropped,
// object keys and array elements sorted, keys quoted, rendered with Render.
// The result parses back into a Value with the same canonical form.
func Canonicalize(v *Value) string {
	return Render(Normalize(v))
}

// Normalize returns a sorted deep copy of v without top-level path keys.
func Normalize(v *Value) *Value {
	if v == nil {
		return nil
	}
	c := v.Clone()
	if c.Kind == Object {
		c = c.WithoutPaths()
	}
	sortValue(c)
	return c
}

func sortValue(v *Value) {
	switch v.Kind {
	case Object:
		for _, p := range v.Props {
			if p.Value != nil {
				sortValue(p.Value)
			}
		}
		sort.SliceStable(v.Props, func(i, j int) bool {
			return propertySortKey(v.Props[i]) < propertySortKey(v.Props[j])
		})
	case Array:
		for _, e := range v.Elems {
			sortValue(e)
		}
		keys := make(map[*Value]sortKey, len(v.Elems))
		for _, e := range v.Elems {
			keys[e] = elementSortKey(e)
		}
		sort.SliceStable(v.Elems, func(i, j int) bool {
			return keys[v.Elems[i]].less(keys[v.Elems[j]])
		})
	}
}

func propertySortKey(p Property) string {
	if p.IsVerbatim() {
		return p.Verbatim
	}
	return p.Key
}

// sortKey orders array elements by literal text, then kind, then rendered
// form, so elements that share a literal text (the string "1" and the
// number 1) still sort the same way whatever their input order.
type sortKey struct {
	text     string
	kind     Kind
	rendered string
}

func (k sortKey) less(o sortKey) bool {
	if k.text != o.text {
		return k.text < o.text
	}
	if k.kind != o.kind {
		return k.kind < o.kind
	}
	return k.rendered < o.rendered
}

// elementSortKey is the literal text of an element: the value of a string,
// the rendered text of anything else.
func elementSortKey(v *Value) sortKey {
	rendered := Render(v)
	if v.Kind == String {
		return sortKey{text: v.Text, kind: v.Kind, rendered: rendered}
	}
	return sortKey{text: rendered, kind: v.Kind, rendered: rendered}
}

// Render pretty-prints v with double-quoted keys and strings and four-space
// indentation. Empty arrays and objects stay on one line; non-empty ones
// put each member on its own line.
func Render(v *Value) string {
	if v == nil {
		return ""
	}
	var b strings.Builder
	render(&b, v, 0)
	return b.String()
}

func render(b *strings.Builder, v *Value, depth int) {
	switch v.Kind {
	case Object:
		if len(v.Props) == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteString("{\n")
		for i, p := range v.Props {
			b.WriteString(strings.Repeat(indentUnit, depth+1))
			switch {
			case p.IsVerbatim():
				b.WriteString(p.Verbatim)
			default:
				if p.Computed {
					b.WriteString(p.Key)
				} else {
					b.WriteString(Quote(p.Key))
				}
				b.WriteString(": ")
				render(b, p.Value, depth+1)
			}
			if i < len(v.Props)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat(indentUnit, depth))
		b.WriteByte('}')
	case Array:
		if len(v.Elems) == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteString("[\n")
		for i, e := range v.Elems {
			b.WriteString(strings.Repeat(indentUnit, depth+1))
			render(b, e, depth+1)
			if i < len(v.Elems)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat(indentUnit, depth))
		b.WriteByte(']')
	case String:
		b.WriteString(Quote(v.Text))
	default:
		b.WriteString(v.Text)
	}
}

// Quote returns s as a double-quoted JavaScript string literal.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			if u, ok := surrogateAt(s, i); ok {
				fmt.Fprintf(&b, `\u%04x`, u)
				i += 3
				continue
			}
		}
		i += size
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\u2028', '\u2029':
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// decodeString returns the value of a quoted JavaScript string literal.
func decodeString(lit string) string {
	if len(lit) < 2 {
		return lit
	}
	body := lit[1 : len(lit)-1]
	if !strings.ContainsRune(body, '\\') {
		return body
	}

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 >= len(body) {
			b.WriteByte(c)
			continue
		}
		i++
		switch esc := body[i]; esc {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '0':
			b.WriteByte(0)
		case '\r':
			// line continuation
			if i+1 < len(body) && body[i+1] == '\n' {
				i++
			}
		case '\n':
		case 'x':
			if r, ok := parseHex(body, i+1, 2); ok {
				b.WriteRune(r)
				i += 2
			} else {
				b.WriteByte(esc)
			}
		case 'u':
			if i+1 < len(body) && body[i+1] == '{' {
				end := strings.IndexByte(body[i:], '}')
				if end > 0 {
					if n, err := strconv.ParseUint(body[i+2:i+end], 16, 32); err == nil && n <= unicode.MaxRune {
						writeCodeUnit(&b, rune(n))
						i += end
						continue
					}
				}
				b.WriteByte(esc)
			} else if r, ok := parseHex(body, i+1, 4); ok {
				i += 4
				// A high surrogate followed by an escaped low surrogate is
				// one code point.
				if r >= 0xD800 && r < 0xDC00 && i+2 < len(body) && body[i+1] == '\\' && body[i+2] == 'u' {
					if lo, ok := parseHex(body, i+3, 4); ok && lo >= 0xDC00 && lo <= 0xDFFF {
						b.WriteRune(utf16.DecodeRune(r, lo))
						i += 6
						continue
					}
				}
				writeCodeUnit(&b, r)
			} else {
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(esc)
		}
	}
	return b.String()
}

// writeCodeUnit appends r to b. A lone surrogate, which UTF-8 cannot
// represent, is kept in its generalized UTF-8 form so that Quote can turn
// it back into the same escape.
func writeCodeUnit(b *strings.Builder, r rune) {
	if !utf16.IsSurrogate(r) {
		b.WriteRune(r)
		return
	}
	b.WriteByte(byte(0xE0 | r>>12))
	b.WriteByte(byte(0x80 | (r>>6)&0x3F))
	b.WriteByte(byte(0x80 | r&0x3F))
}

// surrogateAt decodes a lone surrogate written by writeCodeUnit at s[i].
func surrogateAt(s string, i int) (rune, bool) {
	if i+2 >= len(s) || s[i] != 0xED || s[i+1] < 0xA0 || s[i+1] > 0xBF || s[i+2] < 0x80 || s[i+2] > 0xBF {
		return 0, false
	}
	return 0xD000 | rune(s[i+1]&0x3F)<<6 | rune(s[i+2]&0x3F), true
}

func parseHex(s string, at, n int) (rune, bool) {
	if at+n > len(s) {
		return 0, false
	}
	v, err := strconv.ParseUint(s[at:at+n], 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}
