// Package xmlpath defines the path identity and naming rules shared by
// discovery, export and loading.
//
// Record paths are absolute, "/"-joined element paths from the document root
// (for example "catalog/book"). Field paths are relative to a record path and
// use a small selector grammar: ".", "./text()", "./@attr" and "./A/B".
// Everything that turns a path into a file name, CSV header or SQL identifier
// lives here so the three stages cannot drift apart.
package xmlpath

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Split breaks an absolute record path into its segments.
func Split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// IsAncestor reports whether ancestor strictly contains descendant,
// on whole segments. A path is not its own ancestor.
func IsAncestor(ancestor, descendant string) bool {
	return strings.HasPrefix(descendant, ancestor+"/")
}

// RelativeTo rewrites an absolute descendant path as a field selector
// relative to base ("." + remainder). It assumes IsAncestor(base, path).
func RelativeTo(base, path string) string {
	return "." + path[len(base):]
}

// foldTransformer strips combining marks so accented letters normalize to
// their ASCII base form before identifier mapping.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// asciiFallbacks covers letters that do not decompose into base + mark.
var asciiFallbacks = strings.NewReplacer(
	"ı", "i", "I", "I",
	"ø", "o", "Ø", "O",
	"ß", "ss",
	"æ", "ae", "Æ", "AE",
	"đ", "d", "Đ", "D",
	"ł", "l", "Ł", "L",
)

func foldDiacritics(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return asciiFallbacks.Replace(out)
}

// NormalizeSegment maps one XML name segment onto the identifier alphabet:
// namespace prefix stripped, diacritics folded, lowercased, anything outside
// [a-z0-9] collapsed to single underscores, trimmed.
func NormalizeSegment(seg string) string {
	if i := strings.LastIndexByte(seg, ':'); i >= 0 {
		seg = seg[i+1:]
	}
	seg = strings.ToLower(foldDiacritics(seg))
	var b strings.Builder
	b.Grow(len(seg))
	lastUnderscore := false
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

// TableName derives the output table name for a record path within a
// hierarchy rooted at rootPath.
//
// The root record itself maps to its last two segments joined by "_" (a
// single-segment root keeps its one segment). A descendant maps to the root
// record's last segment followed by the segments past the longest common
// prefix with the root path.
func TableName(rootPath, recordPath string) string {
	rootSegs := Split(rootPath)
	recSegs := Split(recordPath)
	if len(rootSegs) == 0 || len(recSegs) == 0 {
		return "table"
	}

	rootName := NormalizeSegment(rootSegs[len(rootSegs)-1])

	if recordPath == rootPath {
		if len(rootSegs) >= 2 {
			parent := NormalizeSegment(rootSegs[len(rootSegs)-2])
			if parent != "" {
				return collapseName(parent + "_" + rootName)
			}
		}
		return collapseName(rootName)
	}

	common := 0
	for common < len(rootSegs) && common < len(recSegs) && rootSegs[common] == recSegs[common] {
		common++
	}
	parts := []string{rootName}
	for _, seg := range recSegs[common:] {
		if n := NormalizeSegment(seg); n != "" {
			parts = append(parts, n)
		}
	}
	return collapseName(strings.Join(parts, "_"))
}

func collapseName(s string) string {
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_")
	if s == "" {
		return "table"
	}
	return s
}

// FileBaseName derives the CSV file base name for a record path: the last
// two segments (or one, for shallow paths) joined by "_", with ":" folded
// to "_" and the result lowercased.
func FileBaseName(path string) string {
	segs := Split(path)
	if len(segs) == 0 {
		return "output"
	}
	tail := segs
	if len(segs) > 2 {
		tail = segs[len(segs)-2:]
	}
	name := strings.Join(tail, "_")
	name = strings.ReplaceAll(name, ":", "_")
	return strings.ToLower(name)
}

// LastMeaningfulSegment walks a field selector backwards past "." and
// "text()" and returns the last element or attribute name, with any "@"
// stripped. Selectors with no such segment map to "column".
func LastMeaningfulSegment(rel string) string {
	segs := strings.Split(rel, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		seg := strings.TrimSpace(segs[i])
		if seg == "" || seg == "." || seg == "text()" {
			continue
		}
		return strings.TrimPrefix(seg, "@")
	}
	return "column"
}

// SnakeCase maps a name segment onto a CSV header: an underscore is inserted
// before each interior uppercase rune, the result is lowercased and anything
// outside [a-z0-9_] becomes an underscore run collapsed to one.
func SnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	out := foldDiacritics(b.String())
	var c strings.Builder
	c.Grow(len(out))
	lastUnderscore := false
	for _, r := range out {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			c.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				c.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	res := strings.Trim(c.String(), "_")
	if res == "" {
		return "column"
	}
	return res
}

// maxIdentBytes matches the Postgres identifier limit.
const maxIdentBytes = 63

// SanitizeIdentifier maps arbitrary text onto a safe SQL identifier:
// diacritics folded, lowercased, whitespace and "-" become underscores,
// other non-alphanumerics are dropped to underscores, a leading digit is
// escaped with "_", and the result is truncated to 63 bytes on a rune
// boundary. Empty input maps to "col".
func SanitizeIdentifier(s string) string {
	s = strings.ToLower(foldDiacritics(strings.TrimSpace(s)))
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "col"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return TruncateIdentifier(out)
}

// TruncateIdentifier shortens an identifier to the 63-byte limit without
// splitting a UTF-8 sequence.
func TruncateIdentifier(s string) string {
	if len(s) <= maxIdentBytes {
		return s
	}
	cut := maxIdentBytes
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

// QuoteIdent double-quotes an identifier, doubling embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
