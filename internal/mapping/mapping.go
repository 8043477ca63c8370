// Package mapping turns resolved candidates into flat column mappings the
// exporter writes from.
package mapping

import (
	"strings"

	"xmlcsv/internal/discover"
	"xmlcsv/internal/hierarchy"
	"xmlcsv/internal/xmlpath"
)

// MultiValueSeparator joins repeated values into one cell.
const MultiValueSeparator = " | "

// Column binds one CSV header to its source selector.
type Column struct {
	// Name is the CSV header. Duplicates are allowed; headers mirror the
	// source document, not a deduplicated schema.
	Name string

	// Source is the selector relative to the record path.
	Source string

	// Join is the separator for multi-valued fields; empty means the field
	// is single-valued.
	Join string
}

// Table is the complete mapping for one output CSV.
type Table struct {
	RecordPath string
	FileBase   string
	Columns    []Column
}

// ForCandidate maps every field of a candidate.
func ForCandidate(c discover.Candidate) Table {
	t := Table{
		RecordPath: c.RecordPath,
		FileBase:   xmlpath.FileBaseName(c.RecordPath),
	}
	for _, f := range c.Fields {
		t.Columns = append(t.Columns, columnFor(f))
	}
	return t
}

// ForMain maps a main candidate, excluding fields that fall under a child
// candidate's relative path: those values belong to the child table.
func ForMain(h hierarchy.Table) Table {
	exclude := make([]string, 0, len(h.Children))
	for _, c := range h.Children {
		exclude = append(exclude, xmlpath.RelativeTo(h.Main.RecordPath, c.RecordPath))
	}

	t := Table{
		RecordPath: h.Main.RecordPath,
		FileBase:   xmlpath.FileBaseName(h.Main.RecordPath),
	}
	for _, f := range h.Main.Fields {
		if underAny(f.Path, exclude) {
			continue
		}
		t.Columns = append(t.Columns, columnFor(f))
	}
	return t
}

func columnFor(f discover.Field) Column {
	col := Column{
		Name:   xmlpath.SnakeCase(xmlpath.LastMeaningfulSegment(f.Path)),
		Source: f.Path,
	}
	if f.Repeats() {
		col.Join = MultiValueSeparator
	}
	return col
}

func underAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
