package loader

import (
	"strconv"
	"strings"
	"time"

	"xmlcsv/internal/storage"
)

const dateLayout = "2006-01-02"

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// InferCellType classifies one non-empty cell. Priority mirrors the export
// side: integer before decimal, date before datetime.
func InferCellType(v string) storage.ColumnType {
	v = strings.TrimSpace(v)
	if v == "" {
		return storage.TypeUnknown
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return storage.TypeInt
	}
	if isDecimal(v) {
		return storage.TypeDecimal
	}
	switch strings.ToLower(v) {
	case "true", "false", "y", "n":
		return storage.TypeBool
	}
	if _, err := time.Parse(dateLayout, v); err == nil {
		return storage.TypeDate
	}
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return storage.TypeDateTime
		}
	}
	return storage.TypeString
}

func isDecimal(v string) bool {
	v = strings.Replace(v, ",", ".", 1)
	if strings.ContainsAny(v, "eE") {
		return false
	}
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}

// MergeType widens a column's running type with a newly observed cell type.
// The lattice is monotone: unknown adopts anything, int and decimal widen to
// decimal, date and datetime widen to datetime, every other mix is string.
func MergeType(a, b storage.ColumnType) storage.ColumnType {
	if a == b {
		return a
	}
	if a == storage.TypeUnknown {
		return b
	}
	if b == storage.TypeUnknown {
		return a
	}
	if numeric(a) && numeric(b) {
		return storage.TypeDecimal
	}
	if temporal(a) && temporal(b) {
		return storage.TypeDateTime
	}
	return storage.TypeString
}

func numeric(t storage.ColumnType) bool {
	return t == storage.TypeInt || t == storage.TypeDecimal
}

func temporal(t storage.ColumnType) bool {
	return t == storage.TypeDate || t == storage.TypeDateTime
}

// profileColumns folds one record into the running column profiles. Records
// shorter than the header leave the trailing columns untouched except for
// their null counts.
func profileColumns(cols []storage.Column, record []string) {
	for i := range cols {
		var cell string
		if i < len(record) {
			cell = strings.TrimSpace(record[i])
		}
		if cell == "" {
			cols[i].Nullable = true
			cols[i].NullCount++
			continue
		}
		cols[i].Type = MergeType(cols[i].Type, InferCellType(cell))
	}
}

// ConvertCell produces the typed value loaded for a cell. Empty and
// unparseable cells load as NULL rather than failing the batch. Decimals
// stay textual so precision survives the trip into numeric(38,10).
func ConvertCell(v string, t storage.ColumnType) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	switch t {
	case storage.TypeInt:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		return n
	case storage.TypeDecimal:
		norm := strings.Replace(v, ",", ".", 1)
		if _, err := strconv.ParseFloat(norm, 64); err != nil {
			return nil
		}
		return norm
	case storage.TypeBool:
		switch strings.ToLower(v) {
		case "true", "1", "y":
			return true
		case "false", "0", "n":
			return false
		}
		return nil
	case storage.TypeDate:
		ts, err := time.Parse(dateLayout, v)
		if err != nil {
			return nil
		}
		return ts
	case storage.TypeDateTime:
		for _, layout := range datetimeLayouts {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts
			}
		}
		return nil
	default:
		return v
	}
}
