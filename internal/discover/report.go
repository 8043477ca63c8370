// Package discover performs the first streaming pass over an XML document:
// it infers candidate record paths, their field catalogs, cardinalities and
// value types without ever materializing the document.
package discover

import "time"

// nowUTC is a seam for tests.
var nowUTC = func() time.Time { return time.Now().UTC() }

// NodeKind classifies where a field's value comes from.
type NodeKind string

const (
	KindElement   NodeKind = "element"
	KindAttribute NodeKind = "attribute"
	KindText      NodeKind = "text"
)

// ValueType is the inferred scalar type of a field.
type ValueType string

const (
	TypeInteger  ValueType = "integer"
	TypeDecimal  ValueType = "decimal"
	TypeBoolean  ValueType = "boolean"
	TypeDate     ValueType = "date"
	TypeDateTime ValueType = "datetime"
	TypeString   ValueType = "string"
)

// Report is the outcome of one discovery pass.
type Report struct {
	Meta       Meta        `json:"meta"`
	Candidates []Candidate `json:"candidates"`
}

// Meta describes the pass itself.
type Meta struct {
	SourceFile  string            `json:"sourceFile"`
	GeneratedAt time.Time         `json:"generatedAt"`
	NodesSeen   int64             `json:"nodesSeen"`
	MaxDepthHit bool              `json:"maxDepthHit"`
	Encoding    string            `json:"encoding,omitempty"`
	Namespaces  map[string]string `json:"namespaces,omitempty"`
}

// Candidate is a record path that repeated often enough to be table-shaped.
type Candidate struct {
	RecordPath     string        `json:"recordPath"`
	EstimatedCount int64         `json:"estimatedCount"`
	Fields         []Field       `json:"fields"`
	NestedArrays   []NestedArray `json:"nestedArrays,omitempty"`
}

// Field is one value source relative to its record path.
type Field struct {
	Path        string    `json:"path"`
	Kind        NodeKind  `json:"kind"`
	Cardinality string    `json:"cardinality"`
	Type        ValueType `json:"type"`
	Samples     []string  `json:"samples,omitempty"`

	// DistinctCount is the number of distinct non-empty values observed,
	// valid only while DistinctCapped is false.
	DistinctCount  int  `json:"distinctCount"`
	DistinctCapped bool `json:"distinctCapped,omitempty"`
}

// NestedArray flags a repeated element field that deserves its own table.
type NestedArray struct {
	FieldPath      string `json:"fieldPath"`
	SuggestedTable string `json:"suggestedTable"`
}

// Repeats reports whether the field's cardinality admits more than one
// value per record.
func (f Field) Repeats() bool {
	return f.Cardinality == "1..N" || f.Cardinality == "0..N"
}

// HasContent reports whether the field carries extractable data: attribute
// or text selectors always do, element selectors only when samples exist.
// Used to filter pure container candidates before hierarchy resolution.
func (f Field) HasContent() bool {
	if f.Kind == KindAttribute || f.Kind == KindText {
		return true
	}
	return len(f.Samples) > 0
}
