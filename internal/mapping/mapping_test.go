package mapping

import (
	"testing"

	"github.com/stretchr/testify/require"

	"xmlcsv/internal/discover"
	"xmlcsv/internal/hierarchy"
)

func TestForCandidateColumns(t *testing.T) {
	t.Parallel()

	c := discover.Candidate{
		RecordPath: "catalog/book",
		Fields: []discover.Field{
			{Path: "./@id", Kind: discover.KindAttribute, Cardinality: "1..1"},
			{Path: "./PublishDate", Kind: discover.KindElement, Cardinality: "0..1"},
			{Path: "./tag", Kind: discover.KindElement, Cardinality: "0..N"},
			{Path: "./text()", Kind: discover.KindText, Cardinality: "0..1"},
		},
	}

	m := ForCandidate(c)
	require.Equal(t, "catalog_book", m.FileBase)
	require.Len(t, m.Columns, 4)

	require.Equal(t, Column{Name: "id", Source: "./@id"}, m.Columns[0])
	require.Equal(t, Column{Name: "publish_date", Source: "./PublishDate"}, m.Columns[1])
	require.Equal(t, Column{Name: "tag", Source: "./tag", Join: MultiValueSeparator}, m.Columns[2])
	require.Equal(t, Column{Name: "column", Source: "./text()"}, m.Columns[3])
}

// Duplicate headers stay duplicated: an attribute and an element sharing a
// name both keep their column.
func TestForCandidateKeepsDuplicates(t *testing.T) {
	t.Parallel()

	c := discover.Candidate{
		RecordPath: "r/item",
		Fields: []discover.Field{
			{Path: "./@name", Kind: discover.KindAttribute, Cardinality: "1..1"},
			{Path: "./name", Kind: discover.KindElement, Cardinality: "1..1"},
		},
	}

	m := ForCandidate(c)
	require.Len(t, m.Columns, 2)
	require.Equal(t, m.Columns[0].Name, m.Columns[1].Name)
}

func TestForMainExcludesChildPaths(t *testing.T) {
	t.Parallel()

	h := hierarchy.Table{
		Main: discover.Candidate{
			RecordPath: "catalog/book",
			Fields: []discover.Field{
				{Path: "./@id", Kind: discover.KindAttribute, Cardinality: "1..1"},
				{Path: "./title", Kind: discover.KindElement, Cardinality: "1..1"},
				{Path: "./authors/author", Kind: discover.KindElement, Cardinality: "0..N"},
				{Path: "./authors/author/@role", Kind: discover.KindAttribute, Cardinality: "0..1"},
			},
		},
		Children: []discover.Candidate{
			{RecordPath: "catalog/book/authors/author"},
		},
	}

	m := ForMain(h)
	sources := make([]string, 0, len(m.Columns))
	for _, col := range m.Columns {
		sources = append(sources, col.Source)
	}
	require.Equal(t, []string{"./@id", "./title"}, sources)
}
