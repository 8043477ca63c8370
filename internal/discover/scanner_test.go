package discover

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const catalogDoc = `<?xml version="1.0"?>
<catalog>
  <book id="1">
    <title>First</title>
    <price>9.99</price>
    <tags><tag>go</tag><tag>xml</tag></tags>
  </book>
  <book id="2">
    <title>Second</title>
    <price>12.50</price>
    <tags><tag>csv</tag></tags>
  </book>
  <book id="3">
    <title>Third</title>
  </book>
</catalog>`

func discoverCatalog(t *testing.T, opts Options) *Report {
	t.Helper()
	rep, err := Discover(strings.NewReader(catalogDoc), "catalog.xml", opts)
	require.NoError(t, err)
	return rep
}

func findCandidate(t *testing.T, rep *Report, path string) Candidate {
	t.Helper()
	for _, c := range rep.Candidates {
		if c.RecordPath == path {
			return c
		}
	}
	t.Fatalf("candidate %q not in report (have %d candidates)", path, len(rep.Candidates))
	return Candidate{}
}

func findField(t *testing.T, c Candidate, rel string) Field {
	t.Helper()
	for _, f := range c.Fields {
		if f.Path == rel {
			return f
		}
	}
	t.Fatalf("field %q not on candidate %q", rel, c.RecordPath)
	return Field{}
}

// TestDiscoverCatalog walks the whole contract on a known document: record
// counts, field catalogs, cardinalities, inferred types and nested arrays.
func TestDiscoverCatalog(t *testing.T) {
	t.Parallel()

	rep := discoverCatalog(t, Options{MinRepeat: 2})

	book := findCandidate(t, rep, "catalog/book")
	require.EqualValues(t, 3, book.EstimatedCount)

	id := findField(t, book, "./@id")
	require.Equal(t, KindAttribute, id.Kind)
	require.Equal(t, "1..1", id.Cardinality)
	require.Equal(t, TypeInteger, id.Type)

	title := findField(t, book, "./title")
	require.Equal(t, KindElement, title.Kind)
	require.Equal(t, "1..1", title.Cardinality)
	require.Equal(t, TypeString, title.Type)
	require.ElementsMatch(t, []string{"First", "Second", "Third"}, title.Samples)

	price := findField(t, book, "./price")
	require.Equal(t, "0..1", price.Cardinality)
	require.Equal(t, TypeDecimal, price.Type)

	// tags is a pure container: element field with no text samples.
	tags := findField(t, book, "./tags")
	require.Equal(t, "0..1", tags.Cardinality)
	require.Empty(t, tags.Samples)
	require.False(t, tags.HasContent())

	tagsCand := findCandidate(t, rep, "catalog/book/tags")
	tag := findField(t, tagsCand, "./tag")
	require.Equal(t, "1..N", tag.Cardinality)
	require.Len(t, tagsCand.NestedArrays, 1)
	require.Equal(t, "./tag", tagsCand.NestedArrays[0].FieldPath)
	require.Equal(t, "tags_tag", tagsCand.NestedArrays[0].SuggestedTable)
}

func TestDiscoverMinRepeatFilters(t *testing.T) {
	t.Parallel()

	rep := discoverCatalog(t, Options{MinRepeat: 2})
	for _, c := range rep.Candidates {
		require.GreaterOrEqual(t, c.EstimatedCount, int64(2), "path %s", c.RecordPath)
	}

	// MinRepeat 1 admits the singleton root wrapper as well.
	rep1 := discoverCatalog(t, Options{MinRepeat: 1})
	root := findCandidate(t, rep1, "catalog")
	require.EqualValues(t, 1, root.EstimatedCount)
}

func TestDiscoverOrderedByCount(t *testing.T) {
	t.Parallel()

	rep := discoverCatalog(t, Options{MinRepeat: 1})
	for i := 1; i < len(rep.Candidates); i++ {
		require.GreaterOrEqual(t,
			rep.Candidates[i-1].EstimatedCount,
			rep.Candidates[i].EstimatedCount,
			"candidates must be ordered by estimated count descending")
	}
}

func TestDiscoverMaxDepthSkips(t *testing.T) {
	t.Parallel()

	deep := `<a><b><c><d><e>leaf</e></d></c></b></a>`
	rep, err := Discover(strings.NewReader(deep), "deep.xml", Options{MinRepeat: 1, MaxDepth: 3})
	require.NoError(t, err)
	require.True(t, rep.Meta.MaxDepthHit)

	// d was skipped: c still knows a d child exists, but no candidate
	// exists for the skipped subtree itself.
	c := findCandidate(t, rep, "a/b/c")
	d := findField(t, c, "./d")
	require.Empty(t, d.Samples)
	for _, cand := range rep.Candidates {
		require.NotContains(t, cand.RecordPath, "a/b/c/d")
	}
}

func TestNodeCountIncludesText(t *testing.T) {
	t.Parallel()

	// 3 element opens + 2 text nodes.
	doc := `<r><a>x</a><b>y</b></r>`
	rep, err := Discover(strings.NewReader(doc), "n.xml", Options{MinRepeat: 1})
	require.NoError(t, err)
	require.EqualValues(t, 5, rep.Meta.NodesSeen)
}

func TestSampleCapCountsTextNodes(t *testing.T) {
	t.Parallel()

	// The cap is reached at <b>'s open (r, a, "x", b), so b never closes
	// and only a becomes a candidate.
	doc := `<r><a>x</a><b>y</b></r>`
	rep, err := Discover(strings.NewReader(doc), "n.xml", Options{MinRepeat: 1, SampleCap: 4})
	require.NoError(t, err)

	require.Len(t, rep.Candidates, 1)
	require.Equal(t, "r/a", rep.Candidates[0].RecordPath)
}

// Two passes over the same bytes must agree on everything but the
// generation timestamp.
func TestDiscoverIsRepeatable(t *testing.T) {
	t.Parallel()

	r1 := discoverCatalog(t, Options{MinRepeat: 1})
	r2 := discoverCatalog(t, Options{MinRepeat: 1})

	require.Equal(t, r1.Candidates, r2.Candidates)
	require.Equal(t, r1.Meta.NodesSeen, r2.Meta.NodesSeen)
	require.Equal(t, r1.Meta.Namespaces, r2.Meta.Namespaces)
}

func TestDiscoverMalformedInput(t *testing.T) {
	t.Parallel()

	_, err := Discover(strings.NewReader(`<a><b></a>`), "bad.xml", Options{MinRepeat: 1})
	require.Error(t, err)
}

func TestDiscoverNamespaceCapture(t *testing.T) {
	t.Parallel()

	doc := `<root xmlns="urn:default" xmlns:x="urn:x"><x:item>1</x:item><x:item>2</x:item></root>`
	rep, err := Discover(strings.NewReader(doc), "ns.xml", Options{MinRepeat: 1})
	require.NoError(t, err)
	require.Equal(t, "urn:default", rep.Meta.Namespaces[""])
	require.Equal(t, "urn:x", rep.Meta.Namespaces["x"])

	// Paths use local names.
	findCandidate(t, rep, "root/item")
}

func TestDistinctCapDropsSet(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<r>")
	for i := 0; i < 50; i++ {
		b.WriteString("<v>")
		b.WriteString(strings.Repeat("x", i+1))
		b.WriteString("</v>")
	}
	b.WriteString("</r>")

	rep, err := Discover(strings.NewReader(b.String()), "caps.xml", Options{MinRepeat: 1, DistinctCap: 10})
	require.NoError(t, err)

	v := findCandidate(t, rep, "r/v")
	text := findField(t, v, "./text()")
	require.True(t, text.DistinctCapped)
	require.Zero(t, text.DistinctCount)
}
