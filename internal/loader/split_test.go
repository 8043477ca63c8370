package loader

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, in string) [][]string {
	t.Helper()
	sc := newCSVScanner(strings.NewReader(in))
	var out [][]string
	for {
		rec, err := sc.next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestScannerBasic(t *testing.T) {
	t.Parallel()

	got := scanAll(t, "a,b,c\n1,2,3\n")
	require.Equal(t, [][]string{{"a", "b", "c"}, {"1", "2", "3"}}, got)
}

// Both delimiters must split fields, even mixed within one line.
func TestScannerMixedDelimiters(t *testing.T) {
	t.Parallel()

	got := scanAll(t, "a;b;c\n1,2;3\n")
	require.Equal(t, [][]string{{"a", "b", "c"}, {"1", "2", "3"}}, got)
}

func TestScannerQuotes(t *testing.T) {
	t.Parallel()

	got := scanAll(t, "\"a,1\",\"he said \"\"hi\"\"\",plain\n")
	require.Equal(t, [][]string{{"a,1", `he said "hi"`, "plain"}}, got)
}

func TestScannerQuotedSemicolon(t *testing.T) {
	t.Parallel()

	got := scanAll(t, "\"x;y\";z\n")
	require.Equal(t, [][]string{{"x;y", "z"}}, got)
}

func TestScannerQuotedNewline(t *testing.T) {
	t.Parallel()

	got := scanAll(t, "\"line1\nline2\",b\n")
	require.Equal(t, [][]string{{"line1\nline2", "b"}}, got)
}

func TestScannerCRLFAndBOM(t *testing.T) {
	t.Parallel()

	got := scanAll(t, "\xef\xbb\xbfa,b\r\n1,2\r\n")
	require.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, got)
}

func TestScannerSkipsEmptyLines(t *testing.T) {
	t.Parallel()

	got := scanAll(t, "a,b\n\n1,2\n\n")
	require.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, got)
}

func TestScannerEmptyFields(t *testing.T) {
	t.Parallel()

	got := scanAll(t, "a,,c\n,,\n")
	require.Equal(t, [][]string{{"a", "", "c"}, {"", "", ""}}, got)
}

func TestScannerNoTrailingNewline(t *testing.T) {
	t.Parallel()

	got := scanAll(t, "a,b\n1,2")
	require.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, got)
}
