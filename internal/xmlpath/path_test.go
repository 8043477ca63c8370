package xmlpath

import (
	"strings"
	"testing"
)

func TestIsAncestor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		ancestor   string
		descendant string
		want       bool
	}{
		{"direct child", "catalog/book", "catalog/book/author", true},
		{"deep descendant", "catalog", "catalog/book/author/name", true},
		{"self is not ancestor", "catalog/book", "catalog/book", false},
		{"sibling", "catalog/book", "catalog/magazine", false},
		{"segment prefix is not containment", "catalog/book", "catalog/bookstore", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsAncestor(tt.ancestor, tt.descendant); got != tt.want {
				t.Fatalf("IsAncestor(%q, %q) = %v, want %v", tt.ancestor, tt.descendant, got, tt.want)
			}
		})
	}
}

// TestTableName verifies the naming contract for root and descendant record
// paths. The root record takes its last two segments; descendants take the
// root's record name plus the segments beyond the shared prefix.
func TestTableName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		root   string
		record string
		want   string
	}{
		{"root two segments", "catalog/book", "catalog/book", "catalog_book"},
		{"root one segment", "book", "book", "book"},
		{"deep root keeps last two", "feed/entries/entry", "feed/entries/entry", "entries_entry"},
		{"child under root", "catalog/book", "catalog/book/authors/author", "book_authors_author"},
		{"namespace prefix stripped", "ns:catalog/ns:book", "ns:catalog/ns:book", "catalog_book"},
		{"diacritics folded", "kütüphane/kitap", "kütüphane/kitap", "kutuphane_kitap"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TableName(tt.root, tt.record); got != tt.want {
				t.Fatalf("TableName(%q, %q) = %q, want %q", tt.root, tt.record, got, tt.want)
			}
		})
	}
}

func TestFileBaseName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"catalog/book", "catalog_book"},
		{"feed/entries/entry", "entries_entry"},
		{"book", "book"},
		{"ns:catalog/ns:book", "ns_catalog_ns_book"},
		{"", "output"},
	}

	for _, tt := range tests {
		if got := FileBaseName(tt.in); got != tt.want {
			t.Fatalf("FileBaseName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLastMeaningfulSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"./text()", "column"},
		{".", "column"},
		{"./@id", "id"},
		{"./title/text()", "title"},
		{"./author/name", "name"},
		{"./price/@currency", "currency"},
	}

	for _, tt := range tests {
		if got := LastMeaningfulSegment(tt.in); got != tt.want {
			t.Fatalf("LastMeaningfulSegment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSnakeCase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"PublishDate", "publish_date"},
		{"already_snake", "already_snake"},
		{"with space", "with_space"},
		{"Title", "title"},
		{"item2", "item2"},
		{"", "column"},
	}

	for _, tt := range tests {
		if got := SnakeCase(tt.in); got != tt.want {
			t.Fatalf("SnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestSanitizeIdentifier covers the folding rules and idempotence: running
// the sanitizer twice must not change the result.
func TestSanitizeIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Müşteri Adı", "musteri_adi"},
		{"order-date", "order_date"},
		{"2024value", "_2024value"},
		{"", "col"},
		{"   ", "col"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		got := SanitizeIdentifier(tt.in)
		if got != tt.want {
			t.Fatalf("SanitizeIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := SanitizeIdentifier(got); again != got {
			t.Fatalf("SanitizeIdentifier not idempotent: %q -> %q -> %q", tt.in, got, again)
		}
	}
}

func TestTruncateIdentifier(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 70)
	if got := TruncateIdentifier(long); len(got) != 63 {
		t.Fatalf("TruncateIdentifier length = %d, want 63", len(got))
	}

	// 62 ASCII bytes followed by a two-byte rune: the cut must land on the
	// rune boundary, not inside it.
	mixed := strings.Repeat("a", 62) + "é"
	got := TruncateIdentifier(mixed)
	if len(got) != 62 {
		t.Fatalf("TruncateIdentifier(mixed) length = %d, want 62", len(got))
	}

	if got := TruncateIdentifier("short"); got != "short" {
		t.Fatalf("TruncateIdentifier(short) = %q", got)
	}
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	if got := QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("QuoteIdent = %q", got)
	}
}
