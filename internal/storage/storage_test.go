package storage

import (
	"context"
	"testing"
	"time"

	"xmlcsv/internal/logging"
)

type fakeRepo struct{}

func (fakeRepo) EnsureSchema(context.Context, string) error                 { return nil }
func (fakeRepo) CreateTable(context.Context, TableSpec, bool) error         { return nil }
func (fakeRepo) BulkInsert(context.Context, TableSpec, [][]any) (int64, error) { return 0, nil }
func (fakeRepo) InsertManifest(context.Context, string, Manifest) error     { return nil }
func (fakeRepo) Close()                                                     {}

func fakeFactory(context.Context, string, logging.Logger) (Repository, error) {
	return fakeRepo{}, nil
}

func TestRegisterAndNew(t *testing.T) {
	Register("fake-kind", fakeFactory)

	repo, err := New(context.Background(), "fake-kind", "dsn", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if repo == nil {
		t.Fatal("New returned nil repository")
	}

	if _, err := New(context.Background(), "no-such-kind", "dsn", nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestRegisterPanics(t *testing.T) {
	mustPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Fatalf("%s: expected panic", name)
			}
		}()
		fn()
	}

	mustPanic("empty kind", func() { Register("", fakeFactory) })
	mustPanic("nil factory", func() { Register("panic-kind", nil) })

	Register("dup-kind", fakeFactory)
	mustPanic("duplicate", func() { Register("dup-kind", fakeFactory) })
}

func TestParseLoadType(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"Full", "Daily", "Direct"} {
		if _, err := ParseLoadType(ok); err != nil {
			t.Fatalf("ParseLoadType(%q): %v", ok, err)
		}
	}
	for _, bad := range []string{"", "full", "Weekly"} {
		if _, err := ParseLoadType(bad); err == nil {
			t.Fatalf("ParseLoadType(%q): expected error", bad)
		}
	}
}

func TestQualified(t *testing.T) {
	t.Parallel()

	if got := (TableSpec{Schema: "raw", Name: "t"}).Qualified(); got != "raw.t" {
		t.Fatalf("Qualified = %q", got)
	}
	if got := (TableSpec{Name: "t"}).Qualified(); got != "t" {
		t.Fatalf("Qualified = %q", got)
	}
}

func TestManifestFields(t *testing.T) {
	t.Parallel()

	m := Manifest{
		BatchID:  "b1",
		Archive:  "data_csv.zip",
		LoadType: LoadDaily,
		DataDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		LoadedAt: time.Now().UTC(),
	}
	if m.LoadType != "Daily" {
		t.Fatalf("load type literal drifted: %q", m.LoadType)
	}
}
