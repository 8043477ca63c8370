package loader

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xmlcsv/internal/discover"
	"xmlcsv/internal/export"
	"xmlcsv/internal/hierarchy"
	"xmlcsv/internal/storage"
	"xmlcsv/internal/storage/sqlite"
)

// TestRoundTripSqlite drives a document through the full pipeline against a
// real database file: discover, export to CSV, load, then read the landed
// rows back over a fresh connection.
func TestRoundTripSqlite(t *testing.T) {
	t.Parallel()

	doc := `<catalog>
  <book id="1"><title>Go</title></book>
  <book id="2"><title>XML</title></book>
</catalog>`

	rep, err := discover.Discover(strings.NewReader(doc), "catalog.xml", discover.Options{MinRepeat: 1})
	require.NoError(t, err)
	forest := hierarchy.Resolve(hierarchy.FilterContainers(rep.Candidates))
	require.NoError(t, hierarchy.Validate(forest))

	outDir := t.TempDir()
	ex := &export.Exporter{OutDir: outDir}
	_, err = ex.Run(strings.NewReader(doc), forest)
	require.NoError(t, err)

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "roundtrip.db")
	repo, err := sqlite.New(ctx, dsn, nil)
	require.NoError(t, err)
	defer repo.Close()

	l := &Loader{Repo: repo, Schema: "raw"}
	dataDate := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	res, err := l.Run(ctx, outDir, storage.LoadFull, dataDate)
	require.NoError(t, err)
	require.Empty(t, res.Skipped)

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db.Close()

	var books int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "raw_catalog_book"`).Scan(&books))
	require.Equal(t, 2, books)

	rows, err := db.Query(`SELECT "column", "batch_id" FROM "raw_book_title" ORDER BY "column"`)
	require.NoError(t, err)
	defer rows.Close()
	var titles []string
	for rows.Next() {
		var title, batchID string
		require.NoError(t, rows.Scan(&title, &batchID))
		require.Equal(t, res.BatchID, batchID)
		titles = append(titles, title)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{"Go", "XML"}, titles)

	var manifests int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "raw_`+storage.ManifestTable+`"`).Scan(&manifests))
	require.Equal(t, 1, manifests)
}
