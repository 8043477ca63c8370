package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xmlcsv/internal/storage"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	return repo
}

// Round trip against a real database file: create, bulk insert, read back.
func TestCreateAndBulkInsert(t *testing.T) {
	t.Parallel()

	repo := openTestRepo(t)
	ctx := context.Background()

	spec := storage.TableSpec{
		Schema: "raw",
		Name:   "items",
		Columns: []storage.Column{
			{Name: "id", Type: storage.TypeInt},
			{Name: "name", Type: storage.TypeString, Nullable: true},
		},
	}
	require.NoError(t, repo.EnsureSchema(ctx, "raw"))
	require.NoError(t, repo.CreateTable(ctx, spec, true))

	n, err := repo.BulkInsert(ctx, spec, [][]any{
		{int64(1), "a"},
		{int64(2), nil},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	var count int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM "raw_items"`).Scan(&count))
	require.Equal(t, 2, count)

	var nulls int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM "raw_items" WHERE name IS NULL`).Scan(&nulls))
	require.Equal(t, 1, nulls)
}

// Drop-and-recreate must clear previous contents; create-if-absent must
// keep them.
func TestCreateTableDropSemantics(t *testing.T) {
	t.Parallel()

	repo := openTestRepo(t)
	ctx := context.Background()

	spec := storage.TableSpec{
		Name:    "t",
		Columns: []storage.Column{{Name: "v", Type: storage.TypeInt, Nullable: true}},
	}
	require.NoError(t, repo.CreateTable(ctx, spec, true))
	_, err := repo.BulkInsert(ctx, spec, [][]any{{int64(1)}})
	require.NoError(t, err)

	require.NoError(t, repo.CreateTable(ctx, spec, false))
	var count int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM "t"`).Scan(&count))
	require.Equal(t, 1, count)

	require.NoError(t, repo.CreateTable(ctx, spec, true))
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM "t"`).Scan(&count))
	require.Equal(t, 0, count)
}

func TestInsertManifest(t *testing.T) {
	t.Parallel()

	repo := openTestRepo(t)
	ctx := context.Background()

	m := storage.Manifest{
		BatchID:  "batch-1",
		Archive:  "orders_csv.zip",
		LoadType: storage.LoadFull,
		DataDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		LoadedAt: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
	}
	require.NoError(t, repo.InsertManifest(ctx, "raw", m))

	var batch, loadType, dataDate string
	row := repo.db.QueryRow(`SELECT batch_id, load_type, data_date FROM "raw_load_batches"`)
	require.NoError(t, row.Scan(&batch, &loadType, &dataDate))
	require.Equal(t, "batch-1", batch)
	require.Equal(t, "Full", loadType)
	require.Equal(t, "2025-06-01", dataDate)
}
