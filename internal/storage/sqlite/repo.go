// Package sqlite backs the storage contract with modernc.org/sqlite, mainly
// for local runs and integration tests. SQLite has no schemas, so schema
// names become table-name prefixes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"xmlcsv/internal/logging"
	"xmlcsv/internal/storage"
	"xmlcsv/internal/xmlpath"
)

func init() {
	storage.Register("sqlite", func(ctx context.Context, dsn string, logger logging.Logger) (storage.Repository, error) {
		return New(ctx, dsn, logger)
	})
}

// Repo implements storage.Repository on a sqlite database file.
type Repo struct {
	db     *sql.DB
	logger logging.Logger
}

func New(ctx context.Context, dsn string, logger logging.Logger) (*Repo, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Repo{db: db, logger: logger}, nil
}

func (r *Repo) Close() { r.db.Close() }

// EnsureSchema is a no-op: schema names are folded into table names.
func (r *Repo) EnsureSchema(context.Context, string) error { return nil }

func tableName(spec storage.TableSpec) string {
	if spec.Schema == "" {
		return spec.Name
	}
	return spec.Schema + "_" + spec.Name
}

func (r *Repo) CreateTable(ctx context.Context, spec storage.TableSpec, drop bool) error {
	name := tableName(spec)
	if drop {
		if _, err := r.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+xmlpath.QuoteIdent(name)); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(name, spec.Columns)); err != nil {
		return fmt.Errorf("create table %s: %w", name, err)
	}
	return nil
}

func buildCreateSQL(name string, cols []storage.Column) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(xmlpath.QuoteIdent(name))
	b.WriteString(" (")
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(xmlpath.QuoteIdent(col.Name))
		b.WriteByte(' ')
		b.WriteString(sqliteType(col.Type))
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return b.String()
}

func sqliteType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInt, storage.TypeBool:
		return "INTEGER"
	case storage.TypeDecimal:
		return "NUMERIC"
	default:
		return "TEXT"
	}
}

func (r *Repo) BulkInsert(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	name := tableName(spec)
	cols := make([]string, len(spec.Columns))
	marks := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = xmlpath.QuoteIdent(c.Name)
		marks[i] = "?"
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		xmlpath.QuoteIdent(name), strings.Join(cols, ", "), strings.Join(marks, ", "))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("prepare insert %s: %w", name, err)
	}
	var n int64
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			tx.Rollback()
			return n, fmt.Errorf("insert into %s: %w", name, err)
		}
		n++
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return n, fmt.Errorf("commit %s: %w", name, err)
	}
	return n, nil
}

func (r *Repo) InsertManifest(ctx context.Context, schema string, m storage.Manifest) error {
	name := storage.ManifestTable
	if schema != "" {
		name = schema + "_" + name
	}
	ddl := "CREATE TABLE IF NOT EXISTS " + xmlpath.QuoteIdent(name) +
		" (batch_id TEXT NOT NULL, archive TEXT NOT NULL, load_type TEXT NOT NULL," +
		" data_date TEXT NOT NULL, loaded_at TEXT NOT NULL)"
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure manifest table: %w", err)
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO "+xmlpath.QuoteIdent(name)+" (batch_id, archive, load_type, data_date, loaded_at) VALUES (?, ?, ?, ?, ?)",
		m.BatchID, m.Archive, string(m.LoadType),
		m.DataDate.Format("2006-01-02"), m.LoadedAt.Format("2006-01-02T15:04:05Z07:00"))
	if err != nil {
		return fmt.Errorf("insert manifest: %w", err)
	}
	return nil
}
