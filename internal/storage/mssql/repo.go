// Package mssql backs the storage contract with SQL Server. Bulk rows go
// through the TDS bulk copy path (mssql.CopyIn).
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"xmlcsv/internal/logging"
	"xmlcsv/internal/storage"
)

func init() {
	storage.Register("sqlserver", func(ctx context.Context, dsn string, logger logging.Logger) (storage.Repository, error) {
		return New(ctx, dsn, logger)
	})
}

// Repo implements storage.Repository on SQL Server.
type Repo struct {
	db     *sql.DB
	logger logging.Logger
}

func New(ctx context.Context, dsn string, logger logging.Logger) (*Repo, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlserver open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlserver ping: %w", err)
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Repo{db: db, logger: logger}, nil
}

func (r *Repo) Close() { r.db.Close() }

// bracket quotes an identifier in SQL Server style.
func bracket(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func tableIdent(spec storage.TableSpec) string {
	if spec.Schema == "" {
		return bracket(spec.Name)
	}
	return bracket(spec.Schema) + "." + bracket(spec.Name)
}

func (r *Repo) EnsureSchema(ctx context.Context, schema string) error {
	if schema == "" {
		return nil
	}
	stmt := fmt.Sprintf(
		"IF SCHEMA_ID(N'%s') IS NULL EXEC(N'CREATE SCHEMA %s')",
		strings.ReplaceAll(schema, "'", "''"), bracket(schema))
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	return nil
}

func (r *Repo) tableExists(ctx context.Context, spec storage.TableSpec) (bool, error) {
	var id sql.NullInt64
	object := strings.ReplaceAll(spec.Qualified(), "'", "''")
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT OBJECT_ID(N'%s', N'U')", object)).Scan(&id)
	if err != nil {
		return false, err
	}
	return id.Valid, nil
}

func (r *Repo) CreateTable(ctx context.Context, spec storage.TableSpec, drop bool) error {
	exists, err := r.tableExists(ctx, spec)
	if err != nil {
		return fmt.Errorf("check table %s: %w", spec.Qualified(), err)
	}
	if exists {
		if !drop {
			return nil
		}
		if _, err := r.db.ExecContext(ctx, "DROP TABLE "+tableIdent(spec)); err != nil {
			return fmt.Errorf("drop table %s: %w", spec.Qualified(), err)
		}
	}
	if _, err := r.db.ExecContext(ctx, buildCreateSQL(spec)); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Qualified(), err)
	}
	return nil
}

func buildCreateSQL(spec storage.TableSpec) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(tableIdent(spec))
	b.WriteString(" (")
	for i, col := range spec.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(bracket(col.Name))
		b.WriteByte(' ')
		b.WriteString(sqlType(col.Type))
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return b.String()
}

func sqlType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInt:
		return "bigint"
	case storage.TypeDecimal:
		return "decimal(38,10)"
	case storage.TypeBool:
		return "bit"
	case storage.TypeDate:
		return "date"
	case storage.TypeDateTime:
		return "datetime2"
	default:
		return "nvarchar(max)"
	}
}

func (r *Repo) BulkInsert(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = c.Name
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	target := spec.Name
	if spec.Schema != "" {
		target = spec.Schema + "." + spec.Name
	}
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(target, mssql.BulkOptions{}, cols...))
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("prepare bulk copy %s: %w", spec.Qualified(), err)
	}
	var n int64
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			tx.Rollback()
			return n, fmt.Errorf("bulk copy %s: %w", spec.Qualified(), err)
		}
		n++
	}
	// Final Exec with no args flushes the bulk batch.
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		tx.Rollback()
		return n, fmt.Errorf("finish bulk copy %s: %w", spec.Qualified(), err)
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return n, fmt.Errorf("close bulk copy %s: %w", spec.Qualified(), err)
	}
	if err := tx.Commit(); err != nil {
		return n, fmt.Errorf("commit %s: %w", spec.Qualified(), err)
	}
	return n, nil
}

func (r *Repo) InsertManifest(ctx context.Context, schema string, m storage.Manifest) error {
	spec := storage.TableSpec{
		Schema: schema,
		Name:   storage.ManifestTable,
		Columns: []storage.Column{
			{Name: "batch_id", Type: storage.TypeString},
			{Name: "archive", Type: storage.TypeString},
			{Name: "load_type", Type: storage.TypeString},
			{Name: "data_date", Type: storage.TypeDate},
			{Name: "loaded_at", Type: storage.TypeDateTime},
		},
	}
	if err := r.CreateTable(ctx, spec, false); err != nil {
		return fmt.Errorf("ensure manifest table: %w", err)
	}
	insert := fmt.Sprintf(
		"INSERT INTO %s (batch_id, archive, load_type, data_date, loaded_at) VALUES (@p1, @p2, @p3, @p4, @p5)",
		tableIdent(spec))
	if _, err := r.db.ExecContext(ctx, insert,
		m.BatchID, m.Archive, string(m.LoadType), m.DataDate, m.LoadedAt); err != nil {
		return fmt.Errorf("insert manifest: %w", err)
	}
	return nil
}
