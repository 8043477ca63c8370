// Package postgres backs the storage contract with a pgx connection pool.
// Bulk rows go through the COPY protocol.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"xmlcsv/internal/logging"
	"xmlcsv/internal/storage"
	"xmlcsv/internal/xmlpath"
)

func init() {
	storage.Register("postgres", func(ctx context.Context, dsn string, logger logging.Logger) (storage.Repository, error) {
		return New(ctx, dsn, logger)
	})
}

// Repo implements storage.Repository on a pgx pool.
type Repo struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// New connects and pings.
func New(ctx context.Context, dsn string, logger logging.Logger) (*Repo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Repo{pool: pool, logger: logger}, nil
}

func (r *Repo) Close() { r.pool.Close() }

func (r *Repo) EnsureSchema(ctx context.Context, schema string) error {
	if schema == "" {
		return nil
	}
	sql := buildCreateSchemaSQL(schema)
	if _, err := r.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	return nil
}

func (r *Repo) CreateTable(ctx context.Context, spec storage.TableSpec, drop bool) error {
	if drop {
		if _, err := r.pool.Exec(ctx, buildDropSQL(spec)); err != nil {
			return fmt.Errorf("drop table %s: %w", spec.Qualified(), err)
		}
	}
	if _, err := r.pool.Exec(ctx, buildCreateSQL(spec)); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Qualified(), err)
	}
	return nil
}

func (r *Repo) BulkInsert(ctx context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = c.Name
	}
	ident := pgx.Identifier{spec.Name}
	if spec.Schema != "" {
		ident = pgx.Identifier{spec.Schema, spec.Name}
	}
	n, err := r.pool.CopyFrom(ctx, ident, cols, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy into %s: %w", spec.Qualified(), err)
	}
	return n, nil
}

func (r *Repo) InsertManifest(ctx context.Context, schema string, m storage.Manifest) error {
	if _, err := r.pool.Exec(ctx, buildManifestDDL(schema)); err != nil {
		return fmt.Errorf("ensure manifest table: %w", err)
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (batch_id, archive, load_type, data_date, loaded_at) VALUES ($1, $2, $3, $4, $5)",
		manifestIdent(schema),
	)
	if _, err := r.pool.Exec(ctx, sql, m.BatchID, m.Archive, string(m.LoadType), m.DataDate, m.LoadedAt); err != nil {
		return fmt.Errorf("insert manifest: %w", err)
	}
	return nil
}

//
// SQL builders. Pure functions so DDL stays testable without a database.
//

func pgIdent(name string) string { return xmlpath.QuoteIdent(name) }

func tableIdent(spec storage.TableSpec) string {
	if spec.Schema == "" {
		return pgIdent(spec.Name)
	}
	return pgIdent(spec.Schema) + "." + pgIdent(spec.Name)
}

func manifestIdent(schema string) string {
	if schema == "" {
		return pgIdent(storage.ManifestTable)
	}
	return pgIdent(schema) + "." + pgIdent(storage.ManifestTable)
}

func buildCreateSchemaSQL(schema string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + pgIdent(schema)
}

func buildDropSQL(spec storage.TableSpec) string {
	return "DROP TABLE IF EXISTS " + tableIdent(spec)
}

func buildCreateSQL(spec storage.TableSpec) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(tableIdent(spec))
	b.WriteString(" (")
	for i, col := range spec.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(col.Name))
		b.WriteByte(' ')
		b.WriteString(pgType(col.Type))
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return b.String()
}

func buildManifestDDL(schema string) string {
	return "CREATE TABLE IF NOT EXISTS " + manifestIdent(schema) +
		" (batch_id text NOT NULL, archive text NOT NULL, load_type text NOT NULL," +
		" data_date date NOT NULL, loaded_at timestamptz NOT NULL)"
}

func pgType(t storage.ColumnType) string {
	switch t {
	case storage.TypeInt:
		return "bigint"
	case storage.TypeDecimal:
		return "numeric(38,10)"
	case storage.TypeBool:
		return "boolean"
	case storage.TypeDate:
		return "date"
	case storage.TypeDateTime:
		return "timestamptz"
	default:
		return "text"
	}
}
