// Package storage defines the repository contract the bulk loader writes
// through, plus the factory registry the backends register into.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"xmlcsv/internal/logging"
)

// ColumnType is the loader's inferred column type. Backends map these onto
// their native DDL types.
type ColumnType string

const (
	TypeUnknown  ColumnType = "unknown"
	TypeInt      ColumnType = "int"
	TypeDecimal  ColumnType = "decimal"
	TypeBool     ColumnType = "bool"
	TypeDate     ColumnType = "date"
	TypeDateTime ColumnType = "datetime"
	TypeString   ColumnType = "string"
)

// Column is one profiled CSV column.
type Column struct {
	Name      string
	Type      ColumnType
	Nullable  bool
	NullCount int64
}

// TableSpec names a target table and its columns, provenance included.
type TableSpec struct {
	Schema  string
	Name    string
	Columns []Column
}

// Qualified returns the backend-agnostic display name.
func (s TableSpec) Qualified() string {
	if s.Schema == "" {
		return s.Name
	}
	return s.Schema + "." + s.Name
}

// LoadType selects how a batch lands in the target tables.
type LoadType string

const (
	// LoadFull drops and recreates each table before loading.
	LoadFull LoadType = "Full"

	// LoadDaily appends rows stamped with the supplied data date.
	LoadDaily LoadType = "Daily"

	// LoadDirect appends rows stamped with today's date.
	LoadDirect LoadType = "Direct"
)

// ParseLoadType validates a load type from the API surface.
func ParseLoadType(s string) (LoadType, error) {
	switch LoadType(s) {
	case LoadFull, LoadDaily, LoadDirect:
		return LoadType(s), nil
	}
	return "", fmt.Errorf("unknown load type %q (want Full, Daily or Direct)", s)
}

// Manifest is the provenance row written once per load run.
type Manifest struct {
	BatchID  string
	Archive  string
	LoadType LoadType
	DataDate time.Time
	LoadedAt time.Time
}

// ManifestTable is the per-schema table manifests land in.
const ManifestTable = "load_batches"

// Repository is the write surface a backend must provide.
type Repository interface {
	// EnsureSchema creates the target schema when the backend has schemas.
	EnsureSchema(ctx context.Context, schema string) error

	// CreateTable creates spec's table, dropping any existing one first
	// when drop is true.
	CreateTable(ctx context.Context, spec TableSpec, drop bool) error

	// BulkInsert appends rows and reports how many landed. Row values are
	// pre-converted per column type; nil means NULL.
	BulkInsert(ctx context.Context, spec TableSpec, rows [][]any) (int64, error)

	// InsertManifest records one load batch.
	InsertManifest(ctx context.Context, schema string, m Manifest) error

	Close()
}

// Factory builds a repository from a DSN.
type Factory func(ctx context.Context, dsn string, logger logging.Logger) (Repository, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// Register installs a backend under kind. It panics on an empty kind, a nil
// factory or a duplicate registration; registration happens in init and a
// broken wiring should fail loudly at startup.
func Register(kind string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if kind == "" {
		panic("storage: Register with empty kind")
	}
	if f == nil {
		panic("storage: Register with nil factory for kind " + kind)
	}
	if _, dup := factories[kind]; dup {
		panic("storage: Register called twice for kind " + kind)
	}
	factories[kind] = f
}

// New builds a repository of the given kind.
func New(ctx context.Context, kind, dsn string, logger logging.Logger) (Repository, error) {
	factoryMu.RLock()
	f, ok := factories[kind]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown repository kind %q", kind)
	}
	return f(ctx, dsn, logger)
}

// Kinds lists the registered backend kinds.
func Kinds() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}
