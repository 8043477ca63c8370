// Package loader lands exported CSV archives in a SQL database: a profiling
// pass infers each column's type, then a second pass bulk inserts typed rows
// with batch provenance attached.
package loader

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"xmlcsv/internal/logging"
	"xmlcsv/internal/storage"
	"xmlcsv/internal/xmlpath"
)

// provenance columns appended to every loaded table.
const (
	batchIDColumn  = "batch_id"
	dataDateColumn = "data_date"
)

// SkipPolicy decides whether a CSV base name is a redundant fragment that
// should not be loaded. siblings holds the profiled spec of every CSV in the
// archive, keyed by base name, so policies can inspect columns.
type SkipPolicy func(base string, siblings map[string]storage.TableSpec) bool

// DefaultSkipPolicy skips "<base>_<field>" files when a sibling "<base>" CSV
// exists and itself carries a "<field>" column: the fragment duplicates data
// the parent table already loads. A fragment whose data is absent from the
// parent (a genuine child table) loads normally.
func DefaultSkipPolicy(base string, siblings map[string]storage.TableSpec) bool {
	for i := len(base) - 1; i > 0; i-- {
		if base[i] != '_' {
			continue
		}
		parent, ok := siblings[base[:i]]
		if !ok {
			continue
		}
		if hasColumn(parent, base[i+1:]) {
			return true
		}
	}
	return false
}

func hasColumn(spec storage.TableSpec, name string) bool {
	for _, c := range spec.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// LoadEverything disables fragment skipping.
func LoadEverything(string, map[string]storage.TableSpec) bool { return false }

// Loader drives one archive into the repository.
type Loader struct {
	Repo   storage.Repository
	Schema string
	Logger logging.Logger

	// Skip defaults to DefaultSkipPolicy.
	Skip SkipPolicy

	// BatchSize rows per bulk insert; defaults to 1000.
	BatchSize int
}

// Result summarizes one load run.
type Result struct {
	BatchID  string
	DataDate time.Time
	Tables   []TableResult
	Skipped  []string
}

// TableResult is the landed row count for one table.
type TableResult struct {
	Table string
	Rows  int64
}

// newBatchID is a seam for tests.
var newBatchID = uuid.NewString

// Run loads every CSV in the archive (a zip file or a directory of CSVs).
// Full drops and recreates tables; Daily and Direct append. Direct forces
// the data date to today; a zero dataDate also falls back to today.
func (l *Loader) Run(ctx context.Context, archivePath string, loadType storage.LoadType, dataDate time.Time) (*Result, error) {
	start := time.Now()
	if l.Repo == nil {
		return nil, fmt.Errorf("loader: no repository configured")
	}
	skip := l.Skip
	if skip == nil {
		skip = DefaultSkipPolicy
	}
	batchSize := l.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	if loadType == storage.LoadDirect || dataDate.IsZero() {
		now := time.Now().UTC()
		dataDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	entries, closeArchive, err := listEntries(archivePath)
	if err != nil {
		return nil, err
	}
	defer closeArchive()
	if len(entries) == 0 {
		return nil, fmt.Errorf("archive %s holds no csv files", archivePath)
	}

	specs := make(map[string]storage.TableSpec, len(entries))
	for _, e := range entries {
		spec, err := l.profileEntry(e)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", e.name, err)
		}
		specs[e.base] = spec
	}

	if err := l.Repo.EnsureSchema(ctx, l.Schema); err != nil {
		return nil, err
	}

	res := &Result{BatchID: newBatchID(), DataDate: dataDate}
	for _, e := range entries {
		if skip(e.base, specs) {
			res.Skipped = append(res.Skipped, e.base)
			l.logf("stage=load table=%s skipped=fragment", e.base)
			continue
		}
		tr, err := l.loadOne(ctx, e, specs[e.base], loadType, res.BatchID, dataDate, batchSize)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", e.name, err)
		}
		res.Tables = append(res.Tables, tr)
	}

	manifest := storage.Manifest{
		BatchID:  res.BatchID,
		Archive:  filepath.Base(archivePath),
		LoadType: loadType,
		DataDate: dataDate,
		LoadedAt: time.Now().UTC(),
	}
	if err := l.Repo.InsertManifest(ctx, l.Schema, manifest); err != nil {
		return nil, err
	}

	l.logf("stage=load ok tables=%d skipped=%d duration=%s",
		len(res.Tables), len(res.Skipped), time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (l *Loader) loadOne(ctx context.Context, e entry, spec storage.TableSpec, loadType storage.LoadType, batchID string, dataDate time.Time, batchSize int) (TableResult, error) {
	drop := loadType == storage.LoadFull
	if err := l.Repo.CreateTable(ctx, spec, drop); err != nil {
		return TableResult{}, err
	}

	rc, err := e.open()
	if err != nil {
		return TableResult{}, err
	}
	defer rc.Close()

	sc := newCSVScanner(rc)
	if _, err := sc.next(); err != nil { // header
		return TableResult{}, fmt.Errorf("reread header: %w", err)
	}

	dataCols := len(spec.Columns) - 2 // trailing provenance columns
	var (
		batch [][]any
		total int64
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := l.Repo.BulkInsert(ctx, spec, batch)
		total += n
		batch = batch[:0]
		return err
	}

	for {
		record, err := sc.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return TableResult{}, err
		}
		row := make([]any, len(spec.Columns))
		for i := 0; i < dataCols; i++ {
			var cell string
			if i < len(record) {
				cell = record[i]
			}
			row[i] = ConvertCell(cell, spec.Columns[i].Type)
		}
		row[dataCols] = batchID
		row[dataCols+1] = dataDate
		batch = append(batch, row)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return TableResult{}, err
			}
		}
	}
	if err := flush(); err != nil {
		return TableResult{}, err
	}

	l.logf("stage=load table=%s rows=%d", spec.Qualified(), total)
	return TableResult{Table: spec.Qualified(), Rows: total}, nil
}

// profileEntry is the first pass: header to columns, every row folded into
// the type lattice.
func (l *Loader) profileEntry(e entry) (storage.TableSpec, error) {
	rc, err := e.open()
	if err != nil {
		return storage.TableSpec{}, err
	}
	defer rc.Close()

	sc := newCSVScanner(rc)
	header, err := sc.next()
	if err == io.EOF {
		return storage.TableSpec{}, fmt.Errorf("%s is empty", e.name)
	}
	if err != nil {
		return storage.TableSpec{}, err
	}

	cols := columnsFromHeader(header)
	for {
		record, err := sc.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return storage.TableSpec{}, err
		}
		profileColumns(cols, record)
	}

	cols = append(cols,
		storage.Column{Name: batchIDColumn, Type: storage.TypeString},
		storage.Column{Name: dataDateColumn, Type: storage.TypeDate},
	)
	return storage.TableSpec{
		Schema:  l.Schema,
		Name:    xmlpath.SanitizeIdentifier(e.base),
		Columns: cols,
	}, nil
}

// columnsFromHeader sanitizes header cells into identifiers, suffixing
// repeats so the DDL stays valid.
func columnsFromHeader(header []string) []storage.Column {
	cols := make([]storage.Column, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := xmlpath.SanitizeIdentifier(h)
		seen[name]++
		if n := seen[name]; n > 1 {
			name = xmlpath.TruncateIdentifier(fmt.Sprintf("%s_%d", name, n))
		}
		cols[i] = storage.Column{Name: name, Type: storage.TypeUnknown}
	}
	return cols
}

//
// archive walking
//

type entry struct {
	name string
	base string
	open func() (io.ReadCloser, error)
}

func listEntries(path string) ([]entry, func(), error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		entries, err := listDir(path)
		return entries, func() {}, err
	}
	return listZip(path)
}

func listDir(dir string) ([]entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []entry
	for _, de := range des {
		if de.IsDir() || !strings.EqualFold(filepath.Ext(de.Name()), ".csv") {
			continue
		}
		name := de.Name()
		full := filepath.Join(dir, name)
		out = append(out, entry{
			name: name,
			base: strings.TrimSuffix(strings.ToLower(name), ".csv"),
			open: func() (io.ReadCloser, error) { return os.Open(full) },
		})
	}
	sortEntries(out)
	return out, nil
}

func listZip(path string) ([]entry, func(), error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	var out []entry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(f.Name), ".csv") {
			continue
		}
		f := f
		base := filepath.Base(f.Name)
		out = append(out, entry{
			name: f.Name,
			base: strings.TrimSuffix(strings.ToLower(base), ".csv"),
			open: func() (io.ReadCloser, error) { return f.Open() },
		})
	}
	sortEntries(out)
	return out, func() { zr.Close() }, nil
}

func sortEntries(out []entry) {
	sort.Slice(out, func(i, j int) bool { return out[i].base < out[j].base })
}

func (l *Loader) logf(format string, args ...any) {
	if l.Logger != nil {
		l.Logger.Printf(format, args...)
	}
}
