// Package export runs the second streaming pass: it re-reads the document
// and writes one CSV file per resolved table.
package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"xmlcsv/internal/hierarchy"
	"xmlcsv/internal/logging"
	"xmlcsv/internal/mapping"
	"xmlcsv/internal/xmlpath"
)

// Exporter writes the CSV rendition of a resolved hierarchy forest.
type Exporter struct {
	// OutDir receives the CSV files; created if missing.
	OutDir string

	CSV    CSVOptions
	Logger logging.Logger
}

// Stats summarizes one export run.
type Stats struct {
	// MainRecords is the number of main-table records processed.
	MainRecords int64

	// Rows maps output file base name to data rows written.
	Rows map[string]int64
}

type plan struct {
	localName string
	main      mapping.Table
	children  []childPlan
}

type childPlan struct {
	// rel is the element chain from the main record to the child record,
	// e.g. "authors/author".
	rel string
	m   mapping.Table
}

// Run scans r once, matching main records by the local name of their record
// path's last segment. Each match is captured as an isolated subtree, its
// main row and child rows are written, and the subtree is dropped.
func (e *Exporter) Run(r io.Reader, forest []hierarchy.Table) (*Stats, error) {
	start := time.Now()
	if err := os.MkdirAll(e.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	plans := compile(forest)
	cache := newWriterCache(e.OutDir, e.CSV)
	stats := &Stats{}

	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			cache.close()
			return nil, fmt.Errorf("xml parse: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		p, ok := plans[se.Name.Local]
		if !ok {
			continue
		}
		sub, err := captureSubtree(dec, se)
		if err != nil {
			cache.close()
			return nil, err
		}
		if err := e.emit(cache, p, sub); err != nil {
			cache.close()
			return nil, err
		}
		stats.MainRecords++
	}

	stats.Rows = cache.rowCounts()
	if err := cache.close(); err != nil {
		return nil, fmt.Errorf("close csv outputs: %w", err)
	}
	e.logf("stage=export ok records=%d tables=%d duration=%s",
		stats.MainRecords, len(stats.Rows), time.Since(start).Round(time.Millisecond))
	return stats, nil
}

func (e *Exporter) emit(cache *writerCache, p *plan, record *node) error {
	if err := writeRow(cache, p.main, record); err != nil {
		return err
	}
	for _, cp := range p.children {
		for _, childNode := range descendantsAt(record, cp.rel) {
			if err := writeRow(cache, cp.m, childNode); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeRow(cache *writerCache, m mapping.Table, n *node) error {
	// A main whose fields all belong to child tables maps to zero columns;
	// emitting it would produce a file of blank lines. Skip the table.
	if len(m.Columns) == 0 {
		return nil
	}
	cf, err := cache.get(m.FileBase, headersOf(m))
	if err != nil {
		return err
	}
	cells := make([]string, len(m.Columns))
	for i, col := range m.Columns {
		sep := col.Join
		if sep == "" {
			sep = mapping.MultiValueSeparator
		}
		cells[i] = strings.Join(selectValues(n, col.Source), sep)
	}
	return cf.write(cells, cache.opts)
}

func headersOf(m mapping.Table) []string {
	out := make([]string, len(m.Columns))
	for i, col := range m.Columns {
		out[i] = col.Name
	}
	return out
}

// compile turns the forest into per-local-name match plans. When two mains
// share a local name the first one wins; subtree capture keeps the scan
// forward-only either way.
func compile(forest []hierarchy.Table) map[string]*plan {
	plans := make(map[string]*plan, len(forest))
	for _, h := range forest {
		segs := xmlpath.Split(h.Main.RecordPath)
		if len(segs) == 0 {
			continue
		}
		local := segs[len(segs)-1]
		if _, exists := plans[local]; exists {
			continue
		}
		p := &plan{localName: local, main: mapping.ForMain(h)}
		for _, c := range h.Children {
			rel := strings.TrimPrefix(xmlpath.RelativeTo(h.Main.RecordPath, c.RecordPath), "./")
			p.children = append(p.children, childPlan{rel: rel, m: mapping.ForCandidate(c)})
		}
		plans[local] = p
	}
	return plans
}

func (e *Exporter) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}
