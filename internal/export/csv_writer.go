package export

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CSVOptions control the rendered output files.
type CSVOptions struct {
	// Delimiter between cells; 0 means ",".
	Delimiter rune

	// QuoteAll forces quoting of every cell instead of only when needed.
	QuoteAll bool

	// NoBOM suppresses the UTF-8 byte order mark written at file start.
	NoBOM bool
}

func (o CSVOptions) delimiter() rune {
	if o.Delimiter == 0 {
		return ','
	}
	return o.Delimiter
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// writerCache keeps one open CSV file per output path so every table's file
// is created exactly once across all hierarchies, with its header written on
// first open.
type writerCache struct {
	dir  string
	opts CSVOptions

	mu    sync.Mutex
	files map[string]*csvFile
}

type csvFile struct {
	f    *os.File
	buf  *bufio.Writer
	rows int64
}

func newWriterCache(dir string, opts CSVOptions) *writerCache {
	return &writerCache{dir: dir, opts: opts, files: make(map[string]*csvFile)}
}

func (c *writerCache) get(base string, headers []string) (*csvFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cf, ok := c.files[base]; ok {
		return cf, nil
	}

	path := filepath.Join(c.dir, base+".csv")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	cf := &csvFile{f: f, buf: bufio.NewWriterSize(f, 64<<10)}
	if !c.opts.NoBOM {
		if _, err := cf.buf.Write(utf8BOM); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := cf.write(headers, c.opts); err != nil {
		f.Close()
		return nil, err
	}
	cf.rows = 0 // header does not count
	c.files[base] = cf
	return cf, nil
}

func (cf *csvFile) write(cells []string, opts CSVOptions) error {
	delim := opts.delimiter()
	for i, cell := range cells {
		if i > 0 {
			if _, err := cf.buf.WriteRune(delim); err != nil {
				return err
			}
		}
		if err := writeCell(cf.buf, cell, delim, opts.QuoteAll); err != nil {
			return err
		}
	}
	if err := cf.buf.WriteByte('\n'); err != nil {
		return err
	}
	cf.rows++
	return nil
}

func writeCell(w *bufio.Writer, cell string, delim rune, quoteAll bool) error {
	needQuote := quoteAll ||
		strings.ContainsRune(cell, delim) ||
		strings.ContainsAny(cell, "\"\n\r")
	if !needQuote {
		_, err := w.WriteString(cell)
		return err
	}
	if err := w.WriteByte('"'); err != nil {
		return err
	}
	if _, err := w.WriteString(strings.ReplaceAll(cell, `"`, `""`)); err != nil {
		return err
	}
	return w.WriteByte('"')
}

// close flushes and closes every file, returning the first error seen.
func (c *writerCache) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, cf := range c.files {
		if err := cf.buf.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := cf.f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.files = make(map[string]*csvFile)
	return errors.Join(errs...)
}

// rowCounts snapshots rows written per output base name.
func (c *writerCache) rowCounts() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.files))
	for base, cf := range c.files {
		out[base] = cf.rows
	}
	return out
}
