package job

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"xmlcsv/internal/discover"
	"xmlcsv/internal/export"
	"xmlcsv/internal/hierarchy"
	"xmlcsv/internal/logging"
	"xmlcsv/internal/metrics"
	"xmlcsv/internal/xmlenc"
)

// ErrNoData marks a document that parsed fine but yielded nothing tabular.
var ErrNoData = errors.New("no convertible data found in document")

// Orchestrator owns the background conversion pipeline: discovery,
// hierarchy resolution, export, archive packaging and cleanup.
type Orchestrator struct {
	Registry *Registry
	Logger   logging.Logger
	Metrics  metrics.Backend

	// TempDir defaults to the system temp dir. Inputs, work dirs, output
	// dirs and result zips all live under it.
	TempDir string

	// Discover options for the service pass; MinRepeat defaults to 1 so
	// even once-seen structures convert.
	Discover discover.Options

	CSV export.CSVOptions
}

func (o *Orchestrator) tempDir() string {
	if o.TempDir != "" {
		return o.TempDir
	}
	return os.TempDir()
}

func (o *Orchestrator) metrics() metrics.Backend {
	if o.Metrics != nil {
		return o.Metrics
	}
	return metrics.Nop{}
}

// ZipNameFor derives the download name from the uploaded file name.
func ZipNameFor(originalFileName string) string {
	base := strings.TrimSuffix(filepath.Base(originalFileName), filepath.Ext(originalFileName))
	return base + "_csv.zip"
}

// Start launches the pipeline for a created job in the background.
func (o *Orchestrator) Start(id string) {
	go o.run(id)
}

func (o *Orchestrator) run(id string) {
	j, ok := o.Registry.Get(id)
	if !ok {
		o.logf("job %s vanished before start", id)
		return
	}

	outputDir := filepath.Join(o.tempDir(), "xmlcsv_output_"+j.ID)
	workDir := filepath.Join(o.tempDir(), "xmlcsv_work_"+j.ID)
	zipName := ZipNameFor(j.OriginalFileName)
	zipPath := filepath.Join(o.tempDir(), zipName)

	defer o.cleanup(j.InputPath, outputDir, workDir, id)

	o.Registry.Update(id, StatusRunning, "processing document, producing csv files", "")

	stats, err := o.process(j, outputDir, workDir)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			o.Registry.Update(id, StatusFailed,
				"document processed but no convertible data was found; check the xml structure", "")
		} else {
			o.Registry.Update(id, StatusFailed, "processing failed: "+err.Error(), "")
		}
		o.metrics().Count(metrics.JobsFailed, 1, nil)
		o.logf("job %s failed: %v", id, err)
		return
	}

	if err := zipDirectory(outputDir, zipPath); err != nil {
		o.Registry.Update(id, StatusFailed, "packaging failed: "+err.Error(), "")
		o.metrics().Count(metrics.JobsFailed, 1, nil)
		o.logf("job %s zip failed: %v", id, err)
		return
	}

	o.Registry.Update(id, StatusCompleted, "processing finished, zip archive ready", zipName)
	o.metrics().Count(metrics.JobsCompleted, 1, nil)
	var exported int64
	for _, n := range stats.Rows {
		exported += n
	}
	o.metrics().Count(metrics.RowsExported, float64(exported), nil)
	o.logf("job %s completed zip=%s records=%d", id, zipName, stats.MainRecords)
}

// process runs both streaming passes. A parse failure on the resolved
// encoding is retried exactly once with the legacy fallback.
func (o *Orchestrator) process(j Job, outputDir, workDir string) (*export.Stats, error) {
	opts := o.Discover
	if opts.MinRepeat <= 0 {
		opts.MinRepeat = 1
	}

	legacy := false
	rep, err := o.discoverPass(j.InputPath, opts, false)
	if err != nil {
		o.logf("job %s: retrying with legacy encoding after parse failure: %v", j.ID, err)
		rep, err = o.discoverPass(j.InputPath, opts, true)
		if err != nil {
			return nil, err
		}
		legacy = true
	}

	o.persistReport(rep, j, workDir)

	cands := hierarchy.FilterContainers(rep.Candidates)
	if len(cands) == 0 {
		return nil, ErrNoData
	}
	forest := hierarchy.Resolve(cands)
	if err := hierarchy.Validate(forest); err != nil {
		return nil, err
	}
	if len(forest) == 0 {
		return nil, ErrNoData
	}

	rc, _, err := o.openInput(j.InputPath, legacy)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	ex := &export.Exporter{OutDir: outputDir, CSV: o.CSV, Logger: o.Logger}
	stats, err := ex.Run(rc, forest)
	if err != nil {
		return nil, err
	}
	if len(stats.Rows) == 0 {
		return nil, ErrNoData
	}
	return stats, nil
}

func (o *Orchestrator) discoverPass(path string, opts discover.Options, legacy bool) (*discover.Report, error) {
	rc, encName, err := o.openInput(path, legacy)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rep, err := discover.Discover(rc, filepath.Base(path), opts)
	if err != nil {
		return nil, err
	}
	rep.Meta.Encoding = encName
	return rep, nil
}

func (o *Orchestrator) openInput(path string, legacy bool) (io.ReadCloser, string, error) {
	if legacy {
		return xmlenc.OpenFileLegacy(path)
	}
	return xmlenc.OpenFile(path)
}

// persistReport writes the discovery report as indented JSON for
// inspection. Failures only warn; the report is a byproduct.
func (o *Orchestrator) persistReport(rep *discover.Report, j Job, workDir string) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		o.logf("job %s: report dir: %v", j.ID, err)
		return
	}
	base := strings.TrimSuffix(filepath.Base(j.OriginalFileName), filepath.Ext(j.OriginalFileName))
	path := filepath.Join(workDir, base+".report.json")
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		o.logf("job %s: report marshal: %v", j.ID, err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		o.logf("job %s: report write: %v", j.ID, err)
	}
}

// cleanup removes the uploaded input and the intermediate directories. The
// result zip stays for download and database loading. Failures here only
// warn; they never change the job outcome.
func (o *Orchestrator) cleanup(inputPath, outputDir, workDir, id string) {
	if inputPath != "" {
		if err := os.Remove(inputPath); err != nil && !os.IsNotExist(err) {
			o.logf("job %s cleanup: input: %v", id, err)
		}
	}
	for _, dir := range []string{outputDir, workDir} {
		if err := os.RemoveAll(dir); err != nil {
			o.logf("job %s cleanup: %s: %v", id, dir, err)
		}
	}
}

func zipDirectory(dir, zipPath string) error {
	if err := os.Remove(zipPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale zip: %w", err)
	}
	out, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)

	entries, err := os.ReadDir(dir)
	if err != nil {
		zw.Close()
		out.Close()
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := addZipEntry(zw, filepath.Join(dir, e.Name()), e.Name()); err != nil {
			zw.Close()
			out.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func addZipEntry(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
	hdr.Modified = time.Now()
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Logger != nil {
		o.Logger.Printf(format, args...)
	}
}
