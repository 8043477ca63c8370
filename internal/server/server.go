// Package server exposes the conversion pipeline over HTTP: upload, job
// polling, archive download and database loading.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"xmlcsv/internal/config"
	"xmlcsv/internal/job"
	"xmlcsv/internal/loader"
	"xmlcsv/internal/logging"
	"xmlcsv/internal/metrics"
	"xmlcsv/internal/storage"
)

// maxUploadBytes caps a single uploaded document.
const maxUploadBytes = 2 << 30

// Server wires the job registry and orchestrator to the HTTP API.
type Server struct {
	Registry     *job.Registry
	Orchestrator *job.Orchestrator
	Logger       logging.Logger
	Metrics      metrics.Backend

	// TempDir holds uploads and result archives; defaults to the system
	// temp dir and must match the orchestrator's.
	TempDir string

	// Database configures the loader endpoint; an empty Type disables it.
	Database config.DBConfig
}

// newRepository is a seam for tests.
var newRepository = storage.New

// Handler builds the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/download/{filename}", s.handleDownload)
	mux.HandleFunc("POST /api/db/load", s.handleLoad)
	return mux
}

func (s *Server) tempDir() string {
	if s.TempDir != "" {
		return s.TempDir
	}
	return os.TempDir()
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	original := filepath.Base(header.Filename)
	if original == "" || original == "." {
		s.writeError(w, http.StatusBadRequest, "uploaded file needs a name")
		return
	}

	inputPath := filepath.Join(s.tempDir(), "xmlcsv_input_"+uuid.New().String()+filepath.Ext(original))
	out, err := os.Create(inputPath)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "store upload: "+err.Error())
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(inputPath)
		s.writeError(w, http.StatusInternalServerError, "store upload: "+err.Error())
		return
	}
	if err := out.Close(); err != nil {
		os.Remove(inputPath)
		s.writeError(w, http.StatusInternalServerError, "store upload: "+err.Error())
		return
	}

	j := s.Registry.Create(inputPath, original)
	s.Orchestrator.Start(j.ID)
	s.logf("upload accepted job=%s file=%s size=%d", j.ID, original, header.Size)
	s.writeJSON(w, http.StatusAccepted, j)
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Registry.All())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.Registry.Get(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown job id")
		return
	}
	s.writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if !validArchiveName(name) {
		s.writeError(w, http.StatusBadRequest, "invalid archive name")
		return
	}
	path := filepath.Join(s.tempDir(), name)
	f, err := os.Open(path)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "archive not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := io.Copy(w, f); err != nil {
		s.logf("download %s aborted: %v", name, err)
	}
}

// validArchiveName admits only flat zip names, no path traversal.
func validArchiveName(name string) bool {
	if name == "" || name != filepath.Base(name) {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}

// loadRequest is the POST /api/db/load body.
type loadRequest struct {
	FileName string `json:"fileName"`
	LoadType string `json:"loadType"`

	// DataDate is "2006-01-02"; required for Daily, ignored for Direct.
	DataDate string `json:"dataDate"`
}

type loadResponse struct {
	BatchID  string           `json:"batchId"`
	DataDate string           `json:"dataDate"`
	Tables   map[string]int64 `json:"tables"`
	Skipped  []string         `json:"skipped,omitempty"`
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if s.Database.Type == "" {
		s.writeError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	if !validArchiveName(req.FileName) {
		s.writeError(w, http.StatusBadRequest, "invalid archive name")
		return
	}
	loadType, err := storage.ParseLoadType(req.LoadType)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var dataDate time.Time
	if req.DataDate != "" {
		dataDate, err = time.ParseInLocation("2006-01-02", req.DataDate, time.UTC)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "dataDate must be yyyy-mm-dd")
			return
		}
	}
	if loadType == storage.LoadDaily && dataDate.IsZero() {
		s.writeError(w, http.StatusBadRequest, "Daily load needs a dataDate")
		return
	}

	archivePath := filepath.Join(s.tempDir(), req.FileName)
	if _, err := os.Stat(archivePath); err != nil {
		s.writeError(w, http.StatusNotFound, "archive not found")
		return
	}

	res, err := s.runLoad(r.Context(), archivePath, loadType, dataDate)
	if err != nil {
		s.logf("db load %s failed: %v", req.FileName, err)
		s.writeError(w, http.StatusInternalServerError, "load failed: "+err.Error())
		return
	}

	resp := loadResponse{
		BatchID:  res.BatchID,
		DataDate: res.DataDate.Format("2006-01-02"),
		Tables:   make(map[string]int64, len(res.Tables)),
		Skipped:  res.Skipped,
	}
	for _, t := range res.Tables {
		resp.Tables[t.Table] = t.Rows
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runLoad(ctx context.Context, archivePath string, loadType storage.LoadType, dataDate time.Time) (*loader.Result, error) {
	driver, dsn, err := config.BuildDriverAndDSN(s.Database)
	if err != nil {
		return nil, err
	}
	repo, err := newRepository(ctx, driver, dsn, s.Logger)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	schema := s.Database.Schema
	if schema == "" {
		schema = "raw"
	}

	start := time.Now()
	l := &loader.Loader{Repo: repo, Schema: schema, Logger: s.Logger}
	res, err := l.Run(ctx, archivePath, loadType, dataDate)
	if err != nil {
		return nil, err
	}

	if s.Metrics != nil {
		var rows int64
		for _, t := range res.Tables {
			rows += t.Rows
		}
		s.Metrics.Count(metrics.RowsLoaded, float64(rows), nil)
		s.Metrics.Gauge(metrics.LoadSeconds, time.Since(start).Seconds(), nil)
	}
	return res, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, context.Canceled) {
		s.logf("write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
