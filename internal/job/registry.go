// Package job runs the XML to CSV pipeline in the background and tracks the
// lifecycle of each conversion.
package job

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// Job is one tracked conversion.
type Job struct {
	ID               string    `json:"jobId"`
	InputPath        string    `json:"-"`
	OriginalFileName string    `json:"originalFileName"`
	Status           Status    `json:"status"`
	Message          string    `json:"message"`
	OutputZipName    string    `json:"downloadFileName,omitempty"`
	CreatedAtUTC     time.Time `json:"createdAtUtc"`
	UpdatedAtUTC     time.Time `json:"updatedAtUtc"`
}

// Registry keeps jobs in memory for the process lifetime.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Create registers a new Pending job for an uploaded file.
func (r *Registry) Create(inputPath, originalFileName string) Job {
	now := time.Now().UTC()
	j := &Job{
		ID:               uuid.New().String(),
		InputPath:        inputPath,
		OriginalFileName: originalFileName,
		Status:           StatusPending,
		Message:          "queued",
		CreatedAtUTC:     now,
		UpdatedAtUTC:     now,
	}

	r.mu.Lock()
	r.jobs[j.ID] = j
	r.mu.Unlock()
	return *j
}

// Get returns a copy of the job, if known.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// All returns copies of every job.
func (r *Registry) All() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	return out
}

// Update transitions a job. Empty message and zipName leave the previous
// values in place. Unknown ids are ignored.
func (r *Registry) Update(id string, status Status, message, zipName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return
	}
	j.Status = status
	if message != "" {
		j.Message = message
	}
	if zipName != "" {
		j.OutputZipName = zipName
	}
	j.UpdatedAtUTC = time.Now().UTC()
}
