// Package metrics is the thin counter surface the pipeline reports through.
// The default backend drops everything; binaries swap in a real one.
package metrics

// Backend receives pipeline measurements.
type Backend interface {
	// Count adds value to a counter metric.
	Count(name string, value float64, tags []string)

	// Gauge sets a point-in-time value.
	Gauge(name string, value float64, tags []string)

	// Close flushes buffered points.
	Close()
}

// Nop drops all measurements.
type Nop struct{}

func (Nop) Count(string, float64, []string) {}
func (Nop) Gauge(string, float64, []string) {}
func (Nop) Close()                          {}

// Metric names emitted by the pipeline.
const (
	JobsCompleted = "xmlcsv.jobs.completed"
	JobsFailed    = "xmlcsv.jobs.failed"
	RowsExported  = "xmlcsv.rows.exported"
	RowsLoaded    = "xmlcsv.rows.loaded"
	LoadSeconds   = "xmlcsv.load.duration_seconds"
)
