// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// Measurements are buffered in-memory, flushed on a ticker and once more on
// Close, so both short conversion jobs and a long-running service produce
// usable time series.
package datadog

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"xmlcsv/internal/logging"
	"xmlcsv/internal/metrics"
)

// Options configures the backend.
type Options struct {
	// Service becomes tag "service:<name>"; defaults to "xmlcsv".
	Service string

	// Tags are extra Datadog tags, e.g. []string{"env:prod"}.
	Tags []string

	// FlushEvery defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production never sets them; tests use them to
	// avoid real clocks, tickers and network submission.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter submitter
}

// submitter is the minimal slice of the Datadog SDK the backend needs, kept
// private so tests can fake submission without HTTP.
type submitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

type point struct {
	name  string
	tags  []string
	gauge bool
}

type key struct {
	name string
	tags string
}

// Backend implements metrics.Backend against the Datadog metrics intake.
type Backend struct {
	api    submitter
	ctx    context.Context
	logger logging.Logger

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	baseTags  []string
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu     sync.Mutex
	counts map[key]float64
	gauges map[key]float64
	meta   map[key]point
}

// New builds a backend using the official client; credentials come from the
// standard DD_API_KEY environment. Network errors surface during flushes,
// never in the hot path.
func New(parent context.Context, logger logging.Logger, opts Options) *Backend {
	service := opts.Service
	if service == "" {
		service = "xmlcsv"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}
	baseTags := append([]string{resolveEnvTag(), "service:" + service}, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	tickerFn := opts.newTicker
	if tickerFn == nil {
		tickerFn = time.NewTicker
	}
	sub := opts.submitter
	if sub == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		sub = datadogV2.NewMetricsApi(client)
	}
	if logger == nil {
		logger = logging.Nop{}
	}

	b := &Backend{
		api:        sub,
		ctx:        dd.NewDefaultContext(parent),
		logger:     logger,
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  tickerFn,
		counts:     make(map[key]float64),
		gauges:     make(map[key]float64),
		meta:       make(map[key]point),
	}
	go b.loop()
	return b
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// Count implements metrics.Backend.
func (b *Backend) Count(name string, value float64, tags []string) {
	if value <= 0 {
		return
	}
	k := key{name: name, tags: strings.Join(tags, ",")}
	b.mu.Lock()
	b.counts[k] += value
	b.meta[k] = point{name: name, tags: tags}
	b.mu.Unlock()
}

// Gauge implements metrics.Backend. The last value in a flush window wins.
func (b *Backend) Gauge(name string, value float64, tags []string) {
	k := key{name: name, tags: strings.Join(tags, ",")}
	b.mu.Lock()
	b.gauges[k] = value
	b.meta[k] = point{name: name, tags: tags, gauge: true}
	b.mu.Unlock()
}

func (b *Backend) loop() {
	defer close(b.doneCh)
	t := b.newTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			b.flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and flushes one final time.
func (b *Backend) Close() {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
		b.flush()
	})
}

// flush snapshots and resets buffers under the lock, then submits outside
// it. Buffers reset even when submission fails; metrics are best effort.
func (b *Backend) flush() {
	b.mu.Lock()
	counts, gauges, meta := b.counts, b.gauges, b.meta
	b.counts = make(map[key]float64)
	b.gauges = make(map[key]float64)
	b.meta = make(map[key]point)
	b.mu.Unlock()

	if len(counts) == 0 && len(gauges) == 0 {
		return
	}

	ts := b.now().Unix()
	series := make([]datadogV2.MetricSeries, 0, len(counts)+len(gauges))
	for k, v := range counts {
		series = append(series, b.series(meta[k], v, ts))
	}
	for k, v := range gauges {
		series = append(series, b.series(meta[k], v, ts))
	}

	if _, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: series}, *datadogV2.NewSubmitMetricsOptionalParameters()); err != nil {
		b.logger.Printf("datadog submit failed: %v", err)
	}
}

func (b *Backend) series(p point, value float64, ts int64) datadogV2.MetricSeries {
	typ := datadogV2.METRICINTAKETYPE_COUNT
	if p.gauge {
		typ = datadogV2.METRICINTAKETYPE_GAUGE
	}
	tags := make([]string, 0, len(b.baseTags)+len(p.tags))
	tags = append(tags, b.baseTags...)
	tags = append(tags, p.tags...)
	return datadogV2.MetricSeries{
		Metric: p.name,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{{Timestamp: dd.PtrInt64(ts), Value: dd.PtrFloat64(value)}},
		Tags:   tags,
	}
}

var _ metrics.Backend = (*Backend)(nil)
