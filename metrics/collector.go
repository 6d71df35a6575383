// Package metrics exports observer, queue, and writer counters as
// Prometheus metrics. It owns a private registry so embedders can run
// multiple Collectors (e.g. one per run) without colliding on the global
// default registerer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stats mirrors observer.Stats without importing it, keeping this package a
// leaf with no dependency on the hard core.
type Stats struct {
	QueueLen      int
	QueueBytes    int64
	QueueDropped  int64
	EventsWritten int64
	BytesWritten  int64
	Flushes       int64
	Rotations     int64
	FileNumber    int64

	EncodeErrors      int64
	IOErrors          int64
	DirCreateFailures int64
}

// Collector holds the gauges and counters scraped by Prometheus.
type Collector struct {
	registry *prometheus.Registry

	queueLen     prometheus.Gauge
	queueBytes   prometheus.Gauge
	queueDropped prometheus.Counter

	eventsWritten prometheus.Counter
	bytesWritten  prometheus.Counter
	flushes       prometheus.Counter
	rotations     prometheus.Counter
	fileNumber    prometheus.Gauge

	encodeErrors      prometheus.Counter
	ioErrors          prometheus.Counter
	dirCreateFailures prometheus.Counter
}

// NewCollector creates a Collector with its own registry, labeled with the
// given run identifier so multiple concurrent runs don't collide when
// scraped through a shared /metrics endpoint.
func NewCollector(runID string) *Collector {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"run_id": runID}

	c := &Collector{
		registry: registry,
		queueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "netlog_queue_length",
			Help:        "Current number of records buffered in the write queue.",
			ConstLabels: constLabels,
		}),
		queueBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "netlog_queue_bytes",
			Help:        "Current number of bytes buffered in the write queue.",
			ConstLabels: constLabels,
		}),
		queueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "netlog_queue_dropped_total",
			Help:        "Total records evicted by the queue's oldest-drop overflow policy.",
			ConstLabels: constLabels,
		}),
		eventsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "netlog_events_written_total",
			Help:        "Total events written to the log file.",
			ConstLabels: constLabels,
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "netlog_bytes_written_total",
			Help:        "Total bytes written to the log file.",
			ConstLabels: constLabels,
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "netlog_flushes_total",
			Help:        "Total number of queue-to-file flush operations.",
			ConstLabels: constLabels,
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "netlog_rotations_total",
			Help:        "Total number of chunk file rotations.",
			ConstLabels: constLabels,
		}),
		fileNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "netlog_file_number",
			Help:        "The monotonic chunk file number currently being written.",
			ConstLabels: constLabels,
		}),
		encodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "netlog_encode_errors_total",
			Help:        "Total failed event, constants, or polled-data encode attempts.",
			ConstLabels: constLabels,
		}),
		ioErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "netlog_io_errors_total",
			Help:        "Total failed file open/create/write/seek/copy/remove attempts.",
			ConstLabels: constLabels,
		}),
		dirCreateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "netlog_dir_create_failures_total",
			Help:        "Total failed attempts to create the in-progress chunk directory.",
			ConstLabels: constLabels,
		}),
	}

	registry.MustRegister(
		c.queueLen, c.queueBytes, c.queueDropped,
		c.eventsWritten, c.bytesWritten, c.flushes, c.rotations, c.fileNumber,
		c.encodeErrors, c.ioErrors, c.dirCreateFailures,
	)

	return c
}

// Observe updates the gauges from the latest Stats snapshot and advances
// the monotonic counters by the delta from prev, so callers may poll at
// any interval without double-counting as long as cumulative fields in s
// never regress relative to prev.
func (c *Collector) Observe(s Stats, prev Stats) {
	c.queueLen.Set(float64(s.QueueLen))
	c.queueBytes.Set(float64(s.QueueBytes))
	c.fileNumber.Set(float64(s.FileNumber))

	c.queueDropped.Add(float64(s.QueueDropped - prev.QueueDropped))
	c.eventsWritten.Add(float64(s.EventsWritten - prev.EventsWritten))
	c.bytesWritten.Add(float64(s.BytesWritten - prev.BytesWritten))
	c.flushes.Add(float64(s.Flushes - prev.Flushes))
	c.rotations.Add(float64(s.Rotations - prev.Rotations))
	c.encodeErrors.Add(float64(s.EncodeErrors - prev.EncodeErrors))
	c.ioErrors.Add(float64(s.IOErrors - prev.IOErrors))
	c.dirCreateFailures.Add(float64(s.DirCreateFailures - prev.DirCreateFailures))
}

// Handler returns the http.Handler serving this Collector's registry in
// Prometheus exposition format, suitable for mounting at /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
