// Package observer is the producer-facing front-end of the event-log
// observer: it receives individual events from an event bus on arbitrary
// caller threads, encodes them, and enqueues them for the file writer
// running on its own serialized executor.
//
// None of the three collaborators — bus, encoder, writer — is the
// observer's own concern; this package only wires them together and owns
// the lifecycle (start, stop, destroy).
package observer

import (
	"sync/atomic"

	"github.com/pithecene-io/netlog/executor"
	"github.com/pithecene-io/netlog/log"
	"github.com/pithecene-io/netlog/queue"
	"github.com/pithecene-io/netlog/types"
	"github.com/pithecene-io/netlog/writer"
)

// Unbounded selects unbounded mode when passed as Config.MaxTotalSize: no
// disk budget, no chunk ring, the write queue itself is unbounded too.
const Unbounded int64 = -1

// DefaultChunkCount is used when Config.ChunkCount is zero in bounded mode.
const DefaultChunkCount = 10

// DefaultFlushThreshold is the queue length at which a drain task is
// posted to the file executor.
const DefaultFlushThreshold = 15

// Bus is the external event source collaborator. An implementation invokes
// handler once per event, from any number of goroutines, possibly
// concurrently, for as long as the returned unsubscribe func has not been
// called. Subscribing the same Observer twice is the caller's mistake to
// avoid, not something Bus needs to guard against.
type Bus interface {
	Subscribe(mode types.CaptureMode, handler func(types.Entry)) (unsubscribe func(), err error)
}

// Config configures an Observer at construction.
type Config struct {
	// FinalLogPath is where the finished log ends up.
	FinalLogPath string

	// MaxTotalSize is the total disk budget for event chunks in bounded
	// mode. Pass Unbounded to stream directly to the final file with no
	// cap.
	MaxTotalSize int64

	// ChunkCount is the ring size N in bounded mode. Zero selects
	// DefaultChunkCount. Ignored when MaxTotalSize is Unbounded.
	ChunkCount int

	// FlushThreshold is the queue length that triggers a drain task. Zero
	// selects DefaultFlushThreshold.
	FlushThreshold int

	// Constants is the JSON-serializable prologue value. If nil,
	// ConstantsProvider is consulted.
	Constants any

	// ConstantsProvider supplies Constants when Constants is nil. May be
	// nil, in which case the prologue constants value is nil.
	ConstantsProvider func() any

	// Encoder serializes event values, constants, and polled data to
	// compact JSON. Required.
	Encoder types.Encoder

	// Logger receives structured diagnostics. Defaults to a discarding
	// logger.
	Logger *log.Logger

	// TaskQueueDepth sizes the file executor's buffered task channel.
	// Zero selects a small default sufficient for bursty flush posting.
	TaskQueueDepth int
}

// Observer is the producer-facing handle: constructing one starts the file
// executor and posts an Initialize task; StartObserving/StopObserving
// attach and detach it from a Bus; OnEvent is the hot path invoked by the
// bus for every event.
type Observer struct {
	exec           *executor.Serial
	queue          *queue.Queue
	writer         *writer.Writer
	encoder        types.Encoder
	logger         *log.Logger
	flushThreshold int

	unsubscribe  func()
	stopped      atomic.Bool
	closed       atomic.Bool
	encodeErrors atomic.Int64
}

// New constructs an Observer and asynchronously initializes its file
// writer. Construction never blocks on file I/O: Initialize runs as the
// first task on the new file executor.
func New(cfg Config) *Observer {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	chunkCount := cfg.ChunkCount
	if chunkCount <= 0 {
		chunkCount = DefaultChunkCount
	}

	flushThreshold := cfg.FlushThreshold
	if flushThreshold <= 0 {
		flushThreshold = DefaultFlushThreshold
	}

	taskQueueDepth := cfg.TaskQueueDepth
	if taskQueueDepth <= 0 {
		taskQueueDepth = 32
	}

	maxChunkBytes := writer.Unbounded
	queueCap := queue.Unbounded
	if cfg.MaxTotalSize != Unbounded {
		// Doubling the queue's hard cap relative to the writer's total
		// chunk budget gives the writer room to fill every chunk before
		// the queue's oldest-drop policy can kick in: the writer's
		// per-chunk limit is soft (a write that crosses it still
		// completes), the queue's cap is hard.
		maxChunkBytes = cfg.MaxTotalSize / int64(chunkCount)
		queueCap = 2 * cfg.MaxTotalSize
	}

	constants := cfg.Constants
	if constants == nil && cfg.ConstantsProvider != nil {
		constants = cfg.ConstantsProvider()
	}

	w := writer.New(writer.Config{
		FinalLogPath:  cfg.FinalLogPath,
		MaxChunkBytes: maxChunkBytes,
		ChunkCount:    chunkCount,
		Encoder:       cfg.Encoder,
		Logger:        logger,
	})

	o := &Observer{
		exec:           executor.New(taskQueueDepth),
		queue:          queue.New(queueCap),
		writer:         w,
		encoder:        cfg.Encoder,
		logger:         logger,
		flushThreshold: flushThreshold,
	}

	o.exec.Post(func() { w.Initialize(constants) })
	return o
}

// StartObserving subscribes the Observer to bus at the given capture mode.
// The caller must not call this twice without an intervening
// StopObserving/Close.
func (o *Observer) StartObserving(bus Bus, mode types.CaptureMode) error {
	unsub, err := bus.Subscribe(mode, o.OnEvent)
	if err != nil {
		return err
	}
	o.unsubscribe = unsub
	return nil
}

// OnEvent is the hot path: called from arbitrary threads, possibly
// concurrently. It encodes entry and pushes it to the write queue, posting
// a Flush task exactly when the post-push length crosses the flush
// threshold. A failing encode silently drops the event.
func (o *Observer) OnEvent(entry types.Entry) {
	encoded, err := o.encoder.Encode(entry.ToValue())
	if err != nil {
		o.logger.Debug("encode event failed, dropping", map[string]any{
			"kind": "encode", "op": "on_event.encode", "err": err.Error(),
		})
		o.encodeErrors.Add(1)
		return
	}

	n := o.queue.Push(encoded)
	if n == o.flushThreshold {
		o.exec.Post(func() { o.writer.Flush(o.queue) })
	}
}

// StopObserving unsubscribes from the bus synchronously (so no further
// OnEvent call can race this call), then finalizes the run on the file
// executor. If onDone is non-nil, StopObserving blocks until the stop task
// completes and then invokes onDone on the calling goroutine; otherwise it
// is fire-and-forget.
func (o *Observer) StopObserving(polledData any, onDone func()) {
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
	o.stopped.Store(true)

	if onDone != nil {
		o.exec.PostWait(func() { o.writer.FlushThenStop(o.queue, polledData) })
		onDone()
		return
	}
	o.exec.Post(func() { o.writer.FlushThenStop(o.queue, polledData) })
}

// Close releases the Observer's file executor goroutine. If StopObserving
// was never called, Close first unsubscribes (if still subscribed) and
// posts a delete-all-files task, so a destroyed-without-stopping Observer
// leaves nothing on disk; the task runs on the file executor before Close
// returns, since it owns the open handles. Safe to call more than once.
func (o *Observer) Close() {
	if o.closed.Swap(true) {
		return
	}
	if !o.stopped.Load() {
		if o.unsubscribe != nil {
			o.unsubscribe()
			o.unsubscribe = nil
		}
		o.exec.Post(func() { o.writer.DeleteAllFiles() })
	}
	o.exec.Close()
}

// Stats returns a combined point-in-time snapshot of queue and writer
// counters, safe to call from any goroutine including a status dashboard.
func (o *Observer) Stats() Stats {
	ws := o.writer.Stats()
	return Stats{
		QueueLen:          o.queue.Len(),
		QueueBytes:        o.queue.Bytes(),
		QueueDropped:      o.queue.Dropped(),
		EventsWritten:     ws.EventsWritten,
		BytesWritten:      ws.BytesWritten,
		Flushes:           ws.Flushes,
		Rotations:         ws.Rotations,
		FileNumber:        ws.FileNumber,
		EncodeErrors:      o.encodeErrors.Load() + ws.EncodeErrors,
		IOErrors:          ws.IOErrors,
		DirCreateFailures: ws.DirCreateFailures,
	}
}

// Stats is an immutable combined snapshot of write-queue and file-writer
// counters.
type Stats struct {
	QueueLen      int
	QueueBytes    int64
	QueueDropped  int64
	EventsWritten int64
	BytesWritten  int64
	Flushes       int64
	Rotations     int64
	FileNumber    int64

	// EncodeErrors counts failed event, constants, and polled-data encode
	// attempts, combining the observer's own hot-path failures with the
	// file writer's.
	EncodeErrors int64
	// IOErrors counts failed file open/create/write/seek/copy/remove
	// attempts on the file writer.
	IOErrors int64
	// DirCreateFailures counts failed attempts to create the in-progress
	// chunk directory.
	DirCreateFailures int64
}
