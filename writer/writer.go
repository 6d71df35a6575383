// Package writer implements the file writer half of the observer: the
// consumer-side rotation and stitching state machine that must run
// exclusively on the single file executor.
//
// A Writer is either bounded (events stream to a ring of chunk files inside
// an in-progress directory, then get stitched into the final file on Stop)
// or unbounded (events stream directly into the final file). The mode is
// fixed for the lifetime of the Writer, decided by whether MaxChunkBytes is
// Unbounded.
//
// Nothing in this package is safe for concurrent use by itself: every
// method must be invoked from a single goroutine, one at a time, which is
// exactly what executor.Serial guarantees its posted tasks.
package writer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/netlog/iox"
	"github.com/pithecene-io/netlog/log"
	"github.com/pithecene-io/netlog/queue"
	"github.com/pithecene-io/netlog/types"
)

// Unbounded selects unbounded mode when passed as Config.MaxChunkBytes: no
// chunk ring, events stream straight into the final file.
const Unbounded int64 = -1

// PlaceholderText is written to the final file path while a bounded writer
// is still streaming into its chunk ring, so a reader opening the final
// path mid-run sees an explanatory message instead of an empty file.
const PlaceholderText = "Log data is being written to the .inprogress directory"

const (
	constantsFileName = "constants.json"
	endFileName       = "end_netlog.json"
)

// Config configures a Writer at construction. It is the file-writer-facing
// half of the tunables an Observer computes from its own constructor
// arguments (max_total_size, chunk_count): by the time a Config reaches
// here, max_total_size has already been divided by ChunkCount into
// MaxChunkBytes.
type Config struct {
	// FinalLogPath is where the finished log ends up. The in-progress
	// directory, when bounded, is this path plus ".inprogress".
	FinalLogPath string

	// MaxChunkBytes is the soft per-chunk byte limit, or Unbounded.
	MaxChunkBytes int64

	// ChunkCount is the ring size N. Ignored when MaxChunkBytes is
	// Unbounded.
	ChunkCount int

	// Encoder produces compact JSON for constants and polled data.
	// Required.
	Encoder types.Encoder

	// Logger receives structured diagnostics for every non-fatal failure
	// path. Defaults to a discarding logger.
	Logger *log.Logger
}

// Writer owns all file handles and rotation state for one run. Every
// exported method must run on the file executor; none of them lock
// anything, because there is never more than one caller.
type Writer struct {
	finalPath     string
	inprogressDir string
	maxChunkBytes int64
	chunkCount    int64
	encoder       types.Encoder
	logger        *log.Logger
	stats         *Stats

	finalFile *os.File
	chunkFile *os.File

	chunkBytes      int64
	fileNumber      int64
	wroteEventBytes bool
	dirFailed       bool
}

// New constructs a Writer. It performs no I/O; call Initialize to open the
// final file (and, in bounded mode, the in-progress directory).
func New(cfg Config) *Writer {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	chunkCount := cfg.ChunkCount
	if chunkCount <= 0 {
		chunkCount = 1
	}
	return &Writer{
		finalPath:     cfg.FinalLogPath,
		inprogressDir: cfg.FinalLogPath + ".inprogress",
		maxChunkBytes: cfg.MaxChunkBytes,
		chunkCount:    int64(chunkCount),
		encoder:       cfg.Encoder,
		logger:        logger,
		stats:         &Stats{},
	}
}

// Stats returns a point-in-time snapshot of this writer's counters. Safe to
// call from any goroutine.
func (w *Writer) Stats() StatsSnapshot {
	return w.stats.Snapshot()
}

func (w *Writer) bounded() bool {
	return w.maxChunkBytes != Unbounded
}

func (w *Writer) constantsPath() string {
	return filepath.Join(w.inprogressDir, constantsFileName)
}

func (w *Writer) endPath() string {
	return filepath.Join(w.inprogressDir, endFileName)
}

func (w *Writer) chunkPath(index int64) string {
	return filepath.Join(w.inprogressDir, fmt.Sprintf("event_file_%d.json", index))
}

// Error kinds used to tag log fields: the three of SPEC_FULL.md's four
// non-fatal failure kinds that reach the writer. Queue overflow drops happen
// in the queue and are only counted, not logged.
const (
	kindIO       = "io"
	kindEncode   = "encode"
	kindDirCreat = "dir_create"
)

// logFields builds the standard (kind, op, path, err) field set every
// non-fatal failure log call carries, so the log stream has one consistent
// taxonomy to filter on regardless of which phase emitted it.
func logFields(kind, op, path string, err error) map[string]any {
	fields := map[string]any{"kind": kind, "op": op}
	if path != "" {
		fields["path"] = path
	}
	if err != nil {
		fields["err"] = err.Error()
	}
	return fields
}

// Initialize opens the final file (truncating) and writes the constants
// prologue. In bounded mode the prologue lands in constants.json inside a
// freshly created in-progress directory, and the final file instead gets a
// short placeholder so a crash leaves something legible on disk. In
// unbounded mode the prologue is written straight into the final file.
func (w *Writer) Initialize(constants any) {
	f, err := os.Create(w.finalPath)
	if err != nil {
		w.logger.Error("initialize: create final file failed",
			logFields(kindIO, "initialize.create_final_file", w.finalPath, err))
		w.stats.ioErrors.Add(1)
		return
	}
	w.finalFile = f

	constJSON, err := w.encoder.Encode(constants)
	if err != nil {
		// Per contract, a failing constants encoder is a programmer error,
		// not a runtime condition to recover gracefully from. We still
		// avoid corrupting the file: fall back to a JSON null so the
		// prologue stays syntactically valid.
		w.logger.Error("initialize: encode constants failed",
			logFields(kindEncode, "initialize.encode_constants", "", err))
		w.stats.encodeErrors.Add(1)
		constJSON = "null"
	}
	prologue := fmt.Sprintf("{\"constants\":%s,\n\"events\": [\n", constJSON)

	if !w.bounded() {
		if _, err := w.finalFile.WriteString(prologue); err != nil {
			w.logger.Error("initialize: write prologue failed",
				logFields(kindIO, "initialize.write_prologue", w.finalPath, err))
			w.stats.ioErrors.Add(1)
		}
		return
	}

	if err := os.MkdirAll(w.inprogressDir, 0o755); err != nil {
		w.logger.Warn("initialize: create in-progress directory failed",
			logFields(kindDirCreat, "initialize.mkdir_inprogress", w.inprogressDir, err))
		w.dirFailed = true
		w.stats.dirCreateFailures.Add(1)
	} else if cf, err := os.Create(w.constantsPath()); err != nil {
		w.logger.Error("initialize: create constants file failed",
			logFields(kindIO, "initialize.create_constants_file", w.constantsPath(), err))
		w.stats.ioErrors.Add(1)
	} else {
		if _, err := cf.WriteString(prologue); err != nil {
			w.logger.Error("initialize: write constants prologue failed",
				logFields(kindIO, "initialize.write_constants_prologue", w.constantsPath(), err))
			w.stats.ioErrors.Add(1)
		}
		cf.Close()
	}

	if _, err := w.finalFile.WriteString(PlaceholderText); err != nil {
		w.logger.Error("initialize: write placeholder failed",
			logFields(kindIO, "initialize.write_placeholder", w.finalPath, err))
		w.stats.ioErrors.Add(1)
		return
	}
	if err := w.finalFile.Sync(); err != nil {
		w.logger.Warn("initialize: sync placeholder failed",
			logFields(kindIO, "initialize.sync_placeholder", w.finalPath, err))
		w.stats.ioErrors.Add(1)
	}
}

// Flush drains q in O(1) and writes every record it held, rotating chunks
// as needed in bounded mode.
func (w *Writer) Flush(q *queue.Queue) {
	scratch := queue.New(queue.Unbounded)
	q.SwapInto(scratch)
	records := scratch.Records()
	if len(records) == 0 {
		return
	}
	w.stats.flushes.Add(1)
	for _, record := range records {
		w.writeEvent(record)
	}
}

func (w *Writer) writeEvent(record string) {
	target := w.finalFile
	if w.bounded() {
		if w.chunkFile == nil || w.chunkBytes >= w.maxChunkBytes {
			w.rotate()
		}
		target = w.chunkFile
	}
	if target == nil {
		// The handle failed to open; the event is lost but the protocol
		// keeps going.
		return
	}

	n, err := target.WriteString(record + ",\n")
	if err != nil {
		w.logger.Error("write event failed", logFields(kindIO, "flush.write_event", "", err))
		w.stats.ioErrors.Add(1)
		return
	}
	if n > 0 {
		w.wroteEventBytes = true
		w.stats.eventsWritten.Add(1)
		w.stats.bytesWritten.Add(int64(n))
	}
	if w.bounded() {
		w.chunkBytes += int64(n)
	}
}

// rotate opens the next chunk file in ring order, closing whatever was
// previously open. Triggered lazily: the write that crosses max_chunk_bytes
// still lands in the current chunk, and rotation happens before the next
// write.
func (w *Writer) rotate() {
	w.fileNumber++
	index := (w.fileNumber - 1) % w.chunkCount
	w.stats.fileNumber.Store(w.fileNumber)
	w.stats.rotations.Add(1)

	if w.chunkFile != nil {
		w.chunkFile.Close()
	}

	f, err := os.Create(w.chunkPath(index))
	if err != nil {
		w.logger.Error("rotate: open chunk file failed",
			logFields(kindIO, "rotate.create_chunk", w.chunkPath(index), err))
		w.stats.ioErrors.Add(1)
		w.chunkFile = nil
		w.chunkBytes = 0
		return
	}
	w.chunkFile = f
	w.chunkBytes = 0
}

// Stop finalizes the run: in bounded mode this writes the epilogue to
// end_netlog.json and stitches the final file from the prologue, the live
// chunk window, and that epilogue; in unbounded mode it overwrites the
// trailing separator of the last event directly in the final file and
// appends the epilogue there. In both modes the final file is closed last.
func (w *Writer) Stop(polledData any) {
	if w.bounded() {
		w.stopBounded(polledData)
		return
	}
	w.stopUnbounded(polledData)
}

func (w *Writer) stopBounded(polledData any) {
	if w.dirFailed {
		// The in-progress directory never came into being: there is
		// nothing to stitch, and the final file already holds the
		// placeholder written at Initialize. Leave it as is.
		w.closeFinal()
		return
	}

	epilogue := w.buildEpilogue(polledData)
	if f, err := os.Create(w.endPath()); err != nil {
		w.logger.Error("stop: create epilogue file failed",
			logFields(kindIO, "stop.create_epilogue_file", w.endPath(), err))
		w.stats.ioErrors.Add(1)
	} else {
		if _, err := f.WriteString(epilogue); err != nil {
			w.logger.Error("stop: write epilogue failed",
				logFields(kindIO, "stop.write_epilogue_file", w.endPath(), err))
			w.stats.ioErrors.Add(1)
		}
		f.Close()
	}

	w.stitch()
	w.closeFinal()
}

func (w *Writer) stopUnbounded(polledData any) {
	if w.finalFile == nil {
		return
	}
	if w.wroteEventBytes {
		if _, err := w.finalFile.Seek(-2, io.SeekEnd); err != nil {
			w.logger.Error("stop: seek back failed",
				logFields(kindIO, "stop.seek_back", w.finalPath, err))
			w.stats.ioErrors.Add(1)
		}
	}
	epilogue := w.buildEpilogue(polledData)
	if _, err := w.finalFile.WriteString(epilogue); err != nil {
		w.logger.Error("stop: write epilogue failed",
			logFields(kindIO, "stop.write_epilogue", w.finalPath, err))
		w.stats.ioErrors.Add(1)
	}
	w.closeFinal()
}

// stitch assembles the final file out of constants.json, the live chunk
// window in ring-age order, and end_netlog.json, deleting each source as it
// is consumed, then removes the in-progress directory.
func (w *Writer) stitch() {
	if w.chunkFile != nil {
		w.chunkFile.Close()
		w.chunkFile = nil
	}

	final, err := os.Create(w.finalPath)
	if err != nil {
		w.logger.Error("stitch: reopen final file failed",
			logFields(kindIO, "stitch.reopen_final", w.finalPath, err))
		w.stats.ioErrors.Add(1)
		return
	}
	defer final.Close()

	if _, err := iox.CopyFileInto(final, w.constantsPath()); err != nil {
		w.logger.Error("stitch: copy constants failed",
			logFields(kindIO, "stitch.copy_constants", w.constantsPath(), err))
		w.stats.ioErrors.Add(1)
	}
	os.Remove(w.constantsPath())

	begin, end := w.liveWindow()
	for fn := begin; fn < end; fn++ {
		index := (fn - 1) % w.chunkCount
		path := w.chunkPath(index)
		if _, err := iox.CopyFileInto(final, path); err != nil {
			w.logger.Error("stitch: copy chunk failed", logFields(kindIO, "stitch.copy_chunk", path, err))
			w.stats.ioErrors.Add(1)
		}
		os.Remove(path)
	}

	if w.wroteEventBytes {
		if _, err := final.Seek(-2, io.SeekEnd); err != nil {
			w.logger.Error("stitch: seek back failed",
				logFields(kindIO, "stitch.seek_back", w.finalPath, err))
			w.stats.ioErrors.Add(1)
		}
	}

	if _, err := iox.CopyFileInto(final, w.endPath()); err != nil {
		w.logger.Error("stitch: copy epilogue failed",
			logFields(kindIO, "stitch.copy_epilogue", w.endPath(), err))
		w.stats.ioErrors.Add(1)
	}
	os.Remove(w.endPath())

	if err := os.RemoveAll(w.inprogressDir); err != nil {
		w.logger.Warn("stitch: remove in-progress directory failed",
			logFields(kindIO, "stitch.remove_inprogress_dir", w.inprogressDir, err))
		w.stats.ioErrors.Add(1)
	}
}

// liveWindow returns the half-open file_number range [begin, end) still
// resident on disk: file numbers increase monotonically and never wrap, so
// once more than ChunkCount chunks have been written the oldest ones have
// already been overwritten in place.
func (w *Writer) liveWindow() (begin, end int64) {
	end = w.fileNumber + 1
	if w.fileNumber <= w.chunkCount {
		begin = 1
	} else {
		begin = end - w.chunkCount
	}
	return begin, end
}

func (w *Writer) buildEpilogue(polledData any) string {
	var b strings.Builder
	b.WriteString("]")
	if polledData != nil {
		encoded, err := w.encoder.Encode(polledData)
		if err != nil {
			w.logger.Error("encode polled data failed",
				logFields(kindEncode, "stop.encode_polled_data", "", err))
			w.stats.encodeErrors.Add(1)
			b.WriteString("\n")
		} else {
			b.WriteString(",\n\"polledData\": ")
			b.WriteString(encoded)
			b.WriteString("\n")
		}
	} else {
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func (w *Writer) closeFinal() {
	if w.finalFile != nil {
		w.finalFile.Close()
		w.finalFile = nil
	}
}

// FlushThenStop is the composite task StopObserving posts to the file
// executor: drain whatever is still queued, then finalize.
func (w *Writer) FlushThenStop(q *queue.Queue, polledData any) {
	w.Flush(q)
	w.Stop(polledData)
}

// DeleteAllFiles closes any open handles and removes the final file and,
// in bounded mode, the entire in-progress directory. No further operation
// on this Writer is meaningful afterward.
func (w *Writer) DeleteAllFiles() {
	if w.chunkFile != nil {
		w.chunkFile.Close()
		w.chunkFile = nil
	}
	w.closeFinal()

	os.Remove(w.finalPath)
	if w.bounded() {
		os.RemoveAll(w.inprogressDir)
	}
}
