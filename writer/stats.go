package writer

import "sync/atomic"

// Stats accumulates counters for one Writer's lifetime. All fields are
// atomics so Snapshot can be called from any goroutine (a status TUI, a
// metrics scrape) while the writer itself keeps running on the file
// executor.
type Stats struct {
	eventsWritten     atomic.Int64
	bytesWritten      atomic.Int64
	flushes           atomic.Int64
	rotations         atomic.Int64
	fileNumber        atomic.Int64
	encodeErrors      atomic.Int64
	ioErrors          atomic.Int64
	dirCreateFailures atomic.Int64
}

// StatsSnapshot is an immutable point-in-time read of Stats.
type StatsSnapshot struct {
	EventsWritten int64
	BytesWritten  int64
	Flushes       int64
	Rotations     int64
	FileNumber    int64

	// EncodeErrors counts failed constants/polled-data encode attempts.
	EncodeErrors int64
	// IOErrors counts failed file open/create/write/seek/copy/remove
	// attempts, excluding the dedicated dirCreateFailures case below.
	IOErrors int64
	// DirCreateFailures counts failed attempts to create the in-progress
	// chunk directory.
	DirCreateFailures int64
}

// Snapshot takes an instantaneous (not atomic-across-fields) read of every
// counter.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		EventsWritten:     s.eventsWritten.Load(),
		BytesWritten:      s.bytesWritten.Load(),
		Flushes:           s.flushes.Load(),
		Rotations:         s.rotations.Load(),
		FileNumber:        s.fileNumber.Load(),
		EncodeErrors:      s.encodeErrors.Load(),
		IOErrors:          s.ioErrors.Load(),
		DirCreateFailures: s.dirCreateFailures.Load(),
	}
}
