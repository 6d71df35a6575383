// Package notify defines the completion-notifier boundary: after Stop
// finishes, an Observer embedder may publish a best-effort notice to zero
// or more downstream sinks describing the finished run. This sits entirely
// outside the hard core; the observer never waits on it past the
// notifier's own timeout, and a notifier failure never re-triggers the
// write path.
package notify

import "context"

// CompletionEvent is the payload published when a run finishes with Stop.
type CompletionEvent struct {
	FinalLogPath string `json:"final_log_path"`
	Bytes        int64  `json:"bytes"`
	EventCount   int64  `json:"event_count"`
	DroppedCount int64  `json:"dropped_count"`
	Timestamp    string `json:"timestamp"` // RFC 3339
}

// Notifier publishes a CompletionEvent to a downstream system. Safe for
// single use per run; implementations must respect context deadlines
// rather than block indefinitely.
type Notifier interface {
	Notify(ctx context.Context, event *CompletionEvent) error
	Close() error
}

// Fanout publishes to every configured Notifier, sequentially, collecting
// failures without letting one sink's error stop delivery to the rest.
type Fanout []Notifier

// Notify delivers event to every notifier in order, returning a combined
// error if any failed. Callers that treat notification as best-effort
// (per this package's contract) should log the error, not propagate it.
func (f Fanout) Notify(ctx context.Context, event *CompletionEvent) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

// Close closes every notifier, collecting failures the same way as Notify.
func (f Fanout) Close() error {
	var errs []error
	for _, n := range f {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return fanoutError(errs)
}

type fanoutError []error

func (e fanoutError) Error() string {
	s := "notify: " + e[0].Error()
	for _, err := range e[1:] {
		s += "; " + err.Error()
	}
	return s
}
