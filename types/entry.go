// Package types holds the small value types shared across the observer,
// queue, and file writer without introducing import cycles between them.
package types

// Entry is a single diagnostic event delivered by the event bus. The bus
// itself is an external collaborator (see observer.Bus); this is the only method
// the observer calls on it.
type Entry interface {
	// ToValue returns a JSON-serializable representation of the event.
	// Called at most once per event, on the delivering thread.
	ToValue() any
}

// EntryFunc adapts a plain function to the Entry interface, mirroring the
// stdlib http.HandlerFunc pattern for lightweight test fixtures.
type EntryFunc func() any

// ToValue implements Entry.
func (f EntryFunc) ToValue() any { return f() }

// Encoder serializes a value to a single compact JSON text: no surrounding
// whitespace, no trailing newline, no indentation. The file writer's
// stitching step seeks back exactly two bytes to drop a trailing ",\n"
// separator; a pretty-printing encoder would break that arithmetic.
type Encoder interface {
	Encode(value any) (string, error)
}

// EncoderFunc adapts a plain function to the Encoder interface.
type EncoderFunc func(value any) (string, error)

// Encode implements Encoder.
func (f EncoderFunc) Encode(value any) (string, error) { return f(value) }

// CaptureMode selects event-bus verbosity at subscription time. The bus
// interprets the value; the observer only forwards it.
type CaptureMode string

const (
	// CaptureModeDefault subscribes at the bus's baseline verbosity.
	CaptureModeDefault CaptureMode = "default"
	// CaptureModeVerbose subscribes at maximum verbosity.
	CaptureModeVerbose CaptureMode = "verbose"
)
