package observer_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/netlog/observer"
	"github.com/pithecene-io/netlog/types"
)

func jsonEncoder() types.Encoder {
	return types.EncoderFunc(func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	})
}

// fakeBus is a minimal observer.Bus: Subscribe just records the handler so
// the test can drive events directly; a second Subscribe replaces the first
// handler.
type fakeBus struct {
	mu      sync.Mutex
	handler func(types.Entry)
}

func (b *fakeBus) Subscribe(mode types.CaptureMode, handler func(types.Entry)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handler = nil
	}, nil
}

func (b *fakeBus) emit(v any) {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h != nil {
		h(types.EntryFunc(func() any { return v }))
	}
}

func TestObserver_EndToEnd_UnboundedStop(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "netlog.json")

	o := observer.New(observer.Config{
		FinalLogPath: final,
		MaxTotalSize: observer.Unbounded,
		Constants:    map[string]any{},
		Encoder:      jsonEncoder(),
	})

	bus := &fakeBus{}
	if err := o.StartObserving(bus, types.CaptureModeDefault); err != nil {
		t.Fatalf("StartObserving: %v", err)
	}

	for i := 0; i < 5; i++ {
		bus.emit(map[string]any{"i": i})
	}

	done := make(chan struct{})
	o.StopObserving(nil, func() { close(done) })
	<-done
	o.Close()

	b, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("reading final file: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(b, &parsed); err != nil {
		t.Fatalf("final file is not valid JSON: %v\n%s", err, b)
	}
	events, ok := parsed["events"].([]any)
	if !ok || len(events) != 5 {
		t.Fatalf("expected 5 events, got %#v", parsed["events"])
	}
}

func TestObserver_FlushThresholdPostsExactlyOnEdge(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "netlog.json")

	o := observer.New(observer.Config{
		FinalLogPath:   final,
		MaxTotalSize:   observer.Unbounded,
		FlushThreshold: 3,
		Constants:      map[string]any{},
		Encoder:        jsonEncoder(),
	})

	bus := &fakeBus{}
	o.StartObserving(bus, types.CaptureModeDefault)

	for i := 0; i < 3; i++ {
		bus.emit(map[string]any{"i": i})
	}

	// The third push reaches the threshold, so a drain task must run before
	// StopObserving posts anything.
	deadline := time.Now().Add(2 * time.Second)
	for o.Stats().Flushes == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := o.Stats().Flushes; got != 1 {
		t.Errorf("expected exactly one threshold-triggered flush before stop, got %d", got)
	}

	done := make(chan struct{})
	o.StopObserving(nil, func() { close(done) })
	<-done
	o.Close()

	snap := o.Stats()
	if snap.Flushes == 0 {
		t.Errorf("expected at least one flush to have been triggered by the threshold edge")
	}
}

func TestObserver_CloseWithoutStop_RemovesArtifacts(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "netlog.json")

	o := observer.New(observer.Config{
		FinalLogPath: final,
		MaxTotalSize: 1000,
		ChunkCount:   4,
		Constants:    map[string]any{},
		Encoder:      jsonEncoder(),
	})

	bus := &fakeBus{}
	o.StartObserving(bus, types.CaptureModeDefault)
	for i := 0; i < 5; i++ {
		bus.emit(map[string]any{"i": i})
	}

	o.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no artifacts after Close without StopObserving, found %v", entries)
	}
}

func TestObserver_CloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "netlog.json")

	o := observer.New(observer.Config{
		FinalLogPath: final,
		MaxTotalSize: observer.Unbounded,
		Constants:    map[string]any{},
		Encoder:      jsonEncoder(),
	})
	o.Close()
	o.Close() // must not panic or double-close the executor
}

func TestObserver_ConcurrentProducers(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "netlog.json")

	o := observer.New(observer.Config{
		FinalLogPath:   final,
		MaxTotalSize:   observer.Unbounded,
		FlushThreshold: 10,
		Constants:      map[string]any{},
		Encoder:        jsonEncoder(),
	})

	bus := &fakeBus{}
	o.StartObserving(bus, types.CaptureModeDefault)

	var wg sync.WaitGroup
	producers, perProducer := 8, 25
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				bus.emit(map[string]any{"p": id, "i": i})
			}
		}(p)
	}
	wg.Wait()

	done := make(chan struct{})
	o.StopObserving(nil, func() { close(done) })
	<-done
	o.Close()

	b, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("reading final file: %v", err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(b, &parsed); err != nil {
		t.Fatalf("final file is not valid JSON: %v", err)
	}
	events, ok := parsed["events"].([]any)
	if !ok || len(events) != producers*perProducer {
		t.Fatalf("expected %d events, got %d", producers*perProducer, len(events))
	}
}

func TestObserver_EncodeFailureDropsOnlyThatEvent(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "netlog.json")

	encoder := types.EncoderFunc(func(v any) (string, error) {
		if m, ok := v.(map[string]any); ok && m["bad"] == true {
			return "", fmt.Errorf("boom")
		}
		b, err := json.Marshal(v)
		return string(b), err
	})

	o := observer.New(observer.Config{
		FinalLogPath: final,
		MaxTotalSize: observer.Unbounded,
		Constants:    map[string]any{},
		Encoder:      encoder,
	})

	bus := &fakeBus{}
	o.StartObserving(bus, types.CaptureModeDefault)
	bus.emit(map[string]any{"ok": 1})
	bus.emit(map[string]any{"bad": true})
	bus.emit(map[string]any{"ok": 2})

	done := make(chan struct{})
	o.StopObserving(nil, func() { close(done) })
	<-done
	o.Close()

	b, _ := os.ReadFile(final)
	var parsed map[string]any
	if err := json.Unmarshal(b, &parsed); err != nil {
		t.Fatalf("final file is not valid JSON: %v", err)
	}
	events := parsed["events"].([]any)
	if len(events) != 2 {
		t.Fatalf("expected the undecodable event to be dropped and the other two kept, got %d events", len(events))
	}
}
