package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCollector_ObserveUpdatesGauges(t *testing.T) {
	c := NewCollector("run-1")

	c.Observe(Stats{QueueLen: 5, QueueBytes: 1024, FileNumber: 3}, Stats{})

	body := scrape(t, c)
	if !strings.Contains(body, `netlog_queue_length{run_id="run-1"} 5`) {
		t.Errorf("expected queue length gauge in output:\n%s", body)
	}
	if !strings.Contains(body, `netlog_queue_bytes{run_id="run-1"} 1024`) {
		t.Errorf("expected queue bytes gauge in output:\n%s", body)
	}
	if !strings.Contains(body, `netlog_file_number{run_id="run-1"} 3`) {
		t.Errorf("expected file number gauge in output:\n%s", body)
	}
}

func TestCollector_ObserveAdvancesCountersByDelta(t *testing.T) {
	c := NewCollector("run-2")

	prev := Stats{EventsWritten: 10, BytesWritten: 100, Flushes: 1, Rotations: 0, QueueDropped: 0}
	next := Stats{EventsWritten: 25, BytesWritten: 400, Flushes: 3, Rotations: 1, QueueDropped: 2}
	c.Observe(next, prev)

	body := scrape(t, c)
	if !strings.Contains(body, `netlog_events_written_total{run_id="run-2"} 15`) {
		t.Errorf("expected events written delta of 15:\n%s", body)
	}
	if !strings.Contains(body, `netlog_bytes_written_total{run_id="run-2"} 300`) {
		t.Errorf("expected bytes written delta of 300:\n%s", body)
	}
	if !strings.Contains(body, `netlog_flushes_total{run_id="run-2"} 2`) {
		t.Errorf("expected flushes delta of 2:\n%s", body)
	}
	if !strings.Contains(body, `netlog_rotations_total{run_id="run-2"} 1`) {
		t.Errorf("expected rotations delta of 1:\n%s", body)
	}
	if !strings.Contains(body, `netlog_queue_dropped_total{run_id="run-2"} 2`) {
		t.Errorf("expected dropped delta of 2:\n%s", body)
	}
}

func TestCollector_ObserveAdvancesFailureCountersByDelta(t *testing.T) {
	c := NewCollector("run-failures")

	prev := Stats{EncodeErrors: 2, IOErrors: 1, DirCreateFailures: 0}
	next := Stats{EncodeErrors: 5, IOErrors: 4, DirCreateFailures: 1}
	c.Observe(next, prev)

	body := scrape(t, c)
	if !strings.Contains(body, `netlog_encode_errors_total{run_id="run-failures"} 3`) {
		t.Errorf("expected encode errors delta of 3:\n%s", body)
	}
	if !strings.Contains(body, `netlog_io_errors_total{run_id="run-failures"} 3`) {
		t.Errorf("expected io errors delta of 3:\n%s", body)
	}
	if !strings.Contains(body, `netlog_dir_create_failures_total{run_id="run-failures"} 1`) {
		t.Errorf("expected dir create failures delta of 1:\n%s", body)
	}
}

func TestCollector_ObserveAccumulatesAcrossCalls(t *testing.T) {
	c := NewCollector("run-3")

	s0 := Stats{}
	s1 := Stats{EventsWritten: 10}
	s2 := Stats{EventsWritten: 18}
	c.Observe(s1, s0)
	c.Observe(s2, s1)

	body := scrape(t, c)
	if !strings.Contains(body, `netlog_events_written_total{run_id="run-3"} 18`) {
		t.Errorf("expected cumulative total of 18 across two Observe calls:\n%s", body)
	}
}

func TestCollector_DistinctRegistriesDoNotCollide(t *testing.T) {
	a := NewCollector("run-a")
	b := NewCollector("run-b")

	a.Observe(Stats{QueueLen: 1}, Stats{})
	b.Observe(Stats{QueueLen: 2}, Stats{})

	bodyA := scrape(t, a)
	bodyB := scrape(t, b)

	if !strings.Contains(bodyA, `run_id="run-a"`) || strings.Contains(bodyA, `run_id="run-b"`) {
		t.Errorf("collector a's registry leaked run-b's series:\n%s", bodyA)
	}
	if !strings.Contains(bodyB, `run_id="run-b"`) || strings.Contains(bodyB, `run_id="run-a"`) {
		t.Errorf("collector b's registry leaked run-a's series:\n%s", bodyB)
	}
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	return rec.Body.String()
}
