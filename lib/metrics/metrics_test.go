package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_counter_total", "test counter")
	if c.Value() != 0 {
		t.Errorf("new counter = %d, want 0", c.Value())
	}
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("counter = %d, want 5", c.Value())
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "test gauge")
	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 9 {
		t.Errorf("gauge = %d, want 9", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("test_hist_seconds", "test histogram", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(100)

	out := h.prometheus()
	for _, want := range []string{
		`test_hist_seconds_bucket{le="0.1"} 1`,
		`test_hist_seconds_bucket{le="1"} 2`,
		`test_hist_seconds_bucket{le="10"} 2`,
		`test_hist_seconds_bucket{le="+Inf"} 3`,
		"test_hist_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q:\n%s", want, out)
		}
	}
}

func TestExpose(t *testing.T) {
	c := NewCounter("test_expose_total", "exposed counter")
	c.Inc()

	out := defaultRegistry.Expose()
	if !strings.Contains(out, "# TYPE test_expose_total counter") {
		t.Error("exposition missing TYPE line")
	}
	if !strings.Contains(out, "test_expose_total 1") {
		t.Error("exposition missing counter value")
	}
}

func TestHandler(t *testing.T) {
	NewGauge("test_handler_gauge", "handler gauge").Set(7)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "test_handler_gauge 7") {
		t.Error("handler response missing gauge value")
	}
}
