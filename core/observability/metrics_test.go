package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	m.FrameCaptured()
	m.Rendered(10)
	m.Interrupted(time.Second)
	m.Cancelled()
	m.DeltaDropped("conflicting_role")
	m.ItemCompleted("user")
	m.ClipExported(nil)
	m.StateChanged("idle")
	m.WireEvent("local", "response.create")
}

func TestMetricsCount(t *testing.T) {
	m := NewMetrics("test", nil)

	m.Rendered(3072)
	m.Rendered(0)
	m.Interrupted(128 * time.Millisecond)
	m.DeltaDropped("conflicting_role")
	m.DeltaDropped("conflicting_role")
	m.ClipExported(errors.New("disk full"))

	if got := testutil.ToFloat64(m.SamplesRendered); got != 3072 {
		t.Fatalf("expected 3072 rendered samples, got %v", got)
	}
	if got := testutil.ToFloat64(m.Interruptions); got != 1 {
		t.Fatalf("expected 1 interruption, got %v", got)
	}
	if got := testutil.ToFloat64(m.DroppedDeltas.WithLabelValues("conflicting_role")); got != 2 {
		t.Fatalf("expected 2 dropped deltas, got %v", got)
	}
	if got := testutil.ToFloat64(m.ExportedClips.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed export, got %v", got)
	}
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	m := NewMetrics("test", nil)
	m.Cancelled()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "test_cancellations_total 1") {
		t.Fatalf("expected cancellation counter in output, got %s", rec.Body.String())
	}
}
