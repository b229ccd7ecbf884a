package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveRun("file-set", "success", 2*time.Second)
	m.ObserveRun("file-set", "success", time.Second)
	m.ObserveRun("versioned-push", "failure", time.Second)
	m.SetActiveTasks(3)
	m.IncSkipped()
	m.AddRetentionDeleted(2)
	m.AddRetentionDeleted(0)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("file-set", "success")); got != 2 {
		t.Errorf("file-set success runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.activeTasks); got != 3 {
		t.Errorf("active tasks = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.skippedFirings); got != 1 {
		t.Errorf("skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.retentionDeleted); got != 2 {
		t.Errorf("retention deleted = %v, want 2", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObserveRun("file-set", "success", time.Second)
	m.SetActiveTasks(1)
	m.IncSkipped()
	m.AddRetentionDeleted(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	m.SetActiveTasks(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "snapkeep_active_tasks 4") {
		t.Errorf("body lacks active task gauge:\n%s", rec.Body.String())
	}
}
