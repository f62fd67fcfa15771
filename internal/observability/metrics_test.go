package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/dshills/delegate/internal/agent"
)

func newMetrics(t *testing.T) *Metrics {
	t.Helper()
	m, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Error("second NewMetrics() on same registry error = nil")
	}
}

func TestMetrics_Recorder(t *testing.T) {
	m := newMetrics(t)

	m.TaskAdmitted()
	m.TaskAdmitted()
	m.TaskRejected(agent.CodeConcurrencyLimit)
	m.TaskStarted(2)
	m.TaskFinished(agent.StatusCompleted, 1500*time.Millisecond, 1)

	if got := testutil.ToFloat64(m.admitted); got != 2 {
		t.Errorf("admitted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues(string(agent.CodeConcurrencyLimit))); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.finished.WithLabelValues("completed")); got != 1 {
		t.Errorf("finished = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.running); got != 1 {
		t.Errorf("running = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestMetrics_WithOrchestrator(t *testing.T) {
	m := newMetrics(t)
	orch := agent.New(
		agent.WithRecorder(m),
		agent.WithMaxConcurrent(1),
		agent.WithExecutor(agent.ExecutorFunc(func(context.Context, agent.Task) (string, error) {
			return "ok", nil
		})),
	)

	if _, err := orch.Spawn(context.Background(), agent.SpawnRequest{Instructions: "a"}); err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	orch.Spawn(context.Background(), agent.SpawnRequest{Instructions: " "})

	expected := `
# HELP delegate_tasks_finished_total Tasks that left the running state.
# TYPE delegate_tasks_finished_total counter
delegate_tasks_finished_total{status="completed"} 1
`
	if err := testutil.CollectAndCompare(m.finished, strings.NewReader(expected)); err != nil {
		t.Errorf("finished metrics mismatch: %v", err)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues(string(agent.CodeInvalidInstructions))); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.running); got != 0 {
		t.Errorf("running = %v, want 0", got)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newMetrics(t)
	var logs bytes.Buffer

	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&logs)), RequestMetrics(m))
	r.GET("/tasks/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks/abc", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/tasks/:id", "404")); got != 1 {
		t.Errorf("requests{/tasks/:id} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("requests{unmatched} = %v, want 1", got)
	}
	if !strings.Contains(logs.String(), `"level":"warn"`) {
		t.Errorf("log = %q, want warn level for 404", logs.String())
	}
}
