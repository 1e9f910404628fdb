package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() Run {
	return Run{
		State:          "done",
		Duration:       1500 * time.Millisecond,
		Fetched:        12,
		UniqueArticles: 10,
		Cached:         6,
		Generated:      3,
		Fallback:       1,
		Persisted:      10,
		Removed:        2,
		Errors:         0,
	}
}

func TestObserveDoneRun(t *testing.T) {
	m := New("", "newssync")
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.Observe(sampleRun(), finished)

	assert.InDelta(t, 12, testutil.ToFloat64(m.articles.WithLabelValues("fetched")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.articles.WithLabelValues("generated")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.removed), 0)
	assert.InDelta(t, 1.5, testutil.ToFloat64(m.duration), 0.001)
	assert.InDelta(t, float64(finished.Unix()), testutil.ToFloat64(m.lastSuccess), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runsTotal.WithLabelValues("done")), 0)
}

func TestObserveFailedRunKeepsLastSuccess(t *testing.T) {
	m := New("", "newssync")
	m.Observe(Run{State: "failed", Duration: time.Second}, time.Now())

	assert.InDelta(t, 1, testutil.ToFloat64(m.runsTotal.WithLabelValues("failed")), 0)
	assert.Zero(t, testutil.ToFloat64(m.lastSuccess))
	assert.Zero(t, testutil.ToFloat64(m.removed))
}

func TestPushDisabled(t *testing.T) {
	m := New("", "newssync")
	assert.False(t, m.Enabled())
	assert.NoError(t, m.Push(context.Background()))
}

func TestPushSendsRegistry(t *testing.T) {
	var method, path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New(srv.URL, "newssync")
	m.Observe(sampleRun(), time.Now())
	require.NoError(t, m.Push(context.Background()))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/newssync", path)
	assert.NotEmpty(t, body)
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := New(srv.URL, "newssync")
	err := m.Push(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pushing metrics")
}
