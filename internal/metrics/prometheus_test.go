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

func TestPrometheusRecorderCounts(t *testing.T) {
	t.Parallel()
	pr := NewPrometheusRecorder(nil)
	pr.ObserveFetch(10*time.Millisecond, true)
	pr.ObserveFetch(20*time.Millisecond, false)
	pr.ObserveFetch(30*time.Millisecond, true)
	pr.IncChanged()
	pr.ObserveRun(time.Second, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(pr.fetchTotal.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.fetchTotal.WithLabelValues(ResultSoft)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.changedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.lastRunOK))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.runDuration))

	pr.ObserveRun(time.Second, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(pr.lastRunOK))

	n, err := testutil.GatherAndCount(pr.Registry(), "urlwatch_fetch_total", "urlwatch_last_run_ok")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPrometheusRecorderPush(t *testing.T) {
	t.Parallel()
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pr := NewPrometheusRecorder(nil)
	pr.IncChanged()
	require.NoError(t, pr.Push(context.Background(), srv.URL, "urlwatch"))
	assert.Equal(t, "/metrics/job/urlwatch", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveFetch(time.Second, true)
	r.IncChanged()
	r.ObserveRun(time.Second, false)
}
