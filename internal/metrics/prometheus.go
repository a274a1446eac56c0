package metrics

import (
	"context"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PrometheusRecorder implements Recorder on a private registry so a single
// run can push exactly its own series.
type PrometheusRecorder struct {
	reg *prom.Registry

	fetchTotal    *prom.CounterVec
	fetchDuration prom.Histogram
	changedTotal  prom.Counter
	runDuration   prom.Gauge
	lastSuccess   prom.Gauge
	lastRunOK     prom.Gauge
}

// NewPrometheusRecorder constructs and registers the urlwatch metrics on reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		fetchTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "urlwatch",
			Name:      "fetch_total",
			Help:      "Resource fetches by result",
		}, []string{"result"}),
		fetchDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "urlwatch",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of individual resource fetches",
			Buckets:   prom.DefBuckets,
		}),
		changedTotal: prom.NewCounter(prom.CounterOpts{
			Namespace: "urlwatch",
			Name:      "changed_total",
			Help:      "Resources detected as changed",
		}),
		runDuration: prom.NewGauge(prom.GaugeOpts{
			Namespace: "urlwatch",
			Name:      "run_duration_seconds",
			Help:      "Duration of the last run",
		}),
		lastSuccess: prom.NewGauge(prom.GaugeOpts{
			Namespace: "urlwatch",
			Name:      "last_run_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
		lastRunOK: prom.NewGauge(prom.GaugeOpts{
			Namespace: "urlwatch",
			Name:      "last_run_ok",
			Help:      "1 if the last run completed, 0 if it failed",
		}),
	}
	reg.MustRegister(pr.fetchTotal, pr.fetchDuration, pr.changedTotal, pr.runDuration, pr.lastSuccess, pr.lastRunOK)
	return pr
}

// Registry exposes the underlying registry (tests, custom gatherers).
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) ObserveFetch(d time.Duration, ok bool) {
	res := ResultSuccess
	if !ok {
		res = ResultSoft
	}
	p.fetchTotal.WithLabelValues(res).Inc()
	p.fetchDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncChanged() { p.changedTotal.Inc() }

func (p *PrometheusRecorder) ObserveRun(d time.Duration, success bool) {
	p.runDuration.Set(d.Seconds())
	if success {
		p.lastRunOK.Set(1)
		p.lastSuccess.SetToCurrentTime()
		return
	}
	p.lastRunOK.Set(0)
}

// Push sends the registry to a Prometheus push gateway under job.
func (p *PrometheusRecorder) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(p.reg).PushContext(ctx)
}
