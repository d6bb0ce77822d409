package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once              sync.Once
	batchDuration     prom.Histogram
	batchOutcome      *prom.CounterVec
	unitOutcome       *prom.CounterVec
	staleResponses    prom.Counter
	inFlight          prom.Gauge
	liveClients       prom.Gauge
	trackedIdentities prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.batchDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "bunnybuild",
			Name:      "batch_duration_seconds",
			Help:      "Total duration of plugin build batches",
			Buckets:   prom.DefBuckets,
		})
		pr.batchOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bunnybuild",
			Name:      "batch_outcomes_total",
			Help:      "Batch outcomes by final status",
		}, []string{"outcome"})
		pr.unitOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bunnybuild",
			Name:      "unit_outcomes_total",
			Help:      "Per-plugin build results",
		}, []string{"outcome"})
		pr.staleResponses = prom.NewCounter(prom.CounterOpts{
			Namespace: "bunnybuild",
			Name:      "stale_responses_total",
			Help:      "Worker responses dropped because their epoch was superseded",
		})
		pr.inFlight = prom.NewGauge(prom.GaugeOpts{
			Namespace: "bunnybuild",
			Name:      "dispatch_in_flight",
			Help:      "Build requests dispatched to workers and not yet resolved",
		})
		pr.liveClients = prom.NewGauge(prom.GaugeOpts{
			Namespace: "bunnybuild",
			Name:      "devsync_live_clients",
			Help:      "Currently connected dev-sync clients",
		})
		pr.trackedIdentities = prom.NewGauge(prom.GaugeOpts{
			Namespace: "bunnybuild",
			Name:      "devsync_tracked_identities",
			Help:      "Identities with a dedicated catch-up set",
		})
		reg.MustRegister(pr.batchDuration, pr.batchOutcome, pr.unitOutcome,
			pr.staleResponses, pr.inFlight, pr.liveClients, pr.trackedIdentities)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveBatchDuration(d time.Duration) {
	if p == nil || p.batchDuration == nil {
		return
	}
	p.batchDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBatchOutcome(outcome string) {
	if p == nil || p.batchOutcome == nil {
		return
	}
	p.batchOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncUnitOutcome(outcome UnitOutcome) {
	if p == nil || p.unitOutcome == nil {
		return
	}
	p.unitOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncStaleResponse() {
	if p == nil || p.staleResponses == nil {
		return
	}
	p.staleResponses.Inc()
}

func (p *PrometheusRecorder) SetInFlight(n int) {
	if p == nil || p.inFlight == nil {
		return
	}
	p.inFlight.Set(float64(n))
}

func (p *PrometheusRecorder) SetLiveClients(n int) {
	if p == nil || p.liveClients == nil {
		return
	}
	p.liveClients.Set(float64(n))
}

func (p *PrometheusRecorder) SetTrackedIdentities(n int) {
	if p == nil || p.trackedIdentities == nil {
		return
	}
	p.trackedIdentities.Set(float64(n))
}
