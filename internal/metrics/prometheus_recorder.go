package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "sitegen"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	phaseDuration   *prom.HistogramVec
	passDuration    prom.Histogram
	passOutcomes    *prom.CounterVec
	pages           *prom.CounterVec
	templates       prom.Gauge
	rebuildRequests *prom.CounterVec
	reloads         *prom.CounterVec
	reloadClients   *prom.GaugeVec
}

// NewPrometheusRecorder constructs metrics and registers them with reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		phaseDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of generation pass phases",
			Buckets:   prom.DefBuckets,
		}, []string{"phase"}),
		passDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Total generation pass duration",
			Buckets:   prom.DefBuckets,
		}),
		passOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pass_outcomes_total",
			Help:      "Generation passes by final status",
		}, []string{"outcome"}),
		pages: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Visited page files by result",
		}, []string{"result"}),
		templates: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "templates",
			Help:      "Templates compiled in the last pass",
		}),
		rebuildRequests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "rebuild_requests_total",
			Help:      "Rebuild requests by trigger reason",
		}, []string{"reason"}),
		reloads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "reload_broadcasts_total",
			Help:      "Reload notifications sent by transport",
		}, []string{"transport"}),
		reloadClients: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "reload_clients",
			Help:      "Connected live-reload clients by transport",
		}, []string{"transport"}),
	}
	reg.MustRegister(pr.phaseDuration, pr.passDuration, pr.passOutcomes, pr.pages,
		pr.templates, pr.rebuildRequests, pr.reloads, pr.reloadClients)
	return pr
}

func (p *PrometheusRecorder) ObservePhaseDuration(phase string, d time.Duration) {
	if p == nil {
		return
	}
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObservePassDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.passDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPassOutcome(outcome PassOutcome) {
	if p == nil {
		return
	}
	p.passOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) AddPages(result string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.pages.WithLabelValues(result).Add(float64(n))
}

func (p *PrometheusRecorder) SetTemplates(n int) {
	if p == nil {
		return
	}
	p.templates.Set(float64(n))
}

func (p *PrometheusRecorder) IncRebuildRequest(reason string) {
	if p == nil {
		return
	}
	p.rebuildRequests.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncReloadBroadcast(transport string) {
	if p == nil {
		return
	}
	p.reloads.WithLabelValues(transport).Inc()
}

func (p *PrometheusRecorder) SetReloadClients(transport string, n int) {
	if p == nil {
		return
	}
	p.reloadClients.WithLabelValues(transport).Set(float64(n))
}
