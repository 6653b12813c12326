// Package metrics exposes Prometheus collectors for profiling runs. A nil
// *Recorder is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "profiler"

// Recorder owns the collectors and the registry they live in.
type Recorder struct {
	registry *prometheus.Registry

	rounds             *prometheus.HistogramVec
	completeness       *prometheus.HistogramVec
	status             *prometheus.CounterVec
	extractionFailures *prometheus.CounterVec
	searchExhausted    *prometheus.CounterVec
	persistence        *prometheus.CounterVec
	tokens             *prometheus.CounterVec
}

// New creates a Recorder with a private registry that also carries the Go
// and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		rounds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_rounds",
			Help:      "Rounds used per phase run.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6},
		}, []string{"phase"}),
		completeness: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_completeness_percent",
			Help:      "Completeness percentage of the profile each phase returned.",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 75, 85, 95, 100},
		}, []string{"phase"}),
		status: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_status_total",
			Help:      "Phase runs by final completeness status.",
		}, []string{"phase", "status"}),
		extractionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Rounds whose extraction call failed.",
		}, []string{"phase", "reason"}),
		searchExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_exhausted_total",
			Help:      "Rounds in which every search query failed.",
		}, []string{"phase"}),
		persistence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_total",
			Help:      "Merged record writes by outcome.",
		}, []string{"outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "LLM tokens consumed by extraction.",
		}, []string{"phase", "direction"}),
	}
	reg.MustRegister(
		r.rounds, r.completeness, r.status, r.extractionFailures,
		r.searchExhausted, r.persistence, r.tokens,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry the collectors are registered in.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// PhaseFinished records the outcome of one phase run.
func (r *Recorder) PhaseFinished(phase, status string, rounds int, percentage float64) {
	if r == nil {
		return
	}
	r.rounds.WithLabelValues(phase).Observe(float64(rounds))
	r.completeness.WithLabelValues(phase).Observe(percentage)
	r.status.WithLabelValues(phase, status).Inc()
}

// ExtractionFailed counts a failed extraction round.
func (r *Recorder) ExtractionFailed(phase, reason string) {
	if r == nil {
		return
	}
	r.extractionFailures.WithLabelValues(phase, reason).Inc()
}

// SearchExhausted counts a round with no usable search result.
func (r *Recorder) SearchExhausted(phase string) {
	if r == nil {
		return
	}
	r.searchExhausted.WithLabelValues(phase).Inc()
}

// Persisted counts a merged record write.
func (r *Recorder) Persisted(err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.persistence.WithLabelValues(outcome).Inc()
}

// Tokens adds LLM token usage for a phase.
func (r *Recorder) Tokens(phase string, input, output int) {
	if r == nil {
		return
	}
	r.tokens.WithLabelValues(phase, "input").Add(float64(input))
	r.tokens.WithLabelValues(phase, "output").Add(float64(output))
}
