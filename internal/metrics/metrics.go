// Package metrics provides Prometheus metrics for the pipeline jobs, scrapers and betting engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics collects and exposes pipeline Prometheus metrics.
type PipelineMetrics struct {
	registry *prometheus.Registry

	JobRuns         *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
	ScrapeRequests  *prometheus.CounterVec
	RecordsImported *prometheus.CounterVec
	OddsTicksStored prometheus.Counter
	BetTransitions  *prometheus.CounterVec
	FundBalance     *prometheus.GaugeVec
}

// Default is the process-wide collector set.
var Default = New()

// New creates a metrics set on its own registry.
func New() *PipelineMetrics {
	pm := &PipelineMetrics{
		registry: prometheus.NewRegistry(),

		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kyotei_job_runs_total",
				Help: "Job runs by outcome (ok, failed, skipped_window, coalesced)",
			},
			[]string{"job", "outcome"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kyotei_job_duration_seconds",
				Help:    "Wall time of completed job runs",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27min
			},
			[]string{"job"},
		),
		ScrapeRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kyotei_scrape_requests_total",
				Help: "Live site and archive requests by page and outcome",
			},
			[]string{"page", "outcome"},
		),
		RecordsImported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kyotei_records_imported_total",
				Help: "Rows written by the importers",
			},
			[]string{"kind"},
		),
		OddsTicksStored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kyotei_odds_ticks_stored_total",
				Help: "Odds samples appended",
			},
		),
		BetTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kyotei_bet_transitions_total",
				Help: "Virtual bet transitions by strategy and target status",
			},
			[]string{"strategy", "status"},
		),
		FundBalance: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kyotei_fund_balance_yen",
				Help: "Current virtual bankroll per strategy",
			},
			[]string{"strategy"},
		),
	}

	pm.registry.MustRegister(
		pm.JobRuns,
		pm.JobDuration,
		pm.ScrapeRequests,
		pm.RecordsImported,
		pm.OddsTicksStored,
		pm.BetTransitions,
		pm.FundBalance,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return pm
}

// Registry returns the underlying registry.
func (pm *PipelineMetrics) Registry() *prometheus.Registry {
	return pm.registry
}

// Handler serves the registry in the Prometheus text format.
func (pm *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// RecordJob records one job run.
func (pm *PipelineMetrics) RecordJob(job, outcome string, durationSec float64) {
	pm.JobRuns.WithLabelValues(job, outcome).Inc()
	if outcome == "ok" || outcome == "failed" {
		pm.JobDuration.WithLabelValues(job).Observe(durationSec)
	}
}

// RecordScrape records one upstream request.
func (pm *PipelineMetrics) RecordScrape(page, outcome string) {
	pm.ScrapeRequests.WithLabelValues(page, outcome).Inc()
}

// RecordImport adds imported rows of a kind.
func (pm *PipelineMetrics) RecordImport(kind string, n int) {
	pm.RecordsImported.WithLabelValues(kind).Add(float64(n))
}

// RecordOddsTicks adds stored odds samples.
func (pm *PipelineMetrics) RecordOddsTicks(n int) {
	pm.OddsTicksStored.Add(float64(n))
}

// RecordBetTransition counts a lifecycle transition.
func (pm *PipelineMetrics) RecordBetTransition(strategy, status string) {
	pm.BetTransitions.WithLabelValues(strategy, status).Inc()
}

// UpdateFund publishes the bankroll of a strategy.
func (pm *PipelineMetrics) UpdateFund(strategy string, balance int64) {
	pm.FundBalance.WithLabelValues(strategy).Set(float64(balance))
}
