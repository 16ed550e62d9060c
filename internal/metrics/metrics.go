// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlRunsTotal          *prometheus.CounterVec
	articlesIngestedTotal   prometheus.Counter
	entriesSkippedTotal     *prometheus.CounterVec
	notificationsTotal      *prometheus.CounterVec
	activeCrawls            prometheus.Gauge
	tickDurationSeconds     prometheus.Histogram
	triggerRefusalsTotal    *prometheus.CounterVec
	enrichmentFailuresTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedwatch_crawl_runs_total",
				Help: "Total crawl runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		articlesIngestedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "feedwatch_articles_ingested_total",
				Help: "Total new articles persisted.",
			},
		)
		entriesSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedwatch_entries_skipped_total",
				Help: "Feed entries not ingested, labeled by reason.",
			},
			[]string{"reason"},
		)
		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedwatch_notifications_total",
				Help: "Push delivery attempts, labeled by result.",
			},
			[]string{"result"},
		)
		activeCrawls = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "feedwatch_active_crawls",
				Help: "Crawl runs currently in flight.",
			},
		)
		tickDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "feedwatch_tick_duration_seconds",
				Help:    "Histogram of dispatcher tick evaluation latencies.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)
		triggerRefusalsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedwatch_trigger_refusals_total",
				Help: "Manual trigger refusals, labeled by reason.",
			},
			[]string{"reason"},
		)
		enrichmentFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "feedwatch_enrichment_failures_total",
				Help: "Entries persisted with raw content after enrichment failed.",
			},
		)
	})
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records a finished crawl run.
func ObserveRun(outcome string) {
	if crawlRunsTotal != nil {
		crawlRunsTotal.WithLabelValues(outcome).Inc()
	}
}

// AddArticlesIngested counts persisted articles.
func AddArticlesIngested(n int) {
	if articlesIngestedTotal != nil && n > 0 {
		articlesIngestedTotal.Add(float64(n))
	}
}

// AddEntriesSkipped counts entries dropped before persistence.
func AddEntriesSkipped(reason string, n int) {
	if entriesSkippedTotal != nil && n > 0 {
		entriesSkippedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveNotification records one delivery attempt.
func ObserveNotification(result string) {
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(result).Inc()
	}
}

// CrawlStarted increments the in-flight gauge.
func CrawlStarted() {
	if activeCrawls != nil {
		activeCrawls.Inc()
	}
}

// CrawlFinished decrements the in-flight gauge.
func CrawlFinished() {
	if activeCrawls != nil {
		activeCrawls.Dec()
	}
}

// ObserveTick records how long one dispatcher tick took.
func ObserveTick(d time.Duration) {
	if tickDurationSeconds != nil {
		tickDurationSeconds.Observe(d.Seconds())
	}
}

// ObserveTriggerRefusal counts a refused manual trigger.
func ObserveTriggerRefusal(reason string) {
	if triggerRefusalsTotal != nil {
		triggerRefusalsTotal.WithLabelValues(reason).Inc()
	}
}

// ObserveEnrichmentFailure counts an entry that fell back to raw content.
func ObserveEnrichmentFailure() {
	if enrichmentFailuresTotal != nil {
		enrichmentFailuresTotal.Inc()
	}
}
