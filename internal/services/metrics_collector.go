package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/talentmix/talentmix/pkg/models"
)

// MetricsCollector exposes feed composition and bandit metrics to
// Prometheus.
type MetricsCollector struct {
	feedRequests    *prometheus.CounterVec
	feedLatency     *prometheus.HistogramVec
	feedSize        *prometheus.HistogramVec
	poolSizes       *prometheus.GaugeVec
	relaxations     *prometheus.CounterVec
	newContentRatio prometheus.Gauge
	banditRewards   *prometheus.GaugeVec
	banditUpdates   *prometheus.CounterVec
	snapshotReloads *prometheus.CounterVec
	reloadDuration  prometheus.Gauge
	trackedEvents   *prometheus.CounterVec
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		feedRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_requests_total",
			Help: "Total feed requests by feed type",
		}, []string{"feed_type"}),

		feedLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feed_compose_duration_seconds",
			Help:    "Feed composition latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"feed_type"}),

		feedSize: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feed_items_returned",
			Help:    "Number of items returned per feed",
			Buckets: []float64{0, 6, 12, 18, 24, 48, 100},
		}, []string{"feed_type"}),

		poolSizes: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feed_pool_size",
			Help: "Eligible candidate count per slot pool at composition start",
		}, []string{"slot"}),

		relaxations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_slot_relaxations_total",
			Help: "Slots filled only after relaxing diversity or eligibility constraints",
		}, []string{"slot"}),

		newContentRatio: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "feed_new_content_ratio",
			Help: "Share of new content in the most recent feed",
		}),

		banditRewards: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bandit_average_reward",
			Help: "Average observed reward per bandit pool",
		}, []string{"pool"}),

		banditUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bandit_updates_total",
			Help: "Reward updates applied per bandit pool",
		}, []string{"pool"}),

		snapshotReloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_reloads_total",
			Help: "Catalog snapshot reloads by outcome",
		}, []string{"outcome"}),

		reloadDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_reload_duration_seconds",
			Help: "Duration of the last successful catalog reload",
		}),

		trackedEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "activity_events_total",
			Help: "Tracked activity events by type",
		}, []string{"event_type"}),
	}
}

// ObserveFeed records one composed feed.
func (mc *MetricsCollector) ObserveFeed(feedType string, metrics *models.FeedMetrics) {
	mc.feedRequests.WithLabelValues(feedType).Inc()
	mc.feedLatency.WithLabelValues(feedType).Observe(metrics.ExecutionSeconds)
	mc.feedSize.WithLabelValues(feedType).Observe(float64(metrics.TotalItems))
	mc.newContentRatio.Set(metrics.NewContentRatio)

	for slot, size := range metrics.PoolSizes {
		mc.poolSizes.WithLabelValues(string(slot)).Set(float64(size))
	}
	for slot, count := range metrics.Relaxations {
		mc.relaxations.WithLabelValues(string(slot)).Add(float64(count))
	}
}

// ObserveReload records one snapshot reload attempt and how long it took.
func (mc *MetricsCollector) ObserveReload(start time.Time, err error) {
	if err != nil {
		mc.snapshotReloads.WithLabelValues("error").Inc()
		return
	}
	mc.snapshotReloads.WithLabelValues("success").Inc()
	mc.reloadDuration.Set(time.Since(start).Seconds())
}

// ObserveReward records one bandit update.
func (mc *MetricsCollector) ObserveReward(pool string, stats BanditStats) {
	mc.banditUpdates.WithLabelValues(pool).Inc()
	mc.banditRewards.WithLabelValues(pool).Set(stats.AverageReward)
}

// ObserveActivity records one tracked event.
func (mc *MetricsCollector) ObserveActivity(eventType string) {
	mc.trackedEvents.WithLabelValues(eventType).Inc()
}
