// Package metrics exposes the prometheus collectors shared by the services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ZonesStored = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zonewatch_zones_stored",
		Help: "Number of zones in the current store snapshot",
	})
	ZonesRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zonewatch_zones_rejected_total",
		Help: "Zone records dropped during ingestion because they failed validation",
	})
	SyncTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zonewatch_sync_total",
		Help: "Dataset sync attempts by source and result",
	}, []string{"source", "result"})
	SyncPagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zonewatch_sync_pages_total",
		Help: "Dataset pages requested from the remote provider",
	})
	SyncDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "zonewatch_sync_duration_ms",
		Help:    "Dataset sync duration in milliseconds",
		Buckets: []float64{5, 50, 250, 1000, 5000, 15000, 60000},
	})
	FixesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zonewatch_position_fixes_total",
		Help: "Position fixes evaluated by the proximity engine",
	})
	TransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zonewatch_zone_transitions_total",
		Help: "Zone enter/exit transitions",
	}, []string{"kind"})
	VisitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zonewatch_visits_total",
		Help: "Visit report submissions by outcome",
	}, []string{"outcome"})
	VisitDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "zonewatch_visit_submit_duration_ms",
		Help:    "Visit report submission duration in milliseconds",
		Buckets: []float64{5, 20, 50, 100, 250, 500, 1000, 5000},
	})
	ClusterDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "zonewatch_cluster_duration_ms",
		Help:    "Cluster computation duration in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
	})
	EventSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zonewatch_event_subscribers",
		Help: "Active zone event stream subscribers",
	})
)

func init() {
	prometheus.MustRegister(ZonesStored)
	prometheus.MustRegister(ZonesRejectedTotal)
	prometheus.MustRegister(SyncTotal)
	prometheus.MustRegister(SyncPagesTotal)
	prometheus.MustRegister(SyncDurationMs)
	prometheus.MustRegister(FixesTotal)
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(VisitsTotal)
	prometheus.MustRegister(VisitDurationMs)
	prometheus.MustRegister(ClusterDurationMs)
	prometheus.MustRegister(EventSubscribers)
}

// Handler serves the registered collectors for scraping
func Handler() http.Handler { return promhttp.Handler() }
