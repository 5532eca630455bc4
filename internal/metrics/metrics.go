// Package metrics exposes pipeline progress counters via Prometheus.
// The original operator feedback for long runs was a progress bar; a
// scrapeable endpoint serves the same purpose without a terminal.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the pipeline's Prometheus instruments.
type Collector struct {
	VehiclesProcessed prometheus.Counter
	VehiclesSkipped   prometheus.Counter
	VehiclesFailed    prometheus.Counter
	TripsMatched      prometheus.Counter
	TripsFailed       prometheus.Counter
	OracleDuration    prometheus.Histogram
	OutOfRasterPoints prometheus.Counter

	registry *prometheus.Registry
}

// NewCollector creates and registers the pipeline instruments on a
// fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		VehiclesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cvts_vehicles_processed_total",
			Help: "Vehicles fully processed in this run.",
		}),
		VehiclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cvts_vehicles_skipped_total",
			Help: "Vehicles skipped because their artifacts already existed.",
		}),
		VehiclesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cvts_vehicles_failed_total",
			Help: "Vehicles aborted by IO or sink failures.",
		}),
		TripsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cvts_trips_matched_total",
			Help: "Trips the matching oracle handled successfully.",
		}),
		TripsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cvts_trips_failed_total",
			Help: "Trips recorded as failures.",
		}),
		OracleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cvts_oracle_call_seconds",
			Help:    "Duration of matching oracle invocations.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		OutOfRasterPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cvts_raster_points_dropped_total",
			Help: "Stop points outside the raster bounding box.",
		}),
		registry: reg,
	}
	reg.MustRegister(
		c.VehiclesProcessed, c.VehiclesSkipped, c.VehiclesFailed,
		c.TripsMatched, c.TripsFailed, c.OracleDuration, c.OutOfRasterPoints,
	)
	return c
}

// Handler returns the scrape handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
