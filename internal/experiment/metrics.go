package experiment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lens_captures_total",
		Help: "Total number of problem texts run through the extractor",
	}, []string{"input_type"})

	captureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lens_capture_duration_seconds",
		Help:    "Time spent extracting attention for one problem text",
		Buckets: prometheus.DefBuckets,
	})

	recordsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lens_records_saved_total",
		Help: "Total number of per-layer analysis records written",
	})

	plotsRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lens_plots_rendered_total",
		Help: "Total number of plots written",
	}, []string{"kind"})
)
