package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lens_analyses_total",
		Help: "Total number of attention matrices analyzed",
	}, []string{"input_type"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lens_analysis_duration_seconds",
		Help:    "Time spent computing entropy and keyword ratio for one matrix",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	keywordsFound = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lens_keywords_located",
		Help:    "Number of keyword positions located per analyzed sequence",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
	})
)
