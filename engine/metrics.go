package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	tsc "github.com/quorumkey/tsc"
)

// defines prometheus metrics
var (
	promCeremonies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsc_ceremonies_started_total",
		Help: "total number of ceremonies started",
	}, []string{"type"})

	promOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tsc_ceremonies_finished_total",
		Help: "total number of ceremonies finished",
	}, []string{"type", "outcome"})

	promRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tsc_ceremonies_running",
		Help: "number of ceremonies currently running",
	})

	promDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tsc_ceremony_duration_seconds",
		Help:    "duration of finished ceremonies",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"type"})
)

func init() {
	tsc.PromCollectors = append(tsc.PromCollectors,
		promCeremonies, promOutcomes, promRunning, promDuration)
}
