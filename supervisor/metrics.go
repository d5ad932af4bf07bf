// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package supervisor

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procsup_state_transitions_total",
			Help: "Total number of supervised process state transitions",
		},
		[]string{"name", "from", "to"},
	)

	forcedKills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procsup_forced_kills_total",
			Help: "Total number of process groups killed after a stop timeout",
		},
		[]string{"name"},
	)

	stopDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procsup_stop_duration_seconds",
			Help:    "Time from stop request to the process's final state",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"name", "outcome"},
	)

	outputLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procsup_output_lines_total",
			Help: "Total number of output lines read from supervised processes",
		},
		[]string{"name", "stream"},
	)
)

type metricsRecorder struct {
	enabled bool
	name    string
}

func (m metricsRecorder) transition(from, to State) {
	if !m.enabled {
		return
	}
	stateTransitions.With(prometheus.Labels{
		"name": m.name,
		"from": from.String(),
		"to":   to.String(),
	}).Inc()
}

func (m metricsRecorder) forcedKill() {
	if !m.enabled {
		return
	}
	forcedKills.With(prometheus.Labels{"name": m.name}).Inc()
}

func (m metricsRecorder) stopped(outcome string, elapsed time.Duration) {
	if !m.enabled {
		return
	}
	stopDuration.With(prometheus.Labels{
		"name":    m.name,
		"outcome": outcome,
	}).Observe(elapsed.Seconds())
}

func (m metricsRecorder) line(stream string) {
	if !m.enabled {
		return
	}
	outputLines.With(prometheus.Labels{
		"name":   m.name,
		"stream": stream,
	}).Inc()
}

// CreateMetricsServer creates a configured HTTP server exposing /metrics and /health.
func CreateMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
