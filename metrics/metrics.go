// Package metrics holds the prometheus collectors shared by the forwarder
// and receiver binaries.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PacketsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parrotfwd_packets_sent_total",
		Help: "Telemetry packets handed to the emission sink",
	})
	CycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parrotfwd_cycle_errors_total",
		Help: "Scheduler cycles that failed in sampling, encoding or emission",
	})
	DriftResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parrotfwd_drift_resyncs_total",
		Help: "Times the scheduler fell behind and re-based its target time",
	})
	PacketsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parrotfwd_packets_received_total",
		Help: "KLV packets decoded by the receiver",
	})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parrotfwd_decode_errors_total",
		Help: "Datagrams the receiver failed to decode",
	})
	LoopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "parrotfwd_loop_duration_seconds",
		Help:    "Duration of one scheduler cycle body",
		Buckets: prometheus.DefBuckets,
	})
)

// Serve exposes /metrics and /healthz on addr. Blocks; run on its own
// goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	_ = http.ListenAndServe(addr, mux)
}
