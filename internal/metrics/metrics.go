// Package metrics exposes Prometheus instrumentation for the streaming
// worker: hearts remaining per stream, frames published, and moments
// currently open. Wires the client_golang dependency the retrieval pack
// carries (snapetech-plexTuner's go.mod) but that no pack file actually
// calls — instrumented here with the standard promauto idiom.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamworker_frames_published_total",
		Help: "Frames published to subscribers, per stream id.",
	}, []string{"stream_id"})

	MomentsOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamworker_moments_open",
		Help: "1 if a stream currently has an open moment recording, else 0.",
	}, []string{"stream_id"})

	HeartsRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamworker_hearts_remaining",
		Help: "Supervisor credit budget remaining for a stream's current run.",
	}, []string{"stream_id"})

	SupervisorRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamworker_supervisor_restarts_total",
		Help: "Supervisor restart attempts, per stream id.",
	}, []string{"stream_id"})
)

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
