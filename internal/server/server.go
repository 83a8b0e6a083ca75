// Package server exposes the command channel and outbound message stream
// over WebSocket: /ws/control for inbound JSON commands, /ws/stream/{id}
// for a single stream's binary frame feed. Grounded on the teacher's
// api.Server / handleWebSocket gateway, generalized from its device
// control-socket split to this spec's command/stream split.
package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tri2820/unblink-sub001/internal/metrics"
	"github.com/tri2820/unblink-sub001/internal/util"
	"github.com/tri2820/unblink-sub001/internal/worker"
)

const streamSocketPrefix = "/ws/stream/"

type Server struct {
	state      *worker.State
	registry   *worker.Registry
	dispatcher *worker.Dispatcher
	logger     *slog.Logger
	mux        *http.ServeMux
}

func New(momentsRoot string) *Server {
	state := worker.NewState()
	registry := worker.NewRegistry()

	s := &Server{
		state:      state,
		registry:   registry,
		dispatcher: worker.NewDispatcher(state, registry, momentsRoot),
		logger:     util.GetLogger(),
		mux:        http.NewServeMux(),
	}

	s.mux.HandleFunc("/ws/control", s.handleControl)
	s.mux.HandleFunc(streamSocketPrefix, s.handleStreamSocket)
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("server listening", "addr", addr)
	return http.ListenAndServe(addr, s.mux)
}

func streamIDFromPath(path string) string {
	return strings.TrimPrefix(path, streamSocketPrefix)
}
