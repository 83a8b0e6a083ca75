package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tri2820/unblink-sub001/internal/worker"
	"github.com/tri2820/unblink-sub001/internal/worker/core"
	"github.com/tri2820/unblink-sub001/internal/worker/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The orchestration layer and browser UI are not same-origin with
	// this worker process in every deployment; origin is enforced
	// upstream by whatever reverse proxy terminates TLS.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundEnvelope mirrors spec.md §6's three inbound command shapes. Only
// the fields relevant to Type are populated by the orchestrator.
type inboundEnvelope struct {
	Type                       string   `json:"type"`
	ID                         string   `json:"id"`
	MediaID                    string   `json:"media_id"`
	URI                        string   `json:"uri"`
	SaveLocation               string   `json:"save_location"`
	InitSeekSec                *float64 `json:"init_seek_sec"`
	SessionID                  string   `json:"session_id"`
	IsEphemeral                bool     `json:"is_ephemeral"`
	ShouldWriteMoment          *bool    `json:"should_write_moment"`
	CurrentMomentID            *string  `json:"current_moment_id"`
	DiscardPreviousMaybeMoment *bool    `json:"discard_previous_maybe_moment"`
}

// handleControl is the single-threaded command queue: one WebSocket
// connection from the orchestration layer, JSON-framed, each inbound
// message dispatched in the order received. Grounded on the teacher's
// handleWebSocket type-keyed dispatch switch.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("control socket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info("control socket closed", "error", err)
			return
		}

		var env inboundEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn("malformed control message", "error", err)
			continue
		}

		switch env.Type {
		case "start_stream":
			s.dispatcher.HandleStartStream(toStartCommand(env), nil)
		case "stop_stream":
			s.dispatcher.HandleStopStream(worker.StopStreamCommand{ID: env.ID})
		case "set_moment_state":
			// A present-but-null current_moment_id decodes to nil just
			// like an omitted one; check the raw keys to tell them apart.
			var fields map[string]json.RawMessage
			_ = json.Unmarshal(data, &fields)
			_, idSet := fields["current_moment_id"]
			s.dispatcher.HandleSetMomentState(toMomentCommand(env, idSet))
		default:
			s.logger.Warn("unknown control message type", "type", env.Type)
		}
	}
}

func toStartCommand(env inboundEnvelope) worker.StartStreamCommand {
	return worker.StartStreamCommand{
		ID:           env.ID,
		URI:          env.URI,
		SaveLocation: env.SaveLocation,
		InitSeekSec:  env.InitSeekSec,
		SessionID:    env.SessionID,
		Ephemeral:    env.IsEphemeral,
	}
}

func toMomentCommand(env inboundEnvelope, currentMomentIDSet bool) worker.SetMomentStateCommand {
	return worker.SetMomentStateCommand{
		ID: env.MediaID,
		Patch: core.MomentStatePatch{
			ShouldWriteMoment:          env.ShouldWriteMoment,
			CurrentMomentID:            env.CurrentMomentID,
			CurrentMomentIDSet:         currentMomentIDSet,
			DiscardPreviousMaybeMoment: env.DiscardPreviousMaybeMoment,
		},
	}
}

// handleStreamSocket attaches a browser client to one running stream's
// broadcaster and relays every published message as a binary WebSocket
// frame, encoded by the wire package (spec.md §4.6: compact binary
// encoding over a transferable buffer — a WebSocket binary frame is the
// Go-server analogue of that transferable ArrayBuffer).
func (s *Server) handleStreamSocket(w http.ResponseWriter, r *http.Request) {
	streamID := streamIDFromPath(r.URL.Path)

	broadcaster, ok := s.registry.Broadcaster(streamID)
	if !ok {
		http.Error(w, "stream not running", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("stream socket upgrade failed", "stream_id", streamID, "error", err)
		return
	}
	defer conn.Close()

	subID, messages := broadcaster.Subscribe()
	defer broadcaster.Unsubscribe(subID)

	for msg := range messages {
		frame, err := wire.Encode(msg)
		if err != nil {
			s.logger.Warn("failed to encode outbound message", "stream_id", streamID, "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return
		}
		if msg.Ended != nil {
			return
		}
	}
}
