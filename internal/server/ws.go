package server

import (
	"encoding/binary"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type wsUpgrader = websocket.Upgrader

func newUpgrader() wsUpgrader {
	return websocket.Upgrader{
		ReadBufferSize:  32 * 1024,
		WriteBufferSize: 4 * 1024,
		// The capture frontend is a browser page served from anywhere.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
}

// handleWebSocket receives capture audio as binary little-endian PCM16
// messages and feeds the frame source. A channels query parameter overrides
// the configured channel count for this connection.
func (s *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		writeError(w, http.StatusServiceUnavailable, "audio ingest is not enabled")
		return
	}

	channels := s.config.Audio.Channels
	if param := r.URL.Query().Get("channels"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed < 1 || parsed > 8 {
			writeError(w, http.StatusBadRequest, "invalid channels parameter")
			return
		}
		channels = parsed
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	streamID := uuid.NewString()
	s.logger.Info("Capture stream connected",
		slog.String("stream_id", streamID),
		slog.String("remote", conn.RemoteAddr().String()),
		slog.Int("channels", channels))

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Capture stream error", slog.String("error", err.Error()))
			} else {
				s.logger.Info("Capture stream closed",
					slog.String("remote", conn.RemoteAddr().String()))
			}
			return
		}

		if messageType != websocket.BinaryMessage {
			continue
		}
		if len(data) < 2 || len(data)%2 != 0 {
			s.logger.Warn("Discarding malformed audio message", slog.Int("bytes", len(data)))
			continue
		}

		samples := decodePCM16(data)
		pushed := s.source.Push(samples, channels)

		if s.metrics != nil {
			s.metrics.RecordFrameReceived()
			if !pushed {
				s.metrics.RecordFrameDropped()
			}
			s.metrics.SetFrameQueueSize(s.source.GetStats().QueueLength)
		}
	}
}

func decodePCM16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
