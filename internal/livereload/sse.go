package livereload

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/listenupapp/livewatch/internal/http/response"
)

// handleEvents streams hub events as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)

	if err := rc.Flush(); err != nil {
		s.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		response.InternalError(w, "Streaming not supported", s.logger)
		return
	}

	client, err := s.hub.Connect(KindSSE)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	defer s.hub.Disconnect(client.ID)

	log := s.logger.With(slog.String("client_id", client.ID))

	if err := s.sendEvent(rc, w, "connected", map[string]string{"client_id": client.ID}); err != nil {
		log.Debug("failed to send connection message", slog.String("error", err.Error()))
		return
	}

	ctx := r.Context()
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			if err := s.sendEvent(rc, w, string(event.Type), event); err != nil {
				log.Debug("client disconnected during send")
				return
			}

		case <-client.Done:
			return

		case <-ctx.Done():
			return
		}
	}
}

// sendEvent writes one SSE frame and flushes it.
func (s *Server) sendEvent(rc *http.ResponseController, w http.ResponseWriter, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}

	if err := rc.Flush(); err != nil {
		return err
	}

	if err := rc.SetWriteDeadline(time.Now().Add(60 * time.Second)); err != nil {
		s.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}
