package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/inductor-io/inductor/internal/api/middleware"
	"github.com/inductor-io/inductor/internal/bus"
	"github.com/inductor-io/inductor/internal/config"
)

// sseHeartbeatInterval paces the keepalive frames carrying the current bus
// sequence number, so consumers can detect gaps after a reconnect.
const sseHeartbeatInterval = 15 * time.Second

// handleSubscribe streams bus events to the client as server-sent events.
// The topics query parameter narrows the subscription; absent, the stream
// carries every topic.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteErrorResponse(w, r, s.logger, InternalServerError("Streaming unsupported"))

		return
	}

	topics := bus.AllTopics()

	if raw := r.URL.Query().Get("topics"); raw != "" {
		topics = topics[:0]

		for _, name := range config.ParseCommaSeparatedList(raw) {
			topics = append(topics, bus.Topic(name))
		}
	}

	sub, err := s.bus.Subscribe(topics, nil, nil)

	switch {
	case errors.Is(err, bus.ErrUnknownTopic), errors.Is(err, bus.ErrNoTopics):
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	case errors.Is(err, bus.ErrBusClosed):
		WriteErrorResponse(w, r, s.logger, ServiceUnavailable("Event bus is shut down"))

		return
	case err != nil:
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to subscribe"))

		return
	}

	defer s.bus.Unsubscribe(sub.ID)

	correlationID := middleware.GetCorrelationID(r.Context())

	s.logger.Info("SSE subscription opened",
		slog.String("subscription_id", sub.ID),
		slog.Int("topics", len(topics)),
		slog.String("correlation_id", correlationID),
	)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// The stream outlives the server's write timeout by design.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	s.writeHeartbeat(w, flusher)

	events := make(chan bus.Event)
	pumpDone := make(chan error, 1)

	go func() {
		for {
			event, err := sub.Next(r.Context())
			if err != nil {
				pumpDone <- err

				return
			}

			select {
			case events <- event:
			case <-r.Context().Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE subscription closed by client",
				slog.String("subscription_id", sub.ID),
				slog.String("correlation_id", correlationID),
			)

			return

		case err := <-pumpDone:
			if errors.Is(err, bus.ErrSubscriptionSlow) {
				s.logger.Warn("SSE subscription dropped: consumer too slow",
					slog.String("subscription_id", sub.ID),
					slog.String("correlation_id", correlationID),
				)
			}

			return

		case <-ticker.C:
			if !s.writeHeartbeat(w, flusher) {
				return
			}

		case event := <-events:
			if !s.writeEvent(w, flusher, event) {
				return
			}
		}
	}
}

// writeEvent frames one bus event as an SSE message. The bus seq doubles as
// the SSE event id so clients can resume-detect gaps.
func (s *Server) writeEvent(w http.ResponseWriter, flusher http.Flusher, event bus.Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to encode event", slog.Uint64("seq", event.Seq), slog.Any("error", err))

		return true
	}

	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Kind, data); err != nil {
		return false
	}

	flusher.Flush()

	return true
}

// writeHeartbeat frames the current sequence number as a heartbeat message.
func (s *Server) writeHeartbeat(w http.ResponseWriter, flusher http.Flusher) bool {
	if _, err := fmt.Fprintf(w, "event: heartbeat\ndata: {\"seq\":%d}\n\n", s.bus.CurrentSeq()); err != nil {
		return false
	}

	flusher.Flush()

	return true
}
