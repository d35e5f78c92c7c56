package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/backtester/internal/events"
	"github.com/rs/zerolog"
)

// StreamHandler handles Server-Sent Events (SSE) streaming of run progress.
type StreamHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(eventBus *events.Bus, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		eventBus: eventBus,
		log:      log.With().Str("handler", "backtest_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/backtests/stream requests (SSE).
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	eventChan, unsubscribe := h.eventBus.Subscribe()
	defer unsubscribe()

	h.log.Info().Msg("Client connected to backtest event stream")

	done := r.Context().Done()

	fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]any{
		"type":    "connected",
		"message": "Connected to backtest event stream",
	}))
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			h.log.Info().Msg("Client disconnected from backtest event stream")
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", h.encode(event))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]any{
				"type":      "heartbeat",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

func (h *StreamHandler) encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}
