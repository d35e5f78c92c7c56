package handlers

import (
	"github.com/aristath/backtester/internal/events"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler provides HTTP handlers for backtest endpoints
type Handler struct {
	runsHandler   *RunsHandler
	streamHandler *StreamHandler
}

// NewHandler creates a new backtest handler with all sub-handlers
func NewHandler(
	service *backtest.Service,
	repo *backtest.Repository,
	eventBus *events.Bus,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		runsHandler:   NewRunsHandler(service, repo, log),
		streamHandler: NewStreamHandler(eventBus, log),
	}
}

// RegisterRoutes registers all backtest routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/backtests", func(r chi.Router) {
		r.Post("/", h.runsHandler.Run)
		r.Get("/", h.runsHandler.List)
		r.Get("/{id}", h.runsHandler.Get)
		r.Get("/{id}/transactions", h.runsHandler.GetTransactions)

		r.Get("/stream", h.streamHandler.ServeHTTP)
	})
}
