package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/backtest"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// RunsHandler serves the backtest run endpoints.
type RunsHandler struct {
	service *backtest.Service
	repo    *backtest.Repository
	log     zerolog.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(service *backtest.Service, repo *backtest.Repository, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		service: service,
		repo:    repo,
		log:     log.With().Str("handler", "backtest_runs").Logger(),
	}
}

// RunResponse wraps a completed run with its stored ID.
type RunResponse struct {
	ID     string                         `json:"id"`
	Result *domain.AdaptiveBacktestResult `json:"result"`
}

// Run handles POST /api/backtests.
func (h *RunsHandler) Run(w http.ResponseWriter, r *http.Request) {
	var params domain.BacktestParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := params.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	configID, result, err := h.service.RunAdaptiveBacktest(r.Context(), params)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.log.Error().Err(err).Msg("Backtest run failed")
		http.Error(w, "Backtest run failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(RunResponse{ID: configID, Result: result})
}

// List handles GET /api/backtests.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.repo.ListConfigs()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backtests")
		http.Error(w, "Failed to list backtests", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"backtests": summaries})
}

// Get handles GET /api/backtests/{id}.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.repo.GetResult(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to load backtest result")
		http.Error(w, "Failed to load backtest", http.StatusInternalServerError)
		return
	}
	if result == nil {
		http.Error(w, "Backtest not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RunResponse{ID: id, Result: result})
}

// GetTransactions handles GET /api/backtests/{id}/transactions.
func (h *RunsHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	config, err := h.repo.GetConfig(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to load backtest config")
		http.Error(w, "Failed to load backtest", http.StatusInternalServerError)
		return
	}
	if config == nil {
		http.Error(w, "Backtest not found", http.StatusNotFound)
		return
	}

	txs, err := h.repo.GetTransactions(id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to load transactions")
		http.Error(w, "Failed to load transactions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"transactions": txs})
}
