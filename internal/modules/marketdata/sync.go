package marketdata

import (
	"errors"
	"fmt"

	"github.com/aristath/backtester/internal/clients/alphavantage"
	"github.com/aristath/backtester/internal/domain"
	"github.com/rs/zerolog"
)

// EventPublisher receives notifications when new history is stored.
type EventPublisher interface {
	Publish(event string, payload any)
}

// SyncService pulls monthly history from Alpha Vantage into the local
// history database. Dividend events are extracted from the same series.
type SyncService struct {
	client  *alphavantage.Client
	history *HistoryDB
	bus     EventPublisher
	log     zerolog.Logger
}

// NewSyncService creates a new market data sync service
func NewSyncService(client *alphavantage.Client, history *HistoryDB, bus EventPublisher, log zerolog.Logger) *SyncService {
	return &SyncService{
		client:  client,
		history: history,
		bus:     bus,
		log:     log.With().Str("service", "marketdata_sync").Logger(),
	}
}

// SyncTicker refreshes the stored history for one ticker.
func (s *SyncService) SyncTicker(ticker string) error {
	raw, err := s.client.GetMonthlyAdjusted(ticker)
	if err != nil {
		return fmt.Errorf("failed to fetch monthly series for %s: %w", ticker, err)
	}

	prices := make([]domain.PricePoint, 0, len(raw))
	var dividends []domain.DividendEvent
	for _, point := range raw {
		prices = append(prices, domain.PricePoint{
			Date:          point.Date,
			Close:         point.Close,
			AdjustedClose: point.AdjustedClose,
		})
		if point.DividendAmount > 0 {
			dividends = append(dividends, domain.DividendEvent{
				ExDate:         point.Date,
				AmountPerShare: point.DividendAmount,
			})
		}
	}

	if err := s.history.UpsertPrices(ticker, prices); err != nil {
		return fmt.Errorf("failed to store prices for %s: %w", ticker, err)
	}
	if err := s.history.UpsertDividends(ticker, dividends); err != nil {
		return fmt.Errorf("failed to store dividends for %s: %w", ticker, err)
	}

	if s.bus != nil {
		s.bus.Publish("marketdata.synced", map[string]any{
			"ticker":    ticker,
			"points":    len(prices),
			"dividends": len(dividends),
		})
	}

	s.log.Info().
		Str("ticker", ticker).
		Int("points", len(prices)).
		Int("dividends", len(dividends)).
		Msg("Ticker history synced")
	return nil
}

// SyncAll refreshes every ticker already present in the history database.
// The run stops early when the API budget is spent; remaining tickers are
// picked up on the next run.
func (s *SyncService) SyncAll() error {
	tickers, err := s.history.Tickers()
	if err != nil {
		return fmt.Errorf("failed to list tickers: %w", err)
	}

	var synced, failed int
	for _, ticker := range tickers {
		if err := s.SyncTicker(ticker); err != nil {
			var rateLimited alphavantage.ErrRateLimitExceeded
			if errors.As(err, &rateLimited) {
				s.log.Warn().Int("synced", synced).Msg("API budget spent, stopping sync run")
				break
			}
			s.log.Error().Err(err).Str("ticker", ticker).Msg("Ticker sync failed")
			failed++
		} else {
			synced++
		}
	}

	s.log.Info().Int("synced", synced).Int("failed", failed).Msg("Sync run completed")
	return nil
}
