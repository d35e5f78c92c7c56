package domain

import (
	"errors"
	"time"
)

// ErrInsufficientData is returned when no usable date range exists for the
// requested assets. It is the only error that crosses the engine boundary;
// data-quality degradations are reported on the result instead.
var ErrInsufficientData = errors.New("insufficient market data for requested range")

// MarketDataProvider supplies pre-fetched historical market data.
// Implementations own caching, retries and rate limiting; the engine treats
// the returned slices as immutable snapshots.
type MarketDataProvider interface {
	// GetMonthlyPrices returns the raw (possibly sparse) monthly price series
	// for a ticker, ordered by date ascending.
	GetMonthlyPrices(ticker string, start, end time.Time) ([]PricePoint, error)

	// GetDividends returns actual dividend events for a ticker, ordered by
	// ex-dividend date ascending.
	GetDividends(ticker string, start, end time.Time) ([]DividendEvent, error)
}

// BacktestRepository persists configurations, results and transaction
// journals. The engine produces plain data structures; relational mapping is
// the repository's concern.
type BacktestRepository interface {
	SaveConfig(params BacktestParams) (string, error)
	SaveResult(configID string, result *AdaptiveBacktestResult) error
	SaveTransactions(configID string, txs []MonthlyAssetTransaction) error
}
