package marketdata

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/rs/zerolog"
)

// HistoryDB provides access to historical monthly price and dividend data.
// It implements domain.MarketDataProvider over history.db. Dates are stored
// as Unix timestamps.
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// Init creates the history tables if they do not exist.
func (h *HistoryDB) Init() error {
	schema := `
		CREATE TABLE IF NOT EXISTS monthly_prices (
			ticker TEXT NOT NULL,
			date INTEGER NOT NULL,
			close REAL NOT NULL,
			adjusted_close REAL NOT NULL,
			PRIMARY KEY (ticker, date)
		);
		CREATE TABLE IF NOT EXISTS dividend_events (
			ticker TEXT NOT NULL,
			ex_date INTEGER NOT NULL,
			amount_per_share REAL NOT NULL,
			PRIMARY KEY (ticker, ex_date)
		);
		CREATE INDEX IF NOT EXISTS idx_monthly_prices_ticker ON monthly_prices(ticker);
	`
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return nil
}

// GetMonthlyPrices fetches the raw monthly price series for a ticker within
// the given range, ordered by date ascending.
func (h *HistoryDB) GetMonthlyPrices(ticker string, start, end time.Time) ([]domain.PricePoint, error) {
	query := `
		SELECT date, close, adjusted_close
		FROM monthly_prices
		WHERE ticker = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := h.db.Query(query, ticker, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly prices: %w", err)
	}
	defer rows.Close()

	var points []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		var dateUnix int64

		if err := rows.Scan(&dateUnix, &p.Close, &p.AdjustedClose); err != nil {
			return nil, fmt.Errorf("failed to scan monthly price: %w", err)
		}
		p.Date = time.Unix(dateUnix, 0).UTC()
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly prices: %w", err)
	}

	return points, nil
}

// GetDividends fetches dividend events for a ticker within the given range,
// ordered by ex-dividend date ascending.
func (h *HistoryDB) GetDividends(ticker string, start, end time.Time) ([]domain.DividendEvent, error) {
	query := `
		SELECT ex_date, amount_per_share
		FROM dividend_events
		WHERE ticker = ? AND ex_date >= ? AND ex_date <= ?
		ORDER BY ex_date ASC
	`

	rows, err := h.db.Query(query, ticker, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query dividend events: %w", err)
	}
	defer rows.Close()

	var events []domain.DividendEvent
	for rows.Next() {
		var e domain.DividendEvent
		var dateUnix int64

		if err := rows.Scan(&dateUnix, &e.AmountPerShare); err != nil {
			return nil, fmt.Errorf("failed to scan dividend event: %w", err)
		}
		e.ExDate = time.Unix(dateUnix, 0).UTC()
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dividend events: %w", err)
	}

	return events, nil
}

// UpsertPrices writes raw monthly prices for a ticker, replacing any
// existing rows for the same month.
func (h *HistoryDB) UpsertPrices(ticker string, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin price upsert: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO monthly_prices (ticker, date, close, adjusted_close)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(ticker, date) DO UPDATE SET
			close = excluded.close,
			adjusted_close = excluded.adjusted_close
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare price upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.Exec(ticker, p.Date.Unix(), p.Close, p.AdjustedClose); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to upsert price for %s at %s: %w", ticker, p.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit price upsert: %w", err)
	}

	h.log.Debug().Str("ticker", ticker).Int("points", len(points)).Msg("Upserted monthly prices")
	return nil
}

// UpsertDividends writes dividend events for a ticker.
func (h *HistoryDB) UpsertDividends(ticker string, events []domain.DividendEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := h.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin dividend upsert: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO dividend_events (ticker, ex_date, amount_per_share)
		VALUES (?, ?, ?)
		ON CONFLICT(ticker, ex_date) DO UPDATE SET
			amount_per_share = excluded.amount_per_share
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare dividend upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(ticker, e.ExDate.Unix(), e.AmountPerShare); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to upsert dividend for %s at %s: %w", ticker, e.ExDate.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dividend upsert: %w", err)
	}

	return nil
}

// Tickers returns all tickers that have price history, for the sync job.
func (h *HistoryDB) Tickers() ([]string, error) {
	rows, err := h.db.Query(`SELECT DISTINCT ticker FROM monthly_prices ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickers: %w", err)
	}

	return tickers, nil
}
