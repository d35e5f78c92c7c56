package backtest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/backtester/internal/database"
	"github.com/aristath/backtester/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ConfigSummary is a listing row for saved backtest runs.
type ConfigSummary struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Tickers    []string  `json:"tickers"`
	Months     int       `json:"months"`
	FinalValue float64   `json:"final_value"`
	HasResult  bool      `json:"has_result"`
}

// Repository persists backtest configurations, results and journals in the
// ledger database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new backtest repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "backtest").Logger(),
	}
}

// Init creates the backtest tables if they do not exist.
func (r *Repository) Init() error {
	schema := `
		CREATE TABLE IF NOT EXISTS backtest_configs (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			params TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS backtest_results (
			config_id TEXT PRIMARY KEY REFERENCES backtest_configs(id),
			created_at INTEGER NOT NULL,
			months INTEGER NOT NULL,
			final_value REAL NOT NULL,
			total_invested REAL NOT NULL,
			total_return REAL NOT NULL,
			annualized_return REAL NOT NULL,
			volatility REAL NOT NULL,
			sharpe_ratio REAL,
			max_drawdown REAL NOT NULL,
			payload TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS backtest_transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			config_id TEXT NOT NULL REFERENCES backtest_configs(id),
			month INTEGER NOT NULL,
			date INTEGER NOT NULL,
			ticker TEXT NOT NULL,
			type TEXT NOT NULL,
			contribution REAL NOT NULL,
			price REAL NOT NULL,
			shares_added INTEGER NOT NULL,
			total_shares INTEGER NOT NULL,
			total_invested REAL NOT NULL,
			cash_reserved REAL,
			dividend_amount REAL
		);
		CREATE INDEX IF NOT EXISTS idx_backtest_tx_config
			ON backtest_transactions(config_id, month);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create backtest schema: %w", err)
	}
	return nil
}

// SaveConfig stores a parameter set and returns its generated ID.
func (r *Repository) SaveConfig(params domain.BacktestParams) (string, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal params: %w", err)
	}

	id := uuid.New().String()
	_, err = r.db.Exec(
		`INSERT INTO backtest_configs (id, created_at, params) VALUES (?, ?, ?)`,
		id, time.Now().Unix(), string(payload),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert config: %w", err)
	}
	return id, nil
}

// SaveResult stores the result summary columns plus the full result payload.
// Saving again for the same config replaces the previous result.
func (r *Repository) SaveResult(configID string, result *domain.AdaptiveBacktestResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	var sharpe sql.NullFloat64
	if result.SharpeRatio != nil {
		sharpe = sql.NullFloat64{Float64: *result.SharpeRatio, Valid: true}
	}

	_, err = r.db.Exec(`
		INSERT INTO backtest_results (
			config_id, created_at, months, final_value, total_invested,
			total_return, annualized_return, volatility, sharpe_ratio,
			max_drawdown, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(config_id) DO UPDATE SET
			created_at = excluded.created_at,
			months = excluded.months,
			final_value = excluded.final_value,
			total_invested = excluded.total_invested,
			total_return = excluded.total_return,
			annualized_return = excluded.annualized_return,
			volatility = excluded.volatility,
			sharpe_ratio = excluded.sharpe_ratio,
			max_drawdown = excluded.max_drawdown,
			payload = excluded.payload`,
		configID, time.Now().Unix(), result.Months, result.FinalValue,
		result.TotalInvested, result.TotalReturn, result.AnnualizedReturn,
		result.Volatility, sharpe, result.MaxDrawdown, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// SaveTransactions replaces the stored journal for a config with the given
// entries, atomically.
func (r *Repository) SaveTransactions(configID string, txs []domain.MonthlyAssetTransaction) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM backtest_transactions WHERE config_id = ?`, configID); err != nil {
			return fmt.Errorf("failed to clear previous journal: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO backtest_transactions (
				config_id, month, date, ticker, type, contribution, price,
				shares_added, total_shares, total_invested, cash_reserved, dividend_amount
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, entry := range txs {
			var reserved, dividend sql.NullFloat64
			if entry.CashReserved != nil {
				reserved = sql.NullFloat64{Float64: *entry.CashReserved, Valid: true}
			}
			if entry.DividendAmount != nil {
				dividend = sql.NullFloat64{Float64: *entry.DividendAmount, Valid: true}
			}

			_, err := stmt.Exec(
				configID, entry.Month, entry.Date.Unix(), entry.Ticker,
				string(entry.Type), entry.Contribution, entry.Price,
				entry.SharesAdded, entry.TotalShares, entry.TotalInvested,
				reserved, dividend,
			)
			if err != nil {
				return fmt.Errorf("failed to insert transaction for %s month %d: %w", entry.Ticker, entry.Month, err)
			}
		}
		return nil
	})
}

// GetConfig loads a stored parameter set by ID.
func (r *Repository) GetConfig(id string) (*domain.BacktestParams, error) {
	var payload string
	err := r.db.QueryRow(`SELECT params FROM backtest_configs WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}

	var params domain.BacktestParams
	if err := json.Unmarshal([]byte(payload), &params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return &params, nil
}

// GetResult loads a stored result by config ID. Returns nil when no result
// has been saved for that config.
func (r *Repository) GetResult(configID string) (*domain.AdaptiveBacktestResult, error) {
	var payload string
	err := r.db.QueryRow(`SELECT payload FROM backtest_results WHERE config_id = ?`, configID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query result: %w", err)
	}

	var result domain.AdaptiveBacktestResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// GetTransactions loads the stored journal for a config, ordered by booking
// order within each month.
func (r *Repository) GetTransactions(configID string) ([]domain.MonthlyAssetTransaction, error) {
	rows, err := r.db.Query(`
		SELECT month, date, ticker, type, contribution, price,
		       shares_added, total_shares, total_invested, cash_reserved, dividend_amount
		FROM backtest_transactions
		WHERE config_id = ?
		ORDER BY month ASC, id ASC`, configID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.MonthlyAssetTransaction
	for rows.Next() {
		var entry domain.MonthlyAssetTransaction
		var date int64
		var txType string
		var reserved, dividend sql.NullFloat64

		err := rows.Scan(
			&entry.Month, &date, &entry.Ticker, &txType, &entry.Contribution,
			&entry.Price, &entry.SharesAdded, &entry.TotalShares,
			&entry.TotalInvested, &reserved, &dividend,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		entry.Date = time.Unix(date, 0).UTC()
		entry.Type = domain.TransactionType(txType)
		if !entry.Type.Valid() {
			return nil, fmt.Errorf("invalid transaction type %q in stored journal for config %s", txType, configID)
		}
		if reserved.Valid {
			v := reserved.Float64
			entry.CashReserved = &v
		}
		if dividend.Valid {
			v := dividend.Float64
			entry.DividendAmount = &v
		}
		txs = append(txs, entry)
	}
	return txs, rows.Err()
}

// ListConfigs returns summaries of all saved runs, newest first.
func (r *Repository) ListConfigs() ([]ConfigSummary, error) {
	rows, err := r.db.Query(`
		SELECT c.id, c.created_at, c.params,
		       COALESCE(res.months, 0), COALESCE(res.final_value, 0),
		       res.config_id IS NOT NULL
		FROM backtest_configs c
		LEFT JOIN backtest_results res ON res.config_id = c.id
		ORDER BY c.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query configs: %w", err)
	}
	defer rows.Close()

	var out []ConfigSummary
	for rows.Next() {
		var summary ConfigSummary
		var createdAt int64
		var paramsJSON string

		err := rows.Scan(&summary.ID, &createdAt, &paramsJSON,
			&summary.Months, &summary.FinalValue, &summary.HasResult)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config summary: %w", err)
		}

		summary.CreatedAt = time.Unix(createdAt, 0).UTC()

		var params domain.BacktestParams
		if err := json.Unmarshal([]byte(paramsJSON), &params); err == nil {
			for _, asset := range params.Assets {
				summary.Tickers = append(summary.Tickers, asset.Ticker)
			}
		}

		out = append(out, summary)
	}
	return out, rows.Err()
}
