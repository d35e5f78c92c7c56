package marketdata

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// SeriesCache stores normalized series in cache.db so repeat runs over the
// same ticker and range skip normalization. Entries are msgpack blobs keyed
// by a hash of ticker and range; stale entries are simply recomputed.
type SeriesCache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSeriesCache creates a new series cache
func NewSeriesCache(db *sql.DB, log zerolog.Logger) *SeriesCache {
	return &SeriesCache{
		db:  db,
		log: log.With().Str("component", "series_cache").Logger(),
	}
}

// Init creates the cache table if it does not exist.
func (c *SeriesCache) Init() error {
	schema := `
		CREATE TABLE IF NOT EXISTS series_cache (
			key TEXT PRIMARY KEY,
			ticker TEXT NOT NULL,
			payload BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize series cache schema: %w", err)
	}
	return nil
}

// CacheKey builds a deterministic key for a ticker and month range.
func CacheKey(ticker string, start, end time.Time) string {
	keyData := fmt.Sprintf("%s|%d|%d", ticker, start.Unix(), end.Unix())
	h := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(h[:16])
}

// GetIfFresh returns the cached series for the key if it was written within
// maxAge. Cache misses and decode failures both return (nil, nil) - the
// cache is advisory, never load-bearing.
func (c *SeriesCache) GetIfFresh(key string, maxAge time.Duration) (*NormalizedSeries, error) {
	var payload []byte
	var updatedAt int64

	err := c.db.QueryRow(`SELECT payload, updated_at FROM series_cache WHERE key = ?`, key).
		Scan(&payload, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query series cache: %w", err)
	}

	if time.Since(time.Unix(updatedAt, 0)) > maxAge {
		return nil, nil
	}

	var series NormalizedSeries
	if err := msgpack.Unmarshal(payload, &series); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Failed to decode cached series, recomputing")
		return nil, nil
	}

	return &series, nil
}

// Put stores a normalized series under the key, replacing any prior entry.
func (c *SeriesCache) Put(key string, series *NormalizedSeries) error {
	payload, err := msgpack.Marshal(series)
	if err != nil {
		return fmt.Errorf("failed to encode series for cache: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT INTO series_cache (key, ticker, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, key, series.Ticker, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store series in cache: %w", err)
	}

	return nil
}
