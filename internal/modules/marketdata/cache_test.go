package marketdata

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/backtester/internal/database"
	"github.com/aristath/backtester/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *SeriesCache {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cache := NewSeriesCache(db.Conn(), zerolog.Nop())
	require.NoError(t, cache.Init())
	return cache
}

func TestSeriesCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)

	series := &NormalizedSeries{
		Ticker: "VTI",
		Points: []domain.PricePoint{
			{Date: day(2020, 1, 1), Close: 100, AdjustedClose: 98.5},
			{Date: day(2020, 2, 1), Close: 101, AdjustedClose: 99.2},
		},
		Matches: 2,
	}

	key := CacheKey("VTI", day(2020, 1, 1), day(2020, 2, 1))
	require.NoError(t, cache.Put(key, series))

	got, err := cache.GetIfFresh(key, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "VTI", got.Ticker)
	assert.Equal(t, 2, got.Matches)
	require.Len(t, got.Points, 2)
	assert.Equal(t, 98.5, got.Points[0].AdjustedClose)
}

func TestSeriesCacheMissReturnsNil(t *testing.T) {
	cache := newTestCache(t)

	got, err := cache.GetIfFresh("no-such-key", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSeriesCacheStaleEntryIsAMiss(t *testing.T) {
	cache := newTestCache(t)

	key := CacheKey("VTI", day(2020, 1, 1), day(2020, 2, 1))
	require.NoError(t, cache.Put(key, &NormalizedSeries{Ticker: "VTI"}))

	got, err := cache.GetIfFresh(key, 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSeriesCachePutReplaces(t *testing.T) {
	cache := newTestCache(t)

	key := CacheKey("VTI", day(2020, 1, 1), day(2020, 2, 1))
	require.NoError(t, cache.Put(key, &NormalizedSeries{Ticker: "VTI", Matches: 1}))
	require.NoError(t, cache.Put(key, &NormalizedSeries{Ticker: "VTI", Matches: 5}))

	got, err := cache.GetIfFresh(key, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5, got.Matches)
}

func TestCacheKeyDeterministic(t *testing.T) {
	a := CacheKey("VTI", day(2020, 1, 1), day(2020, 12, 1))
	b := CacheKey("VTI", day(2020, 1, 1), day(2020, 12, 1))
	c := CacheKey("BND", day(2020, 1, 1), day(2020, 12, 1))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
