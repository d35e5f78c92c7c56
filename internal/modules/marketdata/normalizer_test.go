package marketdata

import (
	"testing"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeExactAndNearMatches(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())

	raw := []domain.PricePoint{
		{Date: day(2020, 1, 1), Close: 10, AdjustedClose: 10},
		{Date: day(2020, 2, 3), Close: 11, AdjustedClose: 11}, // 2 days off, within window
		{Date: day(2020, 3, 1), Close: 12, AdjustedClose: 12},
	}

	series := n.Normalize("VTI", raw, day(2020, 1, 1), day(2020, 3, 1))
	require.Len(t, series.Points, 3)
	assert.Equal(t, 3, series.Matches)
	assert.Equal(t, 0, series.Fills)

	// Near matches snap onto the grid date.
	assert.True(t, series.Points[1].Date.Equal(day(2020, 2, 1)))
	assert.Equal(t, 11.0, series.Points[1].AdjustedClose)

	price, ok := series.PriceAt(day(2020, 2, 1))
	require.True(t, ok)
	assert.Equal(t, 11.0, price)
}

func TestNormalizeForwardFill(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())

	// February is missing entirely.
	raw := []domain.PricePoint{
		{Date: day(2020, 1, 1), Close: 10, AdjustedClose: 10},
		{Date: day(2020, 3, 1), Close: 12, AdjustedClose: 12},
	}

	series := n.Normalize("VTI", raw, day(2020, 1, 1), day(2020, 3, 1))
	require.Len(t, series.Points, 3)
	assert.Equal(t, 2, series.Matches)
	assert.Equal(t, 1, series.Fills)

	// The gap repeats January's price.
	assert.Equal(t, 10.0, series.Points[1].AdjustedClose)
}

func TestNormalizeLeadingGapBackfills(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())

	// Data starts in March but the range starts in January.
	raw := []domain.PricePoint{
		{Date: day(2020, 3, 1), Close: 12, AdjustedClose: 12},
		{Date: day(2020, 4, 1), Close: 13, AdjustedClose: 13},
	}

	series := n.Normalize("VTI", raw, day(2020, 1, 1), day(2020, 4, 1))
	require.Len(t, series.Points, 4)

	assert.Equal(t, 12.0, series.Points[0].AdjustedClose)
	assert.Equal(t, 12.0, series.Points[1].AdjustedClose)
	assert.Equal(t, 2, series.Fills)
	assert.Equal(t, 2, series.Matches)
}

func TestNormalizeRejectsBadPrices(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())

	raw := []domain.PricePoint{
		{Date: day(2020, 1, 1), Close: 10, AdjustedClose: 0},
		{Date: day(2020, 2, 1), Close: 11, AdjustedClose: -5},
	}

	series := n.Normalize("VTI", raw, day(2020, 1, 1), day(2020, 2, 1))
	assert.Empty(t, series.Points)
}

func TestNormalizeOutsideWindowIsFill(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())

	raw := []domain.PricePoint{
		{Date: day(2020, 1, 1), Close: 10, AdjustedClose: 10},
		// 14 days from the February grid date: too far to match.
		{Date: day(2020, 2, 15), Close: 11, AdjustedClose: 11},
	}

	series := n.Normalize("VTI", raw, day(2020, 1, 1), day(2020, 2, 1))
	require.Len(t, series.Points, 2)
	assert.Equal(t, 1, series.Matches)
	assert.Equal(t, 1, series.Fills)
	assert.Equal(t, 10.0, series.Points[1].AdjustedClose)
}

func TestIsDegenerate(t *testing.T) {
	fillDominated := NormalizedSeries{Matches: 2, Fills: 8}
	assert.True(t, fillDominated.IsDegenerate())

	healthy := NormalizedSeries{Matches: 9, Fills: 1}
	for i := 0; i < 10; i++ {
		healthy.Points = append(healthy.Points, domain.PricePoint{
			AdjustedClose: 100 + float64(i*3%7),
		})
	}
	assert.False(t, healthy.IsDegenerate())
}
