// Package marketdata turns sparse historical market data into the dense,
// immutable monthly series the simulation engine consumes.
package marketdata

import (
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/pkg/formulas"
	"github.com/rs/zerolog"
)

// MatchWindow is the maximum distance between an expected monthly date and a
// raw price point for the point to count as a genuine match. Raw data further
// away is ignored and the gap is forward-filled instead.
const MatchWindow = 7 * 24 * time.Hour

// NormalizedSeries is a dense monthly price series covering a full date
// range, plus counters describing how it was produced. A series dominated by
// fills carries degenerate (flat) returns and is flagged as a data-quality
// signal, never as an error.
type NormalizedSeries struct {
	Ticker  string             `msgpack:"ticker"`
	Points  []domain.PricePoint `msgpack:"points"`
	Matches int                `msgpack:"matches"`
	Fills   int                `msgpack:"fills"`
}

// FillRatio returns the fraction of points that were filled rather than
// matched. Returns 0 for an empty series.
func (s *NormalizedSeries) FillRatio() float64 {
	total := s.Matches + s.Fills
	if total == 0 {
		return 0
	}
	return float64(s.Fills) / float64(total)
}

// IsDegenerate reports whether the series is dominated by fills or has gone
// flat at its tail, either of which means its returns carry no information.
func (s *NormalizedSeries) IsDegenerate() bool {
	if s.FillRatio() > 0.5 {
		return true
	}

	closes := make([]float64, len(s.Points))
	for i, p := range s.Points {
		closes[i] = p.AdjustedClose
	}
	return formulas.IsFlatSeries(closes)
}

// PriceAt returns the adjusted close for the given month-grid date, or false
// when the date falls outside the series.
func (s *NormalizedSeries) PriceAt(date time.Time) (float64, bool) {
	for _, p := range s.Points {
		if p.Date.Equal(date) {
			return p.AdjustedClose, true
		}
	}
	return 0, false
}

// Normalizer produces dense monthly series from sparse raw price data.
type Normalizer struct {
	log zerolog.Logger
}

// NewNormalizer creates a new price series normalizer
func NewNormalizer(log zerolog.Logger) *Normalizer {
	return &Normalizer{
		log: log.With().Str("component", "normalizer").Logger(),
	}
}

// Normalize builds a complete monthly series for one ticker over the given
// range. For each expected monthly date it looks for a raw point within
// MatchWindow (nearest wins); missing months are forward-filled from the
// most recent normalized point, and a gap at the start of the series is
// filled from the next available future point. Returns an empty series when
// no usable raw data exists at all.
func (n *Normalizer) Normalize(ticker string, raw []domain.PricePoint, start, end time.Time) NormalizedSeries {
	series := NormalizedSeries{Ticker: ticker}

	// Drop invalid raw points first - a zero or negative adjusted close is
	// bad data, not a price.
	valid := make([]domain.PricePoint, 0, len(raw))
	for _, p := range raw {
		if p.AdjustedClose > 0 {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return series
	}

	grid := domain.MonthGrid(start, end)
	series.Points = make([]domain.PricePoint, 0, len(grid))

	for _, expected := range grid {
		if match, ok := nearestWithin(valid, expected, MatchWindow); ok {
			series.Points = append(series.Points, domain.PricePoint{
				Date:          expected,
				Close:         match.Close,
				AdjustedClose: match.AdjustedClose,
			})
			series.Matches++
			continue
		}

		if len(series.Points) > 0 {
			// Forward-fill from the most recent normalized point
			prev := series.Points[len(series.Points)-1]
			series.Points = append(series.Points, domain.PricePoint{
				Date:          expected,
				Close:         prev.Close,
				AdjustedClose: prev.AdjustedClose,
			})
			series.Fills++
			continue
		}

		// Gap at the start of the series: use the next available future
		// point instead.
		next, ok := firstAfter(valid, expected)
		if !ok {
			// No prior and no future data - raw series starts and ends
			// before this range. Nothing sensible to emit.
			continue
		}
		series.Points = append(series.Points, domain.PricePoint{
			Date:          expected,
			Close:         next.Close,
			AdjustedClose: next.AdjustedClose,
		})
		series.Fills++
	}

	if series.FillRatio() > 0.5 {
		n.log.Warn().
			Str("ticker", ticker).
			Int("matches", series.Matches).
			Int("fills", series.Fills).
			Msg("Normalized series dominated by forward-fills")
	}

	return series
}

// nearestWithin returns the raw point closest to the expected date, if any
// point lies within the window.
func nearestWithin(raw []domain.PricePoint, expected time.Time, window time.Duration) (domain.PricePoint, bool) {
	var best domain.PricePoint
	bestDist := window + 1
	found := false

	for _, p := range raw {
		dist := absDuration(p.Date.Sub(expected))
		if dist <= window && dist < bestDist {
			best = p
			bestDist = dist
			found = true
		}
	}

	return best, found
}

// firstAfter returns the earliest raw point on or after the expected date.
func firstAfter(raw []domain.PricePoint, expected time.Time) (domain.PricePoint, bool) {
	var best domain.PricePoint
	found := false

	for _, p := range raw {
		if p.Date.Before(expected) {
			continue
		}
		if !found || p.Date.Before(best.Date) {
			best = p
			found = true
		}
	}

	return best, found
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
