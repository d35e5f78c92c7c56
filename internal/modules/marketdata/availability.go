package marketdata

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/rs/zerolog"
)

// AdjustedRange is the date range the available data actually supports,
// plus the data-quality issues accumulated while narrowing it.
type AdjustedRange struct {
	Start  time.Time
	End    time.Time
	Months int
	Issues []string
}

// AvailabilityValidator narrows a requested backtest range to what the raw
// per-asset series can support. It is the gatekeeper for the only fatal
// error in the system: when no usable range exists at all.
type AvailabilityValidator struct {
	log zerolog.Logger
}

// NewAvailabilityValidator creates a new availability validator
func NewAvailabilityValidator(log zerolog.Logger) *AvailabilityValidator {
	return &AvailabilityValidator{
		log: log.With().Str("component", "availability").Logger(),
	}
}

// Adjust computes the effective simulation range for the requested window
// given the raw series fetched per ticker. Assets with no data at all are
// reported as issues but do not abort the run as long as at least one asset
// has data. Returns domain.ErrInsufficientData when no asset has usable data
// or the supported range is shorter than two months.
func (v *AvailabilityValidator) Adjust(requestedStart, requestedEnd time.Time, raw map[string][]domain.PricePoint) (AdjustedRange, error) {
	adjusted := AdjustedRange{}

	var earliest, latest time.Time
	usable := 0

	// Walk tickers in sorted order so the issue list is identical across
	// runs; map iteration order would leak into the result.
	tickers := make([]string, 0, len(raw))
	for ticker := range raw {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	for _, ticker := range tickers {
		points := raw[ticker]
		if len(points) == 0 {
			adjusted.Issues = append(adjusted.Issues,
				fmt.Sprintf("no price data available for %s; asset excluded from simulation", ticker))
			continue
		}

		first := points[0].Date
		last := points[len(points)-1].Date
		for _, p := range points {
			if p.Date.Before(first) {
				first = p.Date
			}
			if p.Date.After(last) {
				last = p.Date
			}
		}

		if usable == 0 || first.Before(earliest) {
			earliest = first
		}
		if usable == 0 || last.After(latest) {
			latest = last
		}
		usable++
	}

	if usable == 0 {
		return adjusted, fmt.Errorf("no asset has any price data: %w", domain.ErrInsufficientData)
	}

	start := domain.MonthStart(requestedStart)
	end := domain.MonthStart(requestedEnd)

	if dataStart := domain.MonthStart(earliest); dataStart.After(start) {
		adjusted.Issues = append(adjusted.Issues,
			fmt.Sprintf("start date adjusted from %s to %s (no earlier data)",
				start.Format("2006-01"), dataStart.Format("2006-01")))
		start = dataStart
	}
	if dataEnd := domain.MonthStart(latest); dataEnd.Before(end) {
		adjusted.Issues = append(adjusted.Issues,
			fmt.Sprintf("end date adjusted from %s to %s (no later data)",
				end.Format("2006-01"), dataEnd.Format("2006-01")))
		end = dataEnd
	}

	months := domain.MonthsBetween(start, end)
	if months < 2 {
		return adjusted, fmt.Errorf("supported range %s..%s is too short: %w",
			start.Format("2006-01"), end.Format("2006-01"), domain.ErrInsufficientData)
	}

	adjusted.Start = start
	adjusted.End = end
	adjusted.Months = months

	v.log.Debug().
		Time("start", start).
		Time("end", end).
		Int("months", months).
		Int("issues", len(adjusted.Issues)).
		Msg("Adjusted backtest range to available data")

	return adjusted, nil
}
