// Package domain contains pure business entities and interfaces.
// This package has no infrastructure dependencies - it defines the shapes
// that the simulation engine, the market data layer, and persistence share.
package domain

import (
	"fmt"
	"time"
)

// RebalanceFrequency controls how often the simulated portfolio is pulled
// back toward its target weights.
type RebalanceFrequency string

const (
	RebalanceMonthly   RebalanceFrequency = "monthly"
	RebalanceQuarterly RebalanceFrequency = "quarterly"
	RebalanceYearly    RebalanceFrequency = "yearly"
)

// Months returns the rebalance interval in months. Unknown values fall back
// to monthly.
func (f RebalanceFrequency) Months() int {
	switch f {
	case RebalanceQuarterly:
		return 3
	case RebalanceYearly:
		return 12
	default:
		return 1
	}
}

// AssetConfig describes one asset in the target allocation.
type AssetConfig struct {
	Ticker               string  `json:"ticker"`
	TargetAllocation     float64 `json:"target_allocation"`               // Fraction of the portfolio, e.g. 0.6
	AverageDividendYield float64 `json:"average_dividend_yield,omitempty"` // Annual yield as fraction, e.g. 0.03
}

// BacktestParams is the caller-supplied configuration for one simulation run.
// It is never mutated by the engine.
type BacktestParams struct {
	Assets              []AssetConfig      `json:"assets"`
	StartDate           time.Time          `json:"start_date"`
	EndDate             time.Time          `json:"end_date"`
	InitialCapital      float64            `json:"initial_capital"`
	MonthlyContribution float64            `json:"monthly_contribution"`
	RebalanceFrequency  RebalanceFrequency `json:"rebalance_frequency"`
	RiskFreeRate        float64            `json:"risk_free_rate"` // Annual, as fraction; used for Sharpe
}

// Validate checks the structural invariants of the parameters.
// Target allocations must sum to at most 1.0 (they are renormalized at
// runtime when some assets have no data for a given month).
func (p *BacktestParams) Validate() error {
	if len(p.Assets) == 0 {
		return fmt.Errorf("at least one asset is required")
	}

	seen := make(map[string]bool, len(p.Assets))
	var allocSum float64
	for _, a := range p.Assets {
		if a.Ticker == "" {
			return fmt.Errorf("asset ticker must not be empty")
		}
		if seen[a.Ticker] {
			return fmt.Errorf("duplicate asset ticker %q", a.Ticker)
		}
		seen[a.Ticker] = true

		if a.TargetAllocation <= 0 || a.TargetAllocation > 1 {
			return fmt.Errorf("asset %s: target allocation must be in (0, 1], got %f", a.Ticker, a.TargetAllocation)
		}
		if a.AverageDividendYield < 0 {
			return fmt.Errorf("asset %s: average dividend yield must not be negative", a.Ticker)
		}
		allocSum += a.TargetAllocation
	}

	// Small epsilon for float accumulation
	if allocSum > 1.0+1e-9 {
		return fmt.Errorf("target allocations sum to %f, must not exceed 1.0", allocSum)
	}

	if !p.EndDate.After(p.StartDate) {
		return fmt.Errorf("end date must be after start date")
	}
	if p.InitialCapital < 0 {
		return fmt.Errorf("initial capital must not be negative")
	}
	if p.MonthlyContribution < 0 {
		return fmt.Errorf("monthly contribution must not be negative")
	}

	return nil
}

// PricePoint is one normalized monthly price observation for an asset.
// AdjustedClose is always > 0 for retained points - invalid raw prices are
// filtered before normalization.
type PricePoint struct {
	Date          time.Time `json:"date"`
	Close         float64   `json:"close"`
	AdjustedClose float64   `json:"adjusted_close"`
}

// DividendEvent is one actual dividend payment keyed by its ex-dividend date.
// Used by the event-mode dividend calculator.
type DividendEvent struct {
	ExDate         time.Time `json:"ex_date"`
	AmountPerShare float64   `json:"amount_per_share"`
}

// Holding is the per-asset position state inside a simulation.
// Shares is always a non-negative whole number. TotalInvested is the cost
// basis and is reduced proportionally to shares sold (average-cost method),
// not by sale proceeds.
type Holding struct {
	Shares        int64   `json:"shares"`
	TotalInvested float64 `json:"total_invested"`
}

// PortfolioSnapshot is the immutable end-of-month state of the simulated
// portfolio. Snapshots form an ordered, append-only sequence.
type PortfolioSnapshot struct {
	Date          time.Time        `json:"date"`
	Value         float64          `json:"value"`
	Holdings      map[string]int64 `json:"holdings"` // ticker -> shares
	MonthlyReturn float64          `json:"monthly_return"`
	Contribution  float64          `json:"contribution"`
}
