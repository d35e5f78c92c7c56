package backtest

import (
	"math"
	"sort"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/pkg/formulas"
	"github.com/rs/zerolog"
)

// MetricsCalculator derives summary statistics from a completed simulation.
type MetricsCalculator struct {
	log zerolog.Logger
}

// NewMetricsCalculator creates a new metrics calculator
func NewMetricsCalculator(log zerolog.Logger) *MetricsCalculator {
	return &MetricsCalculator{
		log: log.With().Str("component", "metrics").Logger(),
	}
}

// Compute fills the statistical fields of the result from the snapshot
// series. The result must already carry FinalValue, TotalInvested and the
// snapshot history; everything else is derived here.
func (m *MetricsCalculator) Compute(
	result *domain.AdaptiveBacktestResult,
	snapshots []domain.PortfolioSnapshot,
	riskFreeRate float64,
) {
	if result.TotalInvested > 0 {
		result.TotalReturn = (result.FinalValue - result.TotalInvested) / result.TotalInvested
	}

	if result.Months > 0 && result.TotalInvested > 0 && result.FinalValue > 0 {
		result.AnnualizedReturn = math.Pow(result.FinalValue/result.TotalInvested, 12.0/float64(result.Months)) - 1
	}

	monthlyReturns := make([]float64, 0, len(snapshots))
	values := make([]float64, 0, len(snapshots))
	for _, snap := range snapshots {
		values = append(values, snap.Value)
		if snap.MonthlyReturn > 0 {
			result.PositiveMonths++
		} else if snap.MonthlyReturn < 0 {
			result.NegativeMonths++
		}
		monthlyReturns = append(monthlyReturns, snap.MonthlyReturn)
	}

	// First month has no prior value to measure a return against.
	if len(monthlyReturns) > 1 {
		result.Volatility = formulas.AnnualizedVolatility(monthlyReturns[1:])
	}

	result.SharpeRatio = formulas.CalculateSharpeRatio(result.AnnualizedReturn, riskFreeRate, result.Volatility)
	result.MaxDrawdown = formulas.CalculateMaxDrawdown(values)

	m.log.Debug().
		Float64("total_return", result.TotalReturn).
		Float64("volatility", result.Volatility).
		Float64("max_drawdown", result.MaxDrawdown).
		Msg("Computed portfolio metrics")
}

// ComputeAssetPerformance builds the per-asset breakdown at final prices.
// Net contribution per asset is buys minus sell proceeds from the journal;
// when an asset has holdings but no journal entries the invested total from
// the holding itself is used. An asset holding shares without any final
// price is valued pro-rata: its contribution share of the total portfolio
// value.
func (m *MetricsCalculator) ComputeAssetPerformance(
	holdings map[string]*domain.Holding,
	finalPrices map[string]float64,
	journal []domain.MonthlyAssetTransaction,
	portfolioValue float64,
) []domain.AssetPerformance {
	// Journal amounts are signed from the cash side, so money flowing into
	// an asset is the negation: buys add, sell proceeds subtract.
	netContributed := make(map[string]float64)
	for _, tx := range journal {
		switch tx.Type {
		case domain.TxContribution, domain.TxRebalanceBuy, domain.TxRebalanceSell:
			netContributed[tx.Ticker] -= tx.Contribution
		}
	}

	tickers := make([]string, 0, len(holdings))
	for ticker := range holdings {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	var totalContributed float64
	for _, ticker := range tickers {
		contributed, ok := netContributed[ticker]
		if !ok {
			contributed = holdings[ticker].TotalInvested
		}
		if contributed > 0 {
			totalContributed += contributed
		}
	}

	out := make([]domain.AssetPerformance, 0, len(tickers))
	for _, ticker := range tickers {
		holding := holdings[ticker]

		contributed, ok := netContributed[ticker]
		if !ok {
			contributed = holding.TotalInvested
		}

		finalValue := 0.0
		if price, ok := finalPrices[ticker]; ok && price > 0 {
			finalValue = float64(holding.Shares) * price
		} else if holding.Shares > 0 && contributed > 0 && totalContributed > 0 {
			finalValue = portfolioValue * (contributed / totalContributed)
		}

		ret := 0.0
		if contributed > 0 {
			ret = (finalValue - contributed) / contributed
		}

		out = append(out, domain.AssetPerformance{
			Ticker:           ticker,
			Shares:           holding.Shares,
			FinalValue:       finalValue,
			TotalContributed: contributed,
			Return:           ret,
		})
	}

	return out
}
