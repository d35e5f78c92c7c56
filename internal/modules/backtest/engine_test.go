package backtest

import (
	"testing"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/marketdata"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constantSeries builds a dense monthly series at a fixed price.
func constantSeries(ticker string, start, end time.Time, price float64) marketdata.NormalizedSeries {
	grid := domain.MonthGrid(start, end)
	series := marketdata.NormalizedSeries{Ticker: ticker, Matches: len(grid)}
	for _, date := range grid {
		series.Points = append(series.Points, domain.PricePoint{
			Date: date, Close: price, AdjustedClose: price,
		})
	}
	return series
}

// seriesFromPrices builds a monthly series from explicit per-month prices.
func seriesFromPrices(ticker string, start time.Time, prices []float64) marketdata.NormalizedSeries {
	series := marketdata.NormalizedSeries{Ticker: ticker, Matches: len(prices)}
	for i, price := range prices {
		series.Points = append(series.Points, domain.PricePoint{
			Date: domain.AddMonths(start, i), Close: price, AdjustedClose: price,
		})
	}
	return series
}

func yearRange(start time.Time, months int) marketdata.AdjustedRange {
	return marketdata.AdjustedRange{
		Start:  start,
		End:    domain.AddMonths(start, months-1),
		Months: months,
	}
}

func baseParams(start time.Time, months int) domain.BacktestParams {
	return domain.BacktestParams{
		Assets: []domain.AssetConfig{
			{Ticker: "VTI", TargetAllocation: 1.0},
		},
		StartDate:           start,
		EndDate:             domain.AddMonths(start, months-1),
		InitialCapital:      10000,
		MonthlyContribution: 1000,
		RebalanceFrequency:  domain.RebalanceMonthly,
		RiskFreeRate:        0.0,
	}
}

func TestEngineFlatPriceAccumulation(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	params := baseParams(start, 12)

	data := MarketData{
		Series: map[string]marketdata.NormalizedSeries{
			"VTI": constantSeries("VTI", start, params.EndDate, 100),
		},
		Range: yearRange(start, 12),
	}

	result, err := engine.Run(params, data)
	require.NoError(t, err)

	// 10000 buys 100 shares in month 0, each contribution buys 10 more.
	assert.Equal(t, 12, result.Months)
	assert.InDelta(t, 21000.0, result.TotalInvested, 1e-6)
	assert.InDelta(t, 21000.0, result.FinalValue, 1e-6)
	assert.InDelta(t, 0.0, result.TotalReturn, 1e-9)
	assert.Equal(t, 0, result.MissedContributions)
	assert.Nil(t, result.SharpeRatio)

	require.Len(t, result.Snapshots, 12)
	finalShares := result.Snapshots[11].Holdings["VTI"]
	assert.Equal(t, int64(210), finalShares)

	require.Len(t, result.AssetPerformance, 1)
	assert.InDelta(t, 21000.0, result.AssetPerformance[0].TotalContributed, 1e-6)
}

func TestEngineAccountingIdentity(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	start := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	months := 24

	params := domain.BacktestParams{
		Assets: []domain.AssetConfig{
			{Ticker: "VTI", TargetAllocation: 0.6, AverageDividendYield: 0.02},
			{Ticker: "BND", TargetAllocation: 0.4, AverageDividendYield: 0.03},
		},
		StartDate:           start,
		EndDate:             domain.AddMonths(start, months-1),
		InitialCapital:      25000,
		MonthlyContribution: 500,
		RebalanceFrequency:  domain.RebalanceQuarterly,
		RiskFreeRate:        0.02,
	}

	vtiPrices := make([]float64, months)
	bndPrices := make([]float64, months)
	for i := 0; i < months; i++ {
		vtiPrices[i] = 100 * (1 + 0.01*float64(i))
		bndPrices[i] = 80 * (1 - 0.002*float64(i))
	}

	data := MarketData{
		Series: map[string]marketdata.NormalizedSeries{
			"VTI": seriesFromPrices("VTI", start, vtiPrices),
			"BND": seriesFromPrices("BND", start, bndPrices),
		},
		Range: yearRange(start, months),
	}

	result, err := engine.Run(params, data)
	require.NoError(t, err)

	// The signed journal must reconcile exactly to the final cash balance.
	var journalSum float64
	for _, month := range result.MonthlyHistory {
		for _, tx := range month.Transactions {
			journalSum += tx.Contribution
		}
	}
	finalCash := result.MonthlyHistory[len(result.MonthlyHistory)-1].CashBalance
	assert.InDelta(t, finalCash, journalSum, 1e-6)

	// Final value equals cash plus holdings at final prices.
	last := result.Snapshots[len(result.Snapshots)-1]
	holdingsValue := float64(last.Holdings["VTI"])*vtiPrices[months-1] +
		float64(last.Holdings["BND"])*bndPrices[months-1]
	assert.InDelta(t, finalCash+holdingsValue, result.FinalValue, 1e-6)

	// Cash never went negative in any month.
	for _, month := range result.MonthlyHistory {
		assert.GreaterOrEqual(t, month.CashBalance, -OverdrawTolerance)
	}

	// Dividends accrued on two yielding assets across two years.
	assert.Greater(t, result.TotalDividendsReceived, 0.0)
}

func TestEngineDeterminism(t *testing.T) {
	start := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	months := 18

	params := domain.BacktestParams{
		Assets: []domain.AssetConfig{
			{Ticker: "AAA", TargetAllocation: 0.3, AverageDividendYield: 0.015},
			{Ticker: "BBB", TargetAllocation: 0.3},
			{Ticker: "CCC", TargetAllocation: 0.4},
		},
		StartDate:           start,
		EndDate:             domain.AddMonths(start, months-1),
		InitialCapital:      50000,
		MonthlyContribution: 2000,
		RebalanceFrequency:  domain.RebalanceQuarterly,
	}

	prices := map[string][]float64{}
	for i, ticker := range []string{"AAA", "BBB", "CCC"} {
		series := make([]float64, months)
		for m := 0; m < months; m++ {
			series[m] = float64(50+25*i) * (1 + 0.005*float64((m*7+i*3)%11) - 0.02)
		}
		prices[ticker] = series
	}

	makeData := func() MarketData {
		data := MarketData{
			Series:    map[string]marketdata.NormalizedSeries{},
			Dividends: map[string][]domain.DividendEvent{},
			Range:     yearRange(start, months),
		}
		for ticker, series := range prices {
			data.Series[ticker] = seriesFromPrices(ticker, start, series)
		}
		return data
	}

	first, err := NewEngine(zerolog.Nop()).Run(params, makeData())
	require.NoError(t, err)
	second, err := NewEngine(zerolog.Nop()).Run(params, makeData())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEngineMissedContribution(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	params := baseParams(start, 6)

	// Month 3 has no quote at all.
	series := marketdata.NormalizedSeries{Ticker: "VTI", Matches: 5}
	for i := 0; i < 6; i++ {
		if i == 3 {
			continue
		}
		series.Points = append(series.Points, domain.PricePoint{
			Date: domain.AddMonths(start, i), Close: 100, AdjustedClose: 100,
		})
	}

	data := MarketData{
		Series: map[string]marketdata.NormalizedSeries{"VTI": series},
		Range:  yearRange(start, 6),
	}

	result, err := engine.Run(params, data)
	require.NoError(t, err)

	assert.Equal(t, 1, result.MissedContributions)
	assert.InDelta(t, 1000.0, result.MissedAmount, 1e-9)

	// The skipped month's contribution never entered the total.
	assert.InDelta(t, 10000.0+4*1000.0, result.TotalInvested, 1e-6)

	// The skip is also surfaced as a data-quality issue, month included.
	require.Len(t, result.DataQualityIssues, 1)
	assert.Equal(t, "contribution skipped in 2020-04: no asset had price data", result.DataQualityIssues[0])
}

func TestEngineRejectsShortRange(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	params := baseParams(start, 2)

	data := MarketData{
		Series: map[string]marketdata.NormalizedSeries{
			"VTI": constantSeries("VTI", start, start, 100),
		},
		Range: marketdata.AdjustedRange{Start: start, End: start, Months: 1},
	}

	_, err := engine.Run(params, data)
	require.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestEngineRejectsInvalidParams(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	params := baseParams(start, 12)
	params.Assets = nil

	_, err := engine.Run(params, MarketData{Range: yearRange(start, 12)})
	require.Error(t, err)
}

func TestEngineZeroCapitalRun(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	params := baseParams(start, 12)
	params.InitialCapital = 0
	params.MonthlyContribution = 0

	data := MarketData{
		Series: map[string]marketdata.NormalizedSeries{
			"VTI": constantSeries("VTI", start, params.EndDate, 100),
		},
		Range: yearRange(start, 12),
	}

	result, err := engine.Run(params, data)
	require.NoError(t, err)

	// Nothing in, nothing out; no division blows up along the way.
	assert.InDelta(t, 0.0, result.TotalInvested, 1e-9)
	assert.InDelta(t, 0.0, result.FinalValue, 1e-9)
	assert.InDelta(t, 0.0, result.TotalReturn, 1e-9)
	assert.InDelta(t, 0.0, result.MaxDrawdown, 1e-9)
	assert.Nil(t, result.SharpeRatio)
	assert.Equal(t, int64(0), result.Snapshots[11].Holdings["VTI"])
}
