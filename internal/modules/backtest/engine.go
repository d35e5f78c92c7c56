package backtest

import (
	"fmt"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/marketdata"
	"github.com/rs/zerolog"
)

// MarketData is the prepared input for one simulation run: one normalized
// series per ticker over the adjusted range, plus dividend events for assets
// simulated in event mode.
type MarketData struct {
	Series    map[string]marketdata.NormalizedSeries
	Dividends map[string][]domain.DividendEvent
	Range     marketdata.AdjustedRange
	Issues    []string
}

// Engine runs the month-by-month simulation loop. It is deterministic:
// the same parameters and market data always produce the same result.
type Engine struct {
	rebalancer *Rebalancer
	dividends  *DividendCalculator
	metrics    *MetricsCalculator
	log        zerolog.Logger
}

// NewEngine creates a new simulation engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		rebalancer: NewRebalancer(log),
		dividends:  NewDividendCalculator(log),
		metrics:    NewMetricsCalculator(log),
		log:        log.With().Str("component", "engine").Logger(),
	}
}

// Run simulates the portfolio over the adjusted range. Month 0 invests the
// initial capital; every later month accrues dividends, adds the monthly
// contribution, and rebalances (sells only on frequency-aligned months).
func (e *Engine) Run(params domain.BacktestParams, data MarketData) (*domain.AdaptiveBacktestResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest parameters: %w", err)
	}

	grid := domain.MonthGrid(data.Range.Start, data.Range.End)
	if len(grid) < 2 {
		return nil, domain.ErrInsufficientData
	}

	freqMonths := params.RebalanceFrequency.Months()

	ledger := NewCashLedger()
	holdings := make(map[string]*domain.Holding, len(params.Assets))
	for _, asset := range params.Assets {
		holdings[asset.Ticker] = &domain.Holding{}
	}

	result := &domain.AdaptiveBacktestResult{
		RequestedStartDate: params.StartDate,
		RequestedEndDate:   params.EndDate,
		EffectiveStartDate: data.Range.Start,
		EffectiveEndDate:   data.Range.End,
		Months:             len(grid),
		DataQualityIssues:  append([]string(nil), data.Issues...),
	}

	// Last known price per ticker, for valuing held shares in months where
	// that ticker has no quote.
	lastPrice := make(map[string]float64, len(params.Assets))

	snapshots := make([]domain.PortfolioSnapshot, 0, len(grid))
	history := make([]domain.MonthlyPortfolioHistory, 0, len(grid))

	var cumulativeContribution float64
	var cumulativeDividends float64
	var prevValue float64

	for month, date := range grid {
		prices := e.monthPrices(params, data, date, lastPrice)

		// Dividends accrue on shares held entering the month, before any
		// trading. Yield mode when the asset configures an average yield,
		// event mode from recorded ex-dates otherwise.
		var monthDividends float64
		if month > 0 {
			for _, asset := range params.Assets {
				holding := holdings[asset.Ticker]
				price := lastPrice[asset.Ticker]

				var credited float64
				var err error
				if asset.AverageDividendYield > 0 {
					credited, err = e.dividends.AccrueYield(month, date, asset.Ticker, holding, price, asset.AverageDividendYield, ledger)
				} else {
					credited, err = e.dividends.AccrueEvents(month, date, asset.Ticker, holding, data.Dividends[asset.Ticker], ledger)
				}
				if err != nil {
					return nil, fmt.Errorf("failed to accrue dividends for %s in month %d: %w", asset.Ticker, month, err)
				}
				monthDividends += credited
			}
		}
		cumulativeDividends += monthDividends

		// External cash flowing in this month, needed to strip flows out of
		// the monthly return.
		var monthFlow float64
		if month == 0 {
			if params.InitialCapital > 0 {
				if err := ledger.Credit(params.InitialCapital, domain.TxCashCredit, TxMeta{Month: month, Date: date}); err != nil {
					return nil, fmt.Errorf("failed to credit initial capital: %w", err)
				}
				monthFlow = params.InitialCapital
			}
		} else if params.MonthlyContribution > 0 {
			if len(prices) == 0 {
				// Nothing to buy and nothing to value: the contribution is
				// skipped entirely, not banked.
				result.MissedContributions++
				result.MissedAmount += params.MonthlyContribution
				result.DataQualityIssues = append(result.DataQualityIssues,
					fmt.Sprintf("contribution skipped in %s: no asset had price data", date.Format("2006-01")))
			} else {
				if err := ledger.Credit(params.MonthlyContribution, domain.TxCashCredit, TxMeta{Month: month, Date: date}); err != nil {
					return nil, fmt.Errorf("failed to credit contribution in month %d: %w", month, err)
				}
				monthFlow = params.MonthlyContribution
			}
		}
		cumulativeContribution += monthFlow

		allowSells := month > 0 && month%freqMonths == 0
		err := e.rebalancer.Rebalance(RebalanceInput{
			Month:      month,
			Date:       date,
			Assets:     params.Assets,
			Prices:     prices,
			AllowSells: allowSells,
		}, holdings, ledger)
		if err != nil {
			return nil, fmt.Errorf("rebalance failed in month %d: %w", month, err)
		}

		value := ledger.Balance()
		holdingsMap := make(map[string]int64, len(holdings))
		for _, asset := range params.Assets {
			holding := holdings[asset.Ticker]
			holdingsMap[asset.Ticker] = holding.Shares
			if price, ok := lastPrice[asset.Ticker]; ok {
				value += float64(holding.Shares) * price
			}
		}

		monthlyReturn := 0.0
		if month > 0 && prevValue > 0 {
			monthlyReturn = (value - monthFlow - prevValue) / prevValue
		}
		prevValue = value

		snapshots = append(snapshots, domain.PortfolioSnapshot{
			Date:          date,
			Value:         value,
			Holdings:      holdingsMap,
			MonthlyReturn: monthlyReturn,
			Contribution:  monthFlow,
		})

		history = append(history, domain.MonthlyPortfolioHistory{
			Month:                  month,
			Date:                   date,
			TotalContribution:      cumulativeContribution,
			PortfolioValue:         value,
			CashBalance:            ledger.Balance(),
			TotalDividendsReceived: cumulativeDividends,
			Transactions:           ledger.MonthJournal(month),
		})
	}

	result.FinalValue = prevValue
	result.TotalInvested = cumulativeContribution
	result.TotalDividendsReceived = cumulativeDividends
	result.Snapshots = snapshots
	result.MonthlyHistory = history

	e.metrics.Compute(result, snapshots, params.RiskFreeRate)
	result.AssetPerformance = e.metrics.ComputeAssetPerformance(holdings, lastPrice, ledger.Journal(), result.FinalValue)

	e.log.Info().
		Int("months", result.Months).
		Float64("final_value", result.FinalValue).
		Float64("total_invested", result.TotalInvested).
		Int("missed_contributions", result.MissedContributions).
		Msg("Backtest completed")

	return result, nil
}

// monthPrices collects the quote for each configured asset at the given grid
// date, updating the last-known-price map as a side effect. Assets are walked
// in configuration order so the result is reproducible.
func (e *Engine) monthPrices(
	params domain.BacktestParams,
	data MarketData,
	date time.Time,
	lastPrice map[string]float64,
) map[string]float64 {
	prices := make(map[string]float64, len(params.Assets))
	for _, asset := range params.Assets {
		series, ok := data.Series[asset.Ticker]
		if !ok {
			continue
		}
		if price, found := series.PriceAt(date); found && price > 0 {
			prices[asset.Ticker] = price
			lastPrice[asset.Ticker] = price
		}
	}
	return prices
}
