package backtest

import (
	"fmt"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/rs/zerolog"
)

// MinDividendCredit is the smallest dividend amount worth booking. Credits
// below this threshold are discarded to keep ledger noise out of the journal.
const MinDividendCredit = 0.01

// DividendCalculator derives monthly dividend credits for held assets.
// Two modes exist: yield mode (an average annual yield spread evenly over
// twelve months) and event mode (actual ex-dividend events). Both credit
// cash, never shares.
type DividendCalculator struct {
	log zerolog.Logger
}

// NewDividendCalculator creates a new dividend calculator
func NewDividendCalculator(log zerolog.Logger) *DividendCalculator {
	return &DividendCalculator{
		log: log.With().Str("component", "dividends").Logger(),
	}
}

// AccrueYield credits one month of dividends for an asset from its average
// annual yield: monthly rate = annualYield / 12, dividend per share =
// price x monthly rate. Returns the amount credited (0 when below the
// minimum threshold or nothing is held).
func (c *DividendCalculator) AccrueYield(
	month int,
	date time.Time,
	ticker string,
	holding *domain.Holding,
	price float64,
	annualYield float64,
	ledger *CashLedger,
) (float64, error) {
	if holding == nil || holding.Shares <= 0 || annualYield <= 0 || price <= 0 {
		return 0, nil
	}

	monthlyRate := annualYield / 12
	perShare := price * monthlyRate
	total := float64(holding.Shares) * perShare

	if total < MinDividendCredit {
		return 0, nil
	}

	amount := total
	err := ledger.Credit(total, domain.TxDividendPayment, TxMeta{
		Month:          month,
		Date:           date,
		Ticker:         ticker,
		Price:          price,
		TotalShares:    holding.Shares,
		TotalInvested:  holding.TotalInvested,
		DividendAmount: &amount,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to credit dividend for %s: %w", ticker, err)
	}

	return total, nil
}

// AccrueEvents credits dividends for an asset from actual ex-dividend events
// falling inside the given month. Same credit semantics as yield mode,
// different data source; this is the mode the live-portfolio path uses.
func (c *DividendCalculator) AccrueEvents(
	month int,
	date time.Time,
	ticker string,
	holding *domain.Holding,
	events []domain.DividendEvent,
	ledger *CashLedger,
) (float64, error) {
	if holding == nil || holding.Shares <= 0 || len(events) == 0 {
		return 0, nil
	}

	monthStart := domain.MonthStart(date)
	nextMonth := domain.AddMonths(date, 1)

	var credited float64
	for _, event := range events {
		if event.ExDate.Before(monthStart) || !event.ExDate.Before(nextMonth) {
			continue
		}
		if event.AmountPerShare <= 0 {
			continue
		}

		total := float64(holding.Shares) * event.AmountPerShare
		if total < MinDividendCredit {
			continue
		}

		amount := total
		err := ledger.Credit(total, domain.TxDividendPayment, TxMeta{
			Month:          month,
			Date:           date,
			Ticker:         ticker,
			TotalShares:    holding.Shares,
			TotalInvested:  holding.TotalInvested,
			DividendAmount: &amount,
		})
		if err != nil {
			return credited, fmt.Errorf("failed to credit dividend event for %s: %w", ticker, err)
		}
		credited += total
	}

	return credited, nil
}
