package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/rs/zerolog"
)

// MinSellValue is the smallest rebalance sell worth executing. Smaller sells
// are deferred (the position is held unchanged) to avoid churn.
const MinSellValue = 100.0

// RebalanceInput is the per-month context for one rebalancing pass.
type RebalanceInput struct {
	Month  int
	Date   time.Time
	Assets []domain.AssetConfig // Configured assets, in caller order
	Prices map[string]float64   // Tickers with a known price this month
	// AllowSells enables the sell phase. Non-rebalance months still run the
	// buy phase to deploy the month's contribution.
	AllowSells bool
}

// rebalancePlanEntry is the computed net position change for one asset.
type rebalancePlanEntry struct {
	ticker    string
	price     float64
	shares    int64
	netChange int64   // target shares - current shares
	deviation float64 // target weight - current weight
	profit    float64 // unrealized gain fraction, for sell ordering
}

// Rebalancer moves a portfolio toward its target weights using the
// net-position method: one net share change per asset per pass, so an asset
// is never sold and bought in the same month.
type Rebalancer struct {
	log zerolog.Logger
}

// NewRebalancer creates a new allocation rebalancer
func NewRebalancer(log zerolog.Logger) *Rebalancer {
	return &Rebalancer{
		log: log.With().Str("component", "rebalancer").Logger(),
	}
}

// Rebalance computes and executes one rebalancing pass, mutating holdings
// and booking every trade through the ledger.
//
// Target values use an asymmetric basis: overallocated assets are measured
// against the current holdings value only (keeping sells modest), while
// underallocated assets are measured against holdings value plus idle cash
// (deploying that cash into underweight positions). Assets without a price
// this month are excluded and the remaining targets renormalized; excluded
// assets keep their shares untouched.
func (r *Rebalancer) Rebalance(
	in RebalanceInput,
	holdings map[string]*domain.Holding,
	ledger *CashLedger,
) error {
	plan := r.buildPlan(in, holdings, ledger.Balance())
	if len(plan) == 0 {
		return nil
	}

	sold := make(map[string]bool)
	bought := make(map[string]bool)

	// Phase 1: sells, most profitable positions first.
	sellsExecuted := 0
	if in.AllowSells {
		sells := filterPlan(plan, func(e rebalancePlanEntry) bool { return e.netChange < 0 })
		sort.SliceStable(sells, func(i, j int) bool {
			if sells[i].profit != sells[j].profit {
				return sells[i].profit > sells[j].profit
			}
			return sells[i].ticker < sells[j].ticker
		})

		for _, entry := range sells {
			sellShares := -entry.netChange
			proceeds := float64(sellShares) * entry.price

			if proceeds < MinSellValue {
				r.log.Debug().
					Str("ticker", entry.ticker).
					Float64("value", proceeds).
					Msg("Deferring sell below minimum value")
				continue
			}

			holding := holdings[entry.ticker]
			// Average-cost method: the cost basis drops by the average cost
			// of the shares sold, not by the sale proceeds.
			avgCost := 0.0
			if holding.Shares > 0 {
				avgCost = holding.TotalInvested / float64(holding.Shares)
			}
			holding.Shares -= sellShares
			holding.TotalInvested -= avgCost * float64(sellShares)
			if holding.TotalInvested < 0 {
				holding.TotalInvested = 0
			}

			err := ledger.Credit(proceeds, domain.TxRebalanceSell, TxMeta{
				Month:         in.Month,
				Date:          in.Date,
				Ticker:        entry.ticker,
				Price:         entry.price,
				SharesAdded:   -sellShares,
				TotalShares:   holding.Shares,
				TotalInvested: holding.TotalInvested,
			})
			if err != nil {
				return fmt.Errorf("failed to book sell for %s: %w", entry.ticker, err)
			}

			sold[entry.ticker] = true
			sellsExecuted++
		}
	}

	// Phase 2: buys, largest deviation from target first, limited to cash
	// actually available after the sells.
	buys := filterPlan(plan, func(e rebalancePlanEntry) bool { return e.netChange > 0 })
	sort.SliceStable(buys, func(i, j int) bool {
		if buys[i].deviation != buys[j].deviation {
			return buys[i].deviation > buys[j].deviation
		}
		return buys[i].ticker < buys[j].ticker
	})

	buyType := domain.TxContribution
	if sellsExecuted > 0 {
		buyType = domain.TxRebalanceBuy
	}

	for _, entry := range buys {
		if sold[entry.ticker] {
			return fmt.Errorf("ticker %s appears in both sell and buy phase in month %d", entry.ticker, in.Month)
		}

		affordable := int64(math.Floor((ledger.Balance() + 1e-9) / entry.price))
		n := entry.netChange
		if affordable < n {
			n = affordable
		}
		if n <= 0 {
			continue
		}

		cost := float64(n) * entry.price
		holding := holdings[entry.ticker]
		holding.Shares += n
		holding.TotalInvested += cost

		err := ledger.Debit(cost, buyType, TxMeta{
			Month:         in.Month,
			Date:          in.Date,
			Ticker:        entry.ticker,
			Price:         entry.price,
			SharesAdded:   n,
			TotalShares:   holding.Shares,
			TotalInvested: holding.TotalInvested,
		})
		if err != nil {
			return fmt.Errorf("failed to book buy for %s: %w", entry.ticker, err)
		}

		bought[entry.ticker] = true
	}

	// Phase 3: cash that could not buy a single share anywhere is carried
	// forward, not lost and not force-invested.
	if len(buys) > 0 && ledger.Balance() > OverdrawTolerance {
		ledger.Reserve(ledger.Balance(), TxMeta{Month: in.Month, Date: in.Date})
	}

	if sellsExecuted > 0 || len(bought) > 0 {
		r.log.Debug().
			Int("month", in.Month).
			Int("sells", sellsExecuted).
			Int("buys", len(bought)).
			Float64("cash_after", ledger.Balance()).
			Msg("Rebalance pass completed")
	}

	return nil
}

// buildPlan computes the net share change per asset with a known price.
// Targets are renormalized across the assets that have prices this month.
func (r *Rebalancer) buildPlan(
	in RebalanceInput,
	holdings map[string]*domain.Holding,
	cash float64,
) []rebalancePlanEntry {
	// Keep only configured assets with a usable price this month.
	type activeAsset struct {
		cfg   domain.AssetConfig
		price float64
	}
	var active []activeAsset
	var targetSum float64
	for _, cfg := range in.Assets {
		price, ok := in.Prices[cfg.Ticker]
		if !ok || price <= 0 {
			continue
		}
		active = append(active, activeAsset{cfg: cfg, price: price})
		targetSum += cfg.TargetAllocation
	}
	if len(active) == 0 || targetSum <= 0 {
		return nil
	}

	// Holdings value over priced assets only. Unpriced assets keep their
	// shares but cannot be valued or traded this month.
	var holdingsValue float64
	for _, a := range active {
		if h := holdings[a.cfg.Ticker]; h != nil {
			holdingsValue += float64(h.Shares) * a.price
		}
	}
	total := holdingsValue + cash
	if total <= 0 {
		return nil
	}

	plan := make([]rebalancePlanEntry, 0, len(active))
	for _, a := range active {
		target := a.cfg.TargetAllocation / targetSum

		var shares int64
		var invested float64
		if h := holdings[a.cfg.Ticker]; h != nil {
			shares = h.Shares
			invested = h.TotalInvested
		}

		currentValue := float64(shares) * a.price
		currentAlloc := currentValue / total

		// Asymmetric target basis, see method doc.
		var targetValue float64
		if currentAlloc > target {
			targetValue = holdingsValue * target
		} else {
			targetValue = (holdingsValue + cash) * target
		}

		targetShares := int64(math.Floor(targetValue / a.price))
		if targetShares < 0 {
			targetShares = 0
		}

		profit := 0.0
		if shares > 0 && invested > 0 {
			avgCost := invested / float64(shares)
			profit = (a.price - avgCost) / avgCost
		}

		plan = append(plan, rebalancePlanEntry{
			ticker:    a.cfg.Ticker,
			price:     a.price,
			shares:    shares,
			netChange: targetShares - shares,
			deviation: target - currentAlloc,
			profit:    profit,
		})
	}

	return plan
}

func filterPlan(plan []rebalancePlanEntry, keep func(rebalancePlanEntry) bool) []rebalancePlanEntry {
	var out []rebalancePlanEntry
	for _, e := range plan {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
