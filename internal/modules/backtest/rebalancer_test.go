package backtest

import (
	"testing"

	"github.com/aristath/backtester/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHoldings(assets []domain.AssetConfig) map[string]*domain.Holding {
	holdings := make(map[string]*domain.Holding, len(assets))
	for _, a := range assets {
		holdings[a.Ticker] = &domain.Holding{}
	}
	return holdings
}

func TestRebalanceInitialAllocation(t *testing.T) {
	r := NewRebalancer(zerolog.Nop())
	assets := []domain.AssetConfig{
		{Ticker: "VTI", TargetAllocation: 0.6},
		{Ticker: "BND", TargetAllocation: 0.4},
	}
	holdings := newTestHoldings(assets)
	ledger := NewCashLedger()
	require.NoError(t, ledger.Credit(10000, domain.TxCashCredit, TxMeta{}))

	err := r.Rebalance(RebalanceInput{
		Month:  0,
		Date:   txDate(),
		Assets: assets,
		Prices: map[string]float64{"VTI": 100, "BND": 50},
	}, holdings, ledger)
	require.NoError(t, err)

	assert.Equal(t, int64(60), holdings["VTI"].Shares)
	assert.Equal(t, int64(80), holdings["BND"].Shares)
	assert.InDelta(t, 6000.0, holdings["VTI"].TotalInvested, 1e-9)
	assert.InDelta(t, 4000.0, holdings["BND"].TotalInvested, 1e-9)
	assert.InDelta(t, 0.0, ledger.Balance(), 1e-9)

	// No sells happened, so the buys are plain contributions.
	for _, tx := range ledger.MonthJournal(0) {
		if tx.Type != domain.TxCashCredit {
			assert.Equal(t, domain.TxContribution, tx.Type)
		}
	}
}

func TestRebalanceWholeSharesAndReserve(t *testing.T) {
	r := NewRebalancer(zerolog.Nop())
	assets := []domain.AssetConfig{{Ticker: "VTI", TargetAllocation: 1.0}}
	holdings := newTestHoldings(assets)
	ledger := NewCashLedger()
	require.NoError(t, ledger.Credit(1000, domain.TxCashCredit, TxMeta{}))

	err := r.Rebalance(RebalanceInput{
		Month:  0,
		Date:   txDate(),
		Assets: assets,
		Prices: map[string]float64{"VTI": 333},
	}, holdings, ledger)
	require.NoError(t, err)

	// Shares are whole: 3 x 333 = 999, the single leftover unit is reserved.
	assert.Equal(t, int64(3), holdings["VTI"].Shares)
	assert.InDelta(t, 1.0, ledger.Balance(), 1e-9)

	journal := ledger.Journal()
	last := journal[len(journal)-1]
	assert.Equal(t, domain.TxCashReserve, last.Type)
	require.NotNil(t, last.CashReserved)
	assert.InDelta(t, 1.0, *last.CashReserved, 1e-9)
}

func TestRebalanceSmallSellDeferred(t *testing.T) {
	r := NewRebalancer(zerolog.Nop())
	assets := []domain.AssetConfig{
		{Ticker: "VTI", TargetAllocation: 0.5},
		{Ticker: "BND", TargetAllocation: 0.5},
	}
	holdings := map[string]*domain.Holding{
		"VTI": {Shares: 10, TotalInvested: 100},
		"BND": {Shares: 9, TotalInvested: 90},
	}
	ledger := NewCashLedger()

	err := r.Rebalance(RebalanceInput{
		Month:      6,
		Date:       txDate(),
		Assets:     assets,
		Prices:     map[string]float64{"VTI": 10, "BND": 10},
		AllowSells: true,
	}, holdings, ledger)
	require.NoError(t, err)

	// The one-share sell is worth 10, under the minimum, so the position
	// is left alone.
	assert.Equal(t, int64(10), holdings["VTI"].Shares)
	assert.Equal(t, int64(9), holdings["BND"].Shares)
	assert.Empty(t, ledger.Journal())
}

func TestRebalanceSellThenBuy(t *testing.T) {
	r := NewRebalancer(zerolog.Nop())
	assets := []domain.AssetConfig{
		{Ticker: "VTI", TargetAllocation: 0.5},
		{Ticker: "BND", TargetAllocation: 0.5},
	}
	holdings := map[string]*domain.Holding{
		"VTI": {Shares: 100, TotalInvested: 500},
		"BND": {},
	}
	ledger := NewCashLedger()

	err := r.Rebalance(RebalanceInput{
		Month:      12,
		Date:       txDate(),
		Assets:     assets,
		Prices:     map[string]float64{"VTI": 10, "BND": 10},
		AllowSells: true,
	}, holdings, ledger)
	require.NoError(t, err)

	// Overweight half of VTI is sold down to target on the holdings-only
	// basis, proceeds fund the BND buy.
	assert.Equal(t, int64(50), holdings["VTI"].Shares)
	assert.Equal(t, int64(50), holdings["BND"].Shares)

	// Cost basis falls by average cost, not by proceeds.
	assert.InDelta(t, 250.0, holdings["VTI"].TotalInvested, 1e-9)
	assert.InDelta(t, 500.0, holdings["BND"].TotalInvested, 1e-9)

	var sells, buys int
	for _, tx := range ledger.Journal() {
		switch tx.Type {
		case domain.TxRebalanceSell:
			sells++
			assert.Equal(t, "VTI", tx.Ticker)
		case domain.TxRebalanceBuy:
			buys++
			assert.Equal(t, "BND", tx.Ticker)
		}
	}
	assert.Equal(t, 1, sells)
	assert.Equal(t, 1, buys)
	assert.InDelta(t, 0.0, ledger.Balance(), 1e-9)
}

func TestRebalanceSellsDisabled(t *testing.T) {
	r := NewRebalancer(zerolog.Nop())
	assets := []domain.AssetConfig{
		{Ticker: "VTI", TargetAllocation: 0.5},
		{Ticker: "BND", TargetAllocation: 0.5},
	}
	holdings := map[string]*domain.Holding{
		"VTI": {Shares: 100, TotalInvested: 500},
		"BND": {},
	}
	ledger := NewCashLedger()

	err := r.Rebalance(RebalanceInput{
		Month:      1,
		Date:       txDate(),
		Assets:     assets,
		Prices:     map[string]float64{"VTI": 10, "BND": 10},
		AllowSells: false,
	}, holdings, ledger)
	require.NoError(t, err)

	// No cash and no sells: nothing moves.
	assert.Equal(t, int64(100), holdings["VTI"].Shares)
	assert.Equal(t, int64(0), holdings["BND"].Shares)
}

func TestRebalanceUnpricedAssetExcluded(t *testing.T) {
	r := NewRebalancer(zerolog.Nop())
	assets := []domain.AssetConfig{
		{Ticker: "VTI", TargetAllocation: 0.6},
		{Ticker: "BND", TargetAllocation: 0.4},
	}
	holdings := newTestHoldings(assets)
	holdings["BND"].Shares = 7
	ledger := NewCashLedger()
	require.NoError(t, ledger.Credit(1000, domain.TxCashCredit, TxMeta{}))

	// BND has no quote this month: its target renormalizes onto VTI and its
	// shares are untouched.
	err := r.Rebalance(RebalanceInput{
		Month:  2,
		Date:   txDate(),
		Assets: assets,
		Prices: map[string]float64{"VTI": 100},
	}, holdings, ledger)
	require.NoError(t, err)

	assert.Equal(t, int64(10), holdings["VTI"].Shares)
	assert.Equal(t, int64(7), holdings["BND"].Shares)
}

func TestRebalanceSellOrderByProfitability(t *testing.T) {
	r := NewRebalancer(zerolog.Nop())
	assets := []domain.AssetConfig{
		{Ticker: "AAA", TargetAllocation: 0.2},
		{Ticker: "BBB", TargetAllocation: 0.2},
		{Ticker: "CCC", TargetAllocation: 0.6},
	}
	holdings := map[string]*domain.Holding{
		"AAA": {Shares: 100, TotalInvested: 900}, // +11% unrealized
		"BBB": {Shares: 100, TotalInvested: 500}, // +100% unrealized
		"CCC": {},
	}
	ledger := NewCashLedger()

	err := r.Rebalance(RebalanceInput{
		Month:      12,
		Date:       txDate(),
		Assets:     assets,
		Prices:     map[string]float64{"AAA": 10, "BBB": 10, "CCC": 10},
		AllowSells: true,
	}, holdings, ledger)
	require.NoError(t, err)

	var sellOrder []string
	for _, tx := range ledger.Journal() {
		if tx.Type == domain.TxRebalanceSell {
			sellOrder = append(sellOrder, tx.Ticker)
		}
	}
	require.Len(t, sellOrder, 2)
	assert.Equal(t, []string{"BBB", "AAA"}, sellOrder, "most profitable position sells first")
}
