package domain

import "time"

// TransactionType is the closed set of ledger entry kinds. Represented as a
// typed string so invalid values cannot be introduced from call sites; use
// Valid() at deserialization boundaries.
type TransactionType string

const (
	TxContribution    TransactionType = "CONTRIBUTION"
	TxRebalanceBuy    TransactionType = "REBALANCE_BUY"
	TxRebalanceSell   TransactionType = "REBALANCE_SELL"
	TxCashReserve     TransactionType = "CASH_RESERVE"
	TxCashCredit      TransactionType = "CASH_CREDIT"
	TxCashDebit       TransactionType = "CASH_DEBIT"
	TxDividendPayment TransactionType = "DIVIDEND_PAYMENT"
)

// Valid reports whether t is a member of the closed transaction type set.
func (t TransactionType) Valid() bool {
	switch t {
	case TxContribution, TxRebalanceBuy, TxRebalanceSell, TxCashReserve,
		TxCashCredit, TxCashDebit, TxDividendPayment:
		return true
	}
	return false
}

// IsCredit reports whether t increases the cash balance.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TxCashCredit, TxDividendPayment, TxRebalanceSell:
		return true
	}
	return false
}

// IsDebit reports whether t decreases the cash balance.
// CASH_RESERVE is neither: it records idle cash carried forward without
// moving the balance.
func (t TransactionType) IsDebit() bool {
	switch t {
	case TxContribution, TxRebalanceBuy, TxCashDebit:
		return true
	}
	return false
}

// MonthlyAssetTransaction is one journal entry. Every cash ledger mutation
// produces exactly one of these.
type MonthlyAssetTransaction struct {
	Month          int             `json:"month"`
	Date           time.Time       `json:"date"`
	Ticker         string          `json:"ticker,omitempty"`
	Type           TransactionType `json:"transaction_type"`
	Contribution   float64         `json:"contribution"` // Signed; negative for sells/debits
	Price          float64         `json:"price,omitempty"`
	SharesAdded    int64           `json:"shares_added"`
	TotalShares    int64           `json:"total_shares"`
	TotalInvested  float64         `json:"total_invested"`
	CashReserved   *float64        `json:"cash_reserved,omitempty"`
	DividendAmount *float64        `json:"dividend_amount,omitempty"`
}

// MonthlyPortfolioHistory is the per-month view of the simulation: the
// closing balances plus every transaction booked during that month.
//
// Accounting identity: CashBalance equals the prior month's CashBalance plus
// the month's credits minus its debits, within 0.01.
type MonthlyPortfolioHistory struct {
	Month                  int                       `json:"month"`
	Date                   time.Time                 `json:"date"`
	TotalContribution      float64                   `json:"total_contribution"`
	PortfolioValue         float64                   `json:"portfolio_value"`
	CashBalance            float64                   `json:"cash_balance"`
	TotalDividendsReceived float64                   `json:"total_dividends_received"`
	Transactions           []MonthlyAssetTransaction `json:"transactions"`
}

// AssetPerformance attributes a slice of the final portfolio to one asset.
type AssetPerformance struct {
	Ticker           string  `json:"ticker"`
	Shares           int64   `json:"shares"`
	FinalValue       float64 `json:"final_value"`
	TotalContributed float64 `json:"total_contributed"`
	Return           float64 `json:"return"`
}

// AdaptiveBacktestResult is the full output of one simulation run.
type AdaptiveBacktestResult struct {
	RequestedStartDate time.Time `json:"requested_start_date"`
	RequestedEndDate   time.Time `json:"requested_end_date"`
	EffectiveStartDate time.Time `json:"effective_start_date"`
	EffectiveEndDate   time.Time `json:"effective_end_date"`
	Months             int       `json:"months"`

	FinalValue       float64  `json:"final_value"`
	TotalInvested    float64  `json:"total_invested"`
	TotalReturn      float64  `json:"total_return"`
	AnnualizedReturn float64  `json:"annualized_return"`
	Volatility       float64  `json:"volatility"`
	SharpeRatio      *float64 `json:"sharpe_ratio"` // nil when volatility is zero
	MaxDrawdown      float64  `json:"max_drawdown"`
	PositiveMonths   int      `json:"positive_months"`
	NegativeMonths   int      `json:"negative_months"`

	TotalDividendsReceived float64 `json:"total_dividends_received"`
	MissedContributions    int     `json:"missed_contributions"`
	MissedAmount           float64 `json:"missed_amount"`

	DataQualityIssues []string           `json:"data_quality_issues,omitempty"`
	AssetPerformance  []AssetPerformance `json:"asset_performance"`

	Snapshots      []PortfolioSnapshot       `json:"snapshots"`
	MonthlyHistory []MonthlyPortfolioHistory `json:"monthly_history"`
}
