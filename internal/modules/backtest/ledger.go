// Package backtest implements the portfolio backtest simulation engine:
// a month-by-month replay of a target allocation against historical prices,
// with dividend accrual, contribution investing and periodic rebalancing,
// all booked through an append-only cash ledger.
package backtest

import (
	"fmt"
	"time"

	"github.com/aristath/backtester/internal/domain"
)

// OverdrawTolerance is the rounding slack allowed on the cash balance.
// A debit that would push the balance below -OverdrawTolerance is a
// programming error in the caller: the rebalancer and dividend calculator
// are responsible for only issuing debits they can afford.
const OverdrawTolerance = 0.01

// TxMeta carries the position context recorded on a journal entry.
type TxMeta struct {
	Month          int
	Date           time.Time
	Ticker         string
	Price          float64
	SharesAdded    int64
	TotalShares    int64
	TotalInvested  float64
	DividendAmount *float64
}

// CashLedger is an append-only account of credits and debits with a running
// balance. Every mutation produces exactly one journal entry; the journal is
// never rewritten.
type CashLedger struct {
	balance float64
	journal []domain.MonthlyAssetTransaction
}

// NewCashLedger creates an empty ledger.
func NewCashLedger() *CashLedger {
	return &CashLedger{}
}

// Balance returns the current cash balance.
func (l *CashLedger) Balance() float64 {
	return l.balance
}

// Credit increases the balance and appends a journal entry.
// The transaction type must be a credit type.
func (l *CashLedger) Credit(amount float64, txType domain.TransactionType, meta TxMeta) error {
	if !txType.IsCredit() {
		return fmt.Errorf("transaction type %s is not a credit", txType)
	}
	if amount < 0 {
		return fmt.Errorf("credit amount must not be negative, got %f", amount)
	}

	l.balance += amount
	l.journal = append(l.journal, entryFromMeta(amount, txType, meta))
	return nil
}

// Debit decreases the balance and appends a journal entry. A debit that
// would overdraw the balance beyond OverdrawTolerance fails loudly rather
// than clamping: any such call is a bug in the caller.
func (l *CashLedger) Debit(amount float64, txType domain.TransactionType, meta TxMeta) error {
	if !txType.IsDebit() {
		return fmt.Errorf("transaction type %s is not a debit", txType)
	}
	if amount < 0 {
		return fmt.Errorf("debit amount must not be negative, got %f", amount)
	}
	if l.balance-amount < -OverdrawTolerance {
		return fmt.Errorf("debit of %.2f would overdraw balance %.2f", amount, l.balance)
	}

	l.balance -= amount
	l.journal = append(l.journal, entryFromMeta(-amount, txType, meta))
	return nil
}

// Reserve records idle cash carried forward into the next month. The balance
// is unchanged; the entry only documents that the cash could not be deployed.
func (l *CashLedger) Reserve(amount float64, meta TxMeta) {
	reserved := amount
	entry := entryFromMeta(0, domain.TxCashReserve, meta)
	entry.CashReserved = &reserved
	l.journal = append(l.journal, entry)
}

// Journal returns the full transaction journal in booking order.
func (l *CashLedger) Journal() []domain.MonthlyAssetTransaction {
	return l.journal
}

// MonthJournal returns the journal entries booked during the given month.
func (l *CashLedger) MonthJournal(month int) []domain.MonthlyAssetTransaction {
	var entries []domain.MonthlyAssetTransaction
	for _, tx := range l.journal {
		if tx.Month == month {
			entries = append(entries, tx)
		}
	}
	return entries
}

func entryFromMeta(signedAmount float64, txType domain.TransactionType, meta TxMeta) domain.MonthlyAssetTransaction {
	return domain.MonthlyAssetTransaction{
		Month:          meta.Month,
		Date:           meta.Date,
		Ticker:         meta.Ticker,
		Type:           txType,
		Contribution:   signedAmount,
		Price:          meta.Price,
		SharesAdded:    meta.SharesAdded,
		TotalShares:    meta.TotalShares,
		TotalInvested:  meta.TotalInvested,
		DividendAmount: meta.DividendAmount,
	}
}
