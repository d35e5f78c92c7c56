package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validParams() BacktestParams {
	return BacktestParams{
		Assets: []AssetConfig{
			{Ticker: "VTI", TargetAllocation: 0.6},
			{Ticker: "BND", TargetAllocation: 0.4},
		},
		StartDate:           time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:             time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital:      10000,
		MonthlyContribution: 500,
		RebalanceFrequency:  RebalanceMonthly,
	}
}

func TestBacktestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*BacktestParams)
		wantErr string
	}{
		{name: "valid", mutate: func(p *BacktestParams) {}},
		{
			name:    "no assets",
			mutate:  func(p *BacktestParams) { p.Assets = nil },
			wantErr: "at least one asset",
		},
		{
			name:    "empty ticker",
			mutate:  func(p *BacktestParams) { p.Assets[0].Ticker = "" },
			wantErr: "must not be empty",
		},
		{
			name:    "duplicate ticker",
			mutate:  func(p *BacktestParams) { p.Assets[1].Ticker = "VTI" },
			wantErr: "duplicate",
		},
		{
			name:    "zero allocation",
			mutate:  func(p *BacktestParams) { p.Assets[0].TargetAllocation = 0 },
			wantErr: "target allocation",
		},
		{
			name:    "allocation above one",
			mutate:  func(p *BacktestParams) { p.Assets[0].TargetAllocation = 1.2 },
			wantErr: "target allocation",
		},
		{
			name:    "allocations sum above one",
			mutate:  func(p *BacktestParams) { p.Assets[0].TargetAllocation = 0.7 },
			wantErr: "must not exceed 1.0",
		},
		{
			name:    "negative dividend yield",
			mutate:  func(p *BacktestParams) { p.Assets[0].AverageDividendYield = -0.01 },
			wantErr: "dividend yield",
		},
		{
			name:    "end before start",
			mutate:  func(p *BacktestParams) { p.EndDate = p.StartDate.AddDate(-1, 0, 0) },
			wantErr: "end date",
		},
		{
			name:    "negative initial capital",
			mutate:  func(p *BacktestParams) { p.InitialCapital = -1 },
			wantErr: "initial capital",
		},
		{
			name:    "negative contribution",
			mutate:  func(p *BacktestParams) { p.MonthlyContribution = -1 },
			wantErr: "monthly contribution",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validParams()
			tt.mutate(&params)

			err := params.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestBacktestParamsAllocationsNeedNotSumToOne(t *testing.T) {
	params := validParams()
	params.Assets[1].TargetAllocation = 0.3
	assert.NoError(t, params.Validate())
}

func TestRebalanceFrequencyMonths(t *testing.T) {
	assert.Equal(t, 1, RebalanceMonthly.Months())
	assert.Equal(t, 3, RebalanceQuarterly.Months())
	assert.Equal(t, 12, RebalanceYearly.Months())
	assert.Equal(t, 1, RebalanceFrequency("bogus").Months())
}
