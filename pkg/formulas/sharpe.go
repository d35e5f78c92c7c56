package formulas

// CalculateSharpeRatio calculates the Sharpe Ratio from annualized inputs
//
// Sharpe Ratio Formula:
//
//	Sharpe = (Annualized Return - Risk-free Rate) / Annualized Volatility
//
// Args:
//
//	annualizedReturn: Annualized portfolio return (as decimal)
//	riskFreeRate: Risk-free rate (annual, as decimal, e.g., 0.02 for 2%)
//	volatility: Annualized volatility of returns
//
// Returns:
//
//	Sharpe ratio, or nil when volatility is zero or either operand is not
//	finite. Callers must never receive NaN or Inf from this function.
func CalculateSharpeRatio(annualizedReturn, riskFreeRate, volatility float64) *float64 {
	if volatility == 0 {
		return nil
	}
	if !IsFinite(annualizedReturn) || !IsFinite(volatility) {
		return nil
	}

	sharpe := (annualizedReturn - riskFreeRate) / volatility
	if !IsFinite(sharpe) {
		return nil
	}
	return &sharpe
}
