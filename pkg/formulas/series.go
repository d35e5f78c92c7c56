package formulas

import (
	"github.com/markcheno/go-talib"
)

// FlatSeriesWindow is the rolling window (in months) used to judge whether a
// price series has gone flat.
const FlatSeriesWindow = 6

// RollingStdDev calculates a rolling standard deviation over the given period.
// Returns nil if there is not enough data for a single window.
func RollingStdDev(values []float64, period int) []float64 {
	if period < 2 || len(values) < period {
		return nil
	}
	return talib.StdDev(values, period, 1.0)
}

// IsFlatSeries reports whether the tail of a price series shows no movement
// at all. A normalized series dominated by forward-fills repeats the last
// known price, which shows up as a zero rolling standard deviation.
func IsFlatSeries(values []float64) bool {
	stddev := RollingStdDev(values, FlatSeriesWindow)
	if len(stddev) == 0 {
		return false
	}

	last := stddev[len(stddev)-1]
	return IsFinite(last) && last == 0
}
