package domain

import "time"

// MonthStart truncates t to the first day of its month in UTC.
// The simulation operates on a first-of-month grid.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths returns the month-grid date n months after t.
func AddMonths(t time.Time, n int) time.Time {
	return MonthStart(t).AddDate(0, n, 0)
}

// MonthsBetween returns the number of month steps from start to end on the
// month grid, inclusive of both endpoints. Returns 0 when end is before
// start.
func MonthsBetween(start, end time.Time) int {
	s := MonthStart(start)
	e := MonthStart(end)
	if e.Before(s) {
		return 0
	}
	return (e.Year()-s.Year())*12 + int(e.Month()) - int(s.Month()) + 1
}

// MonthGrid returns the inclusive sequence of first-of-month dates from
// start to end.
func MonthGrid(start, end time.Time) []time.Time {
	n := MonthsBetween(start, end)
	grid := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		grid = append(grid, AddMonths(start, i))
	}
	return grid
}
