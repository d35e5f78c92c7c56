package alphavantage

import (
	"encoding/json"
	"fmt"
	"sort"
)

type monthlyAdjustedResponse struct {
	TimeSeries map[string]monthlyAdjustedEntry `json:"Monthly Adjusted Time Series"`
}

type monthlyAdjustedEntry struct {
	Open           string `json:"1. open"`
	High           string `json:"2. high"`
	Low            string `json:"3. low"`
	Close          string `json:"4. close"`
	AdjustedClose  string `json:"5. adjusted close"`
	Volume         string `json:"6. volume"`
	DividendAmount string `json:"7. dividend amount"`
}

// parseMonthlyAdjusted parses a TIME_SERIES_MONTHLY_ADJUSTED response into
// points sorted oldest first.
func parseMonthlyAdjusted(body []byte) ([]MonthlyAdjustedPoint, error) {
	var resp monthlyAdjustedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}

	points := make([]MonthlyAdjustedPoint, 0, len(resp.TimeSeries))
	for dateStr, entry := range resp.TimeSeries {
		date := parseDate(dateStr)
		if date.IsZero() {
			continue
		}

		points = append(points, MonthlyAdjustedPoint{
			Date:           date,
			Open:           parseFloat64(entry.Open),
			High:           parseFloat64(entry.High),
			Low:            parseFloat64(entry.Low),
			Close:          parseFloat64(entry.Close),
			AdjustedClose:  parseFloat64(entry.AdjustedClose),
			Volume:         parseInt64(entry.Volume),
			DividendAmount: parseFloat64(entry.DividendAmount),
		})
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	return points, nil
}
