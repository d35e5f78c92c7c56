// Package alphavantage provides a client for the Alpha Vantage market data
// API, used to sync monthly price history and dividend events.
package alphavantage

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	baseURL = "https://www.alphavantage.co/query"

	// Free-tier daily request budget.
	dailyRequestLimit = 25
)

// ErrRateLimitExceeded is returned when the daily request budget is spent.
type ErrRateLimitExceeded struct{}

func (e ErrRateLimitExceeded) Error() string {
	return "alpha vantage rate limit exceeded, daily budget spent"
}

// ErrInvalidAPIKey is returned when the API rejects the configured key.
type ErrInvalidAPIKey struct{}

func (e ErrInvalidAPIKey) Error() string {
	return "invalid alpha vantage api key"
}

// ErrSymbolNotFound is returned when the API has no data for a symbol.
type ErrSymbolNotFound struct {
	Symbol string
}

func (e ErrSymbolNotFound) Error() string {
	return fmt.Sprintf("symbol not found: %s", e.Symbol)
}

// MonthlyAdjustedPoint is one month of adjusted price data, including the
// dividend paid during that month.
type MonthlyAdjustedPoint struct {
	Date           time.Time
	Open           float64
	High           float64
	Low            float64
	Close          float64
	AdjustedClose  float64
	Volume         int64
	DividendAmount float64
}

type cacheEntry struct {
	data      any
	expiresAt time.Time
}

// Client is an Alpha Vantage API client with request budgeting and an
// in-memory response cache.
type Client struct {
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger

	mu            sync.Mutex
	requestsToday int
	resetAt       time.Time

	cacheMu sync.RWMutex
	cache   map[string]cacheEntry
}

// NewClient creates a new Alpha Vantage client
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("client", "alphavantage").Logger(),
		resetAt:    nextMidnightUTC(),
		cache:      make(map[string]cacheEntry),
	}
}

// GetRemainingRequests returns how many requests are left in today's budget.
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeResetLocked()
	return dailyRequestLimit - c.requestsToday
}

// ResetDailyCounter resets the request budget immediately.
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsToday = 0
	c.resetAt = nextMidnightUTC()
}

// checkRateLimit consumes one request from the budget, failing when spent.
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeResetLocked()

	if c.requestsToday >= dailyRequestLimit {
		return ErrRateLimitExceeded{}
	}
	c.requestsToday++
	return nil
}

func (c *Client) maybeResetLocked() {
	if time.Now().UTC().After(c.resetAt) {
		c.requestsToday = 0
		c.resetAt = nextMidnightUTC()
	}
}

// GetMonthlyAdjusted fetches the full monthly adjusted time series for a
// symbol, oldest first. Responses are cached for the trading day.
func (c *Client) GetMonthlyAdjusted(symbol string) ([]MonthlyAdjustedPoint, error) {
	params := map[string]string{"symbol": symbol}
	cacheKey := buildCacheKey("TIME_SERIES_MONTHLY_ADJUSTED", params)

	if cached, ok := c.getFromCache(cacheKey); ok {
		return cached.([]MonthlyAdjustedPoint), nil
	}

	body, err := c.get("TIME_SERIES_MONTHLY_ADJUSTED", params)
	if err != nil {
		return nil, err
	}

	points, err := parseMonthlyAdjusted(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse monthly series for %s: %w", symbol, err)
	}
	if len(points) == 0 {
		return nil, ErrSymbolNotFound{Symbol: symbol}
	}

	c.setCache(cacheKey, points, 24*time.Hour)
	return points, nil
}

func (c *Client) get(function string, params map[string]string) ([]byte, error) {
	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("function", function)
	query.Set("apikey", c.apiKey)
	for k, v := range params {
		query.Set(k, v)
	}

	resp, err := c.httpClient.Get(baseURL + "?" + query.Encode())
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrInvalidAPIKey{}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if err := c.checkAPIError(body); err != nil {
		return nil, err
	}

	c.log.Debug().Str("function", function).Int("bytes", len(body)).Msg("API request completed")
	return body, nil
}

// checkAPIError detects error payloads the API returns with HTTP 200.
func (c *Client) checkAPIError(body []byte) error {
	text := string(body)
	if strings.Contains(text, `"Note"`) || strings.Contains(text, "Thank you for using Alpha Vantage") {
		return ErrRateLimitExceeded{}
	}
	if strings.Contains(text, `"Error Message"`) {
		return fmt.Errorf("api error: %s", truncate(text, 200))
	}
	return nil
}

// setCache stores a response with a TTL.
func (c *Client) setCache(key string, data any, ttl time.Duration) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
}

// getFromCache returns a cached response if present and unexpired.
func (c *Client) getFromCache(key string) (any, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

// ClearCache drops all cached responses.
func (c *Client) ClearCache() {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

// buildCacheKey derives a stable cache key from a function and its params.
// The API key is never part of the cache key.
func buildCacheKey(function string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "apikey" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(function)
	for _, k := range keys {
		sb.WriteString("|")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(params[k])
	}
	return sb.String()
}

func nextMidnightUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// parseFloat64 parses API numeric strings, tolerating the placeholder values
// the API uses for missing data.
func parseFloat64(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" || s == "None" || s == "null" || s == "-" || s == "." {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "None" || s == "null" || s == "-" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	// Some fields come back in scientific or decimal notation.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
