package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/backtester/internal/domain"
	"github.com/aristath/backtester/internal/modules/marketdata"
	"github.com/rs/zerolog"
)

// SeriesCacheMaxAge bounds how long a normalized series may be reused before
// it is rebuilt from the raw history.
const SeriesCacheMaxAge = 24 * time.Hour

// ResultArchiver uploads finished results to long-term storage. Archiving is
// best-effort; failures never fail the run.
type ResultArchiver interface {
	ArchiveResult(ctx context.Context, configID string, result *domain.AdaptiveBacktestResult) error
}

// ProgressPublisher receives coarse run-progress events for streaming to
// connected clients.
type ProgressPublisher interface {
	Publish(event string, payload any)
}

// Service orchestrates a full backtest run: data retrieval, normalization,
// range adjustment, simulation and persistence.
type Service struct {
	provider     domain.MarketDataProvider
	normalizer   *marketdata.Normalizer
	availability *marketdata.AvailabilityValidator
	cache        *marketdata.SeriesCache
	engine       *Engine
	repo         domain.BacktestRepository
	archiver     ResultArchiver
	progress     ProgressPublisher
	log          zerolog.Logger
}

// NewService creates a new backtest service. The cache, archiver and progress
// publisher are optional and may be nil.
func NewService(
	provider domain.MarketDataProvider,
	cache *marketdata.SeriesCache,
	repo domain.BacktestRepository,
	archiver ResultArchiver,
	progress ProgressPublisher,
	log zerolog.Logger,
) *Service {
	return &Service{
		provider:     provider,
		normalizer:   marketdata.NewNormalizer(log),
		availability: marketdata.NewAvailabilityValidator(log),
		cache:        cache,
		engine:       NewEngine(log),
		repo:         repo,
		archiver:     archiver,
		progress:     progress,
		log:          log.With().Str("service", "backtest").Logger(),
	}
}

// RunAdaptiveBacktest executes a simulation over whatever portion of the
// requested range the data actually covers, persists the outcome, and
// returns the result together with the stored config ID.
func (s *Service) RunAdaptiveBacktest(ctx context.Context, params domain.BacktestParams) (string, *domain.AdaptiveBacktestResult, error) {
	if err := params.Validate(); err != nil {
		return "", nil, fmt.Errorf("invalid backtest parameters: %w", err)
	}

	s.publish("started", map[string]any{"assets": len(params.Assets)})

	data, err := s.prepareMarketData(params)
	if err != nil {
		return "", nil, err
	}

	s.publish("data_ready", map[string]any{
		"start":  data.Range.Start,
		"end":    data.Range.End,
		"months": data.Range.Months,
	})

	result, err := s.engine.Run(params, *data)
	if err != nil {
		return "", nil, fmt.Errorf("simulation failed: %w", err)
	}

	configID, err := s.repo.SaveConfig(params)
	if err != nil {
		return "", nil, fmt.Errorf("failed to save config: %w", err)
	}
	if err := s.repo.SaveResult(configID, result); err != nil {
		return "", nil, fmt.Errorf("failed to save result: %w", err)
	}

	var journal []domain.MonthlyAssetTransaction
	for _, month := range result.MonthlyHistory {
		journal = append(journal, month.Transactions...)
	}
	if err := s.repo.SaveTransactions(configID, journal); err != nil {
		return "", nil, fmt.Errorf("failed to save transactions: %w", err)
	}

	if s.archiver != nil {
		if err := s.archiver.ArchiveResult(ctx, configID, result); err != nil {
			s.log.Warn().Err(err).Str("config_id", configID).Msg("Result archive failed")
		}
	}

	s.publish("completed", map[string]any{
		"config_id":   configID,
		"final_value": result.FinalValue,
	})

	s.log.Info().
		Str("config_id", configID).
		Int("months", result.Months).
		Float64("final_value", result.FinalValue).
		Msg("Backtest run persisted")

	return configID, result, nil
}

// prepareMarketData fetches raw series for every configured asset, adjusts
// the simulation range to the data that exists, and normalizes each series
// onto the monthly grid. Dividend events are fetched only for assets without
// a configured average yield.
func (s *Service) prepareMarketData(params domain.BacktestParams) (*MarketData, error) {
	raw := make(map[string][]domain.PricePoint, len(params.Assets))
	for _, asset := range params.Assets {
		points, err := s.provider.GetMonthlyPrices(asset.Ticker, params.StartDate, params.EndDate)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch prices for %s: %w", asset.Ticker, err)
		}
		raw[asset.Ticker] = points
	}

	adjusted, err := s.availability.Adjust(params.StartDate, params.EndDate, raw)
	if err != nil {
		return nil, err
	}

	data := &MarketData{
		Series:    make(map[string]marketdata.NormalizedSeries, len(params.Assets)),
		Dividends: make(map[string][]domain.DividendEvent),
		Range:     adjusted,
		Issues:    append([]string(nil), adjusted.Issues...),
	}

	for _, asset := range params.Assets {
		series := s.normalizeWithCache(asset.Ticker, raw[asset.Ticker], adjusted.Start, adjusted.End)
		data.Series[asset.Ticker] = series

		if series.IsDegenerate() {
			data.Issues = append(data.Issues,
				fmt.Sprintf("%s: series is mostly gap-filled or flat, results may be unreliable", asset.Ticker))
		}

		if asset.AverageDividendYield <= 0 {
			events, err := s.provider.GetDividends(asset.Ticker, adjusted.Start, adjusted.End)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch dividends for %s: %w", asset.Ticker, err)
			}
			data.Dividends[asset.Ticker] = events
		}
	}

	return data, nil
}

// normalizeWithCache returns the cached normalized series when fresh,
// otherwise normalizes and stores the result. Cache errors degrade to a
// plain normalize.
func (s *Service) normalizeWithCache(ticker string, raw []domain.PricePoint, start, end time.Time) marketdata.NormalizedSeries {
	if s.cache == nil {
		return s.normalizer.Normalize(ticker, raw, start, end)
	}

	key := marketdata.CacheKey(ticker, start, end)
	if cached, err := s.cache.GetIfFresh(key, SeriesCacheMaxAge); err == nil && cached != nil {
		return *cached
	}

	series := s.normalizer.Normalize(ticker, raw, start, end)
	if err := s.cache.Put(key, &series); err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("Failed to cache normalized series")
	}
	return series
}

func (s *Service) publish(event string, payload any) {
	if s.progress != nil {
		s.progress.Publish("backtest."+event, payload)
	}
}
