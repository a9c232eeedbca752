package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"alpha-arena/internal/domain"
	"alpha-arena/internal/indicator"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCandleLimit        = 200
	DefaultConcurrency        = 2
	DefaultOpenInterestWindow = 30
	DefaultFundingWindow      = 10
)

type CandleStore interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) []*domain.Candle
}

type DerivativesSource interface {
	FetchOpenInterestHistory(ctx context.Context, symbol string, limit int) ([]domain.OpenInterestSample, error)
	FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]domain.FundingRateSample, error)
}

type LiveSource interface {
	Get(symbol string) domain.LiveSnapshot
}

type MarketDataConfig struct {
	Coins              []string
	Timeframes         []string
	CandleLimit        int
	Concurrency        int
	OpenInterestWindow int
	FundingWindow      int
	VolumeWindow       int
}

func (c MarketDataConfig) withDefaults() MarketDataConfig {
	if len(c.Coins) == 0 {
		c.Coins = append([]string(nil), domain.SupportedCoins...)
	}
	if len(c.Timeframes) == 0 {
		c.Timeframes = append([]string(nil), domain.DefaultTimeframes...)
	}
	if c.CandleLimit <= 0 {
		c.CandleLimit = DefaultCandleLimit
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.OpenInterestWindow <= 0 {
		c.OpenInterestWindow = DefaultOpenInterestWindow
	}
	if c.FundingWindow <= 0 {
		c.FundingWindow = DefaultFundingWindow
	}
	if c.VolumeWindow <= 0 {
		c.VolumeWindow = indicator.VolumeWindow
	}
	return c
}

// MarketDataService assembles per-instrument records from candles, derivative
// metrics and the optional live cache. Collaborator failures degrade to empty
// values instead of errors.
type MarketDataService struct {
	tracer      trace.Tracer
	candles     CandleStore
	derivatives DerivativesSource
	live        LiveSource
	cfg         MarketDataConfig
	now         func() time.Time
}

// NewMarketDataService accepts a nil derivatives source or live source; the
// matching fields then stay zero.
func NewMarketDataService(
	tracer trace.Tracer,
	candles CandleStore,
	derivatives DerivativesSource,
	live LiveSource,
	cfg MarketDataConfig,
) *MarketDataService {
	return &MarketDataService{
		tracer:      tracer,
		candles:     candles,
		derivatives: derivatives,
		live:        live,
		cfg:         cfg.withDefaults(),
		now:         time.Now,
	}
}

func (s *MarketDataService) Coins() []string {
	return append([]string(nil), s.cfg.Coins...)
}

func (s *MarketDataService) Timeframes() []string {
	return append([]string(nil), s.cfg.Timeframes...)
}

// GetCandles resolves a coin or symbol and returns its candles ascending.
func (s *MarketDataService) GetCandles(ctx context.Context, coin, interval string, limit int) []*domain.Candle {
	ctx, span := s.tracer.Start(ctx, "market-data-service.get-candles")
	defer span.End()

	symbol := domain.SymbolFor(coin)
	if symbol == "" || s.candles == nil {
		return []*domain.Candle{}
	}
	if limit <= 0 {
		limit = s.cfg.CandleLimit
	}
	return s.candles.GetCandles(ctx, symbol, interval, limit)
}

// GetTechnicalIndicators returns nil when no candles are available.
func (s *MarketDataService) GetTechnicalIndicators(ctx context.Context, symbol, interval string, limit int) *domain.IndicatorSet {
	ctx, span := s.tracer.Start(ctx, "market-data-service.get-technical-indicators")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	if s.candles == nil {
		return nil
	}
	if limit <= 0 {
		limit = s.cfg.CandleLimit
	}
	rows := s.candles.GetCandles(ctx, domain.SymbolFor(symbol), interval, limit)
	if len(rows) == 0 {
		return nil
	}
	return indicator.ComputeFromRows(rows, indicator.Options{
		VolumeWindow: s.cfg.VolumeWindow,
		SeriesLength: indicator.SeriesLength,
	})
}

func (s *MarketDataService) GetOpenInterest(ctx context.Context, symbol string) domain.OpenInterestSnapshot {
	ctx, span := s.tracer.Start(ctx, "market-data-service.get-open-interest")
	defer span.End()

	if s.derivatives == nil {
		return domain.OpenInterestSnapshot{}
	}
	symbol = domain.SymbolFor(symbol)
	samples, err := s.derivatives.FetchOpenInterestHistory(ctx, symbol, s.cfg.OpenInterestWindow)
	if err != nil {
		log.Printf("open interest fetch failed for %s: %v", symbol, err)
		return domain.OpenInterestSnapshot{}
	}
	return OpenInterestFromSamples(samples, s.cfg.OpenInterestWindow)
}

func (s *MarketDataService) GetFundingRate(ctx context.Context, symbol string) domain.FundingRateSnapshot {
	ctx, span := s.tracer.Start(ctx, "market-data-service.get-funding-rate")
	defer span.End()

	if s.derivatives == nil {
		return domain.FundingRateSnapshot{}
	}
	symbol = domain.SymbolFor(symbol)
	samples, err := s.derivatives.FetchFundingRateHistory(ctx, symbol, s.cfg.FundingWindow)
	if err != nil {
		log.Printf("funding rate fetch failed for %s: %v", symbol, err)
		return domain.FundingRateSnapshot{}
	}
	return FundingFromSamples(samples, s.cfg.FundingWindow)
}

// GetCompleteData builds the record for one coin. It fails only for an empty
// coin or a cancelled context; missing data shows up as empty bundles.
func (s *MarketDataService) GetCompleteData(ctx context.Context, coin string) (*domain.InstrumentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "market-data-service.get-complete-data")
	defer span.End()

	symbol := domain.SymbolFor(coin)
	if symbol == "" {
		return nil, fmt.Errorf("coin is required")
	}
	coin = domain.CoinFor(symbol)
	span.SetAttributes(attribute.String("coin", coin))

	record := domain.NewDegradedRecord(coin, s.cfg.Timeframes, s.now())
	for _, tf := range s.cfg.Timeframes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("get complete data for %s: %w", coin, err)
		}
		record.Indicators[tf] = s.GetTechnicalIndicators(ctx, symbol, tf, s.cfg.CandleLimit)
	}
	record.OpenInterest = s.GetOpenInterest(ctx, symbol)
	record.FundingRate = s.GetFundingRate(ctx, symbol)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get complete data for %s: %w", coin, err)
	}
	return record, nil
}

// GetAllData returns a record for every configured coin. A coin whose
// pipeline fails is present as a degraded record.
func (s *MarketDataService) GetAllData(ctx context.Context) map[string]*domain.InstrumentRecord {
	ctx, span := s.tracer.Start(ctx, "market-data-service.get-all-data")
	defer span.End()

	var mu sync.Mutex
	results := make(map[string]*domain.InstrumentRecord, len(s.cfg.Coins))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, coin := range s.cfg.Coins {
		g.Go(func() error {
			record, err := s.GetCompleteData(ctx, coin)
			if err != nil {
				log.Printf("instrument pipeline failed for %s: %v", coin, err)
				record = domain.NewDegradedRecord(domain.CoinFor(domain.SymbolFor(coin)), s.cfg.Timeframes, s.now())
			}
			mu.Lock()
			results[coin] = record
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// GetLiveData is empty when streaming is disabled or nothing has arrived.
func (s *MarketDataService) GetLiveData(symbol string) domain.LiveSnapshot {
	if s.live == nil {
		return domain.LiveSnapshot{}
	}
	return s.live.Get(domain.SymbolFor(symbol))
}

// FormatAllForPrompt renders records in configured coin order, skipping
// coins without a record.
func (s *MarketDataService) FormatAllForPrompt(records map[string]*domain.InstrumentRecord) string {
	var b strings.Builder
	for _, coin := range s.cfg.Coins {
		record, ok := records[coin]
		if !ok || record == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatForPrompt(record))
	}
	return b.String()
}
