package repository

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"alpha-arena/internal/cache"
	"alpha-arena/internal/domain"
	"alpha-arena/internal/indicator"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	MinCandleLimit = 1
	MaxCandleLimit = 1000

	defaultMirrorTTL = 10 * time.Minute
)

type CandleSource interface {
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error)
}

// CandleCache is a fetch-through store: every GetCandles call goes to the
// source and overwrites the (symbol, interval) slot with the fresh sequence.
type CandleCache struct {
	source CandleSource
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer

	mu    sync.Mutex
	slots map[string][]*domain.Candle
}

// NewCandleCache wires a source and an optional Redis mirror (nil disables it).
func NewCandleCache(source CandleSource, redisClient *redis.Client, ttl time.Duration, tracer trace.Tracer) *CandleCache {
	if ttl <= 0 {
		ttl = defaultMirrorTTL
	}
	return &CandleCache{
		source: source,
		redis:  redisClient,
		ttl:    ttl,
		tracer: tracer,
		slots:  make(map[string][]*domain.Candle),
	}
}

// GetCandles returns up to limit candles ascending by open time. Collaborator
// failures and unknown timeframes yield an empty, non-nil slice.
func (c *CandleCache) GetCandles(ctx context.Context, symbol, interval string, limit int) []*domain.Candle {
	ctx, span := c.tracer.Start(ctx, "candle-cache.get-candles")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	if symbol == "" || !domain.IsSupportedTimeframe(interval) {
		return []*domain.Candle{}
	}
	limit = ClampLimit(limit)

	rows, err := c.source.FetchCandles(ctx, symbol, interval, limit)
	if err != nil {
		log.Printf("candle fetch failed for %s %s: %v", symbol, interval, err)
		return []*domain.Candle{}
	}

	candles := cleanRows(rows)
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	key := SlotKey(symbol, interval)
	c.mu.Lock()
	c.slots[key] = candles
	c.mu.Unlock()

	if err := cache.SetJSON(ctx, c.redis, key, candles, c.ttl); err != nil {
		log.Printf("candle mirror write failed for %s: %v", key, err)
	}

	return copyCandles(candles)
}

// Latest returns the last successfully fetched slot without calling the
// source, falling back to the Redis mirror. The second result is false when
// no slot is known.
func (c *CandleCache) Latest(ctx context.Context, symbol, interval string) ([]*domain.Candle, bool) {
	key := SlotKey(symbol, interval)

	c.mu.Lock()
	candles, ok := c.slots[key]
	c.mu.Unlock()
	if ok {
		return copyCandles(candles), true
	}

	var mirrored []*domain.Candle
	err := cache.GetJSON(ctx, c.redis, key, &mirrored)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			log.Printf("candle mirror read failed for %s: %v", key, err)
		}
		return nil, false
	}
	return mirrored, true
}

func SlotKey(symbol, interval string) string {
	return "candles:" + symbol + ":" + interval
}

func ClampLimit(limit int) int {
	if limit < MinCandleLimit {
		return MinCandleLimit
	}
	if limit > MaxCandleLimit {
		return MaxCandleLimit
	}
	return limit
}

func cleanRows(rows []*domain.Candle) []*domain.Candle {
	valid := make([]*domain.Candle, 0, len(rows))
	for _, r := range rows {
		if r != nil && r.Valid() {
			valid = append(valid, r)
		}
	}
	normalized := indicator.Normalize(valid)
	out := make([]*domain.Candle, len(normalized))
	for i := range normalized {
		out[i] = &normalized[i]
	}
	return out
}

func copyCandles(in []*domain.Candle) []*domain.Candle {
	out := make([]*domain.Candle, len(in))
	for i, c := range in {
		cp := *c
		out[i] = &cp
	}
	return out
}
