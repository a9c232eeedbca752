// Package stream mirrors the most recent live kline and ticker per symbol.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"alpha-arena/internal/domain"
	"alpha-arena/internal/provider"
)

var ErrNoFeed = errors.New("no live feed configured")

// Feed delivers raw stream payloads for a symbol set until unsubscribed.
type Feed interface {
	Subscribe(ctx context.Context, symbols []string, handler provider.StreamHandler) error
	Unsubscribe() error
}

// Cache keeps the last kline and ticker per symbol. Writers are the feed's
// read goroutine; readers always receive copies.
type Cache struct {
	feed Feed
	now  func() time.Time

	mu      sync.RWMutex
	klines  map[string]domain.LiveCandle
	tickers map[string]domain.LiveTick

	lifecycle sync.Mutex
	running   bool
	symbols   []string
}

func NewCache(feed Feed) *Cache {
	return &Cache{
		feed:    feed,
		now:     time.Now,
		klines:  make(map[string]domain.LiveCandle),
		tickers: make(map[string]domain.LiveTick),
	}
}

// Start subscribes the feed once. Calling it while running is a no-op.
func (c *Cache) Start(ctx context.Context, symbols []string) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.running {
		return nil
	}
	if c.feed == nil {
		return ErrNoFeed
	}

	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			normalized = append(normalized, s)
		}
	}
	if len(normalized) == 0 {
		return fmt.Errorf("no symbols to stream")
	}

	if err := c.feed.Subscribe(ctx, normalized, c.Dispatch); err != nil {
		return fmt.Errorf("start live stream: %w", err)
	}
	c.running = true
	c.symbols = normalized
	log.Printf("live stream started for %s", strings.Join(normalized, ","))
	return nil
}

// Stop releases the feed subscription. Cached slots stay readable.
func (c *Cache) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if !c.running {
		return nil
	}
	c.running = false
	c.symbols = nil
	if err := c.feed.Unsubscribe(); err != nil {
		return fmt.Errorf("stop live stream: %w", err)
	}
	log.Printf("live stream stopped")
	return nil
}

func (c *Cache) Running() bool {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.running
}

// Dispatch routes a feed payload to the matching handler. Malformed payloads
// are dropped.
func (c *Cache) Dispatch(event string, payload []byte) {
	var err error
	switch event {
	case provider.EventKline:
		err = c.HandleKline(payload)
	case provider.EventTicker:
		err = c.HandleTicker(payload)
	default:
		return
	}
	if err != nil {
		log.Printf("dropping %s message: %v", event, err)
	}
}

type klinePayload struct {
	Symbol string `json:"s"`
	Kline  *struct {
		OpenTime *int64     `json:"t"`
		Open     *flexFloat `json:"o"`
		High     *flexFloat `json:"h"`
		Low      *flexFloat `json:"l"`
		Close    *flexFloat `json:"c"`
		Volume   *flexFloat `json:"v"`
		Closed   *bool      `json:"x"`
	} `json:"k"`
}

type tickerPayload struct {
	Symbol    string     `json:"s"`
	Price     *flexFloat `json:"c"`
	Volume    *flexFloat `json:"v"`
	ChangePct *flexFloat `json:"P"`
	High      *flexFloat `json:"h"`
	Low       *flexFloat `json:"l"`
}

type field struct {
	key     string
	present bool
}

// missingFields returns the keys whose value is absent, in the order given.
func missingFields(fields ...field) []string {
	var missing []string
	for _, f := range fields {
		if !f.present {
			missing = append(missing, f.key)
		}
	}
	return missing
}

// HandleKline stores a kline event. Every field of the Binance kline object
// is required; on error the previous slot is kept.
func (c *Cache) HandleKline(payload []byte) error {
	var msg klinePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode kline: %w", err)
	}
	symbol := strings.ToUpper(msg.Symbol)
	if symbol == "" {
		return fmt.Errorf("kline without symbol")
	}
	k := msg.Kline
	if k == nil {
		return fmt.Errorf("kline for %s without k object", symbol)
	}
	if missing := missingFields(
		field{"t", k.OpenTime != nil},
		field{"o", k.Open != nil},
		field{"h", k.High != nil},
		field{"l", k.Low != nil},
		field{"c", k.Close != nil},
		field{"v", k.Volume != nil},
		field{"x", k.Closed != nil},
	); len(missing) > 0 {
		return fmt.Errorf("kline for %s missing %s", symbol, strings.Join(missing, ","))
	}

	if *k.Open <= 0 || *k.High <= 0 || *k.Low <= 0 || *k.Close <= 0 {
		return fmt.Errorf("kline for %s with non-positive price", symbol)
	}

	candle := domain.LiveCandle{
		Symbol:    symbol,
		OpenTime:  time.UnixMilli(*k.OpenTime).UTC(),
		Open:      float64(*k.Open),
		High:      float64(*k.High),
		Low:       float64(*k.Low),
		Close:     float64(*k.Close),
		Volume:    float64(*k.Volume),
		Closed:    *k.Closed,
		UpdatedAt: c.now().UTC(),
	}

	c.mu.Lock()
	c.klines[symbol] = candle
	c.mu.Unlock()
	return nil
}

// HandleTicker stores a 24h ticker event. On error the previous slot is kept.
func (c *Cache) HandleTicker(payload []byte) error {
	var msg tickerPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode ticker: %w", err)
	}
	symbol := strings.ToUpper(msg.Symbol)
	if symbol == "" {
		return fmt.Errorf("ticker without symbol")
	}
	if missing := missingFields(
		field{"c", msg.Price != nil},
		field{"v", msg.Volume != nil},
		field{"P", msg.ChangePct != nil},
		field{"h", msg.High != nil},
		field{"l", msg.Low != nil},
	); len(missing) > 0 {
		return fmt.Errorf("ticker for %s missing %s", symbol, strings.Join(missing, ","))
	}

	if *msg.Price <= 0 {
		return fmt.Errorf("ticker for %s with non-positive price", symbol)
	}

	tick := domain.LiveTick{
		Symbol:    symbol,
		Price:     float64(*msg.Price),
		Volume:    float64(*msg.Volume),
		ChangePct: float64(*msg.ChangePct),
		High:      float64(*msg.High),
		Low:       float64(*msg.Low),
		UpdatedAt: c.now().UTC(),
	}

	c.mu.Lock()
	c.tickers[symbol] = tick
	c.mu.Unlock()
	return nil
}

// Get returns a copy of the latest kline and ticker for symbol. Both are nil
// when nothing has arrived.
func (c *Cache) Get(symbol string) domain.LiveSnapshot {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	c.mu.RLock()
	defer c.mu.RUnlock()

	var snap domain.LiveSnapshot
	if k, ok := c.klines[symbol]; ok {
		snap.Kline = &k
	}
	if t, ok := c.tickers[symbol]; ok {
		snap.Ticker = &t
	}
	return snap
}

// Symbols lists every symbol with any cached data, sorted.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	seen := make(map[string]struct{}, len(c.klines)+len(c.tickers))
	for s := range c.klines {
		seen[s] = struct{}{}
	}
	for s := range c.tickers {
		seen[s] = struct{}{}
	}
	c.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// flexFloat accepts both quoted ("50500.00") and bare numeric JSON values.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return fmt.Errorf("null number")
	}
	s := string(bytes.Trim(b, `"`))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", b, err)
	}
	*f = flexFloat(v)
	return nil
}
