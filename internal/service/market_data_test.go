package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"alpha-arena/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type stubCandleStore struct {
	mu      sync.Mutex
	bySym   map[string][]*domain.Candle
	calls   map[string]int
	limits  []int
	blockFn func(symbol string)
}

func newStubCandleStore() *stubCandleStore {
	return &stubCandleStore{bySym: map[string][]*domain.Candle{}, calls: map[string]int{}}
}

func (s *stubCandleStore) GetCandles(ctx context.Context, symbol, interval string, limit int) []*domain.Candle {
	if s.blockFn != nil {
		s.blockFn(symbol)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[symbol+":"+interval]++
	s.limits = append(s.limits, limit)
	rows, ok := s.bySym[symbol]
	if !ok {
		return []*domain.Candle{}
	}
	return rows
}

type stubDerivatives struct {
	oi      []domain.OpenInterestSample
	funding []domain.FundingRateSample
	err     error
	failFor string
}

func (s *stubDerivatives) FetchOpenInterestHistory(ctx context.Context, symbol string, limit int) ([]domain.OpenInterestSample, error) {
	if s.err != nil || symbol == s.failFor {
		return nil, errors.New("collaborator unavailable")
	}
	return s.oi, nil
}

func (s *stubDerivatives) FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]domain.FundingRateSample, error) {
	if s.err != nil || symbol == s.failFor {
		return nil, errors.New("collaborator unavailable")
	}
	return s.funding, nil
}

type stubLive struct {
	snap domain.LiveSnapshot
	last string
}

func (s *stubLive) Get(symbol string) domain.LiveSnapshot {
	s.last = symbol
	return s.snap
}

func walkCandles(symbol string, n int) []*domain.Candle {
	base := time.Unix(1640000000, 0).UTC()
	out := make([]*domain.Candle, n)
	price := 100.0
	for i := range out {
		open := price
		price += math.Sin(float64(i)/3) * 2
		out[i] = &domain.Candle{
			Symbol:   symbol,
			OpenTime: base.Add(time.Duration(i) * 5 * time.Minute),
			Open:     open,
			High:     math.Max(open, price) + 1,
			Low:      math.Min(open, price) - 1,
			Close:    price,
			Volume:   10 + float64(i%5),
		}
	}
	return out
}

func newTestMarketService(candles CandleStore, derivatives DerivativesSource, live LiveSource, cfg MarketDataConfig) *MarketDataService {
	svc := NewMarketDataService(trace.NewNoopTracerProvider().Tracer("test"), candles, derivatives, live, cfg)
	svc.now = func() time.Time { return time.Unix(1640000000, 0) }
	return svc
}

func TestGetTechnicalIndicatorsUnknownInstrument(t *testing.T) {
	svc := newTestMarketService(newStubCandleStore(), nil, nil, MarketDataConfig{})
	if got := svc.GetTechnicalIndicators(context.Background(), "NOPEUSDT", "5m", 100); got != nil {
		t.Fatalf("expected nil indicator set, got %+v", got)
	}
	if got := svc.GetCandles(context.Background(), "NOPE", "5m", 100); len(got) != 0 {
		t.Fatalf("expected empty candles, got %d", len(got))
	}
}

func TestGetTechnicalIndicatorsComputesBundle(t *testing.T) {
	store := newStubCandleStore()
	store.bySym["BTCUSDT"] = walkCandles("BTCUSDT", 120)
	svc := newTestMarketService(store, nil, nil, MarketDataConfig{})

	set := svc.GetTechnicalIndicators(context.Background(), "BTC", "5m", 0)
	if set == nil {
		t.Fatal("expected indicator set")
	}
	if set.CurrentPrice != store.bySym["BTCUSDT"][119].Close {
		t.Fatalf("unexpected current price %f", set.CurrentPrice)
	}
	if store.limits[0] != DefaultCandleLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultCandleLimit, store.limits[0])
	}
}

func TestGetCompleteDataAssemblesRecord(t *testing.T) {
	store := newStubCandleStore()
	store.bySym["ETHUSDT"] = walkCandles("ETHUSDT", 80)
	deriv := &stubDerivatives{
		oi:      []domain.OpenInterestSample{{Timestamp: time.Unix(0, 0), Value: 100}, {Timestamp: time.Unix(300, 0), Value: 120}},
		funding: fundingSamples(0.01, 0.02, -0.01, -0.02, -0.01),
	}
	svc := newTestMarketService(store, deriv, nil, MarketDataConfig{Timeframes: []string{"3m", "5m", "15m", "4h"}})

	record, err := svc.GetCompleteData(context.Background(), "eth")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Coin != "ETH" || record.Symbol != "ETHUSDT" {
		t.Fatalf("unexpected identity %s/%s", record.Coin, record.Symbol)
	}
	for _, tf := range []string{"3m", "5m", "15m", "4h"} {
		if record.IndicatorsFor(tf) == nil {
			t.Fatalf("expected indicators for %s", tf)
		}
		if store.calls["ETHUSDT:"+tf] != 1 {
			t.Fatalf("expected one fetch for %s, got %d", tf, store.calls["ETHUSDT:"+tf])
		}
	}
	if record.OpenInterest.Latest != 120 || record.OpenInterest.Average != 110 {
		t.Fatalf("unexpected open interest %+v", record.OpenInterest)
	}
	if record.FundingRate.PersistenceBars != 3 || record.FundingRate.CurrentRate != -0.01 {
		t.Fatalf("unexpected funding %+v", record.FundingRate)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"coin", "symbol", "timestamp", "3m_indicators", "5m_indicators", "15m_indicators", "4h_indicators", "open_interest", "funding_rate"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("expected key %s in %s", key, payload)
		}
	}
}

func TestGetCompleteDataDegradesOnCollaboratorFailure(t *testing.T) {
	svc := newTestMarketService(newStubCandleStore(), &stubDerivatives{err: errors.New("down")}, nil, MarketDataConfig{})

	record, err := svc.GetCompleteData(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !record.Degraded() {
		t.Fatal("expected degraded record")
	}
	if record.OpenInterest != (domain.OpenInterestSnapshot{}) || record.FundingRate != (domain.FundingRateSnapshot{}) {
		t.Fatalf("expected zero derivative metrics, got %+v %+v", record.OpenInterest, record.FundingRate)
	}
}

func TestGetCompleteDataErrors(t *testing.T) {
	svc := newTestMarketService(newStubCandleStore(), nil, nil, MarketDataConfig{})
	if _, err := svc.GetCompleteData(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty coin")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.GetCompleteData(ctx, "BTC"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGetAllDataPartialFailure(t *testing.T) {
	store := newStubCandleStore()
	store.bySym["AAAUSDT"] = walkCandles("AAAUSDT", 60)
	store.bySym["CCCUSDT"] = walkCandles("CCCUSDT", 60)
	deriv := &stubDerivatives{
		oi:      []domain.OpenInterestSample{{Value: 10}},
		funding: fundingSamples(0.01),
		failFor: "BBBUSDT",
	}
	svc := newTestMarketService(store, deriv, nil, MarketDataConfig{
		Coins:       []string{"AAA", "BBB", "CCC"},
		Timeframes:  []string{"5m", "4h"},
		Concurrency: 2,
	})

	all := svc.GetAllData(context.Background())
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	for _, coin := range []string{"AAA", "CCC"} {
		if all[coin] == nil || all[coin].Degraded() {
			t.Fatalf("expected populated record for %s", coin)
		}
	}
	b := all["BBB"]
	if b == nil {
		t.Fatal("expected BBB to be present")
	}
	if !b.Degraded() || b.OpenInterest.Latest != 0 {
		t.Fatalf("expected degraded BBB record, got %+v", b)
	}
}

func TestGetAllDataCancelledContextKeepsEveryCoin(t *testing.T) {
	svc := newTestMarketService(newStubCandleStore(), nil, nil, MarketDataConfig{Coins: []string{"BTC", "ETH"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	all := svc.GetAllData(ctx)
	if len(all) != 2 || !all["BTC"].Degraded() || !all["ETH"].Degraded() {
		t.Fatalf("expected degraded records for every coin, got %v", all)
	}
}

func TestGetAllDataRespectsConcurrencyLimit(t *testing.T) {
	store := newStubCandleStore()
	var mu sync.Mutex
	active, peak := 0, 0
	store.blockFn = func(string) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	}
	svc := newTestMarketService(store, nil, nil, MarketDataConfig{
		Coins:       []string{"A", "B", "C", "D", "E"},
		Timeframes:  []string{"5m"},
		Concurrency: 2,
	})

	svc.GetAllData(context.Background())
	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent pipelines, got %d", peak)
	}
}

func TestGetLiveData(t *testing.T) {
	live := &stubLive{snap: domain.LiveSnapshot{Ticker: &domain.LiveTick{Symbol: "BTCUSDT", Price: 50500}}}
	svc := newTestMarketService(newStubCandleStore(), nil, live, MarketDataConfig{})

	snap := svc.GetLiveData("btc")
	if snap.Ticker == nil || snap.Ticker.Price != 50500 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if live.last != "BTCUSDT" {
		t.Fatalf("expected symbol lookup, got %s", live.last)
	}

	disabled := newTestMarketService(newStubCandleStore(), nil, nil, MarketDataConfig{})
	if !disabled.GetLiveData("BTC").Empty() {
		t.Fatal("expected empty snapshot when streaming is disabled")
	}
}

func TestFormatAllForPromptOrder(t *testing.T) {
	svc := newTestMarketService(newStubCandleStore(), nil, nil, MarketDataConfig{Coins: []string{"ETH", "BTC"}})
	ts := time.Unix(1640000000, 0)
	records := map[string]*domain.InstrumentRecord{
		"BTC": domain.NewDegradedRecord("BTC", []string{"5m"}, ts),
		"ETH": domain.NewDegradedRecord("ETH", []string{"5m"}, ts),
	}

	text := svc.FormatAllForPrompt(records)
	eth := strings.Index(text, "ETH (ETHUSDT)")
	btc := strings.Index(text, "BTC (BTCUSDT)")
	if eth < 0 || btc < 0 || eth > btc {
		t.Fatalf("expected ETH before BTC, got:\n%s", text)
	}
}
