package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"alpha-arena/docs"
	"alpha-arena/internal/domain"
	"alpha-arena/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var errFetch = errors.New("fetch failed")

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

type stubCandleStore struct {
	candles map[string][]*domain.Candle
	calls   []string
}

func (s *stubCandleStore) GetCandles(ctx context.Context, symbol, interval string, limit int) []*domain.Candle {
	s.calls = append(s.calls, symbol+"/"+interval)
	rows := s.candles[symbol]
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows
}

type stubDerivatives struct{}

func (stubDerivatives) FetchOpenInterestHistory(ctx context.Context, symbol string, limit int) ([]domain.OpenInterestSample, error) {
	return []domain.OpenInterestSample{{Timestamp: time.Unix(0, 0), Value: 100}}, nil
}

func (stubDerivatives) FetchFundingRateHistory(ctx context.Context, symbol string, limit int) ([]domain.FundingRateSample, error) {
	return []domain.FundingRateSample{{Timestamp: time.Unix(0, 0), Rate: 0.0001}}, nil
}

type stubLive struct{ snapshot domain.LiveSnapshot }

func (s stubLive) Get(symbol string) domain.LiveSnapshot {
	if symbol != "BTCUSDT" {
		return domain.LiveSnapshot{}
	}
	return s.snapshot
}

type stubAccountSource struct{}

func (stubAccountSource) FetchAccountBalances(ctx context.Context) (map[string]float64, error) {
	return map[string]float64{"USDT": 100, "BTC": 0.5}, nil
}

func (stubAccountSource) FetchTickerPrices(ctx context.Context) (map[string]float64, error) {
	return map[string]float64{"BTCUSDT": 50000}, nil
}

type stubDecisions struct{ latest []domain.ModelDecision }

func (s stubDecisions) Latest() []domain.ModelDecision { return s.latest }

func rising(symbol string, n int) []*domain.Candle {
	out := make([]*domain.Candle, n)
	for i := range out {
		price := 100 + float64(i)
		out[i] = &domain.Candle{
			Symbol:   symbol,
			Interval: "5m",
			OpenTime: time.Unix(int64(i)*300, 0).UTC(),
			Open:     price,
			High:     price + 1,
			Low:      price - 1,
			Close:    price + 0.5,
			Volume:   10,
		}
	}
	return out
}

func newTestHandler(store *stubCandleStore, authenticated bool) *Handler {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	market := service.NewMarketDataService(tracer, store, stubDerivatives{}, stubLive{snapshot: domain.LiveSnapshot{
		Ticker: &domain.LiveTick{Symbol: "BTCUSDT", Price: 50500},
	}}, service.MarketDataConfig{
		Coins:      []string{"BTC", "ETH"},
		Timeframes: []string{"5m", "4h"},
	})
	account := service.NewAccountService(tracer, stubAccountSource{}, authenticated)
	decisions := stubDecisions{latest: []domain.ModelDecision{{Model: "qwen-plus", Decision: domain.HoldDecision("flat")}}}
	return New(tracer, stubPinger{}, market, account, decisions)
}

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	router := gin.New()
	h.RegisterRoutes(router)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&stubCandleStore{}, false)
	if w := serve(h, "/health"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	h.exchange = stubPinger{err: errFetch}
	w := serve(h, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "degraded") {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestGetMarketData(t *testing.T) {
	store := &stubCandleStore{candles: map[string][]*domain.Candle{"BTCUSDT": rising("BTCUSDT", 60)}}
	w := serve(newTestHandler(store, false), "/api/market/btc")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	for _, key := range []string{"coin", "symbol", "timestamp", "5m_indicators", "4h_indicators", "open_interest", "funding_rate"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("expected key %q in %s", key, w.Body.String())
		}
	}

	var set domain.IndicatorSet
	if err := json.Unmarshal(body["5m_indicators"], &set); err != nil {
		t.Fatalf("failed to parse indicators: %v", err)
	}
	if set.CurrentPrice != 159.5 {
		t.Fatalf("expected current price 159.5, got %v", set.CurrentPrice)
	}
}

func TestGetAllMarketDataIncludesEveryCoin(t *testing.T) {
	w := serve(newTestHandler(&stubCandleStore{}, false), "/api/market")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Instruments map[string]json.RawMessage `json:"instruments"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(resp.Instruments) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(resp.Instruments))
	}
}

func TestGetMarketPrompt(t *testing.T) {
	store := &stubCandleStore{candles: map[string][]*domain.Candle{"BTCUSDT": rising("BTCUSDT", 60)}}
	w := serve(newTestHandler(store, false), "/api/market/BTC/prompt")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), "=== BTC (BTCUSDT)") {
		t.Fatalf("unexpected prompt %q", w.Body.String())
	}

	all := serve(newTestHandler(store, false), "/api/prompt").Body.String()
	if strings.Index(all, "=== BTC") > strings.Index(all, "=== ETH") {
		t.Fatalf("expected configured coin order, got %q", all)
	}
}

func TestGetIndicatorsValidatesQuery(t *testing.T) {
	h := newTestHandler(&stubCandleStore{}, false)

	if w := serve(h, "/api/indicators/BTC?interval=7m"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad interval, got %d", w.Code)
	}
	if w := serve(h, "/api/indicators/BTC?limit=0"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
	if w := serve(h, "/api/indicators/BTC?limit=1001"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d", w.Code)
	}
}

func TestGetIndicatorsUnknownInstrumentIsEmpty(t *testing.T) {
	w := serve(newTestHandler(&stubCandleStore{}, false), "/api/indicators/NOPE?interval=1h")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"indicators":null`) {
		t.Fatalf("expected null indicators, got %s", w.Body.String())
	}
}

func TestGetCandles(t *testing.T) {
	store := &stubCandleStore{candles: map[string][]*domain.Candle{"ETHUSDT": rising("ETHUSDT", 10)}}
	w := serve(newTestHandler(store, false), "/api/candles/ETH?interval=1h&limit=3")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Symbol  string          `json:"symbol"`
		Candles []domain.Candle `json:"candles"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if resp.Symbol != "ETHUSDT" || len(resp.Candles) != 3 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(store.calls) != 1 || store.calls[0] != "ETHUSDT/1h" {
		t.Fatalf("unexpected store calls %v", store.calls)
	}
}

func TestGetChart(t *testing.T) {
	store := &stubCandleStore{candles: map[string][]*domain.Candle{"BTCUSDT": rising("BTCUSDT", 80)}}
	h := newTestHandler(store, false)

	w := serve(h, "/api/chart/BTC?panel=macd")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("expected image/png, got %s", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatal("expected png signature")
	}

	if w := serve(h, "/api/chart/BTC?panel=bands"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown panel, got %d", w.Code)
	}
	if w := serve(h, "/api/chart/NOPE"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without candles, got %d", w.Code)
	}
}

func TestGetLiveData(t *testing.T) {
	h := newTestHandler(&stubCandleStore{}, false)
	w := serve(h, "/api/live/BTCUSDT")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"price":50500`) {
		t.Fatalf("unexpected live response %d %s", w.Code, w.Body.String())
	}
	w = serve(h, "/api/live/ETH")
	if !strings.Contains(w.Body.String(), `"live":{}`) {
		t.Fatalf("expected empty snapshot, got %s", w.Body.String())
	}
}

func TestGetAccount(t *testing.T) {
	w := serve(newTestHandler(&stubCandleStore{}, false), "/api/account")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when unauthenticated, got %d", w.Code)
	}

	w = serve(newTestHandler(&stubCandleStore{}, true), "/api/account")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap domain.AccountSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if snap.TotalValueUSDT != 25100 {
		t.Fatalf("expected total 25100, got %v", snap.TotalValueUSDT)
	}
}

func TestGetDecisions(t *testing.T) {
	w := serve(newTestHandler(&stubCandleStore{}, false), "/api/decisions")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"model":"qwen-plus"`) {
		t.Fatalf("unexpected decisions response %d %s", w.Code, w.Body.String())
	}

	h := New(trace.NewNoopTracerProvider().Tracer("test"), nil, nil, nil, nil)
	if w := serve(h, "/api/decisions"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without poller, got %d", w.Code)
	}
	if w := serve(h, "/api/market"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without market service, got %d", w.Code)
	}
}

func TestRoutesMatchSwaggerDoc(t *testing.T) {
	var doc struct {
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	if err := json.Unmarshal([]byte(docs.SwaggerInfo.ReadDoc()), &doc); err != nil {
		t.Fatalf("swagger doc is not valid json: %v", err)
	}

	router := gin.New()
	New(trace.NewNoopTracerProvider().Tracer("test"), nil, nil, nil, nil).RegisterRoutes(router)

	registered := make(map[string]bool)
	for _, route := range router.Routes() {
		path := swaggerPath(route.Path)
		method := strings.ToLower(route.Method)
		registered[method+" "+path] = true
		if _, ok := doc.Paths[path][method]; !ok {
			t.Fatalf("route %s %s missing from docs; run go generate ./cmd/server", route.Method, path)
		}
	}
	for path, ops := range doc.Paths {
		for method := range ops {
			if !registered[method+" "+path] {
				t.Fatalf("docs list %s %s but no route serves it", method, path)
			}
		}
	}
}

// swaggerPath rewrites gin's :param segments to swagger's {param} form.
func swaggerPath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, ":") {
			parts[i] = "{" + part[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}
