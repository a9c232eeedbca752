package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc, cfg BinanceConfig) *BinanceProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.SpotURL = srv.URL
	cfg.FuturesURL = srv.URL
	return NewBinanceProvider(trace.NewNoopTracerProvider().Tracer("test"), cfg)
}

func TestFetchCandlesParsesKlineRows(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "5m" || q.Get("limit") != "2" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[
			[1640000000000,"50000","51000","49000","50500","100",1640000299999,"0",1,"0","0","0"],
			[1640000300000,"50500","50800","50100","50700","80",1640000599999,"0",1,"0","0","0"]
		]`))
	}, BinanceConfig{})

	candles, err := p.FetchCandles(context.Background(), "BTCUSDT", "5m", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	first := candles[0]
	if first.Close != 50500 || first.High != 51000 || first.Volume != 100 {
		t.Fatalf("unexpected candle: %+v", first)
	}
	if !first.OpenTime.Equal(time.UnixMilli(1640000000000)) {
		t.Fatalf("unexpected open time %s", first.OpenTime)
	}
	if first.Symbol != "BTCUSDT" || first.Interval != "5m" {
		t.Fatalf("expected symbol and interval on candle, got %s %s", first.Symbol, first.Interval)
	}
}

func TestFetchCandlesClampsLimit(t *testing.T) {
	var gotLimit string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		w.Write([]byte(`[]`))
	}, BinanceConfig{})

	if _, err := p.FetchCandles(context.Background(), "BTCUSDT", "1m", 5000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != "1000" {
		t.Fatalf("expected limit clamped to 1000, got %s", gotLimit)
	}
}

func TestFetchCandlesReturnsAPIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}, BinanceConfig{})

	_, err := p.FetchCandles(context.Background(), "NOPEUSDT", "5m", 10)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != -1121 || apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "Invalid symbol." {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestFetchOpenInterestHistorySortsAscending(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/futures/data/openInterestHist" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("period") != "5m" {
			t.Fatalf("expected default period 5m, got %s", r.URL.Query().Get("period"))
		}
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","sumOpenInterest":"1200.5","sumOpenInterestValue":"1","timestamp":1640000600000},
			{"symbol":"BTCUSDT","sumOpenInterest":"1000","sumOpenInterestValue":"1","timestamp":1640000000000},
			{"symbol":"BTCUSDT","sumOpenInterest":"bad","sumOpenInterestValue":"1","timestamp":1640000300000}
		]`))
	}, BinanceConfig{})

	samples, err := p.FetchOpenInterestHistory(context.Background(), "BTCUSDT", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 parsable samples, got %d", len(samples))
	}
	if samples[0].Value != 1000 || samples[1].Value != 1200.5 {
		t.Fatalf("expected ascending samples, got %+v", samples)
	}
}

func TestFetchFundingRateHistory(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/fundingRate" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","fundingRate":"0.0001","fundingTime":1640000000000},
			{"symbol":"BTCUSDT","fundingRate":"-0.0002","fundingTime":1640028800000}
		]`))
	}, BinanceConfig{})

	samples, err := p.FetchFundingRateHistory(context.Background(), "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 2 || samples[1].Rate != -0.0002 {
		t.Fatalf("unexpected samples: %+v", samples)
	}
}

func TestFetchTickerPrices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"BTCUSDT","price":"50500.00"},{"symbol":"ETHUSDT","price":"4000.5"}]`))
	}, BinanceConfig{})

	prices, err := p.FetchTickerPrices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prices["BTCUSDT"] != 50500 || prices["ETHUSDT"] != 4000.5 {
		t.Fatalf("unexpected prices: %v", prices)
	}
}

func TestFetchAccountBalancesSignsRequest(t *testing.T) {
	var p *BinanceProvider
	p = newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			t.Fatalf("expected api key header")
		}
		raw := r.URL.RawQuery
		idx := strings.LastIndex(raw, "&signature=")
		if idx < 0 {
			t.Fatalf("expected trailing signature in %s", raw)
		}
		if got, want := raw[idx+len("&signature="):], p.sign(raw[:idx]); got != want {
			t.Fatalf("signature mismatch: got %s want %s", got, want)
		}
		w.Write([]byte(`{"balances":[
			{"asset":"BTC","free":"0.5","locked":"0.1"},
			{"asset":"USDT","free":"100","locked":"0"},
			{"asset":"DOGE","free":"0","locked":"0"}
		]}`))
	}, BinanceConfig{APIKey: "key", APISecret: "secret"})
	p.now = func() time.Time { return time.UnixMilli(1640000000000) }

	balances, err := p.FetchAccountBalances(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("expected zero balances to be skipped, got %v", balances)
	}
	if balances["BTC"] < 0.5999 || balances["BTC"] > 0.6001 || balances["USDT"] != 100 {
		t.Fatalf("unexpected balances: %v", balances)
	}
}

func TestFetchAccountBalancesRequiresCredentials(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected without credentials")
	}, BinanceConfig{})

	if p.Authenticated() {
		t.Fatal("expected unauthenticated provider")
	}
	if _, err := p.FetchAccountBalances(context.Background()); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestSignKnownVector(t *testing.T) {
	// Example request from the Binance signed-endpoint documentation.
	p := NewBinanceProvider(trace.NewNoopTracerProvider().Tracer("test"), BinanceConfig{
		APISecret: "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j",
	})
	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"
	if got := p.sign(query); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestPing(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ping" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{}`))
	}, BinanceConfig{})

	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
