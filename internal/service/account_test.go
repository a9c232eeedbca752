package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type stubAccountSource struct {
	balances   map[string]float64
	prices     map[string]float64
	balanceErr error
	priceErr   error
	calls      int
}

func (s *stubAccountSource) FetchAccountBalances(ctx context.Context) (map[string]float64, error) {
	s.calls++
	return s.balances, s.balanceErr
}

func (s *stubAccountSource) FetchTickerPrices(ctx context.Context) (map[string]float64, error) {
	return s.prices, s.priceErr
}

func newTestAccountService(source AccountSource, authenticated bool) *AccountService {
	svc := NewAccountService(trace.NewNoopTracerProvider().Tracer("test"), source, authenticated)
	svc.now = func() time.Time { return time.Unix(1640000000, 0) }
	return svc
}

func TestGetAccountInfoUnauthenticated(t *testing.T) {
	source := &stubAccountSource{}
	snap := newTestAccountService(source, false).GetAccountInfo(context.Background())
	if snap.Error != "not authenticated" {
		t.Fatalf("expected not authenticated error, got %q", snap.Error)
	}
	if source.calls != 0 {
		t.Fatalf("expected no collaborator calls, got %d", source.calls)
	}
}

func TestGetAccountInfoTotalsInUSDT(t *testing.T) {
	source := &stubAccountSource{
		balances: map[string]float64{"BTC": 0.5, "USDT": 100, "FDUSD": 50, "XYZ": 3, "ETH": 0},
		prices:   map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 4000},
	}
	snap := newTestAccountService(source, true).GetAccountInfo(context.Background())

	if snap.Error != "" {
		t.Fatalf("unexpected error %q", snap.Error)
	}
	if snap.TotalValueUSDT != 25150 {
		t.Fatalf("expected total 25150, got %f", snap.TotalValueUSDT)
	}
	if _, ok := snap.Balances["ETH"]; ok {
		t.Fatal("expected zero balance to be dropped")
	}
	if !snap.UpdateTime.Equal(time.Unix(1640000000, 0)) {
		t.Fatalf("unexpected update time %s", snap.UpdateTime)
	}
}

func TestGetAccountInfoCollaboratorFailure(t *testing.T) {
	source := &stubAccountSource{balanceErr: errors.New("timestamp outside recvWindow")}
	snap := newTestAccountService(source, true).GetAccountInfo(context.Background())
	if snap.Error == "" || snap.Balances != nil {
		t.Fatalf("expected error snapshot, got %+v", snap)
	}
}

func TestGetAccountInfoPriceFailureValuesStablecoins(t *testing.T) {
	source := &stubAccountSource{
		balances: map[string]float64{"BTC": 1, "USDC": 10},
		priceErr: errors.New("rate limited"),
	}
	snap := newTestAccountService(source, true).GetAccountInfo(context.Background())
	if snap.TotalValueUSDT != 10 {
		t.Fatalf("expected stablecoin-only total 10, got %f", snap.TotalValueUSDT)
	}
}
