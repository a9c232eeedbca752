package service

import (
	"context"
	"log"
	"sort"
	"time"

	"alpha-arena/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const errNotAuthenticated = "not authenticated"

type AccountSource interface {
	FetchAccountBalances(ctx context.Context) (map[string]float64, error)
	FetchTickerPrices(ctx context.Context) (map[string]float64, error)
}

type AccountService struct {
	tracer        trace.Tracer
	source        AccountSource
	authenticated bool
	now           func() time.Time
}

// NewAccountService takes the authenticated capability explicitly; an
// unauthenticated service never calls the source.
func NewAccountService(tracer trace.Tracer, source AccountSource, authenticated bool) *AccountService {
	return &AccountService{
		tracer:        tracer,
		source:        source,
		authenticated: authenticated,
		now:           time.Now,
	}
}

func (s *AccountService) Authenticated() bool {
	return s.authenticated && s.source != nil
}

// GetAccountInfo never fails; problems are reported through the Error field.
func (s *AccountService) GetAccountInfo(ctx context.Context) domain.AccountSnapshot {
	ctx, span := s.tracer.Start(ctx, "account-service.get-account-info")
	defer span.End()

	now := s.now().UTC()
	if !s.Authenticated() {
		return domain.AccountSnapshot{Error: errNotAuthenticated, UpdateTime: now}
	}

	balances, err := s.source.FetchAccountBalances(ctx)
	if err != nil {
		log.Printf("account balance fetch failed: %v", err)
		return domain.AccountSnapshot{Error: err.Error(), UpdateTime: now}
	}

	prices, err := s.source.FetchTickerPrices(ctx)
	if err != nil {
		log.Printf("ticker price fetch failed, valuing stablecoins only: %v", err)
		prices = map[string]float64{}
	}

	kept := make(map[string]float64, len(balances))
	for asset, amount := range balances {
		if amount > 0 {
			kept[asset] = amount
		}
	}

	return domain.AccountSnapshot{
		Balances:       kept,
		TotalValueUSDT: TotalValueUSDT(kept, prices),
		UpdateTime:     now,
	}
}

// TotalValueUSDT values stablecoins at 1 and other assets at their
// <ASSET>USDT price. Assets without a price contribute nothing.
func TotalValueUSDT(balances map[string]float64, prices map[string]float64) float64 {
	assets := make([]string, 0, len(balances))
	for asset := range balances {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	var total float64
	for _, asset := range assets {
		amount := balances[asset]
		if _, ok := domain.StableCoins[asset]; ok {
			total += amount
			continue
		}
		if price, ok := prices[domain.SymbolFor(asset)]; ok {
			total += amount * price
		}
	}
	return total
}
