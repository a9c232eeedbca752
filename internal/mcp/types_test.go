package mcp

import (
	"testing"
	"time"

	"alpha-arena/internal/domain"
)

func TestNormalizeCoin(t *testing.T) {
	coin, err := normalizeCoin(" ethusdt ")
	if err != nil || coin != "ETH" {
		t.Fatalf("expected ETH, got coin=%q err=%v", coin, err)
	}
	if _, err := normalizeCoin("  "); err == nil {
		t.Fatal("expected empty coin error")
	}
}

func TestNormalizeInterval(t *testing.T) {
	interval, err := normalizeInterval("")
	if err != nil || interval != "5m" {
		t.Fatalf("expected default 5m, got interval=%q err=%v", interval, err)
	}
	interval, err = normalizeInterval(" 4h ")
	if err != nil || interval != "4h" {
		t.Fatalf("expected 4h, got interval=%q err=%v", interval, err)
	}
	if _, err := normalizeInterval("2m"); err == nil {
		t.Fatal("expected unsupported interval error")
	}
}

func TestNormalizeCandleLimit(t *testing.T) {
	cases := map[int]int{0: 200, -3: 200, 50: 50, 1000: 1000, 1001: 1000}
	for in, want := range cases {
		if got := normalizeCandleLimit(in); got != want {
			t.Fatalf("normalizeCandleLimit(%d): expected %d, got %d", in, want, got)
		}
	}
}

func TestRecordToMapKeepsTimeframeKeys(t *testing.T) {
	rec := domain.NewDegradedRecord("SOL", []string{"3m", "4h"}, time.Unix(0, 0))
	rec.Indicators["3m"] = &domain.IndicatorSet{CurrentPrice: 150}

	out, err := recordToMap(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	set, ok := out["3m_indicators"].(map[string]any)
	if !ok || set["current_price"] != float64(150) {
		t.Fatalf("unexpected 3m bundle %+v", out["3m_indicators"])
	}
	empty, ok := out["4h_indicators"].(map[string]any)
	if !ok || len(empty) != 0 {
		t.Fatalf("expected empty 4h bundle, got %+v", out["4h_indicators"])
	}
}
