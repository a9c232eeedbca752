package tui

import (
	"context"
	"testing"
	"time"

	"alpha-arena/internal/domain"

	tea "github.com/charmbracelet/bubbletea"
)

type stubMarket struct {
	records map[string]*domain.InstrumentRecord
	live    map[string]domain.LiveSnapshot
	calls   int
}

func (s *stubMarket) GetAllData(ctx context.Context) map[string]*domain.InstrumentRecord {
	s.calls++
	return s.records
}

func (s *stubMarket) GetLiveData(symbol string) domain.LiveSnapshot {
	return s.live[symbol]
}

func (s *stubMarket) FormatAllForPrompt(records map[string]*domain.InstrumentRecord) string {
	if len(records) == 0 {
		return ""
	}
	return "BTC price 50000"
}

type stubAdvisor struct {
	name    string
	reply   string
	prompts []string
}

func (s *stubAdvisor) Name() string { return s.name }

func (s *stubAdvisor) Call(ctx context.Context, prompt string) string {
	s.prompts = append(s.prompts, prompt)
	return s.reply
}

type stubDecisions struct{ latest []domain.ModelDecision }

func (s stubDecisions) Latest() []domain.ModelDecision { return s.latest }

func sampleRecords() map[string]*domain.InstrumentRecord {
	ts := time.Unix(0, 0).UTC()
	btc := domain.NewDegradedRecord("BTC", []string{"5m", "4h"}, ts)
	btc.Indicators["5m"] = &domain.IndicatorSet{CurrentPrice: 50010, RSI14: 55}
	btc.Indicators["4h"] = &domain.IndicatorSet{CurrentPrice: 50000, RSI14: 72, MACDHist: 12.5, VolumeCurrent: 1500}
	btc.OpenInterest.DeviationPct = 1.2
	btc.FundingRate.CurrentRate = 0.0001

	eth := domain.NewDegradedRecord("ETH", []string{"5m", "4h"}, ts)
	eth.Indicators["5m"] = &domain.IndicatorSet{CurrentPrice: 3000, RSI14: 28}

	sol := domain.NewDegradedRecord("SOL", []string{"5m", "4h"}, ts)
	return map[string]*domain.InstrumentRecord{"BTC": btc, "ETH": eth, "SOL": sol}
}

func sampleDecisions() []domain.ModelDecision {
	at := time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC)
	return []domain.ModelDecision{
		{Model: "qwen-plus", DecidedAt: at, Decision: domain.Decision{Symbol: "BTCUSDT", Action: domain.ActionBuy, Confidence: 0.8, Rationale: "trend up"}},
		{Model: "deepseek-chat", DecidedAt: at, Decision: domain.Decision{Symbol: "BTCUSDT", Action: domain.ActionHold, Confidence: 0.4}},
		{Model: "gpt-4o", DecidedAt: at, Decision: domain.Decision{Symbol: "ETHUSDT", Action: domain.ActionSell, Confidence: 0.6, Rationale: "funding hot"}},
	}
}

func testServices() Services {
	return Services{
		Market: &stubMarket{
			records: sampleRecords(),
			live: map[string]domain.LiveSnapshot{
				"BTCUSDT": {Ticker: &domain.LiveTick{Symbol: "BTCUSDT", Price: 50500, ChangePct: 1.5, Volume: 2000}},
			},
		},
		Advisors:  []AdvisorQuerier{&stubAdvisor{name: "qwen-plus", reply: "looks strong"}},
		Decisions: stubDecisions{latest: sampleDecisions()},
		Username:  "trader",
	}
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestAppModelInitialTab(t *testing.T) {
	m := NewAppModel(testServices())
	if m.ActiveTab() != TabDashboard {
		t.Fatalf("expected TabDashboard, got %d", m.ActiveTab())
	}
}

func TestAppModelTabSwitchByNumber(t *testing.T) {
	m := NewAppModel(testServices())
	m.SetSize(120, 40)

	updated, _ := m.Update(keyRune('3'))
	app := updated.(AppModel)
	if app.ActiveTab() != TabDecisions {
		t.Fatalf("expected TabDecisions after pressing 3, got %d", app.ActiveTab())
	}

	updated, _ = app.Update(keyRune('2'))
	app = updated.(AppModel)
	if app.ActiveTab() != TabChat {
		t.Fatalf("expected TabChat after pressing 2, got %d", app.ActiveTab())
	}

	// Digits belong to the chat input once it has focus.
	updated, _ = app.Update(keyRune('1'))
	app = updated.(AppModel)
	if app.ActiveTab() != TabChat {
		t.Fatalf("expected chat to keep focus on digit input, got %d", app.ActiveTab())
	}
	if got := app.chat.input.Value(); got != "1" {
		t.Fatalf("expected digit typed into chat input, got %q", got)
	}
}

func TestAppModelTabCycling(t *testing.T) {
	m := NewAppModel(testServices())
	m.SetSize(120, 40)

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	app := updated.(AppModel)
	if app.ActiveTab() != TabDecisions {
		t.Fatalf("expected shift+tab to wrap to TabDecisions, got %d", app.ActiveTab())
	}

	updated, _ = app.Update(tea.KeyMsg{Type: tea.KeyTab})
	app = updated.(AppModel)
	if app.ActiveTab() != TabDashboard {
		t.Fatalf("expected tab to wrap to TabDashboard, got %d", app.ActiveTab())
	}
}

func TestAppModelQuitOutsideChat(t *testing.T) {
	m := NewAppModel(testServices())

	updated, cmd := m.Update(keyRune('q'))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if view := updated.(AppModel).View(); view != "Goodbye!\n" {
		t.Fatalf("expected goodbye view, got %q", view)
	}

	m.switchTab(TabChat)
	updated, _ = m.Update(keyRune('q'))
	if updated.(AppModel).quitting {
		t.Fatal("expected q to be typed in chat, not quit")
	}
}

func TestAppModelRoutesAsyncMessages(t *testing.T) {
	m := NewAppModel(testServices())
	m.SetSize(120, 40)
	m.switchTab(TabChat)

	updated, _ := m.Update(decisionsMsg(sampleDecisions()))
	app := updated.(AppModel)
	if len(app.decisions.filtered()) != 3 {
		t.Fatalf("expected decisions routed while chat is active, got %d", len(app.decisions.filtered()))
	}

	updated, _ = app.Update(marketMsg{rows: []marketRow{{Coin: "BTC"}}})
	app = updated.(AppModel)
	if len(app.dashboard.Rows()) != 1 {
		t.Fatal("expected market rows routed to the dashboard")
	}
}

func TestAppModelWindowResize(t *testing.T) {
	m := NewAppModel(testServices())

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 50})
	app := updated.(AppModel)
	if app.width != 100 || app.height != 50 || app.decisions.height != 48 {
		t.Fatalf("expected 100x50 with 48 rows of content, got %dx%d/%d", app.width, app.height, app.decisions.height)
	}
}

func TestAppModelViewRendersEveryTab(t *testing.T) {
	m := NewAppModel(testServices())
	m.SetSize(120, 40)

	for _, tab := range []Tab{TabDashboard, TabChat, TabDecisions} {
		m.activeTab = tab
		if view := m.View(); view == "" {
			t.Fatalf("expected non-empty view for tab %d", tab)
		}
	}
}

func TestAppModelWithoutServices(t *testing.T) {
	m := NewAppModel(Services{})
	m.SetSize(80, 24)

	for _, tab := range []Tab{TabDashboard, TabChat, TabDecisions} {
		m.activeTab = tab
		if view := m.View(); view == "" {
			t.Fatalf("expected non-empty view for tab %d", tab)
		}
	}
}
