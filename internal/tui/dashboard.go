package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"alpha-arena/internal/domain"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	dashboardRefresh   = 30 * time.Second
	dashboardFetchTime = 45 * time.Second
	dashboardDecisions = 6
)

type marketMsg struct {
	records map[string]*domain.InstrumentRecord
	rows    []marketRow
}
type marketErrMsg struct{ err error }
type dashDecisionsMsg []domain.ModelDecision
type dashTickMsg time.Time

// DashboardModel shows one row per instrument, a heat map, RSI gauges for the
// selected instrument and the latest decision cycle.
type DashboardModel struct {
	services  Services
	records   map[string]*domain.InstrumentRecord
	rows      []marketRow
	decisions []domain.ModelDecision
	selected  int
	loading   bool
	err       error
	updatedAt time.Time
	width     int
	height    int
}

func NewDashboardModel(svc Services) DashboardModel {
	return DashboardModel{services: svc, loading: true}
}

func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.fetchMarketCmd(), m.fetchDecisionsCmd(), m.tickCmd())
}

func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case marketMsg:
		m.records = msg.records
		m.rows = msg.rows
		m.loading = false
		m.err = nil
		m.updatedAt = time.Now()
		if m.selected >= len(m.rows) {
			m.selected = 0
		}
		return m, nil

	case marketErrMsg:
		m.err = msg.err
		m.loading = false
		return m, nil

	case dashDecisionsMsg:
		m.decisions = []domain.ModelDecision(msg)
		return m, nil

	case dashTickMsg:
		return m, tea.Batch(m.fetchMarketCmd(), m.fetchDecisionsCmd(), m.tickCmd())

	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			if m.selected < len(m.rows)-1 {
				m.selected++
			}
		case "k", "up":
			if m.selected > 0 {
				m.selected--
			}
		case "R":
			m.loading = true
			return m, tea.Batch(m.fetchMarketCmd(), m.fetchDecisionsCmd())
		}
	}
	return m, nil
}

func (m DashboardModel) View() string {
	if m.services.Market == nil {
		return SubtextStyle.Render("  Market service not available")
	}
	if m.loading && len(m.rows) == 0 {
		return SubtextStyle.Render("  Loading market data...")
	}
	if m.err != nil && len(m.rows) == 0 {
		return ErrorStyle.Render(fmt.Sprintf("  Error: %v", m.err))
	}

	tableWidth := m.width*2/3 - 2
	if tableWidth < 60 {
		tableWidth = 60
	}
	sideWidth := m.width - tableWidth - 4
	if sideWidth < 20 {
		sideWidth = 20
	}

	top := lipgloss.JoinHorizontal(lipgloss.Top,
		BorderStyle.Width(tableWidth).Render(m.renderTable()),
		BorderStyle.Width(sideWidth).Render(m.renderSide(sideWidth)),
	)
	bottom := BorderStyle.Width(max(m.width-2, 40)).Render(m.renderDecisions())
	return lipgloss.JoinVertical(lipgloss.Left, top, bottom)
}

func (m *DashboardModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// Rows returns the loaded rows (for testing).
func (m DashboardModel) Rows() []marketRow { return m.rows }

// Selected returns the highlighted row index (for testing).
func (m DashboardModel) Selected() int { return m.selected }

func (m DashboardModel) renderTable() string {
	lines := []string{HeaderStyle.Render("  Instruments")}
	if !m.updatedAt.IsZero() {
		lines[0] += SubtextStyle.Render("  updated " + m.updatedAt.Format("15:04:05"))
	}
	lines = append(lines, SubtextStyle.Render("  Coin         Price      24h  TF      RSI       MACD hist      OI dev    Funding"))

	for i, r := range m.rows {
		marker := "  "
		if i == m.selected {
			marker = "> "
		}
		lines = append(lines, marker+FormatMarketRow(r))
	}
	if len(m.rows) == 0 {
		lines = append(lines, SubtextStyle.Render("  No instruments configured"))
	}
	if m.err != nil {
		lines = append(lines, ErrorStyle.Render(fmt.Sprintf("  Last refresh failed: %v", m.err)))
	}
	return strings.Join(lines, "\n")
}

func (m DashboardModel) renderSide(width int) string {
	sections := []string{HeaderStyle.Render("  Heat Map"), RenderHeatMap(m.rows, width-2), ""}

	if m.selected < len(m.rows) {
		r := m.rows[m.selected]
		sections = append(sections, HeaderStyle.Render("  "+r.Symbol+" RSI"))
		rec := m.records[r.Coin]
		if rec == nil || rec.Degraded() {
			sections = append(sections, SubtextStyle.Render("  No indicators"))
		} else {
			barWidth := width - 22
			for _, tf := range rec.Timeframes {
				if set := rec.IndicatorsFor(tf); set != nil {
					sections = append(sections, "  "+RenderRSIBar(tf, set.RSI14, barWidth))
				}
			}
		}
		if r.Volume > 0 {
			sections = append(sections, SubtextStyle.Render("  Volume "+formatCompact(r.Volume)))
		}
	}
	return strings.Join(sections, "\n")
}

func (m DashboardModel) renderDecisions() string {
	lines := []string{HeaderStyle.Render("  Latest Decisions")}
	if m.services.Decisions == nil {
		return strings.Join(append(lines, SubtextStyle.Render("  Decision poller not configured")), "\n")
	}
	if len(m.decisions) == 0 {
		return strings.Join(append(lines, SubtextStyle.Render("  No decisions yet")), "\n")
	}

	count := min(len(m.decisions), dashboardDecisions)
	for _, d := range m.decisions[:count] {
		lines = append(lines, "  "+FormatDecision(d))
	}
	if len(m.decisions) > 1 {
		lines = append(lines, "  "+consensusLine(m.decisions))
	}
	return strings.Join(lines, "\n")
}

func consensusLine(decisions []domain.ModelDecision) string {
	if domain.DecisionsAgree(decisions) {
		return actionStyle(decisions[0].Decision.Action).Render("Consensus: all models agree")
	}
	return SubtextStyle.Render("Consensus: split")
}

func (m DashboardModel) fetchMarketCmd() tea.Cmd {
	market := m.services.Market
	return func() tea.Msg {
		if market == nil {
			return marketErrMsg{err: fmt.Errorf("market service not available")}
		}
		ctx, cancel := context.WithTimeout(context.Background(), dashboardFetchTime)
		defer cancel()

		records := market.GetAllData(ctx)
		if err := ctx.Err(); err != nil {
			return marketErrMsg{err: err}
		}
		return marketMsg{records: records, rows: buildRows(records, market.GetLiveData)}
	}
}

func (m DashboardModel) fetchDecisionsCmd() tea.Cmd {
	decisions := m.services.Decisions
	return func() tea.Msg {
		if decisions == nil {
			return dashDecisionsMsg(nil)
		}
		return dashDecisionsMsg(decisions.Latest())
	}
}

func (m DashboardModel) tickCmd() tea.Cmd {
	return tea.Tick(dashboardRefresh, func(t time.Time) tea.Msg {
		return dashTickMsg(t)
	})
}
