package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"alpha-arena/internal/domain"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const decisionsRefresh = 15 * time.Second

type decisionsMsg []domain.ModelDecision
type decisionsErrMsg struct{ err error }
type decisionsTickMsg time.Time

var actionOptions = []string{"ALL", string(domain.ActionBuy), string(domain.ActionSell), string(domain.ActionHold)}

// DecisionExplorerModel lists the latest cycle with action and model filters.
// Filters apply to the loaded cycle; only refresh goes back to the poller.
type DecisionExplorerModel struct {
	services     Services
	decisions    []domain.ModelDecision
	actionIdx    int
	modelIdx     int
	scrollOffset int
	loading      bool
	err          error
	width        int
	height       int
}

func NewDecisionExplorerModel(svc Services) DecisionExplorerModel {
	return DecisionExplorerModel{services: svc, loading: true}
}

func (m DecisionExplorerModel) Init() tea.Cmd {
	return tea.Batch(m.fetchCmd(), m.tickCmd())
}

func (m DecisionExplorerModel) Update(msg tea.Msg) (DecisionExplorerModel, tea.Cmd) {
	switch msg := msg.(type) {
	case decisionsMsg:
		m.decisions = []domain.ModelDecision(msg)
		m.loading = false
		m.err = nil
		if m.modelIdx >= len(m.modelOptions()) {
			m.modelIdx = 0
		}
		m.clampScroll()
		return m, nil

	case decisionsErrMsg:
		m.err = msg.err
		m.loading = false
		return m, nil

	case decisionsTickMsg:
		return m, tea.Batch(m.fetchCmd(), m.tickCmd())

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, DefaultKeyMap.FilterAction):
			m.actionIdx = (m.actionIdx + 1) % len(actionOptions)
			m.scrollOffset = 0
		case key.Matches(msg, DefaultKeyMap.FilterModel):
			m.modelIdx = (m.modelIdx + 1) % len(m.modelOptions())
			m.scrollOffset = 0
		case key.Matches(msg, DefaultKeyMap.Refresh):
			m.loading = true
			return m, m.fetchCmd()
		case msg.String() == "j" || msg.String() == "down":
			if m.scrollOffset < len(m.filtered())-m.visibleRows() {
				m.scrollOffset++
			}
		case msg.String() == "k" || msg.String() == "up":
			if m.scrollOffset > 0 {
				m.scrollOffset--
			}
		}
	}
	return m, nil
}

func (m DecisionExplorerModel) View() string {
	sections := []string{HeaderStyle.Render("  Model Decisions"), "", m.renderFilters(), rule(m.width)}

	switch {
	case m.services.Decisions == nil:
		sections = append(sections, SubtextStyle.Render("  Decision poller not configured. Set LLM_API_KEY to enable."))
		return strings.Join(sections, "\n")
	case m.loading && len(m.decisions) == 0:
		sections = append(sections, SubtextStyle.Render("  Loading..."))
		return strings.Join(sections, "\n")
	case m.err != nil:
		sections = append(sections, ErrorStyle.Render(fmt.Sprintf("  Error: %v", m.err)))
		return strings.Join(sections, "\n")
	}

	rows := m.filtered()
	if len(rows) == 0 {
		sections = append(sections, SubtextStyle.Render("  No decisions match the current filters"))
		return strings.Join(sections, "\n")
	}

	if len(m.decisions) > 1 {
		sections = append(sections, "  "+consensusLine(m.decisions))
	}
	sections = append(sections, SubtextStyle.Render(fmt.Sprintf("  %-16s %-9s %-4s %5s  %s", "Model", "Symbol", "Act", "Conf", "At")))

	end := min(m.scrollOffset+m.visibleRows(), len(rows))
	rationaleWidth := max(m.width-8, 20)
	for _, d := range rows[m.scrollOffset:end] {
		sections = append(sections, "  "+FormatDecision(d))
		if r := strings.TrimSpace(d.Decision.Rationale); r != "" {
			sections = append(sections, SubtextStyle.Render("    "+truncateText(r, rationaleWidth)))
		}
	}
	if len(rows) > m.visibleRows() {
		sections = append(sections, SubtextStyle.Render(
			fmt.Sprintf("  Showing %d-%d of %d (j/k to scroll)", m.scrollOffset+1, end, len(rows)),
		))
	}

	sections = append(sections, "", SubtextStyle.Render("  [a] action  [m] model  [R] refresh  [j/k] scroll"))
	return strings.Join(sections, "\n")
}

func (m *DecisionExplorerModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// FilterState returns the action and model filters (for testing).
func (m DecisionExplorerModel) FilterState() (action, model string) {
	return actionOptions[m.actionIdx], m.modelOptions()[m.modelIdx]
}

// filtered applies both filters, keeping poller order.
func (m DecisionExplorerModel) filtered() []domain.ModelDecision {
	action, model := m.FilterState()
	out := make([]domain.ModelDecision, 0, len(m.decisions))
	for _, d := range m.decisions {
		if action != "ALL" && string(d.Decision.Action) != action {
			continue
		}
		if model != "ALL" && d.Model != model {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (m DecisionExplorerModel) modelOptions() []string {
	seen := make(map[string]struct{}, len(m.decisions))
	var models []string
	for _, d := range m.decisions {
		if _, ok := seen[d.Model]; ok {
			continue
		}
		seen[d.Model] = struct{}{}
		models = append(models, d.Model)
	}
	sort.Strings(models)
	return append([]string{"ALL"}, models...)
}

func (m DecisionExplorerModel) renderFilters() string {
	return "  " + lipgloss.JoinHorizontal(lipgloss.Top,
		renderChip("Action", actionOptions, m.actionIdx),
		"  ",
		renderChip("Model", m.modelOptions(), m.modelIdx),
	)
}

func renderChip(label string, options []string, active int) string {
	parts := []string{SubtextStyle.Render(label + ": ")}
	for i, opt := range options {
		display := truncateText(opt, 12)
		if i == active {
			parts = append(parts, ActiveTabStyle.Render(display))
		} else {
			parts = append(parts, SubtextStyle.Render(display))
		}
		parts = append(parts, " ")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *DecisionExplorerModel) clampScroll() {
	limit := max(len(m.filtered())-m.visibleRows(), 0)
	if m.scrollOffset > limit {
		m.scrollOffset = limit
	}
}

// visibleRows leaves room for the header, filters, consensus and help lines.
// Each decision may take two lines.
func (m DecisionExplorerModel) visibleRows() int {
	return max((m.height-10)/2, 3)
}

func (m DecisionExplorerModel) fetchCmd() tea.Cmd {
	decisions := m.services.Decisions
	return func() tea.Msg {
		if decisions == nil {
			return decisionsErrMsg{err: fmt.Errorf("decision poller not configured")}
		}
		return decisionsMsg(decisions.Latest())
	}
}

func (m DecisionExplorerModel) tickCmd() tea.Cmd {
	return tea.Tick(decisionsRefresh, func(t time.Time) tea.Msg {
		return decisionsTickMsg(t)
	})
}
