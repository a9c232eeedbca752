package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type Tab int

const (
	TabDashboard Tab = iota
	TabChat
	TabDecisions
)

var tabNames = []string{"1:Dashboard", "2:Chat", "3:Decisions"}

// AppModel is the root model: a tab bar over three screens.
type AppModel struct {
	services  Services
	activeTab Tab
	dashboard DashboardModel
	chat      ChatModel
	decisions DecisionExplorerModel
	width     int
	height    int
	quitting  bool
}

func NewAppModel(svc Services) AppModel {
	return AppModel{
		services:  svc,
		activeTab: TabDashboard,
		dashboard: NewDashboardModel(svc),
		chat:      NewChatModel(svc),
		decisions: NewDecisionExplorerModel(svc),
	}
}

func (m AppModel) Init() tea.Cmd {
	return tea.Batch(m.dashboard.Init(), m.chat.Init(), m.decisions.Init())
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if m.handlesGlobally(msg) {
			switch {
			case key.Matches(msg, DefaultKeyMap.Quit):
				m.quitting = true
				return m, tea.Quit
			case key.Matches(msg, DefaultKeyMap.Tab):
				m.switchTab(Tab((int(m.activeTab) + 1) % len(tabNames)))
				return m, nil
			case key.Matches(msg, DefaultKeyMap.ShiftTab):
				m.switchTab(Tab((int(m.activeTab) + len(tabNames) - 1) % len(tabNames)))
				return m, nil
			}
			if tab, ok := tabForKey(msg.String()); ok {
				m.switchTab(tab)
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	switch msg.(type) {
	case marketMsg, marketErrMsg, dashDecisionsMsg, dashTickMsg:
		m.dashboard, cmd = m.dashboard.Update(msg)
	case decisionsMsg, decisionsErrMsg, decisionsTickMsg:
		m.decisions, cmd = m.decisions.Update(msg)
	case advisorReplyMsg, advisorErrMsg:
		m.chat, cmd = m.chat.Update(msg)
	default:
		switch m.activeTab {
		case TabDashboard:
			m.dashboard, cmd = m.dashboard.Update(msg)
		case TabChat:
			m.chat, cmd = m.chat.Update(msg)
		case TabDecisions:
			m.decisions, cmd = m.decisions.Update(msg)
		}
	}
	return m, cmd
}

func (m AppModel) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var content string
	switch m.activeTab {
	case TabDashboard:
		content = m.dashboard.View()
	case TabChat:
		content = m.chat.View()
	case TabDecisions:
		content = m.decisions.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTabBar(), content)
}

func (m *AppModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	contentHeight := h - 2
	m.dashboard.SetSize(w, contentHeight)
	m.chat.SetSize(w, contentHeight)
	m.decisions.SetSize(w, contentHeight)
}

// ActiveTab returns the current tab (for testing).
func (m AppModel) ActiveTab() Tab { return m.activeTab }

// handlesGlobally lets the chat input keep letters and digits while typing.
func (m AppModel) handlesGlobally(msg tea.KeyMsg) bool {
	if m.activeTab != TabChat {
		return true
	}
	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyCtrlC:
		return true
	}
	return false
}

func tabForKey(k string) (Tab, bool) {
	switch k {
	case "1":
		return TabDashboard, true
	case "2":
		return TabChat, true
	case "3":
		return TabDecisions, true
	}
	return 0, false
}

func (m *AppModel) switchTab(tab Tab) {
	if tab == TabChat && m.activeTab != TabChat {
		m.chat.Focus()
	} else if m.activeTab == TabChat && tab != TabChat {
		m.chat.Blur()
	}
	m.activeTab = tab
}

func (m AppModel) renderTabBar() string {
	tabs := make([]string, 0, len(tabNames)+1)
	for i, name := range tabNames {
		if Tab(i) == m.activeTab {
			tabs = append(tabs, ActiveTabStyle.Render(name))
		} else {
			tabs = append(tabs, InactiveTabStyle.Render(name))
		}
	}
	if m.services.Username != "" {
		tabs = append(tabs, SessionStyle.Render("  "+m.services.Username+"@alpha-arena"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}
