package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"alpha-arena/internal/advisor"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const chatTimeout = 90 * time.Second

var errAdvisorUnavailable = errors.New("advisor did not answer, try again later")

type advisorReplyMsg struct {
	model string
	text  string
}
type advisorErrMsg struct{ err error }

type chatMessage struct {
	Role    string
	Model   string
	Content string
	Time    time.Time
}

// ChatModel sends free-form questions to one advisor at a time. Each question
// carries the current market prompt so answers are grounded in live data.
type ChatModel struct {
	services   Services
	advisorIdx int
	messages   []chatMessage
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	waiting    bool
	err        error
	width      int
	height     int
	ready      bool
}

func NewChatModel(svc Services) ChatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask about the market, e.g. is BTC overbought on 4h?"
	ti.CharLimit = 500
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(SpinnerColor)

	return ChatModel{services: svc, input: ti, spinner: sp}
}

func (m ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ChatModel) Update(msg tea.Msg) (ChatModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case advisorReplyMsg:
		m.messages = append(m.messages, chatMessage{Role: "assistant", Model: msg.model, Content: msg.text, Time: time.Now()})
		m.waiting = false
		m.err = nil
		m.refreshViewport()
		return m, nil

	case advisorErrMsg:
		m.waiting = false
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, DefaultKeyMap.NextAdvisor) && len(m.services.Advisors) > 1 {
			m.advisorIdx = (m.advisorIdx + 1) % len(m.services.Advisors)
			return m, nil
		}
		if msg.Type == tea.KeyEnter && !m.waiting {
			if text := strings.TrimSpace(m.input.Value()); text != "" && m.currentAdvisor() != nil {
				m.messages = append(m.messages, chatMessage{Role: "user", Content: text, Time: time.Now()})
				m.input.SetValue("")
				m.waiting = true
				m.refreshViewport()
				return m, tea.Batch(m.askAdvisorCmd(text), m.spinner.Tick)
			}
		}

	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if !m.waiting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m ChatModel) View() string {
	current := m.currentAdvisor()
	if current == nil {
		return lipgloss.JoinVertical(lipgloss.Left,
			"",
			HeaderStyle.Render("  Ask an Advisor"),
			"",
			SubtextStyle.Render("  No advisor configured. Set LLM_API_KEY to enable."),
		)
	}

	header := HeaderStyle.Render("  Ask an Advisor") + SubtextStyle.Render("  model: "+current.Name())
	if len(m.services.Advisors) > 1 {
		header += SubtextStyle.Render("  [ctrl+n] switch")
	}
	sections := []string{header, rule(m.width)}

	if !m.ready {
		m.initViewport()
	}
	sections = append(sections, m.viewport.View(), rule(m.width))

	if m.waiting {
		sections = append(sections, fmt.Sprintf("  %s %s is thinking...", m.spinner.View(), current.Name()))
	} else {
		if m.err != nil {
			sections = append(sections, ErrorStyle.Render(fmt.Sprintf("  Error: %v", m.err)))
		}
		sections = append(sections, "  "+m.input.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *ChatModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.input.Width = max(w-6, 10)
	m.ready = false
}

func (m *ChatModel) Focus() { m.input.Focus() }

func (m *ChatModel) Blur() { m.input.Blur() }

// IsWaiting reports whether a question is in flight (for testing).
func (m ChatModel) IsWaiting() bool { return m.waiting }

// MessageCount returns the transcript length (for testing).
func (m ChatModel) MessageCount() int { return len(m.messages) }

func (m ChatModel) currentAdvisor() AdvisorQuerier {
	if len(m.services.Advisors) == 0 {
		return nil
	}
	return m.services.Advisors[m.advisorIdx%len(m.services.Advisors)]
}

func (m *ChatModel) initViewport() {
	m.viewport = viewport.New(max(m.width-2, 10), max(m.height-6, 3))
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
	m.ready = true
}

func (m *ChatModel) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func (m ChatModel) renderMessages() string {
	if len(m.messages) == 0 {
		return SubtextStyle.Render("  Questions are sent with the current market snapshot.")
	}

	var lines []string
	for _, msg := range m.messages {
		stamp := SubtextStyle.Render(msg.Time.Format("15:04"))
		switch msg.Role {
		case "user":
			lines = append(lines, fmt.Sprintf("  %s  %s %s", stamp, UserMsgStyle.Render("You:"), msg.Content))
		default:
			lines = append(lines, fmt.Sprintf("  %s  %s", stamp, AssistantMsgStyle.Render(msg.Model+":")))
			for _, line := range strings.Split(msg.Content, "\n") {
				lines = append(lines, "         "+line)
			}
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// chatPrompt appends the market snapshot when one is available.
func chatPrompt(question, marketText string) string {
	if strings.TrimSpace(marketText) == "" {
		return question
	}
	return question + "\n\nCurrent market data:\n" + marketText
}

func (m ChatModel) askAdvisorCmd(question string) tea.Cmd {
	adv := m.currentAdvisor()
	market := m.services.Market
	return func() tea.Msg {
		if adv == nil {
			return advisorErrMsg{err: fmt.Errorf("advisor not available")}
		}
		ctx, cancel := context.WithTimeout(context.Background(), chatTimeout)
		defer cancel()

		var marketText string
		if market != nil {
			marketText = market.FormatAllForPrompt(market.GetAllData(ctx))
		}
		reply := adv.Call(ctx, chatPrompt(question, marketText))
		if reply == advisor.FallbackResponse {
			return advisorErrMsg{err: errAdvisorUnavailable}
		}
		return advisorReplyMsg{model: adv.Name(), text: reply}
	}
}
