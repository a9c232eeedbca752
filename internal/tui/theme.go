package tui

import "github.com/charmbracelet/lipgloss"

var (
	TabStyle       = lipgloss.NewStyle().Padding(0, 2)
	ActiveTabStyle = TabStyle.Bold(true).
			Foreground(lipgloss.Color("#F5F5F5")).
			Background(lipgloss.Color("#2F6FDE"))
	InactiveTabStyle = TabStyle.Foreground(lipgloss.Color("#8A8A8A"))
	SessionStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A")).Italic(true)

	PriceUpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3DD68C"))
	PriceDownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F25F5C"))
	PriceFlatStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))

	BuyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#3DD68C")).Bold(true)
	SellStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F25F5C")).Bold(true)
	HoldStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F2C14E"))

	OverboughtStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F25F5C"))
	OversoldStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3DD68C"))

	HeaderStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F5F5F5"))
	SubtextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
	BorderStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#4A4A4A"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F25F5C"))
	SpinnerColor = lipgloss.Color("#2F6FDE")

	UserMsgStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#2F6FDE")).Bold(true)
	AssistantMsgStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F5F5F5")).Bold(true)

	HeatUp      = lipgloss.Color("#3DD68C")
	HeatDown    = lipgloss.Color("#F25F5C")
	HeatNeutral = lipgloss.Color("#4A4A4A")
)
