package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	Primary   = lipgloss.Color("#F472B6") // pinch pink
	Secondary = lipgloss.Color("#7C3AED")
	Success   = lipgloss.Color("#10B981")
	Warning   = lipgloss.Color("#F59E0B")
	Error     = lipgloss.Color("#EF4444")
	Muted     = lipgloss.Color("#6B7280")
	Light     = lipgloss.Color("#F9FAFB")
	Panel     = lipgloss.Color("#1F2937")
)

var (
	SuccessStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

	// chat senders; the local participant stands out
	SenderStyle     = lipgloss.NewStyle().Foreground(Secondary).Bold(true)
	SelfSenderStyle = lipgloss.NewStyle().Foreground(Primary).Bold(true)
)

// Room view chrome
var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			Background(Panel).
			Padding(0, 2)

	StatusStyle = lipgloss.NewStyle().
			Foreground(Light).
			Background(Primary).
			Padding(0, 1).
			Bold(true)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Muted).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().Foreground(Muted)

	BannerStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(Success).
			Padding(1, 2)
)

// Participant table
var (
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	TableHeaderStyle = tableCellStyle.Bold(true).Foreground(Primary).Align(lipgloss.Center)
	TableRowStyle    = tableCellStyle.Foreground(lipgloss.Color("255"))
	TableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
)

// linkStateStyle colors a link column by the state it starts with.
func linkStateStyle(base lipgloss.Style, cell string) lipgloss.Style {
	switch {
	case strings.HasPrefix(cell, "connected"):
		return base.Foreground(Success)
	case strings.HasPrefix(cell, "negotiating"):
		return base.Foreground(Warning)
	}
	return base
}

const (
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconInfo    = "ℹ️"
	IconRoom    = "🚪"
	IconPeer    = "👤"
	IconScreen  = "🖥️"
	IconMic     = "🎙️"
	IconMuted   = "🔇"
	IconCamera  = "📷"
	IconLink    = "🔗"
	IconCopy    = "📋"
	IconWeb     = "🌐"
)

// Out is where the Print helpers write. Tests swap it.
var Out io.Writer = os.Stdout

func PrintError(msg string) {
	fmt.Fprintf(Out, "%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintWarning(msg string) {
	fmt.Fprintf(Out, "%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	fmt.Fprintf(Out, "%s %s\n", SuccessStyle.Render(IconSuccess), msg)
}

func PrintSuccessf(format string, args ...any) {
	PrintSuccess(fmt.Sprintf(format, args...))
}

func PrintInfo(msg string) {
	fmt.Fprintf(Out, "%s %s\n", IconInfo, msg)
}
