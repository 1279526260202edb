// Package ui renders the consolidated book as a live terminal view for the
// client subcommand.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	pb "github.com/fd1az/orderbook-aggregator/proto"
)

// Program is the running bubbletea program, set by the client harness so
// the stream goroutine can push messages into the view.
var Program *tea.Program

// Send delivers a message to the running program, if any.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}

// SummaryMsg carries a fresh consolidated summary into the view.
type SummaryMsg struct {
	Summary *pb.Summary
}

// ErrorMsg carries a stream error into the view.
type ErrorMsg struct {
	Error error
}

// Model is the client TUI model.
type Model struct {
	addr    string
	spinner spinner.Model
	summary *pb.Summary
	updates uint64
	err     error
}

// New creates the client view connecting to addr.
func New(addr string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))

	return Model{
		addr:    addr,
		spinner: s,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case SummaryMsg:
		m.summary = msg.Summary
		m.updates++
		return m, nil

	case ErrorMsg:
		m.err = msg.Error
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("orderbook aggregator"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("stream error: " + m.err.Error()))
		b.WriteString("\n")
		return b.String()
	}

	if m.summary == nil {
		b.WriteString(m.spinner.View())
		b.WriteString(statusStyle.Render(" waiting for summaries from " + m.addr))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(spreadStyle.Render(fmt.Sprintf("spread %.8f", m.summary.GetSpread())))
	b.WriteString(statusStyle.Render(fmt.Sprintf("   %d updates", m.updates)))
	b.WriteString("\n\n")

	bids := renderSide("BIDS", m.summary.GetBids(), bidStyle)
	asks := renderSide("ASKS", m.summary.GetAsks(), askStyle)
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, bids, "  ", asks))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render("q to quit"))
	b.WriteString("\n")

	return b.String()
}

func renderSide(title string, levels []*pb.Level, priceStyle lipgloss.Style) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-12s %-14s %-10s", title, "AMOUNT", "SOURCE")))
	b.WriteString("\n")

	if len(levels) == 0 {
		b.WriteString(statusStyle.Render("(empty)"))
		b.WriteString("\n")
	}

	for _, l := range levels {
		b.WriteString(priceStyle.Render(fmt.Sprintf("%-12.8g", l.GetPrice())))
		b.WriteString(fmt.Sprintf(" %-14.8g ", l.GetAmount()))
		b.WriteString(exchangeStyle.Render(l.GetExchange()))
		b.WriteString("\n")
	}

	return boxStyle.Render(b.String())
}
