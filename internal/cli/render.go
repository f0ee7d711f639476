package cli

import (
	"fmt"
	"strings"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/export"

	"github.com/charmbracelet/lipgloss"
)

// Theme colors
var (
	ColorBorder    = lipgloss.Color("#282726")
	ColorTextDim   = lipgloss.Color("#575653")
	ColorTextMuted = lipgloss.Color("#6F6E69")
	ColorText      = lipgloss.Color("#FFFCF0")
	ColorAccent    = lipgloss.Color("#3AA99F")
	ColorGreen     = lipgloss.Color("#879A39")
	ColorOrange    = lipgloss.Color("#DA702C")
	ColorRed       = lipgloss.Color("#D14D41")
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Align(lipgloss.Center)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorAccent)

	valueStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	incomeStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	expenseStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	warnStyle = lipgloss.NewStyle().
			Foreground(ColorOrange)

	dimStyle = lipgloss.NewStyle().
			Foreground(ColorTextDim)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1).
			Width(16)
)

// RenderTitle renders a centered title bar in a bordered box.
func RenderTitle(title string) string {
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Width(55).
		Align(lipgloss.Center).
		Padding(0, 1)

	return border.Render(titleStyle.Render(title))
}

// RenderSummary renders the four headline figures as cards side by side.
func RenderSummary(s domain.RoundedSummary) string {
	balanceStyle := valueStyle
	if s.TotalBalance < 0 {
		balanceStyle = expenseStyle
	}
	utilStyle := valueStyle
	if s.BudgetUtilization >= 90 {
		utilStyle = warnStyle
	}

	cards := []string{
		card("Balance", balanceStyle.Render(FormatMoney(s.TotalBalance))),
		card("Income", incomeStyle.Render(FormatMoney(s.TotalIncome))),
		card("Expense", expenseStyle.Render(FormatMoney(s.TotalExpense))),
		card("Budget used", utilStyle.Render(FormatPercent(s.BudgetUtilization))),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func card(label, value string) string {
	return cardStyle.Render(mutedStyle.Render(label) + "\n" + value)
}

// RenderTransactions renders rows as a bordered table, newest first.
func RenderTransactions(title string, txs []domain.CanonicalTransaction) string {
	if len(txs) == 0 {
		return "  " + headerStyle.Render(title) + "\n  " + mutedStyle.Render("No transactions yet.") + "\n"
	}

	rows := make([][]string, len(txs))
	for i, tx := range txs {
		rows[i] = []string{tx.Label, tx.OccurredAt.Format(export.DateLayout), FormatSigned(tx.Kind, tx.Amount)}
	}
	return renderTable(title, []string{"Title", "Date", "Amount"}, rows)
}

// RenderDashboard renders the full dashboard view.
func RenderDashboard(view *domain.DashboardView) string {
	var b strings.Builder
	b.WriteString(RenderTitle("LEDGER"))
	b.WriteString("\n")
	b.WriteString(RenderSummary(view.Summary))
	b.WriteString("\n\n")
	b.WriteString(RenderTransactions("Recent transactions", view.Recent))
	if view.Meta.Dropped > 0 {
		b.WriteString("\n  ")
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d malformed records skipped", view.Meta.Dropped)))
		b.WriteString("\n")
	}
	return b.String()
}

func renderTable(title string, headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	b.WriteString("  ")
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")

	rule := func(left, mid, right string) {
		b.WriteString(dimStyle.Render(left))
		for i, w := range widths {
			b.WriteString(dimStyle.Render(strings.Repeat("─", w+2)))
			if i < len(widths)-1 {
				b.WriteString(dimStyle.Render(mid))
			}
		}
		b.WriteString(dimStyle.Render(right))
		b.WriteString("\n")
	}
	line := func(cells []string, style lipgloss.Style) {
		b.WriteString(dimStyle.Render("│"))
		for i, w := range widths {
			cell := cells[i]
			pad := strings.Repeat(" ", w-lipgloss.Width(cell))
			// Right-align the amount column.
			if i == len(widths)-1 {
				b.WriteString(style.Render(" " + pad + cell + " "))
			} else {
				b.WriteString(style.Render(" " + cell + pad + " "))
			}
			b.WriteString(dimStyle.Render("│"))
		}
		b.WriteString("\n")
	}

	rule("╭", "┬", "╮")
	line(headers, headerStyle)
	rule("├", "┼", "┤")
	for _, row := range rows {
		line(row, valueStyle)
	}
	rule("╰", "┴", "╯")
	return b.String()
}
