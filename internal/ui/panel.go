package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

// Panel boxes content under a title set into the top border:
//
//	╭─ Title ──────╮
//	│ content      │
//	╰──────────────╯
//
// width is the outer width; height 0 sizes to the content.
func Panel(title, content string, width, height int, focused bool) string {
	border := Subtle
	if focused {
		border = Primary
	}
	edge := lipgloss.NewStyle().Foreground(border)

	// "╭─ " + title + " " + dashes + "╮"
	if width > 6 {
		title = truncate.StringWithTail(title, uint(width-6), "…")
	}
	dashes := max(width-lipgloss.Width(title)-5, 0)
	top := edge.Render("╭─ ") + title + edge.Render(" "+strings.Repeat("─", dashes)+"╮")

	body := lipgloss.NewStyle().
		Width(max(width-2, 0)).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderLeft(true).
		BorderRight(true).
		BorderBottom(true).
		BorderTop(false).
		BorderForeground(border).
		Padding(0, 1)
	if height > 2 {
		body = body.Height(height - 2)
	}
	return top + "\n" + body.Render(content)
}

// Title renders a page title.
func Title(text string) string {
	return TitleStyle.Render(text)
}

// StatusKey renders a key hint for the status bar.
func StatusKey(k, desc string) string {
	return StatusBarKeyStyle.Render(k) + StatusBarStyle.Render(":"+desc)
}
