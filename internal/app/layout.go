package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/cloudeditor/internal/ui"
)

const sidebarWidth = 22 // 20 content + 2 border/padding

func renderPortBar(port, deviceName string, uploading bool, width int, sidebarFocused bool) string {
	portDisplay := port
	if portDisplay == "" {
		portDisplay = "(none)"
	}
	deviceDisplay := deviceName
	if deviceDisplay == "" {
		deviceDisplay = "(unknown)"
	}
	content := fmt.Sprintf("Port: %s  Device: %s", portDisplay, deviceDisplay)
	if uploading {
		content += "  " + ui.WarningBadge("UPLOADING")
	}
	hint := ""
	if sidebarFocused {
		hint = ui.DimStyle.Render("  [p] change")
	}
	return ui.StatusBarStyle.Width(width).Render(content + hint)
}

func renderSidebar(pages []PageID, active PageID, pageMap map[PageID]Page, height int, focused bool) string {
	var b strings.Builder
	var title string
	if focused {
		title = ui.BoldStyle.Render("cloudeditor [FOCUSED]")
	} else {
		title = ui.TitleStyle.Render("cloudeditor")
	}
	b.WriteString(title)
	b.WriteString("\n\n")

	for _, id := range pages {
		p := pageMap[id]
		if p == nil {
			continue
		}
		if id == active {
			b.WriteString(ui.SidebarActiveStyle.Render("▸ " + p.Name()))
		} else {
			b.WriteString(ui.SidebarItemStyle.Render("  " + p.Name()))
		}
		b.WriteString("\n")
	}

	style := ui.SidebarStyle.Height(height)
	if focused {
		style = style.BorderForeground(ui.Primary)
	}
	return style.Render(b.String())
}

func renderStatusBar(pageHelp []key.Binding, width int, focus FocusArea, full bool) string {
	var bindings []key.Binding
	if focus == FocusSidebar {
		bindings = append(bindings, GlobalKeys.sidebarHelp()...)
	}
	if focus == FocusContent || full {
		bindings = append(bindings, pageHelp...)
	}
	if focus == FocusContent {
		bindings = append(bindings, GlobalKeys.Back)
	}
	bindings = append(bindings, GlobalKeys.frameHelp()...)

	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		if kb.Enabled() {
			parts = append(parts, ui.StatusKey(kb.Help().Key, kb.Help().Desc))
		}
	}
	return ui.StatusBarStyle.Width(width).Render(strings.Join(parts, "  "))
}

func renderLayout(portBar, sidebar, content, statusBar string) string {
	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, content)
	return lipgloss.JoinVertical(lipgloss.Left, portBar, main, statusBar)
}
