// Package ui holds the palette and the small rendering helpers shared by
// the terminal pages.
package ui

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	Primary   = lipgloss.Color("63")
	Secondary = lipgloss.Color("86")
	Success   = lipgloss.Color("78")
	Warning   = lipgloss.Color("214")
	Error     = lipgloss.Color("196")
	Subtle    = lipgloss.Color("241")
	Surface   = lipgloss.Color("236")
	Text      = lipgloss.Color("252")
	TextDim   = lipgloss.Color("245")
	BadgeText = lipgloss.Color("230")
)

// Frame.
var (
	SidebarStyle = lipgloss.NewStyle().
			Width(20).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderRight(true).
			BorderForeground(Surface).
			Padding(1, 1)

	SidebarItemStyle   = lipgloss.NewStyle().Foreground(TextDim).PaddingLeft(1)
	SidebarActiveStyle = lipgloss.NewStyle().Foreground(Primary).Bold(true).PaddingLeft(1)

	ContentStyle = lipgloss.NewStyle().Padding(1, 2)

	StatusBarStyle    = lipgloss.NewStyle().Foreground(TextDim).Background(Surface).Padding(0, 1)
	StatusBarKeyStyle = lipgloss.NewStyle().Foreground(Text).Background(Surface).Bold(true)

	TitleStyle = lipgloss.NewStyle().Foreground(Primary).Bold(true).MarginBottom(1)
)

// Text.
var (
	BoldStyle     = lipgloss.NewStyle().Bold(true)
	DimStyle      = lipgloss.NewStyle().Foreground(TextDim)
	SelectedStyle = lipgloss.NewStyle().Foreground(Primary).Bold(true)

	// SentStyle marks lines the user wrote to the port.
	SentStyle = lipgloss.NewStyle().Foreground(Secondary)
	// NoticeStyle marks lines the monitor inserts itself, such as a
	// disconnect.
	NoticeStyle = lipgloss.NewStyle().Foreground(Warning).Italic(true)
)
