package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/status"
)

// Badge renders text on a colored block.
func Badge(text string, color lipgloss.Color) string {
	return lipgloss.NewStyle().
		Foreground(BadgeText).
		Background(color).
		Padding(0, 1).
		Render(text)
}

func SuccessBadge(text string) string { return Badge(text, Success) }
func WarningBadge(text string) string { return Badge(text, Warning) }
func ErrorBadge(text string) string   { return Badge(text, Error) }

// StatusBadge renders a monitor status. Green streams, orange is on its
// way to streaming, gray is paused and red needs the board back.
func StatusBadge(s status.Status) string {
	label := strings.ToUpper(s.String())
	switch s {
	case status.Active:
		return SuccessBadge(label)
	case status.Starting, status.Connecting, status.Uploading:
		return WarningBadge(label)
	case status.Paused:
		return Badge(label, Subtle)
	}
	return ErrorBadge(label)
}

// UploadBadge renders the upload status of a device state scope.
func UploadBadge(s devicestate.UploadStatus) string {
	switch s {
	case devicestate.UploadInProgress:
		return WarningBadge("UPLOADING")
	case devicestate.UploadDone:
		return SuccessBadge("DONE")
	case devicestate.UploadError:
		return ErrorBadge("ERROR")
	}
	return Badge("IDLE", Subtle)
}
