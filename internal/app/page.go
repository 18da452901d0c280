package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/cloudeditor/internal/config"
	"github.com/buckleypaul/cloudeditor/internal/devicestate"
)

// PageID identifies each page in the application.
type PageID int

const (
	MonitorPage PageID = iota
	UploadPage
	HistoryPage
	SettingsPage
)

var PageOrder = []PageID{
	MonitorPage,
	UploadPage,
	HistoryPage,
	SettingsPage,
}

// Page is the interface every page in the application implements.
type Page interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Page, tea.Cmd)
	View() string
	Name() string
	ShortHelp() []key.Binding
	SetSize(width, height int)
}

// InputCapturer is an optional interface for pages with text inputs.
// When InputCaptured returns true, the app forwards all keys directly
// to the page instead of processing shortcuts like q, ?, left, etc.
type InputCapturer interface {
	InputCaptured() bool
}

// Sender delivers messages produced outside the update loop.
// *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// PortSelectedMsg is broadcast to all pages when a port is selected.
type PortSelectedMsg struct {
	Port       string
	DeviceName string
}

// DevicesMsg is broadcast to all pages when the attached devices change.
type DevicesMsg struct {
	Devices []devicestate.Device
}

// UploadingMsg is broadcast to all pages when an upload starts or ends.
type UploadingMsg struct {
	Uploading bool
}

// BaudRateChangedMsg is broadcast when the monitor baud rate changes.
type BaudRateChangedMsg struct {
	BaudRate int
}

// ConfigReloadedMsg carries a config that changed on disk. The model
// turns a different port or baud rate into the usual broadcasts.
type ConfigReloadedMsg struct {
	Config config.Config
}
