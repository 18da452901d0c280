package app

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/cloudeditor/internal/config"
	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/ui"
)

type FocusArea int

const (
	FocusSidebar FocusArea = iota
	FocusContent
)

type Model struct {
	pages      map[PageID]Page
	activePage PageID
	focus      FocusArea
	width      int
	height     int
	showHelp   bool
	port       string
	deviceName string
	devices    []devicestate.Device
	uploading  bool
	picker     *PortPicker
	cfg        *config.Config
	wsRoot     string
}

func New(pages map[PageID]Page, cfg *config.Config, wsRoot string) Model {
	return Model{
		pages:      pages,
		cfg:        cfg,
		wsRoot:     wsRoot,
		port:       cfg.SerialPort,
		deviceName: cfg.DeviceName,
	}
}

func (m Model) Init() tea.Cmd {
	var cmds []tea.Cmd
	for _, p := range m.pages {
		if cmd := p.Init(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		contentWidth := m.width - sidebarWidth
		contentHeight := m.height - 2 - 1 // status bar + port bar
		for _, p := range m.pages {
			p.SetSize(contentWidth, contentHeight)
		}
		return m, nil

	case PickerSelectedMsg:
		m.picker = nil
		sel := PortSelectedMsg{Port: msg.Port, DeviceName: msg.DeviceName}
		return m, func() tea.Msg { return sel }

	case PickerClosedMsg:
		m.picker = nil
		return m, nil

	case PortSelectedMsg:
		m.port = msg.Port
		m.deviceName = msg.DeviceName
		m.cfg.SerialPort = msg.Port
		m.cfg.DeviceName = msg.DeviceName
		if m.wsRoot != "" {
			config.Save(*m.cfg, m.wsRoot, false)
		}

	case DevicesMsg:
		m.devices = msg.Devices
		if m.picker != nil {
			m.picker.SetDevices(m.devices)
		}

	case UploadingMsg:
		m.uploading = msg.Uploading

	case BaudRateChangedMsg:
		m.cfg.SerialBaudRate = msg.BaudRate

	case ConfigReloadedMsg:
		return m, m.reload(msg.Config)

	case tea.KeyMsg:
		// When picker is open, forward all keys to picker
		if m.picker != nil {
			var cmd tea.Cmd
			m.picker, cmd = m.picker.Update(msg)
			return m, cmd
		}

		// When a page has an active text input, forward all keys
		// directly to the page; only ctrl+c still quits.
		if m.focus == FocusContent {
			if ic, ok := m.pages[m.activePage].(InputCapturer); ok && ic.InputCaptured() {
				if msg.String() == "ctrl+c" {
					return m, tea.Quit
				}
				page := m.pages[m.activePage]
				newPage, cmd := page.Update(msg)
				m.pages[m.activePage] = newPage
				return m, cmd
			}
		}

		// Global key handling
		switch {
		case key.Matches(msg, GlobalKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, GlobalKeys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, GlobalKeys.ToggleFocus):
			if m.focus == FocusSidebar {
				m.focus = FocusContent
				return m, nil
			}
			// When content focused, fall through to page handler
		}

		// Sidebar-only shortcuts
		if m.focus == FocusSidebar {
			if key.Matches(msg, GlobalKeys.PortPicker) {
				m.picker = NewPortPicker(m.devices, m.port)
				m.picker.SetSize(m.width-sidebarWidth, m.height-2-1)
				return m, nil
			}
			switch {
			case key.Matches(msg, GlobalKeys.Prev):
				m.prevPage()
			case key.Matches(msg, GlobalKeys.Next):
				m.nextPage()
			case key.Matches(msg, GlobalKeys.Open):
				m.focus = FocusContent
			}
			return m, nil
		}

		if key.Matches(msg, GlobalKeys.Back) {
			m.focus = FocusSidebar
			return m, nil
		}
		page := m.pages[m.activePage]
		newPage, cmd := page.Update(msg)
		m.pages[m.activePage] = newPage
		return m, cmd
	}

	// Non-key messages (command results, etc.): forward to all pages
	// so responses reach the page that initiated the command
	var cmds []tea.Cmd
	for id, page := range m.pages {
		newPage, cmd := page.Update(msg)
		m.pages[id] = newPage
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return m, tea.Batch(cmds...)
}

// reload adopts a config read from disk. Selection changes go through
// the same messages the picker and settings page use.
func (m *Model) reload(next config.Config) tea.Cmd {
	var cmds []tea.Cmd
	if next.SerialPort != "" && next.SerialPort != m.port {
		sel := PortSelectedMsg{Port: next.SerialPort, DeviceName: next.DeviceName}
		cmds = append(cmds, func() tea.Msg { return sel })
	}
	if next.SerialBaudRate != m.cfg.SerialBaudRate {
		baud := next.SerialBaudRate
		cmds = append(cmds, func() tea.Msg { return BaudRateChangedMsg{BaudRate: baud} })
	}
	next.SerialPort = m.cfg.SerialPort
	next.DeviceName = m.cfg.DeviceName
	next.SerialBaudRate = m.cfg.SerialBaudRate
	*m.cfg = next
	return tea.Batch(cmds...)
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	contentWidth := m.width - sidebarWidth
	contentHeight := m.height - 2 - 1 // status bar + port bar

	page := m.pages[m.activePage]

	portBar := renderPortBar(m.port, m.deviceName, m.uploading, m.width, m.focus == FocusSidebar)
	sidebar := renderSidebar(PageOrder, m.activePage, m.pages, contentHeight, m.focus == FocusSidebar)
	content := ui.ContentStyle.
		Width(contentWidth).
		Height(contentHeight).
		Render(page.View())

	if m.picker != nil {
		m.picker.SetSize(contentWidth, contentHeight)
		content = lipgloss.Place(
			contentWidth, contentHeight,
			lipgloss.Center, lipgloss.Center,
			m.picker.View(),
		)
	}

	statusBar := renderStatusBar(page.ShortHelp(), m.width, m.focus, m.showHelp)

	return renderLayout(portBar, sidebar, content, statusBar)
}

func (m *Model) nextPage() {
	for i, id := range PageOrder {
		if id == m.activePage {
			m.activePage = PageOrder[(i+1)%len(PageOrder)]
			return
		}
	}
}

func (m *Model) prevPage() {
	for i, id := range PageOrder {
		if id == m.activePage {
			m.activePage = PageOrder[(i-1+len(PageOrder))%len(PageOrder)]
			return
		}
	}
}
