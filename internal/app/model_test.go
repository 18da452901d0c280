package app

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buckleypaul/cloudeditor/internal/config"
	"github.com/buckleypaul/cloudeditor/internal/devicestate"
)

type stubPage struct {
	name    string
	msgs    []tea.Msg
	capture bool
	w, h    int
}

func (p *stubPage) Init() tea.Cmd { return nil }

func (p *stubPage) Update(msg tea.Msg) (Page, tea.Cmd) {
	p.msgs = append(p.msgs, msg)
	return p, nil
}

func (p *stubPage) View() string             { return p.name + " view" }
func (p *stubPage) Name() string             { return p.name }
func (p *stubPage) ShortHelp() []key.Binding { return nil }
func (p *stubPage) SetSize(w, h int)         { p.w, p.h = w, h }
func (p *stubPage) InputCaptured() bool      { return p.capture }

func newModel(t *testing.T) (Model, map[PageID]*stubPage) {
	t.Helper()
	stubs := map[PageID]*stubPage{
		MonitorPage:  {name: "Monitor"},
		UploadPage:   {name: "Upload"},
		HistoryPage:  {name: "History"},
		SettingsPage: {name: "Settings"},
	}
	pages := make(map[PageID]Page, len(stubs))
	for id, s := range stubs {
		pages[id] = s
	}
	cfg := config.Defaults()
	return New(pages, &cfg, t.TempDir()), stubs
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestBroadcastMessagesReachAllPages(t *testing.T) {
	m, stubs := newModel(t)
	devices := []devicestate.Device{{Name: "Arduino Uno", PortName: "/dev/ttyACM0"}}

	m, _ = update(m, DevicesMsg{Devices: devices})
	m, _ = update(m, UploadingMsg{Uploading: true})
	for _, s := range stubs {
		require.Len(t, s.msgs, 2, s.name)
		assert.Equal(t, DevicesMsg{Devices: devices}, s.msgs[0])
	}
	assert.True(t, m.uploading)
}

func TestKeysGoToActivePageWhenFocused(t *testing.T) {
	m, stubs := newModel(t)

	m, _ = update(m, keyMsg("x"))
	assert.Empty(t, stubs[MonitorPage].msgs, "sidebar swallows page keys")

	m, _ = update(m, keyMsg("down"))
	assert.Equal(t, UploadPage, m.activePage)
	m, _ = update(m, keyMsg("enter"))
	assert.Equal(t, FocusContent, m.focus)

	m, _ = update(m, keyMsg("x"))
	assert.Len(t, stubs[UploadPage].msgs, 1)
	assert.Empty(t, stubs[MonitorPage].msgs)

	m, _ = update(m, keyMsg("left"))
	assert.Equal(t, FocusSidebar, m.focus)
}

func TestInputCapturingPageGetsGlobalKeys(t *testing.T) {
	m, stubs := newModel(t)
	m, _ = update(m, keyMsg("enter"))
	stubs[MonitorPage].capture = true

	_, cmd := update(m, keyMsg("q"))
	assert.Nil(t, cmd, "q is typed, not quit")
	assert.Len(t, stubs[MonitorPage].msgs, 1)
}

func TestPortPickerSelectsPort(t *testing.T) {
	m, stubs := newModel(t)
	m, _ = update(m, DevicesMsg{Devices: []devicestate.Device{
		{Name: "Arduino Uno", PortName: "/dev/ttyACM0"},
		{Name: "Nano", PortName: "/dev/ttyUSB0"},
	}})

	m, _ = update(m, keyMsg("p"))
	require.NotNil(t, m.picker)
	m, _ = update(m, keyMsg("down"))
	m, cmd := update(m, keyMsg("enter"))
	require.NotNil(t, cmd)

	m, cmd = update(m, cmd())
	assert.Nil(t, m.picker)
	require.NotNil(t, cmd)
	m, _ = update(m, cmd())

	assert.Equal(t, "/dev/ttyUSB0", m.port)
	assert.Equal(t, "Nano", m.deviceName)
	assert.Equal(t, "/dev/ttyUSB0", m.cfg.SerialPort)
	last := stubs[MonitorPage].msgs[len(stubs[MonitorPage].msgs)-1]
	assert.Equal(t, PortSelectedMsg{Port: "/dev/ttyUSB0", DeviceName: "Nano"}, last)
}

func TestPickerFiltersByPortAndName(t *testing.T) {
	p := NewPortPicker([]devicestate.Device{
		{Name: "Arduino Uno", PortName: "/dev/ttyACM0"},
		{Name: "Arduino Nano", PortName: "/dev/ttyUSB0"},
	}, "/dev/ttyUSB0")
	assert.Equal(t, 1, p.cursor, "cursor starts on the current port")

	p.query.SetValue("arduino usb")
	p.filter()
	require.Len(t, p.shown, 1)
	assert.Equal(t, "/dev/ttyUSB0", p.shown[0].PortName)
	assert.Equal(t, 0, p.cursor)
}

func TestPickerAcceptsTypedPort(t *testing.T) {
	p := NewPortPicker(nil, "")
	p.query.SetValue("/dev/pts/3")
	p.filter()
	assert.Contains(t, p.View(), "enter: use /dev/pts/3")

	_, cmd := p.Update(keyMsg("enter"))
	require.NotNil(t, cmd)
	assert.Equal(t, PickerSelectedMsg{Port: "/dev/pts/3"}, cmd())

	p.query.SetValue("nothing")
	p.filter()
	_, cmd = p.Update(keyMsg("enter"))
	assert.Nil(t, cmd)
}

func TestViewShowsPortBar(t *testing.T) {
	m, _ := newModel(t)
	m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(m, PortSelectedMsg{Port: "/dev/ttyACM0", DeviceName: "Arduino Uno"})
	view := m.View()
	assert.Contains(t, view, "Port: /dev/ttyACM0")
	assert.Contains(t, view, "Monitor view")
}

// collect runs cmd and returns the messages it produces, expanding batches.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func TestConfigReloadBroadcastsSelectionChanges(t *testing.T) {
	m, _ := newModel(t)

	next := config.Defaults()
	next.SerialPort = "/dev/ttyUSB0"
	next.DeviceName = "Nano"
	next.SerialBaudRate = 115200
	next.UploadCommand = "avrdude -P {port}"
	m, cmd := update(m, ConfigReloadedMsg{Config: next})

	assert.ElementsMatch(t, []tea.Msg{
		PortSelectedMsg{Port: "/dev/ttyUSB0", DeviceName: "Nano"},
		BaudRateChangedMsg{BaudRate: 115200},
	}, collect(cmd))
	assert.Equal(t, "avrdude -P {port}", m.cfg.UploadCommand)
	assert.Empty(t, m.cfg.SerialPort, "the selection changes when the broadcast arrives")

	m, _ = update(m, BaudRateChangedMsg{BaudRate: 115200})
	assert.Equal(t, 115200, m.cfg.SerialBaudRate)

	_, cmd = update(m, ConfigReloadedMsg{Config: *m.cfg})
	assert.Empty(t, collect(cmd))
}
