package pages

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buckleypaul/cloudeditor/internal/app"
	"github.com/buckleypaul/cloudeditor/internal/config"
	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/monitor"
	"github.com/buckleypaul/cloudeditor/internal/session"
	"github.com/buckleypaul/cloudeditor/internal/status"
	"github.com/buckleypaul/cloudeditor/internal/store"
)

const acm0 = "/dev/ttyACM0"

var uno = devicestate.Device{Name: "Arduino Uno", PortName: acm0}

type monitorFixture struct {
	page   *MonitorPage
	agent  *fakeAgent
	sender *fakeSender
	cfg    *config.Config
	store  *store.Store
}

func newMonitorFixture(t *testing.T, port string) *monitorFixture {
	t.Helper()
	f := &monitorFixture{
		agent:  &fakeAgent{},
		sender: newFakeSender(),
		store:  store.New(t.TempDir()),
	}
	cfg := config.Defaults()
	cfg.SerialPort = port
	f.cfg = &cfg
	svc := session.New(f.agent, nil)
	f.page = NewMonitorPage(MonitorDeps{
		Machine:  status.NewMachine(session.Effects{Service: svc}),
		Sessions: svc,
		Sender:   f.sender,
		Store:    f.store,
	}, f.cfg, "")
	f.pump(t, f.page.Init())
	return f
}

func (f *monitorFixture) pump(t *testing.T, cmds ...tea.Cmd) {
	t.Helper()
	pump(t, f.page, f.sender, cmds...)
}

func (f *monitorFixture) update(t *testing.T, msg tea.Msg) {
	t.Helper()
	_, cmd := f.page.Update(msg)
	f.pump(t, cmd)
}

func (f *monitorFixture) key(t *testing.T, k string) {
	t.Helper()
	f.update(t, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
}

// ready makes the i-th opened session report the port as open.
func (f *monitorFixture) ready(t *testing.T, i int) {
	t.Helper()
	f.agent.stream(i).Next(monitor.Event{Type: monitor.EventInfo, Value: monitor.ReadyValue})
	f.pump(t)
}

func (f *monitorFixture) receive(t *testing.T, i int, data string) {
	t.Helper()
	f.agent.stream(i).Next(monitor.Event{Type: monitor.EventMessage, Value: data})
	f.pump(t)
}

// active brings a fixture on acm0 to ACTIVE with the device listed.
func newActiveMonitor(t *testing.T) *monitorFixture {
	t.Helper()
	f := newMonitorFixture(t, acm0)
	f.update(t, app.DevicesMsg{Devices: []devicestate.Device{uno}})
	require.Len(t, f.agent.openCalls(), 1)
	f.ready(t, 0)
	require.Equal(t, status.Active, f.page.snap.Status)
	return f
}

func TestMonitorWithoutPortWaitsForSelection(t *testing.T) {
	f := newMonitorFixture(t, "")
	assert.Equal(t, status.Connecting, f.page.snap.Status)
	assert.Empty(t, f.agent.openCalls())

	f.update(t, app.PortSelectedMsg{Port: acm0, DeviceName: uno.Name})
	assert.Equal(t, status.Starting, f.page.snap.Status)
	assert.Equal(t, []openCall{{port: acm0, baud: config.DefaultBaudRate}}, f.agent.openCalls())
}

func TestMonitorStreamsAfterReady(t *testing.T) {
	f := newMonitorFixture(t, acm0)
	assert.Equal(t, status.Starting, f.page.snap.Status)
	assert.False(t, f.page.snap.Enabled)

	f.ready(t, 0)
	assert.Equal(t, status.Active, f.page.snap.Status)
	assert.True(t, f.page.snap.Enabled)
	assert.Contains(t, f.page.message, "Connected to /dev/ttyACM0 @ 9600")

	f.receive(t, 0, "hello\n")
	f.receive(t, 0, "world\n")
	assert.Equal(t, "hello\nworld\n", f.page.output.String())
}

func TestMonitorTogglePausesAndResumes(t *testing.T) {
	f := newActiveMonitor(t)
	f.receive(t, 0, "hello")

	f.key(t, "t")
	assert.Equal(t, status.Paused, f.page.snap.Status)
	assert.True(t, f.page.snap.Enabled)
	assert.Equal(t, []string{acm0}, f.agent.closed)
	assert.False(t, f.page.subscribed)

	sessions, err := f.store.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, acm0, sessions[0].Port)
	assert.Equal(t, len("hello"), sessions[0].Bytes)
	assert.Empty(t, sessions[0].Reason)

	f.key(t, "t")
	assert.Equal(t, status.Starting, f.page.snap.Status)
	assert.Len(t, f.agent.openCalls(), 2)
	assert.Equal(t, "hello", f.page.output.String(), "pausing keeps the output")
}

func TestMonitorRestartClearsAndReopens(t *testing.T) {
	f := newActiveMonitor(t)
	f.receive(t, 0, "stale")

	f.key(t, "r")
	assert.Equal(t, status.Starting, f.page.snap.Status)
	assert.Empty(t, f.page.output.String())
	require.Len(t, f.agent.openCalls(), 2)

	f.ready(t, 1)
	f.receive(t, 1, "fresh")
	assert.Equal(t, status.Active, f.page.snap.Status)
	assert.Equal(t, "fresh", f.page.output.String())
}

func TestMonitorDisconnectAndReconnect(t *testing.T) {
	f := newActiveMonitor(t)

	f.agent.stream(0).Error(&monitor.BoardDisconnectionError{Port: acm0})
	f.pump(t)
	assert.Equal(t, status.ActiveUnreachable, f.page.snap.Status)
	assert.False(t, f.page.snap.Enabled)
	assert.Contains(t, f.page.message, "board disconnected")

	f.update(t, app.DevicesMsg{Devices: nil})
	assert.Equal(t, status.ActiveUnreachable, f.page.snap.Status)

	f.update(t, app.DevicesMsg{Devices: []devicestate.Device{uno}})
	assert.Equal(t, status.Starting, f.page.snap.Status)
	assert.Len(t, f.agent.openCalls(), 2)

	sessions, err := f.store.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Contains(t, sessions[0].Reason, "board disconnected")
}

func TestMonitorPausedBoardRemoval(t *testing.T) {
	f := newActiveMonitor(t)
	f.key(t, "t")
	require.Equal(t, status.Paused, f.page.snap.Status)

	f.update(t, app.DevicesMsg{Devices: []devicestate.Device{}})
	assert.Equal(t, status.PausedUnreachable, f.page.snap.Status)

	f.update(t, app.DevicesMsg{Devices: []devicestate.Device{uno}})
	assert.Equal(t, status.Paused, f.page.snap.Status)
	assert.Len(t, f.agent.openCalls(), 1)
}

func TestMonitorYieldsPortDuringUpload(t *testing.T) {
	f := newActiveMonitor(t)
	f.receive(t, 0, "before upload")

	f.update(t, app.UploadingMsg{Uploading: true})
	assert.Equal(t, status.Uploading, f.page.snap.Status)
	assert.Equal(t, []string{acm0}, f.agent.closed)

	f.update(t, app.UploadingMsg{Uploading: false})
	assert.Equal(t, status.Starting, f.page.snap.Status)
	assert.Empty(t, f.page.output.String())
	assert.Len(t, f.agent.openCalls(), 2)
}

func TestMonitorSendEchoesMessage(t *testing.T) {
	f := newActiveMonitor(t)

	f.page.input.Focus()
	require.True(t, f.page.InputCaptured())
	f.page.input.SetValue("ping")
	f.update(t, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, []string{"ping\n"}, f.agent.sent)
	assert.Contains(t, f.page.output.String(), "> ping")
	assert.Empty(t, f.page.input.Value())

	f.update(t, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, f.page.InputCaptured())
}

func TestMonitorInputDisabledWhileStarting(t *testing.T) {
	f := newMonitorFixture(t, acm0)
	f.page.input.Focus()
	f.page.input.SetValue("ping")
	f.update(t, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, f.agent.sent)
	assert.Contains(t, f.page.View(), "input disabled while starting")
}

func TestMonitorCycleBaudRateRestarts(t *testing.T) {
	f := newActiveMonitor(t)

	f.key(t, "b")
	assert.Equal(t, 19200, f.page.baudRate)
	assert.Equal(t, 19200, f.cfg.SerialBaudRate)
	assert.Equal(t, status.Starting, f.page.snap.Status)
	calls := f.agent.openCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, 19200, calls[1].baud)
}

func TestMonitorBaudRateBroadcastWhilePaused(t *testing.T) {
	f := newActiveMonitor(t)
	f.key(t, "t")

	f.update(t, app.BaudRateChangedMsg{BaudRate: 115200})
	assert.Equal(t, 115200, f.page.baudRate)
	assert.Equal(t, status.Paused, f.page.snap.Status)

	f.key(t, "t")
	calls := f.agent.openCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, 115200, calls[1].baud)
}

func TestMonitorSwitchingPortRestartsOnNewPort(t *testing.T) {
	f := newActiveMonitor(t)

	f.update(t, app.PortSelectedMsg{Port: "/dev/ttyUSB0"})
	assert.Equal(t, []string{acm0}, f.agent.closed)
	assert.Equal(t, status.Starting, f.page.snap.Status)
	calls := f.agent.openCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/dev/ttyUSB0", calls[1].port)
}

func TestMonitorClearKey(t *testing.T) {
	f := newActiveMonitor(t)
	f.receive(t, 0, "noise")

	f.key(t, "c")
	assert.Empty(t, f.page.output.String())
	assert.Equal(t, status.Active, f.page.snap.Status)
}

func TestMonitorOutputIsBounded(t *testing.T) {
	f := newActiveMonitor(t)
	line := strings.Repeat("x", 1023) + "\n"
	for i := 0; i < 80; i++ {
		f.page.appendEvent(monitor.Event{Type: monitor.EventMessage, Value: line})
	}
	assert.LessOrEqual(t, f.page.output.Len(), maxOutput)
	assert.True(t, strings.HasPrefix(f.page.output.String(), "x"))
}

func TestMonitorView(t *testing.T) {
	f := newActiveMonitor(t)
	f.page.SetSize(80, 20)
	view := f.page.View()
	assert.Contains(t, view, "ACTIVE")
	assert.Contains(t, view, "/dev/ttyACM0 @ 9600")
	assert.Contains(t, view, "Serial output will appear here")
}
