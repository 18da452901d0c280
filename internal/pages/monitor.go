package pages

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wrap"
	"github.com/oklog/ulid/v2"

	"github.com/buckleypaul/cloudeditor/internal/app"
	"github.com/buckleypaul/cloudeditor/internal/config"
	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/monitor"
	"github.com/buckleypaul/cloudeditor/internal/reactive"
	"github.com/buckleypaul/cloudeditor/internal/session"
	"github.com/buckleypaul/cloudeditor/internal/status"
	"github.com/buckleypaul/cloudeditor/internal/store"
	"github.com/buckleypaul/cloudeditor/internal/ui"
)

// maxOutput bounds the rendered monitor output. Older output is dropped
// a line at a time.
const maxOutput = 64 << 10

// MonitorDeps are what the monitor page drives.
type MonitorDeps struct {
	Machine  *status.Machine
	Sessions *session.Service
	// Sender delivers session events into the program.
	Sender app.Sender
	// Store records sessions and captures output when set.
	Store  *store.Store
	Logger *slog.Logger
}

type monitorTransitionMsg struct {
	input status.Input
	snap  status.Snapshot
	err   error
}

type monitorSubscribedMsg struct {
	gen   int
	unsub func()
}

type monitorReadyMsg struct{ gen int }

type monitorDataMsg struct {
	gen int
	ev  monitor.Event
}

type monitorEndMsg struct {
	gen int
	err error
}

type monitorClearMsg struct{}

type monitorSendResultMsg struct{ err error }

type MonitorPage struct {
	deps   MonitorDeps
	cfg    *config.Config
	wsRoot string

	port       string
	deviceName string
	baudRate   int
	devices    []devicestate.Device
	snap       status.Snapshot

	output   strings.Builder
	viewport viewport.Model
	input    textinput.Model
	message  string

	gen        int
	subscribed bool
	unsub      func()
	record     *store.SessionRecord
	logFile    *os.File

	width, height int
}

func NewMonitorPage(deps MonitorDeps, cfg *config.Config, wsRoot string) *MonitorPage {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ti := textinput.New()
	ti.Placeholder = "message to send"
	ti.Prompt = "> "
	ti.CharLimit = 256

	baud := cfg.SerialBaudRate
	if !config.IsBaudRate(baud) {
		baud = config.DefaultBaudRate
	}
	return &MonitorPage{
		deps:       deps,
		cfg:        cfg,
		wsRoot:     wsRoot,
		port:       cfg.SerialPort,
		deviceName: cfg.DeviceName,
		baudRate:   baud,
		snap:       deps.Machine.Current(),
		viewport:   viewport.New(0, 0),
		input:      ti,
	}
}

func (p *MonitorPage) Init() tea.Cmd {
	clears := p.deps.Sessions.Clears()
	sender := p.deps.Sender
	watchClears := func() tea.Msg {
		clears.Subscribe(reactive.Observer[struct{}]{
			Next: func(struct{}) { sender.Send(monitorClearMsg{}) },
		})
		return nil
	}
	if p.port == "" {
		return watchClears
	}
	return tea.Batch(watchClears, p.selectPort(p.port))
}

func (p *MonitorPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case app.PortSelectedMsg:
		if msg.Port == p.port && msg.DeviceName == p.deviceName {
			return p, nil
		}
		p.port = msg.Port
		p.deviceName = msg.DeviceName
		if p.deviceName == "" {
			p.deviceName = deviceNameFor(p.devices, p.port)
		}
		return p, p.selectPort(msg.Port)

	case app.DevicesMsg:
		prev := p.devices
		next := msg.Devices
		if next == nil {
			next = []devicestate.Device{}
		}
		p.devices = next
		if p.deviceName == "" {
			p.deviceName = deviceNameFor(next, p.port)
		}
		return p, p.send(status.ReconcileDevices(p.port, p.deviceName, p.snap.Status, prev, next)...)

	case app.BaudRateChangedMsg:
		if msg.BaudRate == p.baudRate || !config.IsBaudRate(msg.BaudRate) {
			return p, nil
		}
		p.baudRate = msg.BaudRate
		if p.snap.Status == status.Active {
			return p, p.send(status.Restart)
		}
		return p, nil

	case app.UploadingMsg:
		if msg.Uploading {
			return p, p.send(status.UploadStarted)
		}
		return p, p.send(status.UploadFinished)

	case monitorTransitionMsg:
		p.snap = msg.snap
		if msg.err != nil {
			p.message = fmt.Sprintf("Error: %v", msg.err)
			p.deps.Logger.Warn("monitor transition failed", "input", string(msg.input), "error", msg.err)
			return p, nil
		}
		return p, p.sync(msg.input)

	case monitorSubscribedMsg:
		if msg.gen != p.gen || !p.subscribed {
			msg.unsub()
			return p, nil
		}
		p.unsub = msg.unsub
		return p, nil

	case monitorReadyMsg:
		if msg.gen != p.gen {
			return p, nil
		}
		p.message = fmt.Sprintf("Connected to %s @ %d", p.port, p.baudRate)
		return p, p.send(status.Started)

	case monitorDataMsg:
		if msg.gen != p.gen {
			return p, nil
		}
		p.appendEvent(msg.ev)
		return p, nil

	case monitorEndMsg:
		if msg.gen != p.gen {
			return p, nil
		}
		p.subscribed = false
		p.unsub = nil
		if msg.err == nil {
			p.finishRecord("")
			return p, nil
		}
		p.finishRecord(msg.err.Error())
		p.message = fmt.Sprintf("Monitor stopped: %v", msg.err)
		p.writeLine(ui.NoticeStyle.Render(fmt.Sprintf("-- %v --", msg.err)))
		p.updateViewportContent()
		return p, p.send(status.NotReachable)

	case monitorClearMsg:
		p.output.Reset()
		p.updateViewportContent()
		return p, nil

	case monitorSendResultMsg:
		if msg.err != nil {
			p.message = fmt.Sprintf("Send failed: %v", msg.err)
		}
		return p, nil

	case tea.KeyMsg:
		return p.handleKey(msg)
	}

	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func (p *MonitorPage) handleKey(msg tea.KeyMsg) (app.Page, tea.Cmd) {
	if p.input.Focused() {
		switch msg.String() {
		case "enter":
			data := p.input.Value()
			p.input.SetValue("")
			if data == "" || !p.snap.Enabled {
				return p, nil
			}
			return p, p.transmit(data + "\n")
		case "esc":
			p.input.Blur()
			return p, nil
		}
		var cmd tea.Cmd
		p.input, cmd = p.input.Update(msg)
		return p, cmd
	}

	switch msg.String() {
	case "t", " ":
		return p, p.send(status.Toggle)
	case "r":
		return p, p.send(status.Restart)
	case "b":
		return p, p.cycleBaudRate()
	case "c":
		sessions := p.deps.Sessions
		return p, func() tea.Msg {
			sessions.Clear()
			return nil
		}
	case "i", "enter":
		return p, p.input.Focus()
	}

	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

// send feeds inputs to the machine in order. Effects may block on the
// port, so they run off the update loop.
func (p *MonitorPage) send(inputs ...status.Input) tea.Cmd {
	if len(inputs) == 0 {
		return nil
	}
	machine := p.deps.Machine
	return func() tea.Msg {
		var last monitorTransitionMsg
		for _, in := range inputs {
			snap, err := machine.Send(context.Background(), in)
			last = monitorTransitionMsg{input: in, snap: snap, err: err}
			if err != nil {
				break
			}
		}
		return last
	}
}

// selectPort points the machine at port. A streaming view is restarted
// so the old port is released first.
func (p *MonitorPage) selectPort(port string) tea.Cmd {
	machine := p.deps.Machine
	return func() tea.Msg {
		cur := machine.Current()
		var (
			snap = cur
			err  error
			in   status.Input
		)
		switch {
		case cur.Status == status.Connecting:
			machine.SetPort(port)
			in = status.Connected
			snap, err = machine.Send(context.Background(), in)
		case cur.Status.Streaming():
			in = status.Restart
			snap, err = machine.Send(context.Background(), in)
			machine.SetPort(port)
		default:
			machine.SetPort(port)
		}
		return monitorTransitionMsg{input: in, snap: snap, err: err}
	}
}

func (p *MonitorPage) cycleBaudRate() tea.Cmd {
	i := slices.Index(config.BaudRates, p.baudRate)
	p.baudRate = config.BaudRates[(i+1)%len(config.BaudRates)]
	p.cfg.SerialBaudRate = p.baudRate
	if p.wsRoot != "" {
		config.Save(*p.cfg, p.wsRoot, false)
	}
	p.message = fmt.Sprintf("Baud rate %d", p.baudRate)
	baud := p.baudRate
	cmds := []tea.Cmd{func() tea.Msg { return app.BaudRateChangedMsg{BaudRate: baud} }}
	if p.snap.Status == status.Active {
		cmds = append(cmds, p.send(status.Restart))
	}
	return tea.Batch(cmds...)
}

func (p *MonitorPage) transmit(data string) tea.Cmd {
	sessions := p.deps.Sessions
	port := p.port
	return func() tea.Msg {
		return monitorSendResultMsg{err: sessions.Send(port, data)}
	}
}

// sync follows a committed transition: a view entering STARTING gets a
// fresh session, a view that stopped streaming drops its own.
func (p *MonitorPage) sync(input status.Input) tea.Cmd {
	if !p.snap.Status.Streaming() {
		p.drop("")
		return nil
	}
	if p.snap.Status == status.Starting && (!p.subscribed || input == status.Restart) {
		p.drop("")
		return p.subscribe()
	}
	return nil
}

func (p *MonitorPage) subscribe() tea.Cmd {
	p.gen++
	p.subscribed = true
	p.startRecord()

	gen := p.gen
	sender := p.deps.Sender
	sessions := p.deps.Sessions
	st, port, baud := p.snap.Status, p.port, p.baudRate
	return func() tea.Msg {
		src := sessions.Get(st, port, baud, func() { sender.Send(monitorReadyMsg{gen: gen}) })
		if src == nil {
			return monitorEndMsg{gen: gen}
		}
		unsub := src.Subscribe(reactive.Observer[monitor.Event]{
			Next:     func(ev monitor.Event) { sender.Send(monitorDataMsg{gen: gen, ev: ev}) },
			Error:    func(err error) { sender.Send(monitorEndMsg{gen: gen, err: err}) },
			Complete: func() { sender.Send(monitorEndMsg{gen: gen}) },
		})
		return monitorSubscribedMsg{gen: gen, unsub: unsub}
	}
}

func (p *MonitorPage) drop(reason string) {
	if !p.subscribed {
		return
	}
	p.gen++
	p.subscribed = false
	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
	p.finishRecord(reason)
}

func (p *MonitorPage) startRecord() {
	p.record = &store.SessionRecord{
		ID:       ulid.Make().String(),
		Port:     p.port,
		BaudRate: p.baudRate,
		Opened:   time.Now(),
	}
	if p.deps.Store == nil {
		return
	}
	f, err := p.deps.Store.OpenLog(p.port, p.record.Opened)
	if err != nil {
		p.deps.Logger.Warn("cannot open serial log", "port", p.port, "error", err)
		return
	}
	p.logFile = f
	p.record.LogFile = f.Name()
}

func (p *MonitorPage) finishRecord(reason string) {
	if p.record == nil {
		return
	}
	r := *p.record
	p.record = nil
	if p.logFile != nil {
		p.logFile.Close()
		p.logFile = nil
	}
	if p.deps.Store == nil {
		return
	}
	r.Closed = time.Now()
	r.Reason = reason
	if err := p.deps.Store.AddSession(r); err != nil {
		p.deps.Logger.Warn("cannot record session", "port", r.Port, "error", err)
	}
}

// writeLine puts a line of the monitor's own on the output, starting a
// new line if the board left one open.
func (p *MonitorPage) writeLine(line string) {
	if p.output.Len() > 0 && !strings.HasSuffix(p.output.String(), "\n") {
		p.output.WriteString("\n")
	}
	p.output.WriteString(line)
	p.output.WriteString("\n")
}

func (p *MonitorPage) appendEvent(ev monitor.Event) {
	if ev.Meta == monitor.MetaSent {
		p.writeLine(ui.SentStyle.Render("> " + strings.TrimRight(ev.Value, "\r\n")))
	} else {
		p.output.WriteString(ev.Value)
		if p.record != nil {
			p.record.Bytes += len(ev.Value)
		}
		if p.logFile != nil {
			p.logFile.WriteString(ev.Value)
		}
	}
	if p.output.Len() > maxOutput {
		s := p.output.String()
		s = s[len(s)-maxOutput:]
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		p.output.Reset()
		p.output.WriteString(s)
	}
	atBottom := p.viewport.AtBottom()
	p.updateViewportContent()
	if atBottom {
		p.viewport.GotoBottom()
	}
}

func (p *MonitorPage) View() string {
	var b strings.Builder
	header := ui.StatusBadge(p.snap.Status)
	if p.port != "" {
		header += fmt.Sprintf("  %s @ %d", p.port, p.baudRate)
	} else {
		header += "  " + ui.DimStyle.Render("no port selected")
	}
	b.WriteString(header)
	b.WriteString("\n")
	if p.message != "" {
		b.WriteString(ui.DimStyle.Render(p.message))
	}
	b.WriteString("\n")

	outputHeight := p.height - 6
	b.WriteString(p.viewOutput(p.width, outputHeight))
	b.WriteString("\n")
	if p.snap.Enabled {
		b.WriteString(p.input.View())
	} else {
		b.WriteString(ui.DimStyle.Render("input disabled while " + p.snap.Status.String()))
	}
	return b.String()
}

func (p *MonitorPage) viewOutput(width int, height int) string {
	contentWidth := width - 3
	contentHeight := height - 2
	if contentWidth < 10 {
		contentWidth = 10
	}
	if contentHeight < 3 {
		contentHeight = 3
	}

	oldWidth := p.viewport.Width
	p.viewport.Width = contentWidth
	p.viewport.Height = contentHeight
	if oldWidth != contentWidth && p.output.Len() > 0 {
		p.updateViewportContent()
	}

	style := lipgloss.NewStyle().
		Width(width).
		Height(height).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderTop(true).
		BorderForeground(ui.Surface).
		PaddingLeft(1)

	if p.output.Len() == 0 {
		return style.Render(ui.DimStyle.Render("Serial output will appear here..."))
	}
	return style.Render(p.viewport.View())
}

func (p *MonitorPage) updateViewportContent() {
	content := p.output.String()
	if p.viewport.Width <= 0 {
		p.viewport.SetContent(content)
		return
	}
	wrapped := wrap.String(content, p.viewport.Width)
	lines := strings.Split(wrapped, "\n")
	for i, line := range lines {
		if ansi.PrintableRuneWidth(line) > p.viewport.Width {
			lines[i] = truncate.String(line, uint(p.viewport.Width))
		}
	}
	p.viewport.SetContent(strings.Join(lines, "\n"))
}

func (p *MonitorPage) Name() string { return "Monitor" }

func (p *MonitorPage) ShortHelp() []key.Binding {
	if p.input.Focused() {
		return []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
			key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "done")),
		}
	}
	bindings := []key.Binding{
		key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "pause/resume")),
		key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restart")),
		key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "baud")),
		key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
	}
	if p.snap.Enabled {
		bindings = append(bindings, key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "type")))
	}
	return bindings
}

func (p *MonitorPage) InputCaptured() bool {
	return p.input.Focused()
}

func (p *MonitorPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}

// Close releases the capture of a session still running at exit.
func (p *MonitorPage) Close() {
	p.drop("")
}

func deviceNameFor(devices []devicestate.Device, port string) string {
	for _, d := range devices {
		if d.PortName == port {
			return d.Name
		}
	}
	return ""
}
