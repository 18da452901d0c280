package pages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/cloudeditor/internal/app"
	"github.com/buckleypaul/cloudeditor/internal/config"
	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/reactive"
	"github.com/buckleypaul/cloudeditor/internal/ui"
	"github.com/buckleypaul/cloudeditor/internal/upload"
	"github.com/buckleypaul/cloudeditor/internal/uploader"
)

// Uploader runs one upload at a time.
type Uploader interface {
	Upload(ctx context.Context, port, tmpl string) (uploader.Result, error)
}

type uploadOutputMsg struct {
	gen  int
	text string
}

type uploadWatchMsg struct {
	gen   int
	unsub func()
}

type uploadResultMsg struct {
	res uploader.Result
	err error
}

type uploadClearedMsg struct{}

type UploadPage struct {
	state    *devicestate.Store
	uploader Uploader
	sender   app.Sender
	cfg      *config.Config

	port     string
	running  bool
	cancel   context.CancelFunc
	output   string
	result   string
	viewport viewport.Model

	gen   int
	unsub func()

	width, height int
}

func NewUploadPage(state *devicestate.Store, up Uploader, sender app.Sender, cfg *config.Config) *UploadPage {
	return &UploadPage{
		state:    state,
		uploader: up,
		sender:   sender,
		cfg:      cfg,
		port:     cfg.SerialPort,
		viewport: viewport.New(0, 0),
	}
}

func (p *UploadPage) Init() tea.Cmd { return p.watch() }

// watch follows the accumulated upload output of the state scope.
func (p *UploadPage) watch() tea.Cmd {
	p.gen++
	gen := p.gen
	state := p.state
	sender := p.sender
	return func() tea.Msg {
		concat := upload.Concat(state.Set, state.State())
		unsub := concat.Subscribe(reactive.Observer[string]{
			Next: func(s string) { sender.Send(uploadOutputMsg{gen: gen, text: s}) },
		})
		return uploadWatchMsg{gen: gen, unsub: unsub}
	}
}

func (p *UploadPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case app.PortSelectedMsg:
		p.port = msg.Port
		return p, nil

	case uploadWatchMsg:
		if msg.gen != p.gen {
			msg.unsub()
			return p, nil
		}
		p.unsub = msg.unsub
		return p, nil

	case uploadOutputMsg:
		if msg.gen != p.gen {
			return p, nil
		}
		p.output = msg.text
		p.viewport.SetContent(p.output)
		p.viewport.GotoBottom()
		return p, nil

	case uploadResultMsg:
		p.running = false
		p.cancel = nil
		switch {
		case msg.err != nil:
			p.result = fmt.Sprintf("Upload failed: %v", msg.err)
		case msg.res.Success():
			p.result = fmt.Sprintf("Upload finished in %s", msg.res.Duration.Round(time.Millisecond))
		default:
			p.result = fmt.Sprintf("Upload failed (exit code: %d)", msg.res.ExitCode)
		}
		return p, nil

	case uploadClearedMsg:
		p.output = ""
		p.result = ""
		p.viewport.SetContent("")
		return p, p.watch()

	case tea.KeyMsg:
		return p.handleKey(msg)
	}

	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func (p *UploadPage) handleKey(msg tea.KeyMsg) (app.Page, tea.Cmd) {
	switch msg.String() {
	case "u":
		return p, p.start()
	case "x":
		if p.running {
			if p.cancel != nil {
				p.cancel()
			}
			return p, nil
		}
		return p, p.clear()
	}
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func (p *UploadPage) start() tea.Cmd {
	if p.running {
		return nil
	}
	if p.port == "" {
		p.result = "Select a port first"
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.running = true
	p.cancel = cancel
	p.result = ""

	up := p.uploader
	port, tmpl := p.port, p.cfg.UploadCommand
	return func() tea.Msg {
		defer cancel()
		res, err := up.Upload(ctx, port, tmpl)
		return uploadResultMsg{res: res, err: err}
	}
}

// clear tears the upload streams down; the page follows the new ones.
func (p *UploadPage) clear() tea.Cmd {
	if p.unsub != nil {
		p.unsub()
		p.unsub = nil
	}
	p.gen++
	state := p.state
	return func() tea.Msg {
		upload.Clear(state.Set, state.State())
		return uploadClearedMsg{}
	}
}

func (p *UploadPage) View() string {
	var b strings.Builder
	header := ui.UploadBadge(p.state.State().UploadStatus)
	header += "  " + ui.DimStyle.Render(p.cfg.UploadCommand)
	b.WriteString(header)
	b.WriteString("\n")
	if p.result != "" {
		b.WriteString(p.result)
	}
	b.WriteString("\n")

	width, height := p.width, p.height-3
	p.viewport.Width = max(width-3, 10)
	p.viewport.Height = max(height-2, 3)
	style := lipgloss.NewStyle().
		Width(width).
		Height(height).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderTop(true).
		BorderForeground(ui.Surface).
		PaddingLeft(1)
	if p.output == "" {
		b.WriteString(style.Render(ui.DimStyle.Render("Upload output will appear here...")))
	} else {
		b.WriteString(style.Render(p.viewport.View()))
	}
	return b.String()
}

func (p *UploadPage) Name() string { return "Upload" }

func (p *UploadPage) ShortHelp() []key.Binding {
	if p.running {
		return []key.Binding{
			key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "cancel")),
		}
	}
	return []key.Binding{
		key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "upload")),
		key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear")),
	}
}

func (p *UploadPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}
