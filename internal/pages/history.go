package pages

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/cloudeditor/internal/app"
	"github.com/buckleypaul/cloudeditor/internal/store"
	"github.com/buckleypaul/cloudeditor/internal/ui"
)

const historyLimit = 20

type historyLoadedMsg struct {
	uploads  []store.UploadRecord
	sessions []store.SessionRecord
	err      error
}

// HistoryPage lists recorded uploads and monitor sessions.
type HistoryPage struct {
	store    *store.Store
	uploads  []store.UploadRecord
	sessions []store.SessionRecord
	message  string
	width    int
	height   int
}

func NewHistoryPage(s *store.Store) *HistoryPage {
	return &HistoryPage{store: s}
}

func (p *HistoryPage) Init() tea.Cmd { return p.load() }

func (p *HistoryPage) load() tea.Cmd {
	s := p.store
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		uploads, err := s.Uploads()
		if err != nil {
			return historyLoadedMsg{err: err}
		}
		sessions, err := s.Sessions()
		return historyLoadedMsg{uploads: uploads, sessions: sessions, err: err}
	}
}

func (p *HistoryPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	switch msg := msg.(type) {
	case historyLoadedMsg:
		if msg.err != nil {
			p.message = fmt.Sprintf("Error loading history: %v", msg.err)
			return p, nil
		}
		p.message = ""
		p.uploads = msg.uploads
		p.sessions = msg.sessions
		sort.SliceStable(p.uploads, func(i, j int) bool {
			return p.uploads[i].Timestamp.After(p.uploads[j].Timestamp)
		})
		sort.SliceStable(p.sessions, func(i, j int) bool {
			return p.sessions[i].Opened.After(p.sessions[j].Opened)
		})
		return p, nil

	case uploadResultMsg:
		return p, p.load()

	case tea.KeyMsg:
		if msg.String() == "r" {
			return p, p.load()
		}
	}
	return p, nil
}

func (p *HistoryPage) View() string {
	if p.store == nil {
		return ui.Title("History") + "\n\n" + ui.DimStyle.Render("History is disabled.")
	}

	var uploads strings.Builder
	if len(p.uploads) == 0 {
		uploads.WriteString(ui.DimStyle.Render("No uploads yet."))
	}
	for i, r := range p.uploads {
		if i == historyLimit {
			break
		}
		badge := ui.SuccessBadge("OK")
		if !r.Success {
			badge = ui.ErrorBadge(fmt.Sprintf("EXIT %d", r.ExitCode))
		}
		fmt.Fprintf(&uploads, "%s %s  %s  %s\n", badge, r.Timestamp.Format("2006-01-02 15:04:05"), r.Port, r.Duration)
	}

	var sessions strings.Builder
	if len(p.sessions) == 0 {
		sessions.WriteString(ui.DimStyle.Render("No monitor sessions yet."))
	}
	for i, r := range p.sessions {
		if i == historyLimit {
			break
		}
		line := fmt.Sprintf("%s  %s @ %d  %d bytes  %s",
			r.Opened.Format("2006-01-02 15:04:05"), r.Port, r.BaudRate, r.Bytes,
			r.Closed.Sub(r.Opened).Round(time.Second))
		if r.Reason != "" {
			line += "  " + ui.ErrorBadge("ENDED") + " " + ui.DimStyle.Render(r.Reason)
		}
		if r.LogFile != "" {
			line += "  " + ui.DimStyle.Render(filepath.Base(r.LogFile))
		}
		sessions.WriteString(line + "\n")
	}

	out := ui.Panel("Uploads", uploads.String(), p.width, 0, false) + "\n" +
		ui.Panel("Monitor Sessions", sessions.String(), p.width, 0, false)
	if p.message != "" {
		out += "\n" + p.message
	}
	return out
}

func (p *HistoryPage) Name() string { return "History" }

func (p *HistoryPage) ShortHelp() []key.Binding {
	return []key.Binding{
		key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	}
}

func (p *HistoryPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}
