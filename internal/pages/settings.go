package pages

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/cloudeditor/internal/app"
	"github.com/buckleypaul/cloudeditor/internal/config"
	"github.com/buckleypaul/cloudeditor/internal/ui"
	"github.com/buckleypaul/cloudeditor/internal/uploader"
)

// settingField edits one config value. set validates the text and may
// return a message to broadcast.
type settingField struct {
	name  string
	label string
	get   func(*config.Config) string
	set   func(*config.Config, string) (tea.Msg, error)
	// restart marks values read only when the process starts.
	restart bool
}

var settingFields = []settingField{
	{
		name: "serial_port", label: "Serial Port",
		get: func(c *config.Config) string { return c.SerialPort },
		set: func(c *config.Config, v string) (tea.Msg, error) {
			c.SerialPort = v
			c.DeviceName = ""
			return app.PortSelectedMsg{Port: v}, nil
		},
	},
	{
		name: "serial_baud_rate", label: "Serial Baud Rate",
		get: func(c *config.Config) string { return strconv.Itoa(c.SerialBaudRate) },
		set: func(c *config.Config, v string) (tea.Msg, error) {
			n, err := strconv.Atoi(v)
			if err != nil || !config.IsBaudRate(n) {
				return nil, fmt.Errorf("unsupported baud rate %q", v)
			}
			c.SerialBaudRate = n
			return app.BaudRateChangedMsg{BaudRate: n}, nil
		},
	},
	{
		name: "upload_command", label: "Upload Command",
		get: func(c *config.Config) string { return c.UploadCommand },
		set: func(c *config.Config, v string) (tea.Msg, error) {
			if !strings.Contains(v, uploader.PortPlaceholder) {
				return nil, fmt.Errorf("upload command must contain %s", uploader.PortPlaceholder)
			}
			c.UploadCommand = v
			return nil, nil
		},
	},
	millisField("open_timeout_ms", "Open Timeout (ms)", func(c *config.Config) *int { return &c.OpenTimeoutMS }),
	millisField("close_timeout_ms", "Close Timeout (ms)", func(c *config.Config) *int { return &c.CloseTimeoutMS }),
	millisField("port_scan_interval_ms", "Port Scan (ms)", func(c *config.Config) *int { return &c.PortScanIntervalMS }),
	{
		name: "bridge_addr", label: "Bridge Address", restart: true,
		get: func(c *config.Config) string { return c.BridgeAddr },
		set: func(c *config.Config, v string) (tea.Msg, error) {
			if v == "" {
				return nil, errors.New("bridge address cannot be empty")
			}
			c.BridgeAddr = v
			return nil, nil
		},
	},
}

func millisField(name, label string, field func(*config.Config) *int) settingField {
	return settingField{
		name: name, label: label, restart: true,
		get: func(c *config.Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *config.Config, v string) (tea.Msg, error) {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%s must be a positive number", strings.ToLower(label))
			}
			*field(c) = n
			return nil, nil
		},
	}
}

type SettingsPage struct {
	cfg           *config.Config
	workspaceRoot string
	cursor        int
	editing       bool
	input         textinput.Model
	width, height int
	message       string
}

func NewSettingsPage(cfg *config.Config, workspaceRoot string) *SettingsPage {
	ti := textinput.New()
	ti.CharLimit = 128
	return &SettingsPage{
		cfg:           cfg,
		workspaceRoot: workspaceRoot,
		input:         ti,
	}
}

func (p *SettingsPage) Init() tea.Cmd { return nil }

func (p *SettingsPage) Update(msg tea.Msg) (app.Page, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	if p.editing {
		switch km.String() {
		case "enter":
			p.stopEditing()
			return p, p.apply(p.input.Value())
		case "esc":
			p.stopEditing()
			return p, nil
		}
		var cmd tea.Cmd
		p.input, cmd = p.input.Update(km)
		return p, cmd
	}

	switch km.String() {
	case "down":
		p.cursor = min(p.cursor+1, len(settingFields)-1)
	case "up":
		p.cursor = max(p.cursor-1, 0)
	case "enter", "e":
		p.editing = true
		p.input.SetValue(settingFields[p.cursor].get(p.cfg))
		return p, p.input.Focus()
	case "+", "-":
		if settingFields[p.cursor].name == "serial_baud_rate" {
			return p, p.stepBaudRate(km.String() == "+")
		}
	case "s":
		p.save(false)
	case "g":
		p.save(true)
	}
	return p, nil
}

func (p *SettingsPage) stopEditing() {
	p.editing = false
	p.input.Blur()
}

// apply stores val in the field under the cursor. Port and baud rate
// changes come back as broadcasts so the monitor follows them.
func (p *SettingsPage) apply(val string) tea.Cmd {
	f := settingFields[p.cursor]
	out, err := f.set(p.cfg, strings.TrimSpace(val))
	if err != nil {
		p.message = "Error: " + err.Error()
		return nil
	}
	p.message = f.label + " updated"
	if f.restart {
		p.message += " (applies on next start)"
	}
	if out == nil {
		return nil
	}
	return func() tea.Msg { return out }
}

// stepBaudRate moves to the neighbouring supported rate.
func (p *SettingsPage) stepBaudRate(up bool) tea.Cmd {
	i := slices.Index(config.BaudRates, p.cfg.SerialBaudRate)
	if up {
		i = min(i+1, len(config.BaudRates)-1)
	} else {
		i = max(i-1, 0)
	}
	return p.apply(strconv.Itoa(config.BaudRates[i]))
}

func (p *SettingsPage) save(global bool) {
	where := "workspace"
	if global {
		where = "global config"
	}
	if err := config.Save(*p.cfg, p.workspaceRoot, global); err != nil {
		p.message = fmt.Sprintf("Error saving to %s: %v", where, err)
		return
	}
	p.message = "Settings saved to " + where
}

func (p *SettingsPage) View() string {
	var b strings.Builder
	for i, f := range settingFields {
		cursor := "  "
		if i == p.cursor {
			cursor = ui.BoldStyle.Render("> ")
		}
		val := f.get(p.cfg)
		if val == "" {
			val = ui.DimStyle.Render("(not set)")
		}
		fmt.Fprintf(&b, "%s%-20s %s\n", cursor, f.label, val)
	}

	if p.editing {
		fmt.Fprintf(&b, "\n  Edit %s:\n  %s\n", settingFields[p.cursor].label, p.input.View())
	}
	if p.message != "" {
		b.WriteString("\n  " + p.message)
	}
	return ui.Panel("Settings", b.String(), p.width, 0, false)
}

func (p *SettingsPage) Name() string { return "Settings" }

func (p *SettingsPage) ShortHelp() []key.Binding {
	if p.editing {
		return []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
			key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		}
	}
	bindings := []key.Binding{
		key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit")),
	}
	if settingFields[p.cursor].name == "serial_baud_rate" {
		bindings = append(bindings, key.NewBinding(key.WithKeys("+", "-"), key.WithHelp("+/-", "baud")))
	}
	return append(bindings,
		key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save")),
		key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "save global")),
	)
}

func (p *SettingsPage) InputCaptured() bool {
	return p.editing
}

func (p *SettingsPage) SetSize(w, h int) {
	p.width = w
	p.height = h
}
