package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/truncate"

	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/ui"
)

// PickerSelectedMsg is sent when the user picks a port.
type PickerSelectedMsg struct {
	Port       string
	DeviceName string
}

// PickerClosedMsg is sent when the user closes the picker without picking.
type PickerClosedMsg struct{}

const maxPickerRows = 12

// PortPicker is an overlay listing the attached boards. Typing filters by
// port or board name. A typed path that matches nothing can be picked as
// is, for ports the host does not enumerate.
type PortPicker struct {
	devices []devicestate.Device
	shown   []devicestate.Device
	current string
	query   textinput.Model
	cursor  int
	width   int
	height  int
}

func NewPortPicker(devices []devicestate.Device, current string) *PortPicker {
	q := textinput.New()
	q.Placeholder = "port or board name"
	q.Prompt = "> "
	q.CharLimit = 128
	q.Focus()

	p := &PortPicker{query: q, current: current}
	p.SetDevices(devices)
	for i, d := range p.shown {
		if d.PortName == current {
			p.cursor = i
		}
	}
	return p
}

// SetDevices replaces the listed boards, keeping the filter.
func (p *PortPicker) SetDevices(devices []devicestate.Device) {
	p.devices = devices
	p.filter()
}

func (p *PortPicker) SetSize(w, h int) {
	p.width = w
	p.height = h
}

func (p *PortPicker) Update(msg tea.Msg) (*PortPicker, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			return p, func() tea.Msg { return PickerClosedMsg{} }
		case "enter":
			sel, ok := p.selection()
			if !ok {
				return p, nil
			}
			return p, func() tea.Msg { return sel }
		case "up":
			if p.cursor > 0 {
				p.cursor--
			}
			return p, nil
		case "down":
			if p.cursor < len(p.shown)-1 {
				p.cursor++
			}
			return p, nil
		}
	}

	var cmd tea.Cmd
	p.query, cmd = p.query.Update(msg)
	p.filter()
	return p, cmd
}

func (p *PortPicker) selection() (PickerSelectedMsg, bool) {
	if len(p.shown) > 0 {
		d := p.shown[p.cursor]
		return PickerSelectedMsg{Port: d.PortName, DeviceName: d.Name}, true
	}
	if typed := p.typedPort(); typed != "" {
		return PickerSelectedMsg{Port: typed}, true
	}
	return PickerSelectedMsg{}, false
}

// typedPort returns the query when it reads as a port path.
func (p *PortPicker) typedPort() string {
	q := strings.TrimSpace(p.query.Value())
	if strings.HasPrefix(q, "/") || strings.HasPrefix(strings.ToUpper(q), "COM") {
		return q
	}
	return ""
}

func (p *PortPicker) View() string {
	boxWidth := min(max(p.width-4, 30), 64)
	inner := boxWidth - 4

	var b strings.Builder
	p.query.Width = inner - 3
	b.WriteString(p.query.View())
	b.WriteString("\n\n")

	visible := min(maxPickerRows, len(p.shown))
	start := 0
	if p.cursor >= visible {
		start = p.cursor - visible + 1
	}
	for i := start; i < start+visible; i++ {
		d := p.shown[i]
		marker := " "
		if d.PortName == p.current {
			marker = "●"
		}
		name := d.Name
		if name == "" {
			name = "unknown board"
		}
		row := fmt.Sprintf("%s %s  %s", marker, d.PortName, ui.DimStyle.Render(name))
		row = truncate.StringWithTail(row, uint(inner-2), "…")
		if i == p.cursor {
			b.WriteString(ui.SelectedStyle.Render("> ") + row)
		} else {
			b.WriteString("  " + row)
		}
		b.WriteString("\n")
	}

	if len(p.shown) == 0 {
		if typed := p.typedPort(); typed != "" {
			b.WriteString(ui.DimStyle.Render("  enter: use " + typed))
		} else {
			b.WriteString(ui.DimStyle.Render("  No boards attached"))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(ui.DimStyle.Render(fmt.Sprintf("(%d/%d boards)  esc:close", len(p.shown), len(p.devices))))

	return ui.Panel("Select Port", b.String(), boxWidth, 0, true)
}

// filter keeps the boards whose port and name contain every query term.
func (p *PortPicker) filter() {
	terms := strings.Fields(strings.ToLower(p.query.Value()))
	p.shown = p.shown[:0:0]
	for _, d := range p.devices {
		hay := strings.ToLower(d.PortName + " " + d.Name)
		match := true
		for _, t := range terms {
			if !strings.Contains(hay, t) {
				match = false
				break
			}
		}
		if match {
			p.shown = append(p.shown, d)
		}
	}
	p.cursor = max(min(p.cursor, len(p.shown)-1), 0)
}
