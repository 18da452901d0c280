package pages

import (
	"context"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/cloudeditor/internal/app"
	"github.com/buckleypaul/cloudeditor/internal/monitor"
	"github.com/buckleypaul/cloudeditor/internal/reactive"
	"github.com/buckleypaul/cloudeditor/internal/uploader"
)

// fakeSender buffers what would be sent into the program.
type fakeSender struct{ ch chan tea.Msg }

func newFakeSender() *fakeSender { return &fakeSender{ch: make(chan tea.Msg, 64)} }

func (s *fakeSender) Send(msg tea.Msg) { s.ch <- msg }

// pump runs cmds and feeds every resulting message, including the ones
// delivered through sender, back into page until nothing is left.
func pump(t *testing.T, page app.Page, sender *fakeSender, cmds ...tea.Cmd) {
	t.Helper()
	queue := cmds
	for steps := 0; ; steps++ {
		if steps > 1000 {
			t.Fatal("page did not settle")
		}
		if len(queue) > 0 {
			cmd := queue[0]
			queue = queue[1:]
			if cmd == nil {
				continue
			}
			switch msg := cmd().(type) {
			case nil:
			case tea.BatchMsg:
				queue = append(queue, msg...)
			default:
				_, next := page.Update(msg)
				queue = append(queue, next)
			}
			continue
		}
		select {
		case msg := <-sender.ch:
			_, next := page.Update(msg)
			queue = append(queue, next)
		default:
			return
		}
	}
}

type openCall struct {
	port string
	baud int
}

// fakeAgent hands out one subject per open so tests can drive each
// session.
type fakeAgent struct {
	mu     sync.Mutex
	calls  []openCall
	opens  []*reactive.Subject[monitor.Event]
	closed []string
	sent   []string
}

func (f *fakeAgent) Open(port string, baud int) reactive.Source[monitor.Event] {
	return reactive.Defer(func() reactive.Source[monitor.Event] {
		f.mu.Lock()
		defer f.mu.Unlock()
		sub := reactive.NewSubject[monitor.Event]()
		f.calls = append(f.calls, openCall{port: port, baud: baud})
		f.opens = append(f.opens, sub)
		return sub
	})
}

func (f *fakeAgent) Close(port string) reactive.Source[string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, port)
	return reactive.Of(port)
}

func (f *fakeAgent) Send(_, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeAgent) stream(i int) *reactive.Subject[monitor.Event] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[i]
}

func (f *fakeAgent) openCalls() []openCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]openCall(nil), f.calls...)
}

type fakeUploader struct {
	ports []string
	res   uploader.Result
	err   error
}

func (f *fakeUploader) Upload(_ context.Context, port, _ string) (uploader.Result, error) {
	f.ports = append(f.ports, port)
	return f.res, f.err
}

// lineRunner prints lines as an upload tool would.
type lineRunner struct {
	lines []string
	code  int
}

func (r lineRunner) Run(_ context.Context, _ string, _ []string, onLine uploader.LineFunc) (int, error) {
	for _, l := range r.lines {
		onLine(l, false)
	}
	return r.code, nil
}
