package agent

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buckleypaul/cloudeditor/internal/devicestate"
)

// fakePort is a port whose device side is driven by the test.
type fakePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, w: w}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.r.Close()
}

// emit makes the device send data.
func (p *fakePort) emit(data string) {
	p.w.Write([]byte(data))
}

// unplug makes the next read fail as if the board went away.
func (p *fakePort) unplug() {
	p.w.CloseWithError(errors.New("device not configured"))
}

func (p *fakePort) sent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

type fakeOpener struct {
	mu    sync.Mutex
	ports map[string]*fakePort
	bauds map[string]int
	err   error
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{ports: make(map[string]*fakePort), bauds: make(map[string]int)}
}

func (o *fakeOpener) Open(name string, baudRate int) (io.ReadWriteCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	p := newFakePort()
	o.ports[name] = p
	o.bauds[name] = baudRate
	return p, nil
}

func (o *fakeOpener) port(name string) *fakePort {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ports[name]
}

// slowOpener delays its first opens, like a port that takes long to
// come up. Later opens go through at once.
type slowOpener struct {
	*fakeOpener
	delay time.Duration
	slow  atomic.Int32
}

func newSlowOpener(delay time.Duration, slow int32) *slowOpener {
	o := &slowOpener{fakeOpener: newFakeOpener(), delay: delay}
	o.slow.Store(slow)
	return o
}

func (o *slowOpener) Open(name string, baudRate int) (io.ReadWriteCloser, error) {
	if o.slow.Add(-1) >= 0 {
		time.Sleep(o.delay)
	}
	return o.fakeOpener.Open(name, baudRate)
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func staticList(names ...string) func() ([]devicestate.Port, error) {
	return func() ([]devicestate.Port, error) {
		ports := make([]devicestate.Port, 0, len(names))
		for _, n := range names {
			ports = append(ports, devicestate.Port{Name: n, IsUSB: true, VID: "2341", PID: "0043"})
		}
		return ports, nil
	}
}
