// Package uploader runs an upload command against a board and feeds its
// output into the shared upload stream.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/store"
	"github.com/buckleypaul/cloudeditor/internal/upload"
)

var (
	ErrBusy         = errors.New("an upload is already in progress")
	ErrEmptyCommand = errors.New("upload command is empty")
)

// PortPlaceholder in a command template is replaced by the target port.
const PortPlaceholder = "{port}"

// ParseCommand splits tmpl on whitespace and substitutes port. Quoting is
// not supported.
func ParseCommand(tmpl, port string) (string, []string, error) {
	fields := strings.Fields(tmpl)
	if len(fields) == 0 {
		return "", nil, ErrEmptyCommand
	}
	for i, f := range fields {
		fields[i] = strings.ReplaceAll(f, PortPlaceholder, port)
	}
	return fields[0], fields[1:], nil
}

// Result describes a finished upload.
type Result struct {
	ID       string
	ExitCode int
	Duration time.Duration
}

// Success reports whether the command exited cleanly.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Options configure an Uploader.
type Options struct {
	Runner  Runner
	History *store.Store
	Logger  *slog.Logger
}

// Uploader serializes uploads for one device state scope.
type Uploader struct {
	state   *devicestate.Store
	runner  Runner
	history *store.Store
	logger  *slog.Logger
	now     func() time.Time
}

// New returns an uploader reporting into state.
func New(state *devicestate.Store, opts Options) *Uploader {
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Uploader{
		state:   state,
		runner:  opts.Runner,
		history: opts.History,
		logger:  opts.Logger,
		now:     time.Now,
	}
}

// Upload runs the command built from tmpl for port. While it runs the
// upload status is IN_PROG; it ends as DONE or ERROR. The command output
// goes to the upload stream, which is reset first.
func (u *Uploader) Upload(ctx context.Context, port, tmpl string) (Result, error) {
	name, args, err := ParseCommand(tmpl, port)
	if err != nil {
		return Result{}, err
	}

	busy := false
	u.state.Set(func(st *devicestate.State) {
		if st.UploadStatus == devicestate.UploadInProgress {
			busy = true
			return
		}
		st.UploadStatus = devicestate.UploadInProgress
	})
	if busy {
		return Result{}, ErrBusy
	}

	res := Result{ID: ulid.Make().String()}
	start := u.now()
	u.logger.Info("upload started", "id", res.ID, "port", port, "command", name)

	set, st := u.state.Set, u.state.State()
	upload.Next(set, st, "", upload.SignalEnd)

	var (
		committed []string
		dirty     bool
	)
	onLine := func(line string, progress bool) {
		st := u.state.State()
		if progress {
			upload.Next(set, st, strings.Join(append(committed[:len(committed):len(committed)], line), "\n"), upload.SignalCompileStreamUpdate)
			dirty = true
			return
		}
		committed = append(committed, line)
		if dirty {
			upload.Next(set, st, strings.Join(committed, "\n"), upload.SignalCompileStreamUpdate)
			dirty = false
			return
		}
		upload.Next(set, st, line, "")
	}

	code, runErr := u.runner.Run(ctx, name, args, onLine)
	res.ExitCode = code
	res.Duration = u.now().Sub(start)

	final := devicestate.UploadDone
	if runErr != nil || code != 0 {
		final = devicestate.UploadError
	}
	u.state.Set(func(st *devicestate.State) { st.UploadStatus = final })

	if u.history != nil {
		rec := store.UploadRecord{
			ID:        res.ID,
			Port:      port,
			Command:   strings.Join(append([]string{name}, args...), " "),
			Timestamp: start,
			Success:   final == devicestate.UploadDone,
			ExitCode:  code,
			Duration:  res.Duration.Round(time.Millisecond).String(),
		}
		if err := u.history.AddUpload(rec); err != nil {
			u.logger.Warn("record upload", "id", res.ID, "error", err)
		}
	}

	if runErr != nil {
		u.logger.Error("upload failed", "id", res.ID, "error", runErr)
		return res, fmt.Errorf("run %s: %w", name, runErr)
	}
	u.logger.Info("upload finished", "id", res.ID, "exit_code", code, "duration", res.Duration)
	return res, nil
}
