package uploader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
)

// LineFunc receives one line of command output. progress is set for a
// line terminated by a bare carriage return, which the next line
// overwrites.
type LineFunc func(line string, progress bool)

// Runner runs an external command and streams its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args []string, onLine LineFunc) (exitCode int, err error)
}

// ExecRunner runs commands on the host.
type ExecRunner struct {
	// Dir is the working directory; empty means the current one.
	Dir string
	Env []string
}

// Run starts name with args and blocks until it exits. A non-zero exit
// is reported through exitCode with a nil error; err is set only when
// the command could not run.
func (r ExecRunner) Run(ctx context.Context, name string, args []string, onLine LineFunc) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	if r.Env != nil {
		cmd.Env = r.Env
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, err
	}
	cmd.Stderr = cmd.Stdout // merge stderr into stdout

	if err := cmd.Start(); err != nil {
		return -1, err
	}

	scanLines(stdout, onLine)

	err = cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

func scanLines(r io.Reader, onLine LineFunc) {
	scanner := bufio.NewScanner(r)
	scanner.Split(splitLines)
	for scanner.Scan() {
		tok := scanner.Text()
		if strings.HasSuffix(tok, "\r") {
			onLine(strings.TrimSuffix(tok, "\r"), true)
			continue
		}
		onLine(strings.TrimSuffix(tok, "\n"), false)
	}
}

// splitLines is bufio.ScanLines keeping the terminator, with a bare "\r"
// ending a token of its own and "\r\n" folded into "\n".
func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	i := bytes.IndexAny(data, "\r\n")
	if i < 0 {
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
	if data[i] == '\n' {
		return i + 1, data[:i+1], nil
	}
	if i+1 == len(data) && !atEOF {
		return 0, nil, nil
	}
	if i+1 < len(data) && data[i+1] == '\n' {
		return i + 2, append(data[:i:i], '\n'), nil
	}
	return i + 1, data[:i+1], nil
}
