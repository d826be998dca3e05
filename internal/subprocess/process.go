package subprocess

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/wagiedev/proc-macro-client-go/internal/errors"
)

// readBufferSize is the initial buffer size for reading server output lines.
// Lines longer than this are still read in full.
const readBufferSize = 64 * 1024

// Process owns one live proc-macro server child and its pipes.
type Process struct {
	log    *slog.Logger
	path   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	taken  bool // Whether Stdio has handed out the current pipes
}

// Spawn starts the server at path with the given arguments.
//
// The child's stdin and stdout are pipes owned by the returned Process; its
// stderr is discarded. Returns StartupError if the executable cannot be
// launched.
func Spawn(log *slog.Logger, path string, args ...string) (*Process, error) {
	p := &Process{
		log:  log.With("component", "worker"),
		path: path,
	}

	if err := p.spawn(args); err != nil {
		return nil, err
	}

	return p, nil
}

// Path returns the executable path. It never changes over the handle's life.
func (p *Process) Path() string {
	return p.path
}

// Pid returns the pid of the current child, or 0 when there is none.
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}

	return p.cmd.Process.Pid
}

func (p *Process) spawn(args []string) error {
	//nolint:gosec // G204: the server path is supplied by the embedding application
	cmd := exec.Command(p.path, args...)
	// A nil Stderr connects the child's stderr to the null device.
	cmd.Stderr = nil

	stdin, err := cmd.StdinPipe()
	if err != nil {
		p.log.Error("Failed to create stdin pipe", "error", err)

		return &errors.StartupError{Path: p.path, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()

		p.log.Error("Failed to create stdout pipe", "error", err)

		return &errors.StartupError{Path: p.path, Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		p.log.Error("Failed to start proc-macro server", "path", p.path, "error", err)

		return &errors.StartupError{Path: p.path, Err: fmt.Errorf("start process: %w", err)}
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = stdout
	p.taken = false

	p.log.Info("Proc-macro server started", "path", p.path, "pid", cmd.Process.Pid)

	return nil
}

// Restart kills the current child and spawns a new one from the same path.
//
// Termination failures are ignored since the child may already be gone. The
// new child is started without the arguments of the original invocation.
// Returns StartupError if the new child cannot be spawned, in which case the
// Process owns no child until the next successful Restart.
func (p *Process) Restart() error {
	p.log.Info("Restarting proc-macro server", "pid", p.Pid())

	p.kill()

	return p.spawn(nil)
}

// Stdio hands back the current child's stdin writer and buffered stdout
// reader. It succeeds exactly once per spawn; ok is false on a second call
// or when there is no live child.
func (p *Process) Stdio() (w io.Writer, r *bufio.Reader, ok bool) {
	if p.cmd == nil || p.taken {
		return nil, nil, false
	}

	p.taken = true

	return p.stdin, bufio.NewReaderSize(p.stdout, readBufferSize), true
}

// Watchdog kills the current child if stop is not called within d. Killing
// the child makes a blocked read on its stdout fail, which the caller then
// handles like any other broken connection. A non-positive d arms nothing.
//
// Watchdog is safe to call from any goroutine, and so is the returned stop.
func (p *Process) Watchdog(d time.Duration) (stop func() bool) {
	if d <= 0 || p.cmd == nil || p.cmd.Process == nil {
		return func() bool { return true }
	}

	proc := p.cmd.Process
	log := p.log

	timer := time.AfterFunc(d, func() {
		log.Warn("Proc-macro server did not answer in time, killing it", "pid", proc.Pid, "timeout", d)

		_ = proc.Kill()
	})

	return timer.Stop
}

// Close kills and reaps the current child. It's safe to call Close multiple
// times or after a failed Restart.
func (p *Process) Close() error {
	p.kill()

	return nil
}

// kill force-terminates and reaps the current child, ignoring errors.
func (p *Process) kill() {
	if p.cmd == nil {
		return
	}

	pid := p.cmd.Process.Pid

	if err := p.cmd.Process.Kill(); err != nil {
		p.log.Debug("Kill failed, process may already be gone", "pid", pid, "error", err)
	}

	// Wait reaps the child and closes our ends of its pipes.
	_ = p.cmd.Wait()

	p.log.Debug("Proc-macro server terminated", "pid", pid)

	p.cmd = nil
	p.stdin = nil
	p.stdout = nil
	p.taken = false
}
