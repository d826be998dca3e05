package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/wagiedev/proc-macro-client-go/internal/config"
	"github.com/wagiedev/proc-macro-client-go/internal/errors"
	"github.com/wagiedev/proc-macro-client-go/internal/msg"
	"github.com/wagiedev/proc-macro-client-go/internal/subprocess"
)

type state int

const (
	stateServing state = iota
	stateRecovering
	stateTerminated
)

func (s state) String() string {
	switch s {
	case stateServing:
		return "serving"
	case stateRecovering:
		return "recovering"
	case stateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type loop struct {
	log     *slog.Logger
	link    *link
	proc    *subprocess.Process
	w       io.Writer
	r       *bufio.Reader
	timeout time.Duration
	metrics config.Metrics

	// current is the task being served, until its reply is delivered.
	current *task
}

func (l *loop) run() {
	defer close(l.link.done)
	defer l.proc.Close()
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("Supervisor panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)

			// The caller learns the supervisor died from the closed channel.
			if l.current != nil {
				close(l.current.result)
			}
		}
	}()

	st := stateServing
	for st != stateTerminated {
		next := l.step(st)
		if next != st {
			l.log.Debug("Supervisor state changed", "from", st, "to", next)
		}

		st = next
	}

	l.log.Info("Supervisor stopped")
}

func (l *loop) step(st state) state {
	switch st {
	case stateServing:
		return l.serve()
	case stateRecovering:
		return l.restart()
	default:
		return stateTerminated
	}
}

// serve takes the next task and answers it.
func (l *loop) serve() state {
	var t task

	select {
	case <-l.link.closing:
		return stateTerminated
	case t = <-l.link.tasks:
	}

	l.current = &t

	resp, expired, err := l.exchange(t.req)
	if err != nil {
		l.log.Warn("Proc-macro server connection broke", "task_id", t.id, "error", err)
		l.deliver(msg.ServerClosed())

		return stateRecovering
	}

	l.deliver(resp)

	// The reply beat the watchdog by a hair, but the kill is already under
	// way. Replace the server before the next task is written to it.
	if expired {
		l.log.Warn("Proc-macro server answered after its deadline", "task_id", t.id, "timeout", l.timeout)

		return stateRecovering
	}

	return stateServing
}

func (l *loop) deliver(resp *msg.Response) {
	l.current.result <- resp
	l.current = nil
}

// exchange writes one request and reads one response. Any failure means the
// connection can no longer be trusted. expired reports that the watchdog
// fired even though a response was read, so the server is being killed.
func (l *loop) exchange(req *msg.Request) (resp *msg.Response, expired bool, err error) {
	stop := l.proc.Watchdog(l.timeout)

	if err = msg.WriteRequest(l.w, req); err != nil {
		stop()

		return nil, false, &errors.ConnectionError{Op: "write", Err: err}
	}

	resp, err = msg.ReadResponse(l.r)
	expired = !stop()

	if err != nil {
		return nil, false, &errors.ConnectionError{Op: "read", Err: err}
	}

	return resp, expired, nil
}

// restart replaces the server. A failed restart is final.
func (l *loop) restart() state {
	if err := l.proc.Restart(); err != nil {
		l.metrics.RecordRestart(false)
		l.log.Error("Failed to restart proc-macro server", "error", err)

		return stateTerminated
	}

	l.metrics.RecordRestart(true)

	w, r, ok := l.proc.Stdio()
	if !ok {
		l.log.Error("Restarted proc-macro server has no stdio", "error", errors.ErrStdioUnavailable)

		return stateTerminated
	}

	l.w, l.r = w, r

	return stateServing
}
