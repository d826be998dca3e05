package supervisor

import (
	stderrors "errors"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/rs/xid"

	"github.com/wagiedev/proc-macro-client-go/internal/config"
	"github.com/wagiedev/proc-macro-client-go/internal/errors"
	"github.com/wagiedev/proc-macro-client-go/internal/msg"
	"github.com/wagiedev/proc-macro-client-go/internal/subprocess"
)

// task is one submitted call. result has capacity 1 so the supervisor never
// blocks on a caller that stopped waiting.
type task struct {
	id     string
	req    *msg.Request
	result chan *msg.Response
}

// link is the channel set shared by Thread, Srv and the supervisor loop.
type link struct {
	tasks     chan task     // unbuffered: a send completes when the loop takes it
	closing   chan struct{} // closed by Thread.Close
	done      chan struct{} // closed after the loop exits and the server is dead
	closeOnce sync.Once
}

func newLink() *link {
	return &link{
		tasks:   make(chan task),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// alive reports whether the loop may still accept tasks.
func (l *link) alive() bool {
	select {
	case <-l.closing:
		return false
	case <-l.done:
		return false
	default:
		return true
	}
}

func (l *link) shutdown() {
	l.closeOnce.Do(func() { close(l.closing) })
}

// Thread owns a running supervisor.
type Thread struct {
	link *link
}

// Close stops the supervisor and waits for it to exit. Calls submitted
// afterwards fail with errors.ErrProcessClosed. It's safe to call Close
// multiple times.
func (t *Thread) Close() error {
	t.link.shutdown()
	<-t.link.done

	return nil
}

// Done is closed once the supervisor has exited, either through Close or
// because the server could not be restarted.
func (t *Thread) Done() <-chan struct{} {
	return t.link.done
}

// Run spawns the server at opts.ServerPath and starts the supervisor loop.
func Run(opts *config.Options) (*Thread, *Srv, error) {
	if opts == nil {
		opts = &config.Options{}
	}

	if opts.ServerPath == "" {
		return nil, nil, stderrors.New("supervisor: no server path")
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = config.NopMetrics{}
	}

	id := xid.New().String()
	log = log.With("component", "supervisor", "srv_id", id)

	proc, err := subprocess.Spawn(log, opts.ServerPath, opts.Args...)
	if err != nil {
		return nil, nil, err
	}

	w, r, ok := proc.Stdio()
	if !ok {
		_ = proc.Close()

		return nil, nil, errors.ErrStdioUnavailable
	}

	l := newLink()
	lp := &loop{
		log:     log,
		link:    l,
		proc:    proc,
		w:       w,
		r:       r,
		timeout: opts.ResponseTimeout,
		metrics: metrics,
	}

	go lp.run()

	t := &Thread{link: l}
	// An owner dropped without Close still stops the server.
	runtime.AddCleanup(t, func(l *link) { l.shutdown() }, l)

	log.Info("Supervisor started", "path", opts.ServerPath)

	return t, &Srv{id: id, log: log, link: l, metrics: metrics}, nil
}
