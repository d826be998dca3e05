//go:build !windows

package supervisor

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/proc-macro-client-go/internal/config"
	"github.com/wagiedev/proc-macro-client-go/internal/errors"
	"github.com/wagiedev/proc-macro-client-go/internal/msg"
	"github.com/wagiedev/proc-macro-client-go/internal/subprocess"
	"github.com/wagiedev/proc-macro-client-go/internal/testworker"
	"github.com/wagiedev/proc-macro-client-go/internal/tt"
)

func TestMain(m *testing.M) {
	testworker.MainIfWorker()
	os.Exit(m.Run())
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	kind    string
	outcome string
}

// recordingMetrics captures observations for assertions.
type recordingMetrics struct {
	mu       sync.Mutex
	calls    []call
	restarts []bool
}

func (m *recordingMetrics) RecordCall(kind, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, call{kind: kind, outcome: outcome})
}

func (m *recordingMetrics) RecordRestart(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.restarts = append(m.restarts, ok)
}

func (m *recordingMetrics) snapshot() ([]call, []bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]call(nil), m.calls...), append([]bool(nil), m.restarts...)
}

var _ config.Metrics = (*recordingMetrics)(nil)

// workerPath returns the test binary, which acts as the server when
// testworker.EnvVar is set.
func workerPath(t *testing.T) string {
	t.Helper()

	t.Setenv(testworker.EnvVar, "1")

	exe, err := testworker.Executable()
	require.NoError(t, err)

	return exe
}

// removableWorker wraps the worker in a script that the test may delete.
func removableWorker(t *testing.T) string {
	t.Helper()

	exe := workerPath(t)
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("#!/bin/sh\nexec %q \"$@\"\n", exe)), 0o755))

	return path
}

func start(t *testing.T, opts *config.Options) (*Thread, *Srv) {
	t.Helper()

	if opts.ServerPath == "" {
		opts.ServerPath = workerPath(t)
	}

	if opts.Logger == nil {
		opts.Logger = nopLogger()
	}

	th, srv, err := Run(opts)
	require.NoError(t, err)

	t.Cleanup(func() { _ = th.Close() })

	return th, srv
}

func workerPid(t *testing.T, srv *Srv) string {
	t.Helper()

	out, err := srv.Expand(context.Background(), "lib.so", testworker.MacroPid, nil, nil)
	require.NoError(t, err)

	return out.String()
}

func requireServerClosed(t *testing.T, err error) {
	t.Helper()

	expErr, ok := stderrors.AsType[*errors.ExpansionError](err)
	require.True(t, ok, "expected ExpansionError, got %v", err)
	require.Equal(t, string(msg.ErrorCodeServerErrorEnd), expErr.Code)
	require.Equal(t, "Server closed", expErr.Message)
}

func TestRun_MissingServer(t *testing.T) {
	_, _, err := Run(&config.Options{ServerPath: filepath.Join(t.TempDir(), "nope")})

	_, ok := stderrors.AsType[*errors.StartupError](err)
	require.True(t, ok, "expected StartupError, got %v", err)

	_, _, err = Run(&config.Options{})
	require.Error(t, err)
}

func TestSrv_ListAndExpand(t *testing.T) {
	_, srv := start(t, &config.Options{})
	ctx := context.Background()

	macros, err := srv.FindProcMacros(ctx, "libfoo.so")
	require.NoError(t, err)
	require.Equal(t, testworker.Macros, macros)

	body := tt.NewSubtree("", tt.Ident("struct"), tt.Ident("S"), tt.Punct(';', tt.SpacingAlone))

	out, err := srv.Expand(ctx, "libfoo.so", "Foo", body, nil)
	require.NoError(t, err)
	require.Equal(t, testworker.Expand("Foo", body), out)
	require.Equal(t, "impl Foo {struct S ;}", out.String())
}

func TestSrv_ErrorResponse(t *testing.T) {
	_, srv := start(t, &config.Options{})

	_, err := srv.Expand(context.Background(), "libfoo.so", testworker.MacroBoom, nil, nil)

	expErr, ok := stderrors.AsType[*errors.ExpansionError](err)
	require.True(t, ok, "expected ExpansionError, got %v", err)
	require.Equal(t, string(msg.ErrorCodeExpansionError), expErr.Code)
	require.Equal(t, "boom", expErr.Message)
}

func TestSrv_UnexpectedResponseKeepsServing(t *testing.T) {
	_, srv := start(t, &config.Options{})
	ctx := context.Background()

	pid := workerPid(t, srv)

	_, err := srv.Expand(ctx, "libfoo.so", testworker.MacroWrong, nil, nil)

	unexpected, ok := stderrors.AsType[*errors.UnexpectedResponseError](err)
	require.True(t, ok, "expected UnexpectedResponseError, got %v", err)
	require.Equal(t, msg.VariantExpansionMacro, unexpected.Want)
	require.Equal(t, msg.VariantListMacro, unexpected.Got)

	require.Equal(t, pid, workerPid(t, srv), "a well-formed reply of the wrong shape must not restart the server")
}

func TestSrv_SendReturnsRawResponse(t *testing.T) {
	_, srv := start(t, &config.Options{})

	resp, err := srv.Send(context.Background(), &msg.Request{ListMacro: &msg.ListMacrosTask{Lib: testworker.LibEmpty}})
	require.NoError(t, err)
	require.Equal(t, msg.VariantListMacro, resp.Kind())
	require.Empty(t, resp.ListMacro.Macros)

	_, err = srv.Send(context.Background(), &msg.Request{})
	require.ErrorContains(t, err, "invalid request variant")
}

func TestSrv_ConcurrentCallsGetTheirOwnReplies(t *testing.T) {
	_, srv := start(t, &config.Options{})

	const callers = 16

	var g errgroup.Group

	for i := range callers {
		g.Go(func() error {
			body := tt.NewSubtree("", tt.Ident(fmt.Sprintf("s%d", i)))

			out, err := srv.Expand(context.Background(), "libfoo.so", testworker.MacroSlow, body, nil)
			if err != nil {
				return err
			}

			if want := testworker.Expand(testworker.MacroSlow, body).String(); out.String() != want {
				return fmt.Errorf("caller %d got %q, want %q", i, out.String(), want)
			}

			return nil
		})
	}

	require.NoError(t, g.Wait())
}

func TestZeroSrv_NoSender(t *testing.T) {
	var zero Srv

	_, err := zero.FindProcMacros(context.Background(), "libfoo.so")
	require.ErrorIs(t, err, errors.ErrNoSender)

	var nilSrv *Srv

	_, err = nilSrv.Send(context.Background(), &msg.Request{ListMacro: &msg.ListMacrosTask{}})
	require.ErrorIs(t, err, errors.ErrNoSender)
	require.Empty(t, nilSrv.ID())
}

func TestSupervisor_RecoversAfterCrash(t *testing.T) {
	metrics := &recordingMetrics{}
	_, srv := start(t, &config.Options{Metrics: metrics})
	ctx := context.Background()

	before := workerPid(t, srv)

	_, err := srv.FindProcMacros(ctx, testworker.LibCrash)
	requireServerClosed(t, err)

	macros, err := srv.FindProcMacros(ctx, "libfoo.so")
	require.NoError(t, err)
	require.Equal(t, testworker.Macros, macros)
	require.NotEqual(t, before, workerPid(t, srv))

	calls, restarts := metrics.snapshot()
	require.Equal(t, []bool{true}, restarts)
	require.Contains(t, calls, call{kind: msg.VariantListMacro, outcome: config.OutcomeServerClosed})
	require.Contains(t, calls, call{kind: msg.VariantListMacro, outcome: config.OutcomeOK})
}

func TestSupervisor_RecoversAfterMalformedReply(t *testing.T) {
	_, srv := start(t, &config.Options{})
	ctx := context.Background()

	_, err := srv.FindProcMacros(ctx, testworker.LibGarbage)
	requireServerClosed(t, err)

	_, err = srv.FindProcMacros(ctx, "libfoo.so")
	require.NoError(t, err)
}

func TestSupervisor_RecoversAfterExternalKill(t *testing.T) {
	_, srv := start(t, &config.Options{})
	ctx := context.Background()

	out, err := srv.Expand(ctx, "libfoo.so", testworker.MacroPid, nil, nil)
	require.NoError(t, err)

	var pid int

	_, err = fmt.Sscan(out.String(), &pid)
	require.NoError(t, err)
	require.NoError(t, syscall.Kill(pid, syscall.SIGKILL))

	_, err = srv.FindProcMacros(ctx, "libfoo.so")
	requireServerClosed(t, err)

	_, err = srv.FindProcMacros(ctx, "libfoo.so")
	require.NoError(t, err)
}

func TestSupervisor_RestartDropsArguments(t *testing.T) {
	_, srv := start(t, &config.Options{Args: []string{"--alpha", "beta"}})
	ctx := context.Background()

	out, err := srv.Expand(ctx, "libfoo.so", testworker.MacroArgs, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "--alpha beta", out.String())

	_, err = srv.FindProcMacros(ctx, testworker.LibCrash)
	requireServerClosed(t, err)

	out, err = srv.Expand(ctx, "libfoo.so", testworker.MacroArgs, nil, nil)
	require.NoError(t, err)
	require.Empty(t, out.String())
}

func TestSupervisor_RestartFailureIsFinal(t *testing.T) {
	metrics := &recordingMetrics{}
	path := removableWorker(t)
	th, srv := start(t, &config.Options{ServerPath: path, Metrics: metrics})
	ctx := context.Background()

	require.NoError(t, os.Remove(path))

	_, err := srv.FindProcMacros(ctx, testworker.LibCrash)
	requireServerClosed(t, err)

	select {
	case <-th.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not stop after a failed restart")
	}

	_, err = srv.FindProcMacros(ctx, "libfoo.so")
	require.ErrorIs(t, err, errors.ErrProcessClosed)

	_, restarts := metrics.snapshot()
	require.Equal(t, []bool{false}, restarts)
}

func TestSupervisor_ResponseTimeoutRestartsHungServer(t *testing.T) {
	_, srv := start(t, &config.Options{ResponseTimeout: 200 * time.Millisecond})
	ctx := context.Background()

	began := time.Now()

	_, err := srv.FindProcMacros(ctx, testworker.LibHang)
	requireServerClosed(t, err)
	require.Less(t, time.Since(began), 10*time.Second)

	_, err = srv.FindProcMacros(ctx, "libfoo.so")
	require.NoError(t, err)
}

// slowWriter accepts every write after a delay.
type slowWriter struct {
	delay time.Duration
}

func (w slowWriter) Write(p []byte) (int, error) {
	time.Sleep(w.delay)

	return len(p), nil
}

func TestLoop_LateReplyStillRestartsServer(t *testing.T) {
	proc, err := subprocess.Spawn(nopLogger(), workerPath(t))
	require.NoError(t, err)

	_, _, ok := proc.Stdio()
	require.True(t, ok)

	metrics := &recordingMetrics{}
	canned := `{"ListMacro":{"macros":[["Canned","CustomDerive"]]}}` + "\n"

	l := newLink()
	lp := &loop{
		log:  nopLogger(),
		link: l,
		proc: proc,
		// The write outlasts the deadline, yet a reply is ready right after it.
		w:       slowWriter{delay: 200 * time.Millisecond},
		r:       bufio.NewReader(strings.NewReader(canned)),
		timeout: 10 * time.Millisecond,
		metrics: metrics,
	}

	go lp.run()

	th := &Thread{link: l}
	t.Cleanup(func() { _ = th.Close() })

	srv := &Srv{log: nopLogger(), link: l, metrics: config.NopMetrics{}}
	ctx := context.Background()

	macros, err := srv.FindProcMacros(ctx, "libfoo.so")
	require.NoError(t, err, "the reply that was read is delivered")
	require.Equal(t, []msg.Macro{{Name: "Canned", Kind: msg.KindCustomDerive}}, macros)

	macros, err = srv.FindProcMacros(ctx, "libfoo.so")
	require.NoError(t, err, "the next caller must not inherit the killed server")
	require.Equal(t, testworker.Macros, macros)

	_, restarts := metrics.snapshot()
	require.Equal(t, []bool{true}, restarts)
}

func TestSupervisor_TimeoutNearReplyTimeNeverFailsNextCall(t *testing.T) {
	// Slightly above MacroSlow's delay, so the watchdog sometimes fires
	// right after the reply has been read.
	_, srv := start(t, &config.Options{ResponseTimeout: 21 * time.Millisecond})
	ctx := context.Background()

	for i := range 30 {
		if _, err := srv.Expand(ctx, "lib.so", testworker.MacroSlow, nil, nil); err != nil {
			requireServerClosed(t, err)
		}

		// Leaves a replacement server time to start, so only a server
		// killed behind the caller's back can fail the next call.
		time.Sleep(100 * time.Millisecond)

		_, err := srv.FindProcMacros(ctx, "libfoo.so")
		require.NoError(t, err, "iteration %d", i)
	}
}

func TestSrv_CallerContext(t *testing.T) {
	metrics := &recordingMetrics{}
	_, srv := start(t, &config.Options{ResponseTimeout: 300 * time.Millisecond, Metrics: metrics})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := srv.FindProcMacros(ctx, testworker.LibHang)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned call still occupies the supervisor until the server is
	// declared hung; later calls queue behind it and then succeed.
	_, err = srv.FindProcMacros(context.Background(), "libfoo.so")
	require.NoError(t, err)

	calls, _ := metrics.snapshot()
	require.Contains(t, calls, call{kind: msg.VariantListMacro, outcome: config.OutcomeCancelled})
}

func TestThread_Close(t *testing.T) {
	th, srv := start(t, &config.Options{})

	pid := workerPid(t, srv)

	require.NoError(t, th.Close())
	require.NoError(t, th.Close())

	select {
	case <-th.Done():
	default:
		t.Fatal("Done must be closed once Close returns")
	}

	_, err := srv.FindProcMacros(context.Background(), "libfoo.so")
	require.ErrorIs(t, err, errors.ErrProcessClosed)

	var n int

	_, err = fmt.Sscan(pid, &n)
	require.NoError(t, err)
	require.ErrorIs(t, syscall.Kill(n, 0), syscall.ESRCH, "server must be killed and reaped")
}

func TestThread_DroppedWithoutCloseStopsServer(t *testing.T) {
	_, srv, err := Run(&config.Options{ServerPath: workerPath(t), Logger: nopLogger()})
	require.NoError(t, err)

	pid := workerPid(t, srv)

	deadline := time.After(10 * time.Second)

	for stopped := false; !stopped; {
		runtime.GC()

		select {
		case <-srv.link.done:
			stopped = true
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("supervisor still running after its Thread was collected")
		}
	}

	_, err = srv.FindProcMacros(context.Background(), "libfoo.so")
	require.ErrorIs(t, err, errors.ErrProcessClosed)

	var n int

	_, err = fmt.Sscan(pid, &n)
	require.NoError(t, err)
	require.ErrorIs(t, syscall.Kill(n, 0), syscall.ESRCH, "server must be killed and reaped")
}

func TestSrv_SharedIdentity(t *testing.T) {
	_, a := start(t, &config.Options{})
	_, b := start(t, &config.Options{})

	require.NotEmpty(t, a.ID())
	require.NotEqual(t, a.ID(), b.ID())

	copied := *a
	require.Equal(t, a.ID(), copied.ID())
	require.True(t, a.SameAs(&copied))
	require.False(t, a.SameAs(b))
	require.False(t, (&Srv{}).SameAs(&Srv{}))
}

// panicWriter makes the supervisor panic while writing a request.
type panicWriter struct{}

func (panicWriter) Write([]byte) (int, error) {
	panic("write exploded")
}

func TestLoop_PanicClosesPendingReply(t *testing.T) {
	proc, err := subprocess.Spawn(nopLogger(), workerPath(t))
	require.NoError(t, err)

	_, r, ok := proc.Stdio()
	require.True(t, ok)

	l := newLink()
	lp := &loop{
		log:     nopLogger(),
		link:    l,
		proc:    proc,
		w:       panicWriter{},
		r:       r,
		metrics: config.NopMetrics{},
	}

	go lp.run()

	srv := &Srv{log: nopLogger(), link: l, metrics: config.NopMetrics{}}

	_, err = srv.FindProcMacros(context.Background(), "libfoo.so")
	require.ErrorIs(t, err, errors.ErrThreadClosed)

	select {
	case <-l.done:
	case <-time.After(10 * time.Second):
		t.Fatal("loop did not exit after panicking")
	}

	require.Zero(t, proc.Pid(), "server must be killed when the loop dies")

	_, err = srv.FindProcMacros(context.Background(), "libfoo.so")
	require.ErrorIs(t, err, errors.ErrProcessClosed)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "serving", stateServing.String())
	require.Equal(t, "recovering", stateRecovering.String())
	require.Equal(t, "terminated", stateTerminated.String())
}
