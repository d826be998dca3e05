package supervisor

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wagiedev/proc-macro-client-go/internal/config"
	"github.com/wagiedev/proc-macro-client-go/internal/errors"
	"github.com/wagiedev/proc-macro-client-go/internal/msg"
	"github.com/wagiedev/proc-macro-client-go/internal/tt"
)

// Srv submits calls to a supervisor. It holds no ownership: the supervisor
// stops when its Thread is closed, whatever Srv values remain.
//
// The zero Srv is not connected to any supervisor; its calls fail with
// errors.ErrNoSender.
type Srv struct {
	id      string
	log     *slog.Logger
	link    *link
	metrics config.Metrics
}

// ID identifies the supervisor this Srv submits to. Srv values from the
// same Run share an ID.
func (s *Srv) ID() string {
	if s == nil {
		return ""
	}

	return s.id
}

// SameAs reports whether s and o submit to the same supervisor. Unconnected
// Srv values are never the same as anything.
func (s *Srv) SameAs(o *Srv) bool {
	return s != nil && o != nil && s.link != nil && s.link == o.link
}

// Send submits req and waits for the server's reply. Error responses are
// returned as *errors.ExpansionError.
//
// Cancelling ctx abandons the wait but not the call: a request already
// handed to the supervisor is still written to the server.
func (s *Srv) Send(ctx context.Context, req *msg.Request) (*msg.Response, error) {
	var out *msg.Response

	err := s.exchange(ctx, req, func(resp *msg.Response) error {
		out = resp

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Call submits req and narrows the reply to the result type R. A reply of
// another variant fails with *errors.UnexpectedResponseError.
func Call[R msg.Result](ctx context.Context, s *Srv, req *msg.Request) (R, error) {
	var out R

	err := s.exchange(ctx, req, func(resp *msg.Response) error {
		r, err := msg.Narrow[R](resp)
		if err != nil {
			if shapeErr, ok := stderrors.AsType[*msg.ShapeError](err); ok {
				return &errors.UnexpectedResponseError{Want: shapeErr.Want, Got: shapeErr.Got}
			}

			return err
		}

		out = r

		return nil
	})
	if err != nil {
		var zero R

		return zero, err
	}

	return out, nil
}

// FindProcMacros lists the macros exported by the library at lib.
func (s *Srv) FindProcMacros(ctx context.Context, lib string) ([]msg.Macro, error) {
	res, err := Call[*msg.ListMacrosResult](ctx, s, &msg.Request{
		ListMacro: &msg.ListMacrosTask{Lib: lib},
	})
	if err != nil {
		return nil, err
	}

	return res.Macros, nil
}

// Expand runs the macro name from lib on body. attrs carries the arguments
// of an attribute macro and is nil otherwise.
func (s *Srv) Expand(ctx context.Context, lib, name string, body, attrs *tt.Subtree) (*tt.Subtree, error) {
	if body == nil {
		body = tt.NewSubtree("")
	}

	res, err := Call[*msg.ExpansionResult](ctx, s, &msg.Request{
		ExpansionMacro: &msg.ExpansionTask{
			MacroBody:  *body,
			MacroName:  name,
			Attributes: attrs,
			Lib:        lib,
		},
	})
	if err != nil {
		return nil, err
	}

	return &res.Expansion, nil
}

func (s *Srv) exchange(ctx context.Context, req *msg.Request, accept func(*msg.Response) error) error {
	if s == nil || s.link == nil {
		return errors.ErrNoSender
	}

	kind := req.Kind()
	if kind != msg.VariantListMacro && kind != msg.VariantExpansionMacro {
		return fmt.Errorf("invalid request variant %s", kind)
	}

	start := time.Now()

	resp, err := s.submit(ctx, req)
	if err == nil {
		if resp.Error != nil {
			err = &errors.ExpansionError{Code: string(resp.Error.Code), Message: resp.Error.Message}
		} else {
			err = accept(resp)
		}
	}

	s.metrics.RecordCall(kind, outcome(resp, err), time.Since(start))

	return err
}

// submit hands req to the supervisor and waits for its reply.
func (s *Srv) submit(ctx context.Context, req *msg.Request) (*msg.Response, error) {
	if !s.link.alive() {
		return nil, errors.ErrProcessClosed
	}

	t := task{
		id:     ulid.Make().String(),
		req:    req,
		result: make(chan *msg.Response, 1),
	}

	log := s.log.With("task_id", t.id, "kind", req.Kind())

	select {
	case s.link.tasks <- t:
	case <-s.link.closing:
		return nil, errors.ErrProcessClosed
	case <-s.link.done:
		return nil, errors.ErrProcessClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	log.Debug("Call accepted")

	select {
	case resp, ok := <-t.result:
		if !ok {
			log.Error("Supervisor died while serving call")

			return nil, errors.ErrThreadClosed
		}

		return resp, nil
	case <-ctx.Done():
		log.Debug("Caller stopped waiting", "error", ctx.Err())

		return nil, ctx.Err()
	}
}

func outcome(resp *msg.Response, err error) string {
	switch {
	case err == nil:
		return config.OutcomeOK
	case resp != nil && resp.Error != nil && resp.Error.Code == msg.ErrorCodeServerErrorEnd:
		return config.OutcomeServerClosed
	case resp != nil && resp.Error != nil:
		return config.OutcomeExpansionErr
	case stderrors.Is(err, errors.ErrProcessClosed):
		return config.OutcomeProcessClosed
	case stderrors.Is(err, errors.ErrThreadClosed):
		return config.OutcomeThreadClosed
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return config.OutcomeCancelled
	default:
		return config.OutcomeUnexpected
	}
}
