package procmacro

import (
	"context"
	"fmt"

	"github.com/wagiedev/proc-macro-client-go/internal/supervisor"
)

// TokenExpander transforms a token tree.
type TokenExpander interface {
	// Expand runs the macro on subtree. attrs holds the arguments of an
	// attribute macro and is nil otherwise.
	Expand(ctx context.Context, subtree, attrs *Subtree) (*Subtree, error)
}

// Registration pairs an exported macro name with its expander.
type Registration struct {
	Name     string
	Expander *Expander
}

// Expander runs one macro of one library on the server of the Client it
// came from.
type Expander struct {
	srv  *supervisor.Srv
	lib  string
	name string
}

var _ TokenExpander = (*Expander)(nil)

func newExpander(srv *supervisor.Srv, lib, name string) *Expander {
	return &Expander{srv: srv, lib: lib, name: name}
}

// Name returns the macro name.
func (e *Expander) Name() string { return e.name }

// Lib returns the path of the library exporting the macro.
func (e *Expander) Lib() string { return e.lib }

// Expand runs the macro on subtree and returns the server's output
// unchanged.
func (e *Expander) Expand(ctx context.Context, subtree, attrs *Subtree) (*Subtree, error) {
	return e.srv.Expand(ctx, e.lib, e.name, subtree, attrs)
}

// Equal reports whether both expanders run the same macro of the same
// library on the same server.
func (e *Expander) Equal(other *Expander) bool {
	if e == nil || other == nil {
		return e == other
	}

	return e.name == other.name && e.lib == other.lib && e.srv.SameAs(other.srv)
}

func (e *Expander) String() string {
	return fmt.Sprintf("%s (%s) @%s", e.name, e.lib, e.srv.ID())
}
