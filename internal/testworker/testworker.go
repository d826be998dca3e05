// Package testworker is a scriptable stand-in for the proc-macro server,
// used by tests that need a real child process.
//
// A test binary becomes the worker when EnvVar is set; tests re-execute
// themselves through Executable:
//
//	func TestMain(m *testing.M) {
//	    testworker.MainIfWorker()
//	    os.Exit(m.Run())
//	}
//
// Behaviour is selected by the request, so a restarted worker (which gets
// no arguments) behaves like the first one:
//
//	ListMacro lib=LibCrash      exit without replying
//	ListMacro lib=LibHang       never reply
//	ListMacro lib=LibGarbage    reply with a line that is not JSON
//	ListMacro lib=LibEmpty      reply with no macros
//	ListMacro (any other lib)   reply with Macros
//	ExpansionMacro MacroBoom    reply with an ExpansionError "boom"
//	ExpansionMacro MacroWrong   reply with a ListMacro response
//	ExpansionMacro MacroPid     expand to a literal holding the worker pid
//	ExpansionMacro MacroArgs    expand to a literal holding the worker args
//	ExpansionMacro MacroSlow    sleep briefly, then expand like any other macro
//	ExpansionMacro (any other)  expand to Expand(name, body)
package testworker

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wagiedev/proc-macro-client-go/internal/msg"
	"github.com/wagiedev/proc-macro-client-go/internal/tt"
)

// EnvVar switches a test binary into worker mode.
const EnvVar = "PROCMACRO_TEST_WORKER"

// Libraries and macros with scripted behaviour.
const (
	LibCrash   = "crash.so"
	LibHang    = "hang.so"
	LibGarbage = "garbage.so"
	LibEmpty   = "empty.so"

	MacroBoom  = "boom"
	MacroWrong = "wrong_shape"
	MacroPid   = "pid"
	MacroArgs  = "args"
	MacroSlow  = "slow"
)

// Macros is what the worker lists for an ordinary library.
var Macros = []msg.Macro{
	{Name: "Foo", Kind: msg.KindCustomDerive},
	{Name: "bar_attr", Kind: msg.KindAttr},
	{Name: "baz", Kind: msg.KindFuncLike},
	{Name: "Qux", Kind: msg.KindCustomDerive},
	{Name: MacroBoom, Kind: msg.KindCustomDerive},
}

// Expand is the worker's expansion of an ordinary macro: impl <name> { <body> }.
func Expand(name string, body *tt.Subtree) *tt.Subtree {
	return tt.NewSubtree("",
		tt.Ident("impl"),
		tt.Ident(name),
		tt.Tree(tt.NewSubtree(tt.DelimiterBrace, body.TokenTrees...)),
	)
}

// Executable returns the path of the running test binary.
func Executable() (string, error) {
	return os.Executable()
}

// MainIfWorker serves stdin/stdout and exits when EnvVar is set. Otherwise
// it returns immediately.
func MainIfWorker() {
	if os.Getenv(EnvVar) == "" {
		return
	}

	os.Exit(Serve(os.Stdin, os.Stdout))
}

// Serve answers requests from in on out until in is exhausted. It returns
// the process exit code.
func Serve(in io.Reader, out io.Writer) int {
	r := bufio.NewReader(in)

	for {
		req, err := msg.ReadRequest(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0
			}

			return 2
		}

		switch {
		case req.ListMacro != nil:
			switch req.ListMacro.Lib {
			case LibCrash:
				return 3
			case LibHang:
				time.Sleep(time.Hour)

				return 0
			case LibGarbage:
				_, _ = io.WriteString(out, "not json\n")

				continue
			case LibEmpty:
				reply(out, &msg.Response{ListMacro: &msg.ListMacrosResult{Macros: []msg.Macro{}}})
			default:
				reply(out, &msg.Response{ListMacro: &msg.ListMacrosResult{Macros: Macros}})
			}
		case req.ExpansionMacro != nil:
			reply(out, expansion(req.ExpansionMacro))
		}
	}
}

func expansion(task *msg.ExpansionTask) *msg.Response {
	switch task.MacroName {
	case MacroBoom:
		return &msg.Response{Error: &msg.ResponseError{Code: msg.ErrorCodeExpansionError, Message: "boom"}}
	case MacroWrong:
		return &msg.Response{ListMacro: &msg.ListMacrosResult{Macros: []msg.Macro{}}}
	case MacroPid:
		return expanded(tt.NewSubtree("", tt.Lit(strconv.Itoa(os.Getpid()))))
	case MacroArgs:
		return expanded(tt.NewSubtree("", tt.Lit(strings.Join(os.Args[1:], " "))))
	case MacroSlow:
		time.Sleep(20 * time.Millisecond)
	}

	return expanded(Expand(task.MacroName, &task.MacroBody))
}

func expanded(s *tt.Subtree) *msg.Response {
	return &msg.Response{ExpansionMacro: &msg.ExpansionResult{Expansion: *s}}
}

func reply(out io.Writer, resp *msg.Response) {
	_ = msg.WriteResponse(out, resp)
}
