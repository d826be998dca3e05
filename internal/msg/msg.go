// Package msg defines the request and response messages exchanged with a
// proc-macro server and their newline-delimited JSON encoding.
//
// Every message is one JSON object on its own line. Requests and responses are
// externally tagged unions: exactly one variant field is set, for example
//
//	{"ListMacro":{"lib":"/path/to/libfoo.so"}}
//	{"Error":{"code":"ExpansionError","message":"boom"}}
package msg

import (
	"encoding/json"
	"fmt"

	"github.com/wagiedev/proc-macro-client-go/internal/tt"
)

// Variant names, as they appear on the wire.
const (
	VariantError          = "Error"
	VariantListMacro      = "ListMacro"
	VariantExpansionMacro = "ExpansionMacro"
)

// ErrorCode classifies an error response.
type ErrorCode string

const (
	// ErrorCodeServerErrorEnd means the connection to the server ended.
	// The client synthesizes it itself when a pipe breaks.
	ErrorCodeServerErrorEnd ErrorCode = "ServerErrorEnd"
	// ErrorCodeExpansionError means the macro itself failed.
	ErrorCodeExpansionError ErrorCode = "ExpansionError"
)

// ProcMacroKind is the flavour of a procedural macro exported by a library.
type ProcMacroKind string

const (
	// KindCustomDerive is a #[proc_macro_derive] macro.
	KindCustomDerive ProcMacroKind = "CustomDerive"
	// KindFuncLike is a #[proc_macro] function-like macro.
	KindFuncLike ProcMacroKind = "FuncLike"
	// KindAttr is a #[proc_macro_attribute] macro.
	KindAttr ProcMacroKind = "Attr"
)

// Request is sent to the server. Exactly one field is set.
type Request struct {
	ListMacro      *ListMacrosTask `json:"ListMacro,omitempty"`
	ExpansionMacro *ExpansionTask  `json:"ExpansionMacro,omitempty"`
}

// Kind returns the variant name of the request.
func (r *Request) Kind() string {
	switch {
	case r == nil:
		return "<nil>"
	case r.ListMacro != nil:
		return VariantListMacro
	case r.ExpansionMacro != nil:
		return VariantExpansionMacro
	default:
		return "<empty>"
	}
}

// Response is received from the server. Exactly one field is set.
type Response struct {
	Error          *ResponseError    `json:"Error,omitempty"`
	ListMacro      *ListMacrosResult `json:"ListMacro,omitempty"`
	ExpansionMacro *ExpansionResult  `json:"ExpansionMacro,omitempty"`
}

// Kind returns the variant name of the response.
func (r *Response) Kind() string {
	switch {
	case r == nil:
		return "<nil>"
	case r.Error != nil:
		return VariantError
	case r.ListMacro != nil:
		return VariantListMacro
	case r.ExpansionMacro != nil:
		return VariantExpansionMacro
	default:
		return "<empty>"
	}
}

// variants counts the set fields; a well-formed response has exactly one.
func (r *Response) variants() int {
	n := 0

	if r.Error != nil {
		n++
	}

	if r.ListMacro != nil {
		n++
	}

	if r.ExpansionMacro != nil {
		n++
	}

	return n
}

// ResponseError is the error variant of a Response.
type ResponseError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ServerClosed returns the response the client delivers to a caller whose
// call hit a broken connection.
func ServerClosed() *Response {
	return &Response{Error: &ResponseError{
		Code:    ErrorCodeServerErrorEnd,
		Message: "Server closed",
	}}
}

// ListMacrosTask asks which macros a dynamic library exports.
type ListMacrosTask struct {
	Lib string `json:"lib"`
}

// ListMacrosResult lists the macros exported by a library.
type ListMacrosResult struct {
	Macros []Macro `json:"macros"`
}

// Macro is a (name, kind) pair. It is encoded as a two-element JSON array.
type Macro struct {
	Name string
	Kind ProcMacroKind
}

// MarshalJSON implements json.Marshaler.
func (m Macro) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{m.Name, string(m.Kind)})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Macro) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}

	if len(pair) != 2 {
		return fmt.Errorf("macro entry: expected [name, kind], got %d elements", len(pair))
	}

	m.Name = pair[0]
	m.Kind = ProcMacroKind(pair[1])

	return nil
}

// ExpansionTask asks the server to run a macro.
//
//nolint:tagliatelle // server uses snake_case
type ExpansionTask struct {
	// MacroBody is the token tree the macro is applied to.
	MacroBody tt.Subtree `json:"macro_body"`
	// MacroName is the name the library exports the macro under.
	MacroName string `json:"macro_name"`
	// Attributes holds the attribute arguments of an attribute macro.
	Attributes *tt.Subtree `json:"attributes"`
	// Lib is the path of the dynamic library exporting the macro.
	Lib string `json:"lib"`
}

// ExpansionResult carries the macro output.
type ExpansionResult struct {
	Expansion tt.Subtree `json:"expansion"`
}

// Result constrains the typed results a response can be narrowed to.
type Result interface {
	*ListMacrosResult | *ExpansionResult
}

// Narrow extracts the typed result R from a generic response. It fails with
// a diagnostic naming the variant actually received when the shapes differ.
func Narrow[R Result](resp *Response) (R, error) {
	var zero R

	var want string

	switch any(zero).(type) {
	case *ListMacrosResult:
		want = VariantListMacro

		if resp != nil && resp.ListMacro != nil {
			return any(resp.ListMacro).(R), nil
		}
	case *ExpansionResult:
		want = VariantExpansionMacro

		if resp != nil && resp.ExpansionMacro != nil {
			return any(resp.ExpansionMacro).(R), nil
		}
	}

	return zero, &ShapeError{Want: want, Got: resp.Kind()}
}

// ShapeError reports a response of the wrong variant.
type ShapeError struct {
	Want string
	Got  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("expected %s response, got %s", e.Want, e.Got)
}
