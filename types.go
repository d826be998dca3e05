package procmacro

import (
	"github.com/wagiedev/proc-macro-client-go/internal/config"
	"github.com/wagiedev/proc-macro-client-go/internal/msg"
	"github.com/wagiedev/proc-macro-client-go/internal/tt"
)

// Re-export types from internal packages

// ===== Options =====

// Options configures the client. Build it with the With* options.
type Options = config.Options

// ===== Token trees =====

// Subtree is a delimited or undelimited sequence of token trees.
type Subtree = tt.Subtree

// TokenTree is either a Leaf or a nested Subtree.
type TokenTree = tt.TokenTree

// Leaf is a single token.
type Leaf = tt.Leaf

// Delimiter describes the brackets around a Subtree.
type Delimiter = tt.Delimiter

// DelimiterKind is the bracket flavour of a Delimiter.
type DelimiterKind = tt.DelimiterKind

// Spacing tells whether a punctuation token is glued to the next one.
type Spacing = tt.Spacing

// TokenID links a token back to its source span.
type TokenID = tt.TokenID

const (
	// DelimiterParenthesis is ( ... ).
	DelimiterParenthesis = tt.DelimiterParenthesis
	// DelimiterBrace is { ... }.
	DelimiterBrace = tt.DelimiterBrace
	// DelimiterBracket is [ ... ].
	DelimiterBracket = tt.DelimiterBracket

	// SpacingAlone separates a punctuation token from the next one.
	SpacingAlone = tt.SpacingAlone
	// SpacingJoint glues a punctuation token to the next one.
	SpacingJoint = tt.SpacingJoint
)

// NewSubtree builds a subtree. An empty kind produces an undelimited subtree.
func NewSubtree(kind DelimiterKind, trees ...TokenTree) *Subtree {
	return tt.NewSubtree(kind, trees...)
}

// Ident returns an identifier token.
func Ident(text string) TokenTree { return tt.Ident(text) }

// Lit returns a literal token.
func Lit(text string) TokenTree { return tt.Lit(text) }

// Punct returns a punctuation token.
func Punct(ch rune, spacing Spacing) TokenTree { return tt.Punct(ch, spacing) }

// Tree wraps a subtree as a token tree.
func Tree(s *Subtree) TokenTree { return tt.Tree(s) }

// ===== Macros =====

// Macro is a macro exported by a library: its name and kind.
type Macro = msg.Macro

// ProcMacroKind is the flavour of a procedural macro.
type ProcMacroKind = msg.ProcMacroKind

const (
	// KindCustomDerive is a #[proc_macro_derive] macro.
	KindCustomDerive = msg.KindCustomDerive
	// KindFuncLike is a #[proc_macro] macro.
	KindFuncLike = msg.KindFuncLike
	// KindAttr is a #[proc_macro_attribute] macro.
	KindAttr = msg.KindAttr
)
