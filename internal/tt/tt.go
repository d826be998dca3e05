// Package tt provides the token tree types exchanged with a proc-macro server.
//
// A token tree is the unit a procedural macro consumes and produces: a
// delimited Subtree whose children are either leaves (identifiers,
// punctuation, literals) or nested subtrees. The JSON encoding mirrors the
// server's: enumerations are externally tagged objects such as
// {"Leaf":{"Ident":{"text":"foo","id":0}}}.
package tt

import "strings"

// TokenID identifies a token for span mapping. The client treats it as opaque.
type TokenID uint32

// UnspecifiedTokenID marks tokens that were synthesized rather than parsed.
const UnspecifiedTokenID TokenID = ^TokenID(0)

// DelimiterKind is the bracket style of a Subtree.
type DelimiterKind string

// Delimiter kinds.
const (
	DelimiterParenthesis DelimiterKind = "Parenthesis"
	DelimiterBrace       DelimiterKind = "Brace"
	DelimiterBracket     DelimiterKind = "Bracket"
)

// Spacing tells whether a Punct is glued to the following token.
type Spacing string

// Spacing values.
const (
	SpacingAlone Spacing = "Alone"
	SpacingJoint Spacing = "Joint"
)

// Delimiter opens and closes a Subtree.
type Delimiter struct {
	ID   TokenID       `json:"id"`
	Kind DelimiterKind `json:"kind"`
}

// Subtree is an optionally delimited sequence of token trees.
//
//nolint:tagliatelle // server uses snake_case
type Subtree struct {
	Delimiter  *Delimiter  `json:"delimiter"`
	TokenTrees []TokenTree `json:"token_trees"`
}

// TokenTree is exactly one of Leaf or Subtree.
type TokenTree struct {
	Leaf    *Leaf    `json:"Leaf,omitempty"`
	Subtree *Subtree `json:"Subtree,omitempty"`
}

// Leaf is exactly one of Literal, Punct or Ident.
type Leaf struct {
	Literal *Literal   `json:"Literal,omitempty"`
	Punct   *PunctLeaf `json:"Punct,omitempty"`
	Ident   *IdentLeaf `json:"Ident,omitempty"`
}

// Literal is a literal token, kept verbatim (e.g. `"str"`, `42u8`).
type Literal struct {
	Text string  `json:"text"`
	ID   TokenID `json:"id"`
}

// PunctLeaf is a single punctuation character.
type PunctLeaf struct {
	Char    string  `json:"char"`
	Spacing Spacing `json:"spacing"`
	ID      TokenID `json:"id"`
}

// IdentLeaf is an identifier or keyword.
type IdentLeaf struct {
	Text string  `json:"text"`
	ID   TokenID `json:"id"`
}

// NewSubtree builds a subtree with the given delimiter kind. An empty kind
// produces an undelimited subtree.
func NewSubtree(kind DelimiterKind, trees ...TokenTree) *Subtree {
	s := &Subtree{TokenTrees: trees}
	if kind != "" {
		s.Delimiter = &Delimiter{ID: UnspecifiedTokenID, Kind: kind}
	}

	if s.TokenTrees == nil {
		s.TokenTrees = []TokenTree{}
	}

	return s
}

// Ident returns an identifier leaf.
func Ident(text string) TokenTree {
	return TokenTree{Leaf: &Leaf{Ident: &IdentLeaf{Text: text, ID: UnspecifiedTokenID}}}
}

// Lit returns a literal leaf.
func Lit(text string) TokenTree {
	return TokenTree{Leaf: &Leaf{Literal: &Literal{Text: text, ID: UnspecifiedTokenID}}}
}

// Punct returns a punctuation leaf.
func Punct(ch rune, spacing Spacing) TokenTree {
	return TokenTree{Leaf: &Leaf{Punct: &PunctLeaf{Char: string(ch), Spacing: spacing, ID: UnspecifiedTokenID}}}
}

// Tree wraps a subtree as a token tree.
func Tree(s *Subtree) TokenTree {
	return TokenTree{Subtree: s}
}

// String renders the subtree as source-like text for diagnostics.
func (s *Subtree) String() string {
	if s == nil {
		return ""
	}

	var b strings.Builder

	s.write(&b)

	return b.String()
}

func (s *Subtree) write(b *strings.Builder) {
	open, closing := "", ""

	if s.Delimiter != nil {
		switch s.Delimiter.Kind {
		case DelimiterParenthesis:
			open, closing = "(", ")"
		case DelimiterBrace:
			open, closing = "{", "}"
		case DelimiterBracket:
			open, closing = "[", "]"
		}
	}

	b.WriteString(open)

	glue := true

	for _, tree := range s.TokenTrees {
		if !glue {
			b.WriteByte(' ')
		}

		glue = false

		switch {
		case tree.Subtree != nil:
			tree.Subtree.write(b)
		case tree.Leaf != nil:
			glue = tree.Leaf.write(b)
		}
	}

	b.WriteString(closing)
}

// write renders the leaf and reports whether the next token is glued to it.
func (l *Leaf) write(b *strings.Builder) bool {
	switch {
	case l.Ident != nil:
		b.WriteString(l.Ident.Text)
	case l.Literal != nil:
		b.WriteString(l.Literal.Text)
	case l.Punct != nil:
		b.WriteString(l.Punct.Char)

		return l.Punct.Spacing == SpacingJoint
	}

	return false
}
