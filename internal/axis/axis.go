// Package axis models substitution axes: ordered lists of
// type-expression/short-tag pairs bound to a placeholder token. The cartesian
// product of all axes drives template expansion.
package axis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"stencil/internal/diag"
	"stencil/internal/source"
)

// Pair binds one substitution text to the short tag that names it in
// generated artifacts. Type is pasted verbatim; Tag ends up in file names.
type Pair struct {
	Type string
	Tag  string

	Span    source.Span // the whole Type!Tag segment
	TagSpan source.Span
}

// Axis binds a placeholder token to an ordered, non-empty pair list.
type Axis struct {
	Token string
	Pairs []Pair

	Span      source.Span // the whole declaration text
	TokenSpan source.Span
}

// Tags returns the short tags in declaration order.
func (a Axis) Tags() []string {
	tags := make([]string, len(a.Pairs))
	for i, p := range a.Pairs {
		tags[i] = p.Tag
	}
	return tags
}

// String renders the axis back into declaration form.
func (a Axis) String() string {
	var b strings.Builder
	b.WriteString(a.Token)
	b.WriteByte('=')
	for i, p := range a.Pairs {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(p.Type)
		b.WriteByte('!')
		b.WriteString(p.Tag)
	}
	return b.String()
}

// Set is an ordered list of axes with unique tokens. Declaration order is
// enumeration order: the last axis varies fastest.
type Set struct {
	Axes []Axis
}

// Add appends an axis after checking its token is not already taken.
// Token identity is judged on the NFC normal form so visually identical
// tokens cannot alias two axes.
func (s *Set) Add(a Axis, reporter diag.Reporter) bool {
	key := norm.NFC.String(a.Token)
	for _, existing := range s.Axes {
		if norm.NFC.String(existing.Token) == key {
			diag.ReportError(reporter, diag.AxsDuplicateToken, a.TokenSpan,
				fmt.Sprintf("axis token %q is already declared", a.Token)).
				WithNote(existing.TokenSpan, "first declared here").
				Emit()
			return false
		}
	}
	s.Axes = append(s.Axes, a)
	return true
}

// Tokens returns the axis tokens in declaration order.
func (s Set) Tokens() []string {
	tokens := make([]string, len(s.Axes))
	for i, a := range s.Axes {
		tokens[i] = a.Token
	}
	return tokens
}

// ByToken returns the axis bound to the given token.
func (s Set) ByToken(token string) (Axis, bool) {
	for _, a := range s.Axes {
		if a.Token == token {
			return a, true
		}
	}
	return Axis{}, false
}

// Combinations returns the size of the cartesian product of all axes.
func (s Set) Combinations() int {
	if len(s.Axes) == 0 {
		return 0
	}
	n := 1
	for _, a := range s.Axes {
		n *= len(a.Pairs)
	}
	return n
}

// Digest returns a stable content hash of the set. The generation
// fingerprint cache keys on it to detect axis changes.
func (s Set) Digest() string {
	h := sha256.New()
	for _, a := range s.Axes {
		h.Write([]byte(a.Token))
		h.Write([]byte{0})
		for _, p := range a.Pairs {
			h.Write([]byte(p.Type))
			h.Write([]byte{1})
			h.Write([]byte(p.Tag))
			h.Write([]byte{2})
		}
		h.Write([]byte{3})
	}
	return hex.EncodeToString(h.Sum(nil))
}
