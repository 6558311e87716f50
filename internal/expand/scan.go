package expand

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"stencil/internal/axis"
	"stencil/internal/diag"
	"stencil/internal/source"
)

// directiveMarker introduces a placeholder declaration inside a template
// comment line:
//
//	// stencil:tokens Texecution Thashing
//
// The whole line is generator metadata and never reaches generated units.
const directiveMarker = "stencil:tokens"

// declaredToken is one placeholder name from a directive line.
type declaredToken struct {
	Name string
	Span source.Span
}

// templateInfo is everything one scanning pass learns about a template:
// which placeholders it declares, which lines must be stripped from the
// output, and which identifiers occur in the remaining body.
type templateInfo struct {
	declared []declaredToken
	strip    []source.Span // whole directive lines, trailing newline included
	idents   map[string]struct{}
}

// scanTemplate collects directive lines and the identifier runs of the
// template body. Identifiers on directive lines do not count as body
// occurrences, otherwise the declaration itself would mark every token used.
func scanTemplate(f *source.File, reporter diag.Reporter) (templateInfo, bool) {
	info := templateInfo{idents: make(map[string]struct{})}
	ok := true

	c := newCursor(f)
	for !c.eof() {
		lineStart := c.mark()
		for !c.eof() && c.peek() != '\n' {
			c.bump()
		}
		lineEnd := c.off
		c.bump() // съедаем '\n', на EOF это no-op

		line := f.Content[uint32(lineStart):lineEnd]
		rel := bytes.Index(line, []byte(directiveMarker))
		if rel < 0 {
			continue
		}

		info.strip = append(info.strip, source.Span{File: f.ID, Start: uint32(lineStart), End: c.off})
		markerEnd := uint32(lineStart) + uint32(rel) + uint32(len(directiveMarker))
		tokens, lineOK := parseDirectiveTokens(f, markerEnd, lineEnd, reporter)
		if !lineOK {
			ok = false
			continue
		}
		info.declared = append(info.declared, tokens...)
	}

	collectIdents(f, info.strip, info.idents)
	return info, ok
}

// parseDirectiveTokens reads whitespace-separated placeholder names between
// the directive marker and the end of the line. A trailing "*/" is tolerated
// so block-comment templates can close the comment on the same line.
func parseDirectiveTokens(f *source.File, start, end uint32, reporter diag.Reporter) ([]declaredToken, bool) {
	var tokens []declaredToken
	ok := true

	off := start
	for off < end {
		if isDirectiveSpace(f.Content[off]) {
			off++
			continue
		}
		fieldStart := off
		for off < end && !isDirectiveSpace(f.Content[off]) {
			off++
		}
		field := string(f.Content[fieldStart:off])
		span := source.Span{File: f.ID, Start: fieldStart, End: off}

		if field == "*/" && restIsSpace(f.Content[off:end]) {
			break
		}
		if !axis.ValidIdent(field) {
			diag.ReportError(reporter, diag.TplBadDirective, span,
				fmt.Sprintf("placeholder name %q in %s directive is not a valid identifier", field, directiveMarker)).Emit()
			ok = false
			continue
		}
		tokens = append(tokens, declaredToken{Name: field, Span: span})
	}

	if ok && len(tokens) == 0 {
		diag.ReportError(reporter, diag.TplBadDirective,
			source.Span{File: f.ID, Start: start, End: end},
			fmt.Sprintf("%s directive declares no placeholder names", directiveMarker)).Emit()
		return nil, false
	}
	return tokens, ok
}

func isDirectiveSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r'
}

func restIsSpace(rest []byte) bool {
	for _, b := range rest {
		if !isDirectiveSpace(b) {
			return false
		}
	}
	return true
}

// collectIdents records every maximal identifier run outside the skip spans.
func collectIdents(f *source.File, skip []source.Span, idents map[string]struct{}) {
	c := newCursor(f)
	k := 0
	for !c.eof() {
		if k < len(skip) && c.off == skip[k].Start {
			c.off = skip[k].End
			k++
			continue
		}
		m := c.mark()
		if scanIdentRun(&c) {
			idents[string(c.textFrom(m))] = struct{}{}
			continue
		}
		c.bumpRune()
	}
}

// scanIdentRun advances the cursor past one maximal identifier run and
// reports whether the cursor stood on one. ASCII bytes take the fast path;
// the run may mix ASCII and Unicode freely.
func scanIdentRun(c *cursor) bool {
	r, sz := c.peekRune()
	if sz == 0 {
		return false
	}
	if r < utf8.RuneSelf {
		if !axis.IsIdentStartByte(byte(r)) {
			return false
		}
		c.bump()
	} else {
		if !axis.IsIdentStartRune(r) {
			return false
		}
		c.bumpRune()
	}
	for !c.eof() {
		b := c.peek()
		if b < utf8.RuneSelf {
			if !axis.IsIdentContinueByte(b) {
				break
			}
			c.bump()
			continue
		}
		r2, sz2 := c.peekRune()
		if sz2 == 0 || !axis.IsIdentContinueRune(r2) {
			break
		}
		c.bumpRune()
	}
	return true
}

// render produces one generated unit: the template with directive lines
// stripped and every whole-token placeholder occurrence replaced.
func render(f *source.File, skip []source.Span, repl map[string]string) []byte {
	var out bytes.Buffer
	out.Grow(len(f.Content))

	c := newCursor(f)
	k := 0
	for !c.eof() {
		if k < len(skip) && c.off == skip[k].Start {
			c.off = skip[k].End
			k++
			continue
		}
		m := c.mark()
		if scanIdentRun(&c) {
			ident := c.textFrom(m)
			if text, hit := repl[string(ident)]; hit {
				out.WriteString(text)
			} else {
				out.Write(ident)
			}
			continue
		}
		c.bumpRune()
		out.Write(c.textFrom(m))
	}
	return out.Bytes()
}
