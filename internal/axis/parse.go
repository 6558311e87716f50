package axis

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"stencil/internal/diag"
	"stencil/internal/source"
)

// ParseDecl parses one axis declaration of the form
//
//	Token = Type!Tag; Type!Tag; ...
//
// The declaration text is registered as a virtual file under origin so every
// diagnostic points into the text itself. Pairs are separated by ';'; the tag
// starts after the LAST '!' of its segment, so type expressions may contain
// '!' freely. Tags are stored in NFC normal form. The boolean result is false
// when the declaration is unusable; parsing still continues past the first
// problem to report everything it can.
func ParseDecl(fs *source.FileSet, origin, decl string, reporter diag.Reporter) (Axis, bool) {
	fileID := fs.AddVirtual(origin, []byte(decl))
	declLen := uint32(len(decl))
	whole := source.Span{File: fileID, Start: 0, End: declLen}

	eq := strings.IndexByte(decl, '=')
	if eq < 0 {
		diag.ReportError(reporter, diag.AxsInvalidDeclaration, whole,
			"axis declaration must look like Token=Type!Tag;...").Emit()
		return Axis{}, false
	}

	token, tokenSpan := trimmedSpan(fileID, decl, 0, uint32(eq))
	if token == "" {
		diag.ReportError(reporter, diag.AxsInvalidDeclaration, whole,
			"axis declaration has no token before '='").Emit()
		return Axis{}, false
	}
	if !ValidIdent(token) {
		diag.ReportError(reporter, diag.AxsInvalidToken, tokenSpan,
			fmt.Sprintf("axis token %q is not a valid identifier", token)).Emit()
		return Axis{}, false
	}

	ax := Axis{Token: token, Span: whole, TokenSpan: tokenSpan}
	seen := make(map[string]int) // NFC tag -> pair index
	ok := true

	segStart := uint32(eq + 1)
	for segStart <= declLen {
		segEnd := declLen
		if idx := strings.IndexByte(decl[segStart:], ';'); idx >= 0 {
			segEnd = segStart + uint32(idx)
		}

		// empty segments are tolerated: they cover a trailing ';'
		if seg, segSpan := trimmedSpan(fileID, decl, segStart, segEnd); seg != "" {
			pair, pairOK := parsePair(fileID, decl, token, segSpan, reporter)
			switch {
			case !pairOK:
				ok = false
			default:
				if first, dup := seen[pair.Tag]; dup {
					diag.ReportError(reporter, diag.AxsDuplicateTag, pair.TagSpan,
						fmt.Sprintf("duplicate short tag %q in axis %q", pair.Tag, token)).
						WithNote(ax.Pairs[first].TagSpan, "first declared here").
						Emit()
					ok = false
				} else {
					seen[pair.Tag] = len(ax.Pairs)
					ax.Pairs = append(ax.Pairs, pair)
				}
			}
		}

		if segEnd == declLen {
			break
		}
		segStart = segEnd + 1
	}

	if !ok {
		return Axis{}, false
	}
	if len(ax.Pairs) == 0 {
		diag.ReportError(reporter, diag.AxsEmptyAxis, whole,
			fmt.Sprintf("axis %q declares no values", token)).Emit()
		return Axis{}, false
	}
	return ax, true
}

// ParseDecls parses a declaration list into a Set, checking tokens stay
// unique across axes.
func ParseDecls(fs *source.FileSet, origin string, decls []string, reporter diag.Reporter) (Set, bool) {
	var set Set
	ok := true
	for i, decl := range decls {
		ax, parseOK := ParseDecl(fs, fmt.Sprintf("%s[%d]", origin, i), decl, reporter)
		if !parseOK {
			ok = false
			continue
		}
		if !set.Add(ax, reporter) {
			ok = false
		}
	}
	if len(decls) == 0 {
		originID := fs.AddVirtual(origin, nil)
		diag.ReportError(reporter, diag.AxsNoAxes, source.Span{File: originID},
			"no axes declared").Emit()
		return Set{}, false
	}
	return set, ok
}

func parsePair(fileID source.FileID, decl, token string, segSpan source.Span, reporter diag.Reporter) (Pair, bool) {
	seg := decl[segSpan.Start:segSpan.End]
	bang := strings.LastIndexByte(seg, '!')
	if bang < 0 {
		diag.ReportError(reporter, diag.AxsInvalidPair, segSpan,
			fmt.Sprintf("axis %q value %q needs '!' separating type from tag", token, seg)).Emit()
		return Pair{}, false
	}

	typeExpr, _ := trimmedSpan(fileID, decl, segSpan.Start, segSpan.Start+uint32(bang))
	tag, tagSpan := trimmedSpan(fileID, decl, segSpan.Start+uint32(bang)+1, segSpan.End)

	if typeExpr == "" {
		diag.ReportError(reporter, diag.AxsInvalidPair, segSpan,
			fmt.Sprintf("axis %q value has an empty type expression", token)).Emit()
		return Pair{}, false
	}
	if tag == "" {
		diag.ReportError(reporter, diag.AxsInvalidPair, segSpan,
			fmt.Sprintf("axis %q value has an empty tag", token)).Emit()
		return Pair{}, false
	}
	if !ValidIdent(tag) {
		diag.ReportError(reporter, diag.AxsInvalidTag, tagSpan,
			fmt.Sprintf("short tag %q is not a valid identifier", tag)).Emit()
		return Pair{}, false
	}

	return Pair{
		Type:    typeExpr,
		Tag:     norm.NFC.String(tag),
		Span:    segSpan,
		TagSpan: tagSpan,
	}, true
}

// trimmedSpan returns the text between start and end with surrounding spaces
// removed, plus the span of the kept region.
func trimmedSpan(fileID source.FileID, decl string, start, end uint32) (string, source.Span) {
	for start < end && isSpace(decl[start]) {
		start++
	}
	for end > start && isSpace(decl[end-1]) {
		end--
	}
	return decl[start:end], source.Span{File: fileID, Start: start, End: end}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
