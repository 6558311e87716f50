// Package expand renders a template across the cartesian product of its
// substitution axes and writes one concrete source file per combination.
//
// Expansion is deterministic and stateless: the same request produces the
// same file list in the same order with byte-identical contents. Concurrent
// invocations must target distinct output directories.
package expand

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"stencil/internal/axis"
	"stencil/internal/diag"
	"stencil/internal/source"
)

// ErrFailed reports that expansion was aborted; the details live in the
// diagnostics handed to the reporter.
var ErrFailed = errors.New("template expansion failed")

// Request configures one expansion. Axes are already parsed; Tokens carries
// placeholder names declared outside the template (manifest `tokens` lists).
type Request struct {
	Template string
	OutDir   string
	Axes     axis.Set
	Tokens   []string
}

// Unit is one generated file: the combination of axis values that produced
// it and where it was (or would be) written.
type Unit struct {
	Path  string
	Tags  []string // chosen short tags, axis order
	Types []string // chosen type expressions, axis order
}

// Result lists the generated units in enumeration order: axes are walked
// declaration-outermost, the last axis varies fastest.
type Result struct {
	Template string
	OutDir   string
	Units    []Unit
	Files    []string
}

// Plan validates the request and returns the units Expand would write,
// without touching the output directory.
func Plan(fs *source.FileSet, req Request, reporter diag.Reporter) (*Result, error) {
	p, ok := prepare(fs, req, reporter)
	if !ok {
		return nil, ErrFailed
	}
	return p.result(), nil
}

// Expand validates the request, enumerates every combination of axis values
// and writes one rendered unit per combination. Validation is complete
// before the first write: a rejected request leaves the output directory
// untouched. A failed write aborts the run; units already written stay on
// disk and are overwritten by the next successful run.
func Expand(fs *source.FileSet, req Request, reporter diag.Reporter) (*Result, error) {
	p, ok := prepare(fs, req, reporter)
	if !ok {
		return nil, ErrFailed
	}

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		diag.ReportError(reporter, diag.GenCreateDirFailed, p.fileSpan(),
			fmt.Sprintf("cannot create output directory %s: %v", req.OutDir, err)).Emit()
		return nil, fmt.Errorf("create output directory %s: %w", req.OutDir, err)
	}

	repl := make(map[string]string, len(req.Axes.Axes))
	for _, u := range p.units {
		for k, ax := range req.Axes.Axes {
			repl[ax.Token] = u.Types[k]
		}
		content := render(p.file, p.info.strip, repl)
		// #nosec G306 -- generated sources are world-readable build outputs
		if err := os.WriteFile(u.Path, content, 0o644); err != nil {
			diag.ReportError(reporter, diag.GenWriteFailed, p.fileSpan(),
				fmt.Sprintf("cannot write generated unit %s: %v", u.Path, err)).Emit()
			return nil, fmt.Errorf("write %s: %w", u.Path, err)
		}
	}
	return p.result(), nil
}

// planned carries everything prepare validated: the loaded template, its
// scan results and the enumerated units.
type planned struct {
	req   Request
	file  *source.File
	info  templateInfo
	units []Unit
}

func (p *planned) fileSpan() source.Span {
	if p.file == nil {
		return source.Span{}
	}
	return source.Span{File: p.file.ID}
}

func (p *planned) result() *Result {
	files := make([]string, len(p.units))
	for i, u := range p.units {
		files[i] = u.Path
	}
	return &Result{
		Template: p.req.Template,
		OutDir:   p.req.OutDir,
		Units:    p.units,
		Files:    files,
	}
}

// prepare runs every validation and enumerates the units. It reports all
// problems it can find, not just the first, and returns ok=false if any of
// them is an error.
func prepare(fs *source.FileSet, req Request, reporter diag.Reporter) (*planned, bool) {
	ok := true

	file := loadTemplate(fs, req.Template, reporter)
	if file == nil {
		ok = false
	}

	fallback := source.Span{}
	if file != nil {
		fallback = source.Span{File: file.ID}
	}
	axesOK := validateAxes(req.Axes, fallback, reporter)
	if !axesOK {
		ok = false
	}

	var info templateInfo
	if file != nil {
		scanned, scanOK := scanTemplate(file, reporter)
		info = scanned
		if !scanOK {
			ok = false
		}
		if !checkPlaceholders(req, scanned, fallback, reporter) {
			ok = false
		}
	}

	var units []Unit
	if axesOK {
		units = enumerate(req.Axes, req.OutDir, filepath.Base(req.Template))
		if !checkCollisions(units, req.Template, fallback, reporter) {
			ok = false
		}
	}

	if !ok {
		return nil, false
	}

	warnUnusedAxes(req.Axes, info, reporter)
	return &planned{req: req, file: file, info: info, units: units}, true
}

func loadTemplate(fs *source.FileSet, path string, reporter diag.Reporter) *source.File {
	// шаблон уже в наборе — не перечитываем, чтобы спаны совпадали
	// между Plan и Expand
	if file, ok := fs.GetByPath(path); ok && file.Flags&source.FileVirtual == 0 {
		return file
	}
	id, err := fs.Load(path)
	if err == nil {
		return fs.Get(id)
	}
	span := source.Span{File: fs.AddVirtual(path, nil)}
	if errors.Is(err, os.ErrNotExist) {
		diag.ReportError(reporter, diag.TplNotFound, span,
			fmt.Sprintf("template %s does not exist", path)).Emit()
	} else {
		diag.ReportError(reporter, diag.TplUnreadable, span,
			fmt.Sprintf("cannot read template %s: %v", path, err)).Emit()
	}
	return nil
}

// validateAxes re-checks the structural rules on an already built set, so
// requests assembled in code get the same guarantees as parsed declarations.
func validateAxes(set axis.Set, fallback source.Span, reporter diag.Reporter) bool {
	if len(set.Axes) == 0 {
		diag.ReportError(reporter, diag.AxsNoAxes, fallback, "no axes declared").Emit()
		return false
	}

	ok := true
	seenTokens := make(map[string]source.Span, len(set.Axes))
	for _, ax := range set.Axes {
		tokenSpan := orSpan(ax.TokenSpan, fallback)
		if !axis.ValidIdent(ax.Token) {
			diag.ReportError(reporter, diag.AxsInvalidToken, tokenSpan,
				fmt.Sprintf("axis token %q is not a valid identifier", ax.Token)).Emit()
			ok = false
		}
		tokenKey := norm.NFC.String(ax.Token)
		if first, dup := seenTokens[tokenKey]; dup {
			diag.ReportError(reporter, diag.AxsDuplicateToken, tokenSpan,
				fmt.Sprintf("axis token %q is already declared", ax.Token)).
				WithNote(first, "first declared here").
				Emit()
			ok = false
		} else {
			seenTokens[tokenKey] = tokenSpan
		}

		if len(ax.Pairs) == 0 {
			diag.ReportError(reporter, diag.AxsEmptyAxis, orSpan(ax.Span, fallback),
				fmt.Sprintf("axis %q declares no values", ax.Token)).Emit()
			ok = false
			continue
		}
		seenTags := make(map[string]source.Span, len(ax.Pairs))
		for _, p := range ax.Pairs {
			pairSpan := orSpan(p.Span, fallback)
			if p.Type == "" {
				diag.ReportError(reporter, diag.AxsInvalidPair, pairSpan,
					fmt.Sprintf("axis %q value has an empty type expression", ax.Token)).Emit()
				ok = false
			}
			if !axis.ValidIdent(p.Tag) {
				diag.ReportError(reporter, diag.AxsInvalidTag, orSpan(p.TagSpan, fallback),
					fmt.Sprintf("short tag %q is not a valid identifier", p.Tag)).Emit()
				ok = false
				continue
			}
			tagKey := norm.NFC.String(p.Tag)
			if first, dup := seenTags[tagKey]; dup {
				diag.ReportError(reporter, diag.AxsDuplicateTag, orSpan(p.TagSpan, fallback),
					fmt.Sprintf("duplicate short tag %q in axis %q", p.Tag, ax.Token)).
					WithNote(first, "first declared here").
					Emit()
				ok = false
			} else {
				seenTags[tagKey] = orSpan(p.TagSpan, fallback)
			}
		}
	}
	return ok
}

// checkPlaceholders verifies every declared placeholder is covered by an
// axis. The declared set is the union of directive tokens and the request's
// token list; when both are absent the template is treated as legacy and
// the check is skipped.
func checkPlaceholders(req Request, info templateInfo, fallback source.Span, reporter diag.Reporter) bool {
	declared := make([]declaredToken, 0, len(info.declared)+len(req.Tokens))
	declared = append(declared, info.declared...)
	for _, name := range req.Tokens {
		declared = append(declared, declaredToken{Name: name, Span: fallback})
	}
	if len(declared) == 0 {
		return true
	}

	covered := make(map[string]struct{}, len(req.Axes.Axes))
	for _, ax := range req.Axes.Axes {
		covered[norm.NFC.String(ax.Token)] = struct{}{}
	}

	ok := true
	reported := make(map[string]struct{}, len(declared))
	for _, d := range declared {
		key := norm.NFC.String(d.Name)
		if _, has := covered[key]; has {
			continue
		}
		if _, done := reported[key]; done {
			continue
		}
		reported[key] = struct{}{}
		diag.ReportError(reporter, diag.TplUndefinedPlaceholder, d.Span,
			fmt.Sprintf("placeholder %q has no axis", d.Name)).Emit()
		ok = false
	}
	return ok
}

// enumerate walks the cartesian product of the axes in declaration order,
// last axis varying fastest, and names one unit per combination.
func enumerate(set axis.Set, outDir, templateBase string) []Unit {
	stem, ext := splitTemplateName(templateBase)
	units := make([]Unit, 0, set.Combinations())

	idx := make([]int, len(set.Axes))
	for {
		tags := make([]string, len(idx))
		typeExprs := make([]string, len(idx))
		for k, ax := range set.Axes {
			p := ax.Pairs[idx[k]]
			tags[k] = p.Tag
			typeExprs[k] = p.Type
		}
		name := stem + strings.Join(tags, "") + ext
		units = append(units, Unit{
			Path:  filepath.Join(outDir, name),
			Tags:  tags,
			Types: typeExprs,
		})

		k := len(idx) - 1
		for ; k >= 0; k-- {
			idx[k]++
			if idx[k] < len(set.Axes[k].Pairs) {
				break
			}
			idx[k] = 0
		}
		if k < 0 {
			return units
		}
	}
}

// checkCollisions rejects requests where two combinations map to one file
// name, before anything is written. Tag concatenation can alias across
// axes: tags S+eqPar and Seq+Par both spell SeqPar.
func checkCollisions(units []Unit, template string, fallback source.Span, reporter diag.Reporter) bool {
	ok := true
	seen := make(map[string]int, len(units))
	for i, u := range units {
		name := filepath.Base(u.Path)
		first, dup := seen[name]
		if !dup {
			seen[name] = i
			continue
		}
		diag.ReportError(reporter, diag.GenNameCollision, fallback,
			fmt.Sprintf("combinations [%s] and [%s] of template %s both generate %q",
				strings.Join(units[first].Tags, " "), strings.Join(u.Tags, " "), template, name)).Emit()
		ok = false
	}
	return ok
}

// warnUnusedAxes flags axes whose token never occurs in the template body.
// Expansion still runs; every unit just carries identical content for that
// axis.
func warnUnusedAxes(set axis.Set, info templateInfo, reporter diag.Reporter) {
	for _, ax := range set.Axes {
		if _, used := info.idents[ax.Token]; used {
			continue
		}
		diag.ReportWarning(reporter, diag.AxsUnusedAxis, ax.TokenSpan,
			fmt.Sprintf("axis %q never occurs in the template body", ax.Token)).Emit()
	}
}

// orSpan falls back when a programmatically built axis carries no span.
func orSpan(s, fallback source.Span) source.Span {
	if s == (source.Span{}) {
		return fallback
	}
	return s
}
