package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"stencil/internal/diag"
	"stencil/internal/source"
)

// Pretty форматирует диагностики в человекочитаемый вид.
// Идёт по bag.Items() (ожидается bag.Sort() заранее).
// Для каждого diag печатает:
// <path>:<line>:<col>: <SEV> <CODE>: <Message>
// затем строку контекста с подчёркиванием ^~~~ по Span, затем Notes в том же
// формате. Цвет включается опцией.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	for i, d := range bag.Items() {
		if i > 0 {
			fmt.Fprintln(w)
		}
		writeDiagnostic(w, d, fs, opts)
	}
}

func writeDiagnostic(w io.Writer, d diag.Diagnostic, fs *source.FileSet, opts PrettyOpts) {
	paint := sevPainter(d.Severity, opts.Color)
	loc := formatLocation(d.Primary, fs, opts.PathMode)
	fmt.Fprintf(w, "%s: %s: %s\n", loc, paint(fmt.Sprintf("%s %s", d.Severity.String(), d.Code.ID())), d.Message)
	writeSpanContext(w, d.Primary, fs, opts, paint)

	if opts.ShowNotes {
		notePaint := notePainter(opts.Color)
		for _, note := range d.Notes {
			noteLoc := formatLocation(note.Span, fs, opts.PathMode)
			fmt.Fprintf(w, "%s: %s: %s\n", noteLoc, notePaint("note"), note.Msg)
			writeSpanContext(w, note.Span, fs, opts, notePaint)
		}
	}

	if opts.ShowFixes {
		for _, fix := range d.Fixes {
			fmt.Fprintf(w, "fix: %s\n", fix.Title)
			if !opts.ShowPreview {
				continue
			}
			for _, edit := range fix.Edits {
				preview, err := buildFixEditPreview(fs, edit)
				if err != nil {
					continue
				}
				for _, line := range preview.before {
					fmt.Fprintf(w, "  - %s\n", line)
				}
				for _, line := range preview.after {
					fmt.Fprintf(w, "  + %s\n", line)
				}
			}
		}
	}
}

func formatLocation(span source.Span, fs *source.FileSet, mode PathMode) string {
	file := fs.Get(span.File)
	start, _ := fs.Resolve(span)

	var path string
	switch mode {
	case PathModeAbsolute:
		path = file.FormatPath("absolute", "")
	case PathModeRelative:
		path = file.FormatPath("relative", fs.BaseDir())
	case PathModeBasename:
		path = file.FormatPath("basename", "")
	default:
		path = file.FormatPath("auto", "")
	}
	return fmt.Sprintf("%s:%d:%d", path, start.Line, start.Col)
}

// writeSpanContext печатает строки вокруг спана и подчёркивание ^~~~.
func writeSpanContext(w io.Writer, span source.Span, fs *source.FileSet, opts PrettyOpts, paint func(a ...interface{}) string) {
	file := fs.Get(span.File)
	if len(file.Content) == 0 {
		return
	}

	start, end := fs.Resolve(span)

	first := start.Line
	if opts.Context > 0 {
		ctx := uint32(opts.Context)
		if first > ctx {
			first -= ctx
		} else {
			first = 1
		}
	}

	for line := first; line <= start.Line; line++ {
		text := file.GetLine(line)
		if opts.Width > 0 {
			text = runewidth.Truncate(text, int(opts.Width), "…")
		}
		fmt.Fprintf(w, "  %4d | %s\n", line, text)
	}

	lineText := file.GetLine(start.Line)
	col := int(start.Col) - 1
	if col > len(lineText) {
		col = len(lineText)
	}

	width := 1
	switch {
	case start.Line == end.Line && end.Col > start.Col:
		width = int(end.Col - start.Col)
	case len(lineText)-col > 1:
		// спан уходит на следующие строки: подчёркиваем до конца строки
		width = len(lineText) - col
	}

	marker := "^"
	if width > 1 {
		marker += strings.Repeat("~", width-1)
	}
	fmt.Fprintf(w, "       | %s%s\n", strings.Repeat(" ", col), paint(marker))
}

func sevPainter(sev diag.Severity, enabled bool) func(a ...interface{}) string {
	if !enabled {
		return fmt.Sprint
	}
	switch sev {
	case diag.SevError:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case diag.SevWarning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	default:
		return color.New(color.FgCyan).SprintFunc()
	}
}

func notePainter(enabled bool) func(a ...interface{}) string {
	if !enabled {
		return fmt.Sprint
	}
	return color.New(color.FgBlue).SprintFunc()
}
