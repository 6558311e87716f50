package expand_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"stencil/internal/axis"
	"stencil/internal/diag"
	"stencil/internal/expand"
	"stencil/internal/source"
)

// testReporter собирает все диагностики, полученные от генератора
type testReporter struct {
	diagnostics []diag.Diagnostic
}

func (r *testReporter) Report(code diag.Code, sev diag.Severity, primary source.Span, msg string, notes []diag.Note, fixes []diag.Fix) {
	r.diagnostics = append(r.diagnostics, diag.Diagnostic{
		Severity: sev,
		Code:     code,
		Message:  msg,
		Primary:  primary,
		Notes:    notes,
		Fixes:    fixes,
	})
}

func (r *testReporter) HasErrors() bool {
	for _, d := range r.diagnostics {
		if d.Severity == diag.SevError {
			return true
		}
	}
	return false
}

func (r *testReporter) Has(code diag.Code) bool {
	for _, d := range r.diagnostics {
		if d.Code == code {
			return true
		}
	}
	return false
}

func (r *testReporter) Messages() []string {
	messages := make([]string, 0, len(r.diagnostics))
	for _, d := range r.diagnostics {
		messages = append(messages, fmt.Sprintf("[%s] %s: %s", d.Code.ID(), d.Severity, d.Message))
	}
	return messages
}

func writeTemplate(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	return path
}

func mustAxes(t *testing.T, fs *source.FileSet, decls ...string) axis.Set {
	t.Helper()
	rep := &testReporter{}
	set, ok := axis.ParseDecls(fs, "<axes>", decls, rep)
	if !ok {
		t.Fatalf("axes did not parse: %v", rep.Messages())
	}
	return set
}

func readUnit(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read generated unit: %v", err)
	}
	return string(data)
}

func TestExpandSequentialParallel(t *testing.T) {
	template := writeTemplate(t, "martdp.cc.in",
		"// stencil:tokens Texecution\nusing Solver = AOStarSolver<Texecution>;\n")
	outDir := filepath.Join(t.TempDir(), "gen")

	fs := source.NewFileSet()
	rep := &testReporter{}
	res, err := expand.Expand(fs, expand.Request{
		Template: template,
		OutDir:   outDir,
		Axes:     mustAxes(t, fs, "Texecution=SequentialExecution!Seq;ParallelExecution!Par"),
	}, rep)
	if err != nil {
		t.Fatalf("Expand: %v (%v)", err, rep.Messages())
	}

	want := []string{
		filepath.Join(outDir, "martdpSeq.cc"),
		filepath.Join(outDir, "martdpPar.cc"),
	}
	if len(res.Files) != 2 || res.Files[0] != want[0] || res.Files[1] != want[1] {
		t.Fatalf("Files = %v, want %v", res.Files, want)
	}

	if got := readUnit(t, want[0]); got != "using Solver = AOStarSolver<SequentialExecution>;\n" {
		t.Errorf("Seq unit = %q", got)
	}
	if got := readUnit(t, want[1]); got != "using Solver = AOStarSolver<ParallelExecution>;\n" {
		t.Errorf("Par unit = %q", got)
	}
}

func TestExpandTwoAxesSixUnits(t *testing.T) {
	template := writeTemplate(t, "martdp.cc.in",
		"// stencil:tokens Texecution Thashing\nMartdpSolver<Texecution, Thashing> solver;\n")
	outDir := filepath.Join(t.TempDir(), "gen")

	fs := source.NewFileSet()
	rep := &testReporter{}
	res, err := expand.Expand(fs, expand.Request{
		Template: template,
		OutDir:   outDir,
		Axes: mustAxes(t, fs,
			"Texecution=SequentialExecution!Seq;ParallelExecution!Par",
			"Thashing=MapTypeHasher!Map;SetTypeHasher!Set;DenseTypeHasher!Dense",
		),
	}, rep)
	if err != nil {
		t.Fatalf("Expand: %v (%v)", err, rep.Messages())
	}

	// внешняя ось перебирается медленнее, последняя быстрее всех
	wantNames := []string{
		"martdpSeqMap.cc", "martdpSeqSet.cc", "martdpSeqDense.cc",
		"martdpParMap.cc", "martdpParSet.cc", "martdpParDense.cc",
	}
	if len(res.Files) != 6 {
		t.Fatalf("len(Files) = %d, want 6", len(res.Files))
	}
	for i, name := range wantNames {
		if res.Files[i] != filepath.Join(outDir, name) {
			t.Errorf("Files[%d] = %q, want %q", i, res.Files[i], name)
		}
	}

	if got := readUnit(t, res.Files[3]); got != "MartdpSolver<ParallelExecution, MapTypeHasher> solver;\n" {
		t.Errorf("ParMap unit = %q", got)
	}
}

func TestExpandIdempotent(t *testing.T) {
	template := writeTemplate(t, "martdp.cc.in",
		"// stencil:tokens Texecution\nTexecution exec;\n")
	outDir := filepath.Join(t.TempDir(), "gen")

	run := func() map[string]string {
		fs := source.NewFileSet()
		rep := &testReporter{}
		res, err := expand.Expand(fs, expand.Request{
			Template: template,
			OutDir:   outDir,
			Axes:     mustAxes(t, fs, "Texecution=SequentialExecution!Seq;ParallelExecution!Par"),
		}, rep)
		if err != nil {
			t.Fatalf("Expand: %v (%v)", err, rep.Messages())
		}
		units := make(map[string]string, len(res.Files))
		for _, path := range res.Files {
			units[path] = readUnit(t, path)
		}
		return units
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("run sizes differ: %d vs %d", len(first), len(second))
	}
	for path, content := range first {
		if second[path] != content {
			t.Errorf("unit %s changed between identical runs", path)
		}
	}
}

func TestExpandWholeTokenOnly(t *testing.T) {
	template := writeTemplate(t, "ident.cc.in",
		"Texecution Texecution2 MyTexecution _Texecution Texecutionα\n")
	outDir := filepath.Join(t.TempDir(), "gen")

	fs := source.NewFileSet()
	rep := &testReporter{}
	res, err := expand.Expand(fs, expand.Request{
		Template: template,
		OutDir:   outDir,
		Axes:     mustAxes(t, fs, "Texecution=SequentialExecution!Seq"),
	}, rep)
	if err != nil {
		t.Fatalf("Expand: %v (%v)", err, rep.Messages())
	}

	want := "SequentialExecution Texecution2 MyTexecution _Texecution Texecutionα\n"
	if got := readUnit(t, res.Files[0]); got != want {
		t.Errorf("unit = %q, want %q", got, want)
	}
}

func TestExpandMissingTemplate(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "gen")

	fs := source.NewFileSet()
	rep := &testReporter{}
	_, err := expand.Expand(fs, expand.Request{
		Template: filepath.Join(t.TempDir(), "absent.cc.in"),
		OutDir:   outDir,
		Axes:     mustAxes(t, fs, "Texecution=SequentialExecution!Seq"),
	}, rep)
	if !errors.Is(err, expand.ErrFailed) {
		t.Fatalf("err = %v, want ErrFailed", err)
	}
	if !rep.Has(diag.TplNotFound) {
		t.Errorf("expected TplNotFound among %v", rep.Messages())
	}
	if _, statErr := os.Stat(outDir); !os.IsNotExist(statErr) {
		t.Error("output directory must not be created on a rejected request")
	}
}

func TestExpandDuplicateTagRejectedBeforeWrite(t *testing.T) {
	template := writeTemplate(t, "martdp.cc.in", "Texecution exec;\n")
	outDir := filepath.Join(t.TempDir(), "gen")

	// собранный в обход парсера набор проходит те же проверки
	axes := axis.Set{Axes: []axis.Axis{{
		Token: "Texecution",
		Pairs: []axis.Pair{
			{Type: "SequentialExecution", Tag: "Seq"},
			{Type: "ParallelExecution", Tag: "Seq"},
		},
	}}}

	fs := source.NewFileSet()
	rep := &testReporter{}
	_, err := expand.Expand(fs, expand.Request{
		Template: template,
		OutDir:   outDir,
		Axes:     axes,
	}, rep)
	if !errors.Is(err, expand.ErrFailed) {
		t.Fatalf("err = %v, want ErrFailed", err)
	}
	if !rep.Has(diag.AxsDuplicateTag) {
		t.Errorf("expected AxsDuplicateTag among %v", rep.Messages())
	}
	if _, statErr := os.Stat(outDir); !os.IsNotExist(statErr) {
		t.Error("output directory must not be created on a rejected request")
	}
}

func TestExpandUndefinedPlaceholder(t *testing.T) {
	template := writeTemplate(t, "martdp.cc.in",
		"// stencil:tokens Texecution Thashing\nMartdpSolver<Texecution, Thashing> solver;\n")
	outDir := filepath.Join(t.TempDir(), "gen")

	fs := source.NewFileSet()
	rep := &testReporter{}
	_, err := expand.Expand(fs, expand.Request{
		Template: template,
		OutDir:   outDir,
		Axes:     mustAxes(t, fs, "Texecution=SequentialExecution!Seq"),
	}, rep)
	if !errors.Is(err, expand.ErrFailed) {
		t.Fatalf("err = %v, want ErrFailed", err)
	}
	if !rep.Has(diag.TplUndefinedPlaceholder) {
		t.Errorf("expected TplUndefinedPlaceholder among %v", rep.Messages())
	}
	if _, statErr := os.Stat(outDir); !os.IsNotExist(statErr) {
		t.Error("no unit may be written when a placeholder has no axis")
	}
}

func TestExpandManifestTokensJoinDeclaredSet(t *testing.T) {
	// без директивы действует список токенов из запроса
	template := writeTemplate(t, "martdp.cc.in", "MartdpSolver<Texecution> solver;\n")
	outDir := filepath.Join(t.TempDir(), "gen")

	fs := source.NewFileSet()
	rep := &testReporter{}
	_, err := expand.Expand(fs, expand.Request{
		Template: template,
		OutDir:   outDir,
		Axes:     mustAxes(t, fs, "Texecution=SequentialExecution!Seq"),
		Tokens:   []string{"Texecution", "Thashing"},
	}, rep)
	if !errors.Is(err, expand.ErrFailed) {
		t.Fatalf("err = %v, want ErrFailed", err)
	}
	if !rep.Has(diag.TplUndefinedPlaceholder) {
		t.Errorf("expected TplUndefinedPlaceholder among %v", rep.Messages())
	}
}

func TestExpandLegacyTemplateSkipsPlaceholderCheck(t *testing.T) {
	// ни директивы, ни списка токенов: детекция выключена, чужие
	// идентификаторы остаются как есть
	template := writeTemplate(t, "legacy.cc.in", "Texecution exec; Tother other;\n")
	outDir := filepath.Join(t.TempDir(), "gen")

	fs := source.NewFileSet()
	rep := &testReporter{}
	res, err := expand.Expand(fs, expand.Request{
		Template: template,
		OutDir:   outDir,
		Axes:     mustAxes(t, fs, "Texecution=SequentialExecution!Seq"),
	}, rep)
	if err != nil {
		t.Fatalf("Expand: %v (%v)", err, rep.Messages())
	}
	if got := readUnit(t, res.Files[0]); got != "SequentialExecution exec; Tother other;\n" {
		t.Errorf("unit = %q", got)
	}
}

func TestExpandUnusedAxisWarns(t *testing.T) {
	template := writeTemplate(t, "martdp.cc.in",
		"// stencil:tokens Texecution Tmemory\nTexecution exec;\n")
	outDir := filepath.Join(t.TempDir(), "gen")

	fs := source.NewFileSet()
	rep := &testReporter{}
	res, err := expand.Expand(fs, expand.Request{
		Template: template,
		OutDir:   outDir,
		Axes: mustAxes(t, fs,
			"Texecution=SequentialExecution!Seq;ParallelExecution!Par",
			"Tmemory=AtomicMemory!At",
		),
	}, rep)
	if err != nil {
		t.Fatalf("Expand: %v (%v)", err, rep.Messages())
	}
	if !rep.Has(diag.AxsUnusedAxis) {
		t.Errorf("expected AxsUnusedAxis warning among %v", rep.Messages())
	}
	if rep.HasErrors() {
		t.Errorf("unused axis must stay a warning: %v", rep.Messages())
	}

	want := []string{
		filepath.Join(outDir, "martdpSeqAt.cc"),
		filepath.Join(outDir, "martdpParAt.cc"),
	}
	if len(res.Files) != 2 || res.Files[0] != want[0] || res.Files[1] != want[1] {
		t.Errorf("Files = %v, want %v", res.Files, want)
	}
}

func TestExpandNameCollision(t *testing.T) {
	template := writeTemplate(t, "x.cc.in", "Tfirst Tsecond\n")
	outDir := filepath.Join(t.TempDir(), "gen")

	// S+eqPar и Seq+Par склеиваются в одно имя xSeqPar.cc
	fs := source.NewFileSet()
	rep := &testReporter{}
	_, err := expand.Expand(fs, expand.Request{
		Template: template,
		OutDir:   outDir,
		Axes: mustAxes(t, fs,
			"Tfirst=AType!S;BType!Seq",
			"Tsecond=CType!eqPar;DType!Par",
		),
	}, rep)
	if !errors.Is(err, expand.ErrFailed) {
		t.Fatalf("err = %v, want ErrFailed", err)
	}
	if !rep.Has(diag.GenNameCollision) {
		t.Errorf("expected GenNameCollision among %v", rep.Messages())
	}
	if _, statErr := os.Stat(outDir); !os.IsNotExist(statErr) {
		t.Error("colliding combinations must be rejected before any write")
	}
}

func TestPlanDoesNotWrite(t *testing.T) {
	template := writeTemplate(t, "martdp.cc.in",
		"// stencil:tokens Texecution\nTexecution exec;\n")
	outDir := filepath.Join(t.TempDir(), "gen")

	fs := source.NewFileSet()
	rep := &testReporter{}
	res, err := expand.Plan(fs, expand.Request{
		Template: template,
		OutDir:   outDir,
		Axes:     mustAxes(t, fs, "Texecution=SequentialExecution!Seq;ParallelExecution!Par"),
	}, rep)
	if err != nil {
		t.Fatalf("Plan: %v (%v)", err, rep.Messages())
	}
	if len(res.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(res.Files))
	}
	if _, statErr := os.Stat(outDir); !os.IsNotExist(statErr) {
		t.Error("Plan must not create the output directory")
	}
}

func TestExpandCountMatchesProduct(t *testing.T) {
	template := writeTemplate(t, "p.cc.in", "Ta Tb Tc\n")
	outDir := filepath.Join(t.TempDir(), "gen")

	fs := source.NewFileSet()
	rep := &testReporter{}
	axes := mustAxes(t, fs,
		"Ta=A1!P;A2!Q",
		"Tb=B1!R;B2!U;B3!V",
		"Tc=C1!W;C2!X",
	)
	res, err := expand.Expand(fs, expand.Request{Template: template, OutDir: outDir, Axes: axes}, rep)
	if err != nil {
		t.Fatalf("Expand: %v (%v)", err, rep.Messages())
	}
	if want := axes.Combinations(); len(res.Files) != want {
		t.Errorf("len(Files) = %d, want %d", len(res.Files), want)
	}
	for _, path := range res.Files {
		if _, statErr := os.Stat(path); statErr != nil {
			t.Errorf("unit %s missing: %v", path, statErr)
		}
	}
}
