package manifest_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"stencil/internal/buildgraph"
	"stencil/internal/diag"
	"stencil/internal/manifest"
	"stencil/internal/source"
)

// testReporter собирает все диагностики, полученные от загрузчика манифеста
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

const validManifest = `
[package]
name = "skdecide"

[toolchain]
cc = "clang++"
cflags = ["-O2", "-std=c++17"]
include_dirs = ["include"]

[axes]
file = "axes.yml"

[[library]]
name = "martdp"
template = "templates/martdp.cc.in"
tokens = ["Texecution", "Thashing"]
axes = ["@policies", "Thashing=MapTypeHasher!Map;SetTypeHasher!Set"]
scope = "public"

[[library]]
name = "aostar"
template = "templates/aostar.cc.in"
axes = ["@policies"]
deps = ["martdp"]
binding = true

[consumer]
name = "skdecide"
kind = "shared"
`

const validCatalog = `
policies:
  - "Texecution=SequentialExecution!Seq;ParallelExecution!Par"
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, manifest.FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "axes.yml"), []byte(validCatalog), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadFileValid(t *testing.T) {
	path := writeManifest(t, validManifest)
	fs := source.NewFileSet()
	rep := &testReporter{}

	m, ok := manifest.LoadFile(fs, path, rep)
	if !ok {
		t.Fatalf("LoadFile failed: %v", rep.Messages())
	}

	if m.Package.Name != "skdecide" {
		t.Errorf("Package.Name = %q", m.Package.Name)
	}
	if !m.Binding.Enabled || m.Binding.Only {
		t.Errorf("Binding defaults = %+v, want enabled, not only", m.Binding)
	}
	if m.Toolchain.CC != "clang++" || m.Toolchain.AR != "ar" {
		t.Errorf("Toolchain = %+v", m.Toolchain)
	}
	if m.Consumer.Name != "skdecide" || m.Consumer.Kind != manifest.KindShared {
		t.Errorf("Consumer = %+v", m.Consumer)
	}
	if m.Catalog == nil {
		t.Fatal("Catalog not loaded")
	}

	if len(m.Libraries) != 2 {
		t.Fatalf("len(Libraries) = %d, want 2", len(m.Libraries))
	}
	martdp := m.Libraries[0]
	if martdp.Name != "martdp" || martdp.Scope != buildgraph.ScopePublic {
		t.Errorf("martdp = %+v", martdp)
	}
	if martdp.Into != "skdecide" {
		t.Errorf("martdp.Into = %q, want the sole consumer", martdp.Into)
	}
	// пресет @policies развёрнут в строку объявления
	wantDecls := []string{
		"Texecution=SequentialExecution!Seq;ParallelExecution!Par",
		"Thashing=MapTypeHasher!Map;SetTypeHasher!Set",
	}
	if len(martdp.AxisDecls) != 2 || martdp.AxisDecls[0] != wantDecls[0] || martdp.AxisDecls[1] != wantDecls[1] {
		t.Errorf("martdp.AxisDecls = %v, want %v", martdp.AxisDecls, wantDecls)
	}

	aostar := m.Libraries[1]
	if !aostar.Binding || aostar.Scope != buildgraph.ScopePrivate {
		t.Errorf("aostar = %+v", aostar)
	}
	if len(aostar.Deps) != 1 || aostar.Deps[0] != "martdp" {
		t.Errorf("aostar.Deps = %v", aostar.Deps)
	}
}

func TestLoadWalksUp(t *testing.T) {
	path := writeManifest(t, validManifest)
	nested := filepath.Join(filepath.Dir(path), "src", "deep")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	fs := source.NewFileSet()
	rep := &testReporter{}
	m, ok := manifest.Load(fs, nested, rep)
	if !ok {
		t.Fatalf("Load failed: %v", rep.Messages())
	}
	if m.Path != path {
		t.Errorf("Path = %q, want %q", m.Path, path)
	}
	if m.Root != filepath.Dir(path) {
		t.Errorf("Root = %q, want %q", m.Root, filepath.Dir(path))
	}
}

func TestLoadNotFound(t *testing.T) {
	fs := source.NewFileSet()
	rep := &testReporter{}
	_, ok := manifest.Load(fs, t.TempDir(), rep)
	if ok {
		t.Fatal("expected missing manifest to fail")
	}
	if !rep.Has(diag.CfgManifestNotFound) {
		t.Errorf("expected CfgManifestNotFound, got %v", rep.Messages())
	}
}

func TestLoadFileParseError(t *testing.T) {
	path := writeManifest(t, "[package\nname = broken")
	fs := source.NewFileSet()
	rep := &testReporter{}
	_, ok := manifest.LoadFile(fs, path, rep)
	if ok {
		t.Fatal("expected malformed TOML to fail")
	}
	if !rep.Has(diag.CfgManifestParse) {
		t.Errorf("expected CfgManifestParse, got %v", rep.Messages())
	}
}

func TestLoadFileMissingFields(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantCode diag.Code
	}{
		{
			name: "missing package name",
			content: `
[package]

[[library]]
name = "martdp"
template = "t.cc.in"
axes = ["Texecution=A!Seq"]

[consumer]
name = "skdecide"
kind = "shared"
`,
			wantCode: diag.CfgMissingField,
		},
		{
			name: "missing consumer",
			content: `
[package]
name = "skdecide"

[[library]]
name = "martdp"
template = "t.cc.in"
axes = ["Texecution=A!Seq"]
`,
			wantCode: diag.CfgMissingField,
		},
		{
			name: "no libraries",
			content: `
[package]
name = "skdecide"

[consumer]
name = "skdecide"
kind = "shared"
`,
			wantCode: diag.CfgMissingField,
		},
		{
			name: "library without template",
			content: `
[package]
name = "skdecide"

[[library]]
name = "martdp"
axes = ["Texecution=A!Seq"]

[consumer]
name = "skdecide"
kind = "shared"
`,
			wantCode: diag.CfgMissingField,
		},
		{
			name: "library without axes",
			content: `
[package]
name = "skdecide"

[[library]]
name = "martdp"
template = "t.cc.in"

[consumer]
name = "skdecide"
kind = "shared"
`,
			wantCode: diag.CfgMissingField,
		},
		{
			name: "bad consumer kind",
			content: `
[package]
name = "skdecide"

[[library]]
name = "martdp"
template = "t.cc.in"
axes = ["Texecution=A!Seq"]

[consumer]
name = "skdecide"
kind = "plugin"
`,
			wantCode: diag.CfgInvalidKind,
		},
		{
			name: "bad scope",
			content: `
[package]
name = "skdecide"

[[library]]
name = "martdp"
template = "t.cc.in"
axes = ["Texecution=A!Seq"]
scope = "protected"

[consumer]
name = "skdecide"
kind = "shared"
`,
			wantCode: diag.CfgInvalidScope,
		},
		{
			name: "unsafe library name",
			content: `
[package]
name = "skdecide"

[[library]]
name = "../evil"
template = "t.cc.in"
axes = ["Texecution=A!Seq"]

[consumer]
name = "skdecide"
kind = "shared"
`,
			wantCode: diag.CfgInvalidValue,
		},
		{
			name: "duplicate library",
			content: `
[package]
name = "skdecide"

[[library]]
name = "martdp"
template = "t.cc.in"
axes = ["Texecution=A!Seq"]

[[library]]
name = "martdp"
template = "t2.cc.in"
axes = ["Texecution=A!Seq"]

[consumer]
name = "skdecide"
kind = "shared"
`,
			wantCode: diag.CfgDuplicateLibrary,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, tt.content)
			fs := source.NewFileSet()
			rep := &testReporter{}
			_, ok := manifest.LoadFile(fs, path, rep)
			if ok {
				t.Fatal("expected manifest to be rejected")
			}
			if !rep.Has(tt.wantCode) {
				t.Errorf("expected %s among %v", tt.wantCode.ID(), rep.Messages())
			}
		})
	}
}

func TestLoadFileUnknownPreset(t *testing.T) {
	content := `
[package]
name = "skdecide"

[axes]
file = "axes.yml"

[[library]]
name = "martdp"
template = "t.cc.in"
axes = ["@ghost"]

[consumer]
name = "skdecide"
kind = "shared"
`
	path := writeManifest(t, content)
	fs := source.NewFileSet()
	rep := &testReporter{}
	_, ok := manifest.LoadFile(fs, path, rep)
	if ok {
		t.Fatal("expected unknown preset to be rejected")
	}
	if !rep.Has(diag.CfgUnknownPreset) {
		t.Errorf("expected CfgUnknownPreset, got %v", rep.Messages())
	}
}

func TestLoadFilePresetWithoutCatalog(t *testing.T) {
	content := `
[package]
name = "skdecide"

[[library]]
name = "martdp"
template = "t.cc.in"
axes = ["@policies"]

[consumer]
name = "skdecide"
kind = "shared"
`
	path := writeManifest(t, content)
	fs := source.NewFileSet()
	rep := &testReporter{}
	_, ok := manifest.LoadFile(fs, path, rep)
	if ok {
		t.Fatal("expected preset reference without a catalog to be rejected")
	}
	if !rep.Has(diag.CfgUnknownPreset) {
		t.Errorf("expected CfgUnknownPreset, got %v", rep.Messages())
	}
}

func TestLoadFilePresetFileError(t *testing.T) {
	content := `
[package]
name = "skdecide"

[axes]
file = "absent.yml"

[[library]]
name = "martdp"
template = "t.cc.in"
axes = ["@policies"]

[consumer]
name = "skdecide"
kind = "shared"
`
	path := writeManifest(t, content)
	fs := source.NewFileSet()
	rep := &testReporter{}
	_, ok := manifest.LoadFile(fs, path, rep)
	if ok {
		t.Fatal("expected missing preset file to be rejected")
	}
	if !rep.Has(diag.CfgPresetFileError) {
		t.Errorf("expected CfgPresetFileError, got %v", rep.Messages())
	}
}

func TestActiveLibraries(t *testing.T) {
	m := &manifest.Manifest{
		Binding: manifest.Binding{Enabled: true},
		Libraries: []manifest.Library{
			{Name: "core"},
			{Name: "pybind", Binding: true},
		},
	}

	names := func(libs []manifest.Library) []string {
		out := make([]string, len(libs))
		for i, lib := range libs {
			out[i] = lib.Name
		}
		return out
	}

	if got := names(m.ActiveLibraries(manifest.BindingAuto)); len(got) != 2 {
		t.Errorf("auto: %v, want both", got)
	}
	if got := names(m.ActiveLibraries(manifest.BindingOff)); len(got) != 1 || got[0] != "core" {
		t.Errorf("off: %v, want core only", got)
	}

	m.Binding.Enabled = false
	if got := names(m.ActiveLibraries(manifest.BindingAuto)); len(got) != 1 || got[0] != "core" {
		t.Errorf("auto with enabled=false: %v, want core only", got)
	}
	if got := names(m.ActiveLibraries(manifest.BindingOn)); len(got) != 2 {
		t.Errorf("on overrides manifest: %v, want both", got)
	}

	m.Binding.Only = true
	m.Binding.Enabled = true
	if got := names(m.ActiveLibraries(manifest.BindingAuto)); len(got) != 1 || got[0] != "pybind" {
		t.Errorf("only: %v, want pybind only", got)
	}
}

func TestParseBindingMode(t *testing.T) {
	tests := []struct {
		in   string
		want manifest.BindingMode
		ok   bool
	}{
		{"", manifest.BindingAuto, true},
		{"auto", manifest.BindingAuto, true},
		{"on", manifest.BindingOn, true},
		{"off", manifest.BindingOff, true},
		{"maybe", manifest.BindingAuto, false},
	}
	for _, tt := range tests {
		got, ok := manifest.ParseBindingMode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseBindingMode(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTemplatePathResolution(t *testing.T) {
	path := writeManifest(t, validManifest)
	fs := source.NewFileSet()
	rep := &testReporter{}
	m, ok := manifest.LoadFile(fs, path, rep)
	if !ok {
		t.Fatalf("LoadFile failed: %v", rep.Messages())
	}

	want := filepath.Join(m.Root, "templates", "martdp.cc.in")
	if got := m.TemplatePath(m.Libraries[0]); got != want {
		t.Errorf("TemplatePath = %q, want %q", got, want)
	}

	dirs := m.IncludeDirPaths()
	if len(dirs) != 1 || dirs[0] != filepath.Join(m.Root, "include") {
		t.Errorf("IncludeDirPaths = %v", dirs)
	}
}
