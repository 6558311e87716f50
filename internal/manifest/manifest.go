// Package manifest loads and validates stencil.toml, the project manifest
// that names the templated libraries, their substitution axes, the external
// toolchain and the consumer the generated archives link into.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"

	"stencil/internal/axis"
	"stencil/internal/buildgraph"
	"stencil/internal/diag"
	"stencil/internal/source"
)

// FileName is the manifest file stencil looks for when walking up from the
// working directory.
const FileName = "stencil.toml"

// rawConfig mirrors the TOML schema; validation happens against toml.MetaData
// so absent fields are told apart from zero values.
type rawConfig struct {
	Package   rawPackage   `toml:"package"`
	Binding   rawBinding   `toml:"binding"`
	Toolchain rawToolchain `toml:"toolchain"`
	Axes      rawAxes      `toml:"axes"`
	Libraries []rawLibrary `toml:"library"`
	Consumer  rawConsumer  `toml:"consumer"`
}

type rawPackage struct {
	Name string `toml:"name"`
}

type rawBinding struct {
	Enabled bool `toml:"enabled"`
	Only    bool `toml:"only"`
}

type rawToolchain struct {
	CC          string   `toml:"cc"`
	AR          string   `toml:"ar"`
	CFlags      []string `toml:"cflags"`
	LDFlags     []string `toml:"ldflags"`
	IncludeDirs []string `toml:"include_dirs"`
}

type rawAxes struct {
	File string `toml:"file"`
}

type rawLibrary struct {
	Name     string   `toml:"name"`
	Template string   `toml:"template"`
	Tokens   []string `toml:"tokens"`
	Axes     []string `toml:"axes"`
	Deps     []string `toml:"deps"`
	Binding  bool     `toml:"binding"`
	Scope    string   `toml:"scope"`
	Into     string   `toml:"into"`
}

type rawConsumer struct {
	Name string `toml:"name"`
	Kind string `toml:"kind"`
}

// Manifest is the validated project configuration. Preset references in
// library axes are already expanded into declaration strings.
type Manifest struct {
	Path string
	Root string

	Package   Package
	Binding   Binding
	Toolchain Toolchain
	Libraries []Library
	Consumer  Consumer

	// Catalog is the loaded preset file, nil when [axes].file is absent.
	Catalog *axis.Catalog
}

// Package names the project.
type Package struct {
	Name string
}

// Binding is the explicit gate configuration for binding-only libraries.
type Binding struct {
	Enabled bool // default true
	Only    bool
}

// Toolchain configures the external compiler and archiver the pipeline runs.
type Toolchain struct {
	CC          string
	AR          string
	CFlags      []string
	LDFlags     []string
	IncludeDirs []string
}

// Library describes one templated library target.
type Library struct {
	Name      string
	Template  string   // manifest-relative template path
	Tokens    []string // placeholders declared outside the template
	AxisDecls []string // axis declarations, presets expanded
	Deps      []string
	Binding   bool
	Scope     buildgraph.LinkScope
	Into      string
}

// Consumer is the umbrella target the library archives link into.
type Consumer struct {
	Name string
	Kind ConsumerKind
}

// ConsumerKind selects the link step the consumer gets.
type ConsumerKind uint8

const (
	// KindShared links the consumer as a shared object.
	KindShared ConsumerKind = iota
	// KindStatic archives the consumer statically.
	KindStatic
)

// ParseConsumerKind maps the manifest kind string onto the enum.
func ParseConsumerKind(s string) (ConsumerKind, bool) {
	switch s {
	case "shared":
		return KindShared, true
	case "static":
		return KindStatic, true
	default:
		return KindShared, false
	}
}

func (k ConsumerKind) String() string {
	switch k {
	case KindShared:
		return "shared"
	case KindStatic:
		return "static"
	default:
		return fmt.Sprintf("ConsumerKind(%d)", uint8(k))
	}
}

// Find walks up from startDir to locate stencil.toml.
func Find(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load discovers the manifest upward from startDir and validates it.
// Problems are reported as CFG diagnostics; ok=false when any is an error.
func Load(fs *source.FileSet, startDir string, reporter diag.Reporter) (*Manifest, bool) {
	path, found, err := Find(startDir)
	if err != nil {
		span := source.Span{File: fs.AddVirtual(filepath.Join(startDir, FileName), nil)}
		diag.ReportError(reporter, diag.CfgManifestNotFound, span,
			fmt.Sprintf("cannot look for %s: %v", FileName, err)).Emit()
		return nil, false
	}
	if !found {
		span := source.Span{File: fs.AddVirtual(filepath.Join(startDir, FileName), nil)}
		diag.ReportError(reporter, diag.CfgManifestNotFound, span,
			fmt.Sprintf("no %s found walking up from %s", FileName, startDir)).Emit()
		return nil, false
	}
	return LoadFile(fs, path, reporter)
}

// LoadFile loads and validates the manifest at an explicit path.
func LoadFile(fs *source.FileSet, path string, reporter diag.Reporter) (*Manifest, bool) {
	id, err := fs.Load(path)
	if err != nil {
		span := source.Span{File: fs.AddVirtual(path, nil)}
		if errors.Is(err, os.ErrNotExist) {
			diag.ReportError(reporter, diag.CfgManifestNotFound, span,
				fmt.Sprintf("manifest %s does not exist", path)).Emit()
		} else {
			diag.ReportError(reporter, diag.CfgManifestParse, span,
				fmt.Sprintf("cannot read manifest %s: %v", path, err)).Emit()
		}
		return nil, false
	}
	file := fs.Get(id)

	var raw rawConfig
	// декодируем нормализованное содержимое, чтобы позиции ошибок
	// совпадали с зарегистрированным файлом
	meta, err := toml.Decode(string(file.Content), &raw)
	if err != nil {
		diag.ReportError(reporter, diag.CfgManifestParse, parseErrorSpan(file, err),
			fmt.Sprintf("%s: failed to parse TOML: %v", path, err)).Emit()
		return nil, false
	}

	m := &Manifest{
		Path: path,
		Root: filepath.Dir(path),
	}
	if !m.fill(file, raw, meta, reporter) {
		return nil, false
	}
	return m, true
}

// parseErrorSpan points at the offending TOML region when the decoder
// exposes one.
func parseErrorSpan(file *source.File, err error) source.Span {
	var perr toml.ParseError
	if !errors.As(err, &perr) {
		return source.Span{File: file.ID}
	}
	start, convErr := safecast.Conv[uint32](perr.Position.Start)
	if convErr != nil {
		return source.Span{File: file.ID}
	}
	length, convErr := safecast.Conv[uint32](perr.Position.Len)
	if convErr != nil {
		length = 0
	}
	return source.Span{File: file.ID, Start: start, End: start + length}
}

func (m *Manifest) fill(file *source.File, raw rawConfig, meta toml.MetaData, reporter diag.Reporter) bool {
	span := source.Span{File: file.ID}
	ok := true

	missing := func(field string) {
		diag.ReportError(reporter, diag.CfgMissingField, span,
			fmt.Sprintf("%s: missing %s", m.Path, field)).Emit()
		ok = false
	}

	if !meta.IsDefined("package") {
		missing("[package]")
	} else if !meta.IsDefined("package", "name") || strings.TrimSpace(raw.Package.Name) == "" {
		missing("[package].name")
	} else {
		m.Package.Name = strings.TrimSpace(raw.Package.Name)
	}

	m.Binding.Enabled = true
	if meta.IsDefined("binding", "enabled") {
		m.Binding.Enabled = raw.Binding.Enabled
	}
	m.Binding.Only = raw.Binding.Only

	m.Toolchain = Toolchain{
		CC:          "c++",
		AR:          "ar",
		CFlags:      raw.Toolchain.CFlags,
		LDFlags:     raw.Toolchain.LDFlags,
		IncludeDirs: raw.Toolchain.IncludeDirs,
	}
	if strings.TrimSpace(raw.Toolchain.CC) != "" {
		m.Toolchain.CC = strings.TrimSpace(raw.Toolchain.CC)
	}
	if strings.TrimSpace(raw.Toolchain.AR) != "" {
		m.Toolchain.AR = strings.TrimSpace(raw.Toolchain.AR)
	}

	if !meta.IsDefined("consumer") {
		missing("[consumer]")
	} else {
		if !meta.IsDefined("consumer", "name") || strings.TrimSpace(raw.Consumer.Name) == "" {
			missing("[consumer].name")
		} else if name := strings.TrimSpace(raw.Consumer.Name); !validTargetName(name) {
			diag.ReportError(reporter, diag.CfgInvalidValue, span,
				fmt.Sprintf("%s: [consumer].name may contain only letters, digits, '_' and '-', got %q",
					m.Path, name)).Emit()
			ok = false
		} else {
			m.Consumer.Name = name
		}
		if !meta.IsDefined("consumer", "kind") || strings.TrimSpace(raw.Consumer.Kind) == "" {
			missing("[consumer].kind")
		} else if kind, kindOK := ParseConsumerKind(strings.TrimSpace(raw.Consumer.Kind)); !kindOK {
			diag.ReportError(reporter, diag.CfgInvalidKind, span,
				fmt.Sprintf("%s: [consumer].kind must be \"shared\" or \"static\", got %q",
					m.Path, raw.Consumer.Kind)).Emit()
			ok = false
		} else {
			m.Consumer.Kind = kind
		}
	}

	if !m.loadCatalog(raw, span, reporter) {
		ok = false
	}

	if len(raw.Libraries) == 0 {
		missing("[[library]]")
	}
	seen := make(map[string]struct{}, len(raw.Libraries))
	for i, rawLib := range raw.Libraries {
		lib, libOK := m.fillLibrary(i, rawLib, span, reporter)
		if !libOK {
			ok = false
			continue
		}
		if _, dup := seen[lib.Name]; dup {
			diag.ReportError(reporter, diag.CfgDuplicateLibrary, span,
				fmt.Sprintf("%s: duplicate library %q", m.Path, lib.Name)).Emit()
			ok = false
			continue
		}
		seen[lib.Name] = struct{}{}
		m.Libraries = append(m.Libraries, lib)
	}

	return ok
}

func (m *Manifest) loadCatalog(raw rawConfig, span source.Span, reporter diag.Reporter) bool {
	if strings.TrimSpace(raw.Axes.File) == "" {
		return true
	}
	path := filepath.Join(m.Root, filepath.FromSlash(strings.TrimSpace(raw.Axes.File)))
	catalog, err := axis.LoadCatalog(path)
	if err != nil {
		diag.ReportError(reporter, diag.CfgPresetFileError, span,
			fmt.Sprintf("%s: cannot load [axes].file: %v", m.Path, err)).Emit()
		return false
	}
	m.Catalog = catalog
	return true
}

func (m *Manifest) fillLibrary(index int, raw rawLibrary, span source.Span, reporter diag.Reporter) (Library, bool) {
	ok := true
	label := fmt.Sprintf("library #%d", index+1)
	if strings.TrimSpace(raw.Name) != "" {
		label = fmt.Sprintf("library %q", raw.Name)
	}

	missing := func(field string) {
		diag.ReportError(reporter, diag.CfgMissingField, span,
			fmt.Sprintf("%s: %s missing %s", m.Path, label, field)).Emit()
		ok = false
	}

	lib := Library{
		Name:     strings.TrimSpace(raw.Name),
		Template: strings.TrimSpace(raw.Template),
		Tokens:   raw.Tokens,
		Deps:     raw.Deps,
		Binding:  raw.Binding,
		Into:     strings.TrimSpace(raw.Into),
	}
	if lib.Name == "" {
		missing("name")
	} else if !validTargetName(lib.Name) {
		diag.ReportError(reporter, diag.CfgInvalidValue, span,
			fmt.Sprintf("%s: %s name may contain only letters, digits, '_' and '-'",
				m.Path, label)).Emit()
		ok = false
	}
	if lib.Template == "" {
		missing("template")
	}
	if len(raw.Axes) == 0 {
		missing("axes")
	}

	scope := strings.TrimSpace(raw.Scope)
	if scope == "" {
		lib.Scope = buildgraph.ScopePrivate
	} else if parsed, scopeOK := buildgraph.ParseScope(scope); scopeOK {
		lib.Scope = parsed
	} else {
		diag.ReportError(reporter, diag.CfgInvalidScope, span,
			fmt.Sprintf("%s: %s scope must be \"public\", \"private\" or \"interface\", got %q",
				m.Path, label, raw.Scope)).Emit()
		ok = false
	}

	if lib.Into == "" {
		lib.Into = m.Consumer.Name
	}

	for _, entry := range raw.Axes {
		entry = strings.TrimSpace(entry)
		if !axis.IsRef(entry) {
			lib.AxisDecls = append(lib.AxisDecls, entry)
			continue
		}
		if m.Catalog == nil {
			diag.ReportError(reporter, diag.CfgUnknownPreset, span,
				fmt.Sprintf("%s: %s references preset %q but no [axes].file is configured",
					m.Path, label, entry)).Emit()
			ok = false
			continue
		}
		decls, found := m.Catalog.Resolve(entry)
		if !found {
			diag.ReportError(reporter, diag.CfgUnknownPreset, span,
				fmt.Sprintf("%s: %s references unknown preset %q (catalog %s)",
					m.Path, label, entry, m.Catalog.Path())).Emit()
			ok = false
			continue
		}
		lib.AxisDecls = append(lib.AxisDecls, decls...)
	}

	return lib, ok
}

// validTargetName limits target names to characters safe for the paths
// built from them: имя становится каталогом генерации, именем архива и
// файлом отпечатка.
func validTargetName(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return name != ""
}

// TemplatePath resolves a library template relative to the manifest root.
func (m *Manifest) TemplatePath(lib Library) string {
	if filepath.IsAbs(lib.Template) {
		return lib.Template
	}
	return filepath.Join(m.Root, filepath.FromSlash(lib.Template))
}

// IncludeDirPaths resolves the toolchain include directories relative to the
// manifest root.
func (m *Manifest) IncludeDirPaths() []string {
	dirs := make([]string, 0, len(m.Toolchain.IncludeDirs))
	for _, dir := range m.Toolchain.IncludeDirs {
		if filepath.IsAbs(dir) {
			dirs = append(dirs, dir)
			continue
		}
		dirs = append(dirs, filepath.Join(m.Root, filepath.FromSlash(dir)))
	}
	return dirs
}
