package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init [path|name]",
	Short: "Initialize a new stencil project",
	Long: `Initialize a new stencil project by creating a project manifest
(stencil.toml) and a starter template. If [path|name] is omitted, initializes
the current directory; when run interactively the project name is prompted
for. If a non-existing name is provided, a directory will be created.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

// runInit initializes a stencil project at the target path (or the current
// working directory when no argument or "." is provided) by writing a
// stencil.toml manifest and a starter template under templates/.
//
// It resolves the target path, creates the directory if it does not exist,
// derives a project name from the directory basename (prompting via survey
// in an interactive session), and refuses to initialize if stencil.toml
// already exists.
func runInit(cmd *cobra.Command, args []string) error {
	// Resolve target directory
	var target string
	if len(args) == 0 || args[0] == "." {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		target = wd
	} else {
		// treat as path or name relative to cwd
		arg := args[0]
		if !filepath.IsAbs(arg) {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			target = filepath.Join(wd, arg)
		} else {
			target = arg
		}
	}

	// Ensure directory exists
	if st, err := os.Stat(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err = os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %q: %w", target, err)
			}
		} else {
			return err
		}
	} else if !st.IsDir() {
		return fmt.Errorf("%q is not a directory", target)
	}

	// Determine project name from directory basename
	name := filepath.Base(target)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "stencil-project"
	}
	if len(args) == 0 && isTerminal(os.Stdin) && isTerminal(os.Stdout) {
		prompt := &survey.Input{
			Message: "Project name:",
			Default: name,
		}
		if err := survey.AskOne(prompt, &name, survey.WithValidator(survey.Required)); err != nil {
			return err
		}
		name = strings.TrimSpace(name)
	}

	// Create manifest file if not exists
	manifestPath := filepath.Join(target, "stencil.toml")
	if _, err := os.Stat(manifestPath); err == nil {
		return fmt.Errorf("project already initialized: %s exists", manifestPath)
	}

	if err := os.WriteFile(manifestPath, []byte(buildDefaultManifest(name)), os.FileMode(0o600)); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	// Create the starter template if not exists
	templatePath := filepath.Join(target, "templates", "solver.cc.in")
	createdTemplate := false
	if _, err := os.Stat(templatePath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(templatePath), 0o755); err != nil {
			return fmt.Errorf("failed to create templates directory: %w", err)
		}
		if err := os.WriteFile(templatePath, []byte(defaultTemplate()), 0o600); err != nil {
			return fmt.Errorf("failed to write starter template: %w", err)
		}
		createdTemplate = true
	}

	rel := target
	if wd, err := os.Getwd(); err == nil {
		if r, err2 := filepath.Rel(wd, target); err2 == nil {
			rel = r
		}
	}
	fmt.Fprintf(os.Stdout, "Initialized stencil project in %s\n", rel)
	fmt.Fprintf(os.Stdout, "  - stencil.toml\n")
	if createdTemplate {
		fmt.Fprintf(os.Stdout, "  - templates/solver.cc.in\n")
	} else {
		fmt.Fprintf(os.Stdout, "  - templates/solver.cc.in (existing)\n")
	}
	return nil
}

// buildDefaultManifest returns a minimal TOML manifest wiring the starter
// template into one library and one consumer.
func buildDefaultManifest(name string) string {
	return fmt.Sprintf(`# Stencil project manifest
[package]
name = "%s"

[binding]
enabled = true

[toolchain]
cc = "c++"
ar = "ar"
cflags = ["-std=c++17", "-O2"]

[[library]]
name = "solver"
template = "templates/solver.cc.in"
axes = ["Texecution=SequentialExecution!Seq;ParallelExecution!Par"]
scope = "private"

[consumer]
name = "%s"
kind = "shared"
`, name, name)
}

// defaultTemplate returns the placeholder solver template written on init.
func defaultTemplate() string {
	return `// stencil:tokens Texecution
// Starter template: Texecution is replaced per execution policy.

struct Texecution {
    static const char *name() { return "Texecution"; }
};

namespace {
const char *const instantiated_policy = Texecution::name();
}
`
}
