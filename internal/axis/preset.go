package axis

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog is a named collection of reusable axis declarations loaded from a
// YAML file:
//
//	policies:
//	  - "Texecution=SequentialExecution!Seq;ParallelExecution!Par"
//	hashing:
//	  - "Thashing=MapTypeHasher!Map;SetTypeHasher!Set"
//
// Manifest entries reference a preset as "@name" instead of spelling the
// declarations out per library.
type Catalog struct {
	path    string
	presets map[string][]string
}

// LoadCatalog reads a YAML preset file mapping preset names to declaration
// lists.
func LoadCatalog(path string) (*Catalog, error) {
	// #nosec G304 -- path comes from the manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	presets := make(map[string][]string)
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Catalog{path: path, presets: presets}, nil
}

// Path returns the catalog file path.
func (c *Catalog) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// IsRef reports whether an axes entry references a preset.
func IsRef(s string) bool {
	return strings.HasPrefix(s, "@")
}

// Resolve expands a "@name" reference into its declaration list.
func (c *Catalog) Resolve(ref string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	decls, ok := c.presets[strings.TrimPrefix(ref, "@")]
	return decls, ok
}

// Names returns the preset names in the catalog, unordered.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.presets))
	for name := range c.presets {
		names = append(names, name)
	}
	return names
}
