// Package suite runs batches of compliance cases described by a YAML
// manifest and reports per-case results, in text and in JSON.
package suite

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Case describes one compliance run: an image, the port schedule that
// drives the model, and optionally a golden signature to compare against.
type Case struct {
	// Name identifies the case in reports.
	Name string `yaml:"name"`

	// Description explains what the case exercises.
	Description string `yaml:"description,omitempty"`

	// Image is the path to the ELF image.
	Image string `yaml:"image"`

	// Script is the path to the port schedule driving the model.
	Script string `yaml:"script"`

	// Reference is the path to the golden signature file. Empty skips
	// the comparison.
	Reference string `yaml:"reference,omitempty"`

	// MaxCycles overrides the manifest's default cycle budget.
	MaxCycles uint64 `yaml:"max_cycles,omitempty"`
}

// Manifest is a list of cases plus suite-wide defaults.
type Manifest struct {
	// Name identifies the suite in reports.
	Name string `yaml:"name,omitempty"`

	// DefaultMaxCycles is the budget applied to cases without their own.
	DefaultMaxCycles uint64 `yaml:"default_max_cycles,omitempty"`

	Cases []Case `yaml:"cases"`
}

// LoadManifest reads and validates a manifest. Relative image, script, and
// reference paths are resolved against the manifest's directory, so a suite
// stays relocatable as a unit.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	dir := filepath.Dir(path)
	for i := range m.Cases {
		c := &m.Cases[i]
		c.Image = resolve(dir, c.Image)
		c.Script = resolve(dir, c.Script)
		if c.Reference != "" {
			c.Reference = resolve(dir, c.Reference)
		}
		if c.MaxCycles == 0 {
			c.MaxCycles = m.DefaultMaxCycles
		}
	}

	return &m, nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func (m *Manifest) validate() error {
	if len(m.Cases) == 0 {
		return fmt.Errorf("no cases defined")
	}

	seen := make(map[string]bool, len(m.Cases))
	for i, c := range m.Cases {
		if c.Name == "" {
			return fmt.Errorf("case %d has no name", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate case name %q", c.Name)
		}
		seen[c.Name] = true

		if c.Image == "" {
			return fmt.Errorf("case %q has no image", c.Name)
		}
		if c.Script == "" {
			return fmt.Errorf("case %q has no script", c.Name)
		}
	}
	return nil
}
