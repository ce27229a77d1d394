// Package config loads the per-project .xrefconfig file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the project root.
const FileName = ".xrefconfig"

// SettingsFiles are the root files, besides Go sources, whose contents
// change monikers or descriptors.
var SettingsFiles = []string{"go.mod", FileName}

// defaultExcludePaths are never indexed, whatever the config says.
var defaultExcludePaths = []string{"testdata/**", "vendor/**"}

// Config holds user-overridable indexing settings.
type Config struct {
	Index    IndexConfig   `yaml:"index"`
	Monikers MonikerConfig `yaml:"monikers"`
}

// IndexConfig selects what gets loaded and emitted.
type IndexConfig struct {
	// ExcludePaths are glob patterns relative to the root. They are added to
	// (not replacing) defaultExcludePaths.
	ExcludePaths []string `yaml:"exclude_paths"`

	// Tests includes _test.go files. Default: false.
	Tests *bool `yaml:"tests"`

	BuildTags []string `yaml:"build_tags"`

	// Hover emits hover text for declarations. Default: true.
	Hover *bool `yaml:"hover"`
}

// MonikerConfig controls moniker generation.
type MonikerConfig struct {
	// Scheme names the moniker namespace. Default: gomod.
	Scheme *string `yaml:"scheme"`

	// SourceDir and OutputDir rewrite project paths before they become
	// moniker paths (e.g. generated code mapped back to its source tree).
	SourceDir string `yaml:"source_dir"`
	OutputDir string `yaml:"output_dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{}
}

// Load reads .xrefconfig from dir. Missing or invalid files yield defaults.
func Load(dir string) *Config {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig()
	}
	return cfg
}

// EffectiveTests returns whether test files are indexed (default false).
func (c *Config) EffectiveTests() bool {
	if c.Index.Tests != nil {
		return *c.Index.Tests
	}
	return false
}

// EffectiveHover returns whether hover text is emitted (default true).
func (c *Config) EffectiveHover() bool {
	if c.Index.Hover != nil {
		return *c.Index.Hover
	}
	return true
}

// EffectiveScheme returns the moniker scheme (default "gomod").
func (c *Config) EffectiveScheme() string {
	if c.Monikers.Scheme != nil && *c.Monikers.Scheme != "" {
		return *c.Monikers.Scheme
	}
	return "gomod"
}

// AllExcludePaths returns the default plus user-configured exclude patterns.
func (c *Config) AllExcludePaths() []string {
	combined := make([]string, 0, len(defaultExcludePaths)+len(c.Index.ExcludePaths))
	combined = append(combined, defaultExcludePaths...)
	combined = append(combined, c.Index.ExcludePaths...)
	return combined
}

// SetTests overrides the tests setting (CLI flags win over the file).
func (c *Config) SetTests(v bool) { c.Index.Tests = &v }

// SetHover overrides the hover setting.
func (c *Config) SetHover(v bool) { c.Index.Hover = &v }

// Fingerprint renders the effective settings with defaults filled in. Two
// configs index a project identically iff their fingerprints are equal.
func (c *Config) Fingerprint() []byte {
	tests, hover, scheme := c.EffectiveTests(), c.EffectiveHover(), c.EffectiveScheme()
	eff := Config{
		Index: IndexConfig{
			ExcludePaths: c.AllExcludePaths(),
			Tests:        &tests,
			BuildTags:    c.Index.BuildTags,
			Hover:        &hover,
		},
		Monikers: MonikerConfig{
			Scheme:    &scheme,
			SourceDir: c.Monikers.SourceDir,
			OutputDir: c.Monikers.OutputDir,
		},
	}
	data, err := yaml.Marshal(&eff)
	if err != nil {
		panic(fmt.Sprintf("config: marshal fingerprint: %v", err))
	}
	return data
}
