package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Selection policies accepted in the config file.
const (
	PolicyPositional = "positional"
	PolicyChildCount = "child-count"
)

// ThresholdEnv overrides the configured mask threshold when set.
const ThresholdEnv = "CURATE_MASK_THRESHOLD"

// Config holds project-level settings loaded from curate.yml.
type Config struct {
	// SessionPrefix filters session folders during discovery; folders
	// not starting with it are ignored.
	SessionPrefix string `yaml:"sessionPrefix,omitempty"`

	// Selection chooses which qualifying session to stage per subject.
	Selection Selection `yaml:"selection,omitempty"`

	// Patterns maps artifact names to search globs, overriding the
	// built-in table entry by entry.
	Patterns map[string]string `yaml:"patterns,omitempty"`

	// ArchiveGlob locates the results archive within a session tree.
	ArchiveGlob string `yaml:"archiveGlob,omitempty"`

	// MaskMemberGlob selects the lesion mask member inside the archive.
	MaskMemberGlob string `yaml:"maskMemberGlob,omitempty"`

	// Tools overrides the external commands invoked per stage.
	Tools Tools `yaml:"tools,omitempty"`

	// MaskThreshold is passed to the mask generation tool.
	MaskThreshold float64 `yaml:"maskThreshold,omitempty"`

	// StageTimeout bounds each stage's tool invocation. Zero means
	// no limit.
	StageTimeout time.Duration `yaml:"stageTimeout,omitempty"`

	Verbose bool `yaml:"verbose,omitempty"`
}

// Selection configures per-subject session choice.
type Selection struct {
	// Policy is "positional" (default) or "child-count".
	Policy string `yaml:"policy,omitempty"`
	// Index is the position used by the positional policy.
	Index int `yaml:"index,omitempty"`
	// ChildCount is the folder count matched by the child-count policy.
	ChildCount int `yaml:"childCount,omitempty"`
}

// Tools names the external commands invoked by the pipeline stages.
type Tools struct {
	Mask     string `yaml:"mask,omitempty"`
	Bias     string `yaml:"bias,omitempty"`
	Reorient string `yaml:"reorient,omitempty"`
	Register string `yaml:"register,omitempty"`
}

// Load attempts to read curate.yml or curate.yaml from the given
// directory. Returns a zero-value config (not an error) if no config
// file exists.
func Load(dir string) (*Config, error) {
	for _, name := range []string{"curate.yml", "curate.yaml"} {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", name, err)
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	return &Config{}, nil
}

func (c *Config) validate() error {
	switch c.Selection.Policy {
	case "", PolicyPositional, PolicyChildCount:
	default:
		return fmt.Errorf("config: unknown selection policy %q", c.Selection.Policy)
	}
	if c.MaskThreshold < 0 {
		return fmt.Errorf("config: maskThreshold must be non-negative, got %g", c.MaskThreshold)
	}
	if c.StageTimeout < 0 {
		return fmt.Errorf("config: stageTimeout must be non-negative, got %s", c.StageTimeout)
	}
	return nil
}

// Threshold resolves the mask threshold with precedence: explicit flag
// value, then the CURATE_MASK_THRESHOLD environment variable, then the
// config file, then fallback.
func (c *Config) Threshold(flag float64, flagSet bool, fallback float64) (float64, error) {
	if flagSet {
		return flag, nil
	}
	if v, ok := os.LookupEnv(ThresholdEnv); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("config: parse %s=%q: %w", ThresholdEnv, v, err)
		}
		return f, nil
	}
	if c.MaskThreshold > 0 {
		return c.MaskThreshold, nil
	}
	return fallback, nil
}
