// Package toolchain provides the exec-backed implementations of the
// pipeline's external tools: mask generation, N4 bias correction,
// reorientation, and registration. Each tool shells out to an external
// program and is judged only by the files the program leaves behind.
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mriqsm/curate/internal/pipeline"
)

// DefaultThreshold is the mask-generation detection threshold used when no
// override is configured.
const DefaultThreshold = 0.15

// Config selects the external programs and the mask threshold. Zero-value
// fields fall back to the defaults.
type Config struct {
	MaskCommand     string
	BiasCommand     string
	ReorientCommand string
	RegisterCommand string

	// Threshold is the mask-generation detection threshold. Zero means
	// DefaultThreshold.
	Threshold float64
}

func (c Config) withDefaults() Config {
	if c.MaskCommand == "" {
		c.MaskCommand = "mask_fov"
	}
	if c.BiasCommand == "" {
		c.BiasCommand = "n4_correction"
	}
	if c.ReorientCommand == "" {
		c.ReorientCommand = "reorient"
	}
	if c.RegisterCommand == "" {
		c.RegisterCommand = "coreg_pipeline"
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	return c
}

// New builds the pipeline toolchain from the config.
func New(cfg Config) pipeline.Toolchain {
	cfg = cfg.withDefaults()
	return pipeline.Toolchain{
		Mask:     MaskTool{Command: cfg.MaskCommand, Threshold: cfg.Threshold},
		Bias:     BiasTool{Command: cfg.BiasCommand},
		Reorient: ReorientTool{Command: cfg.ReorientCommand},
		Register: RegisterTool{Command: cfg.RegisterCommand},
	}
}

// runCommand executes one external program, blocking until it exits. On a
// non-zero exit the error carries the tail of the combined output, which
// is usually the only diagnostic these tools produce.
func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w%s", name, err, outputTail(out.String()))
	}
	return nil
}

// outputTail formats the last few lines of tool output for an error message.
func outputTail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return ": " + strings.Join(lines, " | ")
}
