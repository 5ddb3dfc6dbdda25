// Package pipeline drives one staged (subject, session) unit through the
// ordered external processing stages: mask generation, bias correction,
// reorientation to canonical space, and registration into magnitude space.
//
// Each stage is a single blocking call to an external tool. The
// orchestrator never interprets a tool's internals; it gates progression
// purely on the declared filesystem effects, and it isolates every failure
// to the unit at hand so one subject can never halt the batch.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
)

// Stage identifies one step of the per-unit pipeline, in execution order.
type Stage int

const (
	StageMaskGenerated Stage = iota
	StageBiasCorrected
	StageReoriented
	StageRegistered
)

// Stages lists the pipeline stages in execution order.
var Stages = [...]Stage{StageMaskGenerated, StageBiasCorrected, StageReoriented, StageRegistered}

func (s Stage) String() string {
	names := [...]string{"mask-generated", "bias-corrected", "reoriented", "registered"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// Unit is one staged (subject, session) pair, rooted at its canonical
// output directory. Units share no mutable state with each other.
//
// Missing names required artifacts the staging pass could not resolve.
// A non-empty Missing skips the unit before any stage is attempted; no
// external tool ever runs on a unit known to be incomplete.
type Unit struct {
	Subject string
	Session string
	Dir     string
	Missing []string
}

// Key returns "subject/session" for logs and records.
func (u Unit) Key() string {
	return u.Subject + "/" + u.Session
}

// StageStatus is the derived state of one stage for one unit.
type StageStatus string

const (
	StatusNotStarted StageStatus = "not-started"
	StatusSucceeded  StageStatus = "succeeded"
	StatusSkipped    StageStatus = "skipped"
	StatusFailed     StageStatus = "failed"
)

// UnitOutcome classifies how a unit ended.
type UnitOutcome string

const (
	UnitSucceeded UnitOutcome = "succeeded"
	UnitSkipped   UnitOutcome = "skipped"
	UnitFailed    UnitOutcome = "failed"
)

// UnitResult is the per-unit record of a run: the outcome, the diagnostic
// for a skip or failure, and the status of every stage.
type UnitResult struct {
	Unit    Unit
	Outcome UnitOutcome
	Reason  string
	Stages  map[Stage]StageStatus
}

// Summary aggregates unit results for one run.
type Summary struct {
	Results []UnitResult
}

// Counts returns the number of succeeded, skipped, and failed units.
func (s Summary) Counts() (succeeded, skipped, failed int) {
	for _, r := range s.Results {
		switch r.Outcome {
		case UnitSucceeded:
			succeeded++
		case UnitSkipped:
			skipped++
		case UnitFailed:
			failed++
		}
	}
	return
}

// AllFailed reports whether every unit in a non-empty run failed. Only
// then does a run exit non-zero for unit-scoped reasons.
func (s Summary) AllFailed() bool {
	_, _, failed := s.Counts()
	return len(s.Results) > 0 && failed == len(s.Results)
}

// Stage filenames produced by the toolchain, relative to the unit dir.
// Stems only: Find probes the NIfTI extension variants.
const (
	FileBrainMask      = "brain_mask"
	FileT1FOV          = "T1_fov"
	FileT1Corrected    = "T1_corrected"
	FileFLAIRCorrected = "T2_FLAIR_corrected"

	DirReoriented = "reoriented"
	DirRegistered = "registered"

	FileT1Registered    = DirRegistered + "/T1_toMag"
	FileFLAIRRegistered = DirRegistered + "/FLAIR_toMag"
)

// Find returns the path of stem under dir with either NIfTI extension, or
// "" when neither exists. stem may contain a relative subdirectory.
func Find(dir, stem string) string {
	for _, ext := range []string{".nii.gz", ".nii"} {
		path := filepath.Join(dir, filepath.FromSlash(stem)+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Tool is one external processing step. Run blocks until the tool exits;
// the tool's only observable contract is the files it leaves behind.
type Tool interface {
	Name() string
	Run(ctx context.Context, u Unit) error
}

// Toolchain groups the four external tools a unit passes through.
type Toolchain struct {
	Mask     Tool
	Bias     Tool
	Reorient Tool
	Register Tool
}

func (tc Toolchain) forStage(s Stage) Tool {
	switch s {
	case StageMaskGenerated:
		return tc.Mask
	case StageBiasCorrected:
		return tc.Bias
	case StageReoriented:
		return tc.Reorient
	case StageRegistered:
		return tc.Register
	default:
		return nil
	}
}
