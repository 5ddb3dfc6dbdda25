package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mriqsm/curate/internal/artifact"
)

// Recorder persists per-unit, per-stage status. Implementations must
// tolerate being called once per transition; a nil Recorder disables
// recording.
type Recorder interface {
	RecordStage(u Unit, s Stage, status StageStatus, detail string) error
	RecordUnit(u Unit, outcome UnitOutcome, reason string) error
}

// Orchestrator runs the stage sequence over units, strictly sequentially:
// no stage begins before the prior one in the same unit completes, and no
// unit begins before the previous unit ends.
type Orchestrator struct {
	tools    Toolchain
	log      *zap.Logger
	rec      Recorder
	progress *ProgressReporter

	// timeout bounds each stage invocation. Zero preserves the baseline
	// behavior: a blocking call with no timeout.
	timeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder attaches a status recorder.
func WithRecorder(rec Recorder) Option {
	return func(o *Orchestrator) { o.rec = rec }
}

// WithStageTimeout bounds each external stage invocation.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// NewOrchestrator creates an Orchestrator around the given toolchain.
func NewOrchestrator(tools Toolchain, log *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tools:    tools,
		log:      log,
		progress: NewProgressReporter(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Progress returns a channel emitting progress events during a run.
func (o *Orchestrator) Progress() <-chan ProgressEvent {
	return o.progress.Subscribe()
}

// Close shuts down the progress reporter.
func (o *Orchestrator) Close() {
	o.progress.Close()
}

// stageDef declares, per stage, the inputs that must exist before the tool
// runs and the check that its declared outputs exist afterwards.
type stageDef struct {
	stage    Stage
	requires func(u Unit) error
	verify   func(u Unit) error
}

func (o *Orchestrator) stageDefs() []stageDef {
	return []stageDef{
		{
			stage:    StageMaskGenerated,
			requires: stems(artifact.T1.Stem()),
			verify:   stems(FileBrainMask, FileT1FOV),
		},
		{
			stage:    StageBiasCorrected,
			requires: stems(FileT1FOV, artifact.FLAIR.Stem(), FileBrainMask),
			verify:   stems(FileT1Corrected, FileFLAIRCorrected),
		},
		{
			stage:    StageReoriented,
			requires: stems(FileT1Corrected, FileFLAIRCorrected, artifact.Magnitude.Stem(), artifact.QSM.Stem()),
			// The reorientation tool renames its outputs, so completion is
			// checked by the substring re-resolution pass, not by fixed
			// filenames. A missing optional mask does not fail the unit.
			verify: canonicalSet,
		},
		{
			stage:    StageRegistered,
			requires: canonicalSet,
			verify:   stems(FileT1Registered, FileFLAIRRegistered),
		},
	}
}

// stems returns a check that every given stem exists under the unit dir.
func stems(names ...string) func(Unit) error {
	return func(u Unit) error {
		for _, name := range names {
			if Find(u.Dir, name) == "" {
				return fmt.Errorf("missing %s", name)
			}
		}
		return nil
	}
}

// canonicalSet checks the reoriented directory holds a re-resolvable file
// for every required artifact kind.
func canonicalSet(u Unit) error {
	dir := filepath.Join(u.Dir, DirReoriented)
	found, err := artifact.Resolve(dir, artifact.DefaultSubstrings())
	if err != nil {
		return fmt.Errorf("re-resolve %s: %w", dir, err)
	}
	for _, kind := range artifact.Kinds {
		if !kind.Required() {
			continue
		}
		if _, ok := found[kind]; !ok {
			return fmt.Errorf("missing canonical %s", kind)
		}
	}
	return nil
}

// RunUnit drives one unit through every stage in order. The first stage
// whose inputs are absent, whose tool fails, or whose declared outputs are
// missing afterwards fails the unit; remaining stages are marked skipped
// and never invoked.
func (o *Orchestrator) RunUnit(ctx context.Context, u Unit) UnitResult {
	result := UnitResult{
		Unit:    u,
		Outcome: UnitSucceeded,
		Stages:  make(map[Stage]StageStatus, len(Stages)),
	}
	for _, s := range Stages {
		result.Stages[s] = StatusNotStarted
	}

	if len(u.Missing) > 0 {
		result.Outcome = UnitSkipped
		result.Reason = fmt.Sprintf("missing required input: %s", strings.Join(u.Missing, ", "))
		for _, s := range Stages {
			result.Stages[s] = StatusSkipped
			o.record(u, s, StatusSkipped, result.Reason)
		}
		if o.rec != nil {
			if err := o.rec.RecordUnit(u, result.Outcome, result.Reason); err != nil {
				o.log.Warn("record unit", zap.String("unit", u.Key()), zap.Error(err))
			}
		}
		return result
	}

	for _, def := range o.stageDefs() {
		if result.Outcome == UnitFailed {
			result.Stages[def.stage] = StatusSkipped
			o.record(u, def.stage, StatusSkipped, result.Reason)
			continue
		}

		status, detail := o.runStage(ctx, def, u)
		result.Stages[def.stage] = status
		o.record(u, def.stage, status, detail)

		if status == StatusFailed {
			result.Outcome = UnitFailed
			result.Reason = fmt.Sprintf("%s: %s", def.stage, detail)
		}
	}

	if o.rec != nil {
		if err := o.rec.RecordUnit(u, result.Outcome, result.Reason); err != nil {
			o.log.Warn("record unit", zap.String("unit", u.Key()), zap.Error(err))
		}
	}
	return result
}

// runStage gates on inputs, invokes the tool, and validates outputs.
func (o *Orchestrator) runStage(ctx context.Context, def stageDef, u Unit) (StageStatus, string) {
	o.progress.Emit(ProgressEvent{Unit: u.Key(), Stage: def.stage, Status: ProgressWorking})

	if err := def.requires(u); err != nil {
		o.emitFailed(u, def.stage, err)
		return StatusFailed, fmt.Sprintf("input %v", err)
	}

	tool := o.tools.forStage(def.stage)
	if tool == nil {
		err := fmt.Errorf("no tool configured")
		o.emitFailed(u, def.stage, err)
		return StatusFailed, err.Error()
	}

	runCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	if err := tool.Run(runCtx, u); err != nil {
		o.emitFailed(u, def.stage, err)
		return StatusFailed, fmt.Sprintf("%s: %v", tool.Name(), err)
	}

	if err := def.verify(u); err != nil {
		o.emitFailed(u, def.stage, err)
		return StatusFailed, fmt.Sprintf("output %v", err)
	}

	o.progress.Emit(ProgressEvent{Unit: u.Key(), Stage: def.stage, Status: ProgressComplete})
	return StatusSucceeded, ""
}

func (o *Orchestrator) emitFailed(u Unit, s Stage, err error) {
	o.progress.Emit(ProgressEvent{Unit: u.Key(), Stage: s, Status: ProgressFailed, Message: err.Error()})
}

func (o *Orchestrator) record(u Unit, s Stage, status StageStatus, detail string) {
	if o.rec == nil {
		return
	}
	if err := o.rec.RecordStage(u, s, status, detail); err != nil {
		o.log.Warn("record stage", zap.String("unit", u.Key()), zap.Stringer("stage", s), zap.Error(err))
	}
}

// RunAll processes units sequentially. A unit-scoped failure is logged as
// a warning and the loop moves on; the summary decides the exit outcome.
func (o *Orchestrator) RunAll(ctx context.Context, units []Unit) Summary {
	var summary Summary
	for _, u := range units {
		result := o.RunUnit(ctx, u)
		summary.Results = append(summary.Results, result)

		switch result.Outcome {
		case UnitFailed:
			o.log.Warn("unit failed",
				zap.String("unit", u.Key()),
				zap.String("reason", result.Reason))
		case UnitSkipped:
			o.log.Warn("unit skipped",
				zap.String("unit", u.Key()),
				zap.String("reason", result.Reason))
		default:
			o.log.Info("unit complete", zap.String("unit", u.Key()))
		}
	}
	return summary
}
