package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTool writes the given stems (relative to the unit dir) when run, or
// fails with err. A nil write list makes it a no-op.
type fakeTool struct {
	name   string
	writes []string
	err    error
	calls  int
	slow   time.Duration
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Run(ctx context.Context, u Unit) error {
	f.calls++
	if f.slow > 0 {
		select {
		case <-time.After(f.slow):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.err != nil {
		return f.err
	}
	for _, stem := range f.writes {
		full := filepath.Join(u.Dir, filepath.FromSlash(stem)+".nii.gz")
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(stem), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// reorientWrites is the canonical renamed set a well-behaved reorient tool
// leaves behind.
var reorientWrites = []string{
	"reoriented/T1_corrected_canonical",
	"reoriented/T2_FLAIR_corrected_canonical",
	"reoriented/mag_canonical",
	"reoriented/QSM_canonical",
}

// stagedUnit creates a unit dir holding the staged canonical files.
func stagedUnit(t *testing.T, stems ...string) Unit {
	t.Helper()
	dir := t.TempDir()
	for _, stem := range stems {
		require.NoError(t, os.WriteFile(filepath.Join(dir, stem+".nii.gz"), []byte(stem), 0o644))
	}
	return Unit{Subject: "P01", Session: "2023-04", Dir: dir}
}

func healthyTools() (Toolchain, *fakeTool, *fakeTool, *fakeTool, *fakeTool) {
	mask := &fakeTool{name: "mask", writes: []string{FileBrainMask, FileT1FOV}}
	bias := &fakeTool{name: "bias", writes: []string{FileT1Corrected, FileFLAIRCorrected}}
	reorient := &fakeTool{name: "reorient", writes: reorientWrites}
	register := &fakeTool{name: "register", writes: []string{FileT1Registered, FileFLAIRRegistered}}
	return Toolchain{Mask: mask, Bias: bias, Reorient: reorient, Register: register}, mask, bias, reorient, register
}

func TestRunUnit_AllStagesSucceed(t *testing.T) {
	u := stagedUnit(t, "T1", "T2_FLAIR", "mag", "QSM")
	tools, mask, bias, reorient, register := healthyTools()

	o := NewOrchestrator(tools, zap.NewNop())
	defer o.Close()

	result := o.RunUnit(context.Background(), u)
	assert.Equal(t, UnitSucceeded, result.Outcome)
	for _, s := range Stages {
		assert.Equal(t, StatusSucceeded, result.Stages[s], s.String())
	}
	assert.Equal(t, 1, mask.calls)
	assert.Equal(t, 1, bias.calls)
	assert.Equal(t, 1, reorient.calls)
	assert.Equal(t, 1, register.calls)
}

func TestRunUnit_ToolFailureAbandonsUnit(t *testing.T) {
	u := stagedUnit(t, "T1", "T2_FLAIR", "mag", "QSM")
	tools, _, bias, reorient, register := healthyTools()
	bias.err = errors.New("n4 diverged")

	o := NewOrchestrator(tools, zap.NewNop())
	defer o.Close()

	result := o.RunUnit(context.Background(), u)
	assert.Equal(t, UnitFailed, result.Outcome)
	assert.Contains(t, result.Reason, "bias-corrected")
	assert.Contains(t, result.Reason, "n4 diverged")

	assert.Equal(t, StatusSucceeded, result.Stages[StageMaskGenerated])
	assert.Equal(t, StatusFailed, result.Stages[StageBiasCorrected])
	assert.Equal(t, StatusSkipped, result.Stages[StageReoriented])
	assert.Equal(t, StatusSkipped, result.Stages[StageRegistered])
	assert.Zero(t, reorient.calls, "stages after the failure must not be attempted")
	assert.Zero(t, register.calls)
}

func TestRunUnit_MissingDeclaredOutputFailsStage(t *testing.T) {
	u := stagedUnit(t, "T1", "T2_FLAIR", "mag", "QSM")
	tools, mask, _, _, _ := healthyTools()
	mask.writes = []string{FileBrainMask} // tool "succeeds" but forgets T1_fov

	o := NewOrchestrator(tools, zap.NewNop())
	defer o.Close()

	result := o.RunUnit(context.Background(), u)
	assert.Equal(t, UnitFailed, result.Outcome)
	assert.Contains(t, result.Reason, FileT1FOV, "diagnostic names the missing output")
}

func TestRunUnit_MissingInputFailsBeforeToolRuns(t *testing.T) {
	u := stagedUnit(t, "T2_FLAIR", "mag", "QSM") // no T1
	tools, mask, _, _, _ := healthyTools()

	o := NewOrchestrator(tools, zap.NewNop())
	defer o.Close()

	result := o.RunUnit(context.Background(), u)
	assert.Equal(t, UnitFailed, result.Outcome)
	assert.Zero(t, mask.calls)
}

func TestRunUnit_ReorientMissingCanonicalMember(t *testing.T) {
	u := stagedUnit(t, "T1", "T2_FLAIR", "mag", "QSM")
	tools, _, _, reorient, _ := healthyTools()
	reorient.writes = reorientWrites[:3] // no QSM_canonical

	o := NewOrchestrator(tools, zap.NewNop())
	defer o.Close()

	result := o.RunUnit(context.Background(), u)
	assert.Equal(t, UnitFailed, result.Outcome)
	assert.Contains(t, result.Reason, "QSM")
}

func TestRunUnit_AbsentMaskDoesNotFailReorient(t *testing.T) {
	// No lesion mask anywhere: the canonical set check only demands the
	// required kinds.
	u := stagedUnit(t, "T1", "T2_FLAIR", "mag", "QSM")
	tools, _, _, _, _ := healthyTools()

	o := NewOrchestrator(tools, zap.NewNop())
	defer o.Close()

	result := o.RunUnit(context.Background(), u)
	assert.Equal(t, UnitSucceeded, result.Outcome)
}

func TestRunUnit_StageTimeout(t *testing.T) {
	u := stagedUnit(t, "T1", "T2_FLAIR", "mag", "QSM")
	tools, mask, _, _, _ := healthyTools()
	mask.slow = 500 * time.Millisecond

	o := NewOrchestrator(tools, zap.NewNop(), WithStageTimeout(20*time.Millisecond))
	defer o.Close()

	result := o.RunUnit(context.Background(), u)
	assert.Equal(t, UnitFailed, result.Outcome)
	assert.Equal(t, StatusFailed, result.Stages[StageMaskGenerated])
}

func TestRunAll_FailureIsolatedToUnit(t *testing.T) {
	good := stagedUnit(t, "T1", "T2_FLAIR", "mag", "QSM")
	bad := stagedUnit(t, "T2_FLAIR", "mag", "QSM")
	tools, _, _, _, _ := healthyTools()

	o := NewOrchestrator(tools, zap.NewNop())
	defer o.Close()

	summary := o.RunAll(context.Background(), []Unit{bad, good})
	require.Len(t, summary.Results, 2)
	assert.Equal(t, UnitFailed, summary.Results[0].Outcome)
	assert.Equal(t, UnitSucceeded, summary.Results[1].Outcome)
	assert.False(t, summary.AllFailed())

	succeeded, skipped, failed := summary.Counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, 1, failed)
}

func TestRunUnit_KnownMissingInputSkipsUnit(t *testing.T) {
	u := stagedUnit(t, "T1", "mag", "QSM")
	u.Missing = []string{"FLAIR"}
	tools, mask, bias, reorient, register := healthyTools()

	rec := &recordingRecorder{}
	o := NewOrchestrator(tools, zap.NewNop(), WithRecorder(rec))
	defer o.Close()

	result := o.RunUnit(context.Background(), u)
	assert.Equal(t, UnitSkipped, result.Outcome)
	assert.Contains(t, result.Reason, "FLAIR")
	for _, s := range Stages {
		assert.Equal(t, StatusSkipped, result.Stages[s], s.String())
	}

	// No external tool may run on a unit known to be incomplete, even
	// though the first stage's own inputs are all present.
	for _, tool := range []*fakeTool{mask, bias, reorient, register} {
		assert.Zero(t, tool.calls, tool.name)
	}

	require.Len(t, rec.stages, len(Stages))
	assert.Equal(t, "P01/2023-04 mask-generated skipped", rec.stages[0])
	require.Len(t, rec.units, 1)
	assert.Equal(t, "P01/2023-04 skipped", rec.units[0])
}

func TestRunAll_SkippedUnitDoesNotFailRun(t *testing.T) {
	complete := stagedUnit(t, "T1", "T2_FLAIR", "mag", "QSM")
	incomplete := stagedUnit(t, "T1", "mag", "QSM")
	incomplete.Missing = []string{"FLAIR"}
	tools, _, _, _, _ := healthyTools()

	o := NewOrchestrator(tools, zap.NewNop())
	defer o.Close()

	summary := o.RunAll(context.Background(), []Unit{incomplete, complete})
	succeeded, skipped, failed := summary.Counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 0, failed)
	assert.False(t, summary.AllFailed())
}

func TestSummary_AllFailed(t *testing.T) {
	s := Summary{Results: []UnitResult{{Outcome: UnitFailed}, {Outcome: UnitFailed}}}
	assert.True(t, s.AllFailed())
	assert.False(t, Summary{}.AllFailed(), "an empty run is not a failed run")
}

func TestProgress_CloseDrainsAllEvents(t *testing.T) {
	u := stagedUnit(t, "T1", "T2_FLAIR", "mag", "QSM")
	tools, _, _, _, _ := healthyTools()

	o := NewOrchestrator(tools, zap.NewNop())
	o.RunAll(context.Background(), []Unit{u})
	o.Close()

	// After Close a consumer ranging the channel sees every buffered
	// event and then terminates, so a caller can join on the drain before
	// printing its summary.
	var events []ProgressEvent
	for ev := range o.Progress() {
		events = append(events, ev)
	}
	require.Len(t, events, 2*len(Stages), "one working and one complete event per stage")
	assert.Equal(t, ProgressWorking, events[0].Status)
	assert.Equal(t, ProgressComplete, events[len(events)-1].Status)
}

// recordingRecorder captures recorder calls for assertions.
type recordingRecorder struct {
	stages []string
	units  []string
}

func (r *recordingRecorder) RecordStage(u Unit, s Stage, status StageStatus, detail string) error {
	r.stages = append(r.stages, u.Key()+" "+s.String()+" "+string(status))
	return nil
}

func (r *recordingRecorder) RecordUnit(u Unit, outcome UnitOutcome, reason string) error {
	r.units = append(r.units, u.Key()+" "+string(outcome))
	return nil
}

func TestRunUnit_RecorderSeesEveryTransition(t *testing.T) {
	u := stagedUnit(t, "T1", "T2_FLAIR", "mag", "QSM")
	tools, _, bias, _, _ := healthyTools()
	bias.err = errors.New("boom")

	rec := &recordingRecorder{}
	o := NewOrchestrator(tools, zap.NewNop(), WithRecorder(rec))
	defer o.Close()

	o.RunUnit(context.Background(), u)
	require.Len(t, rec.stages, len(Stages))
	assert.Equal(t, "P01/2023-04 mask-generated succeeded", rec.stages[0])
	assert.Equal(t, "P01/2023-04 bias-corrected failed", rec.stages[1])
	assert.Equal(t, "P01/2023-04 reoriented skipped", rec.stages[2])
	assert.Equal(t, "P01/2023-04 registered skipped", rec.stages[3])
	require.Len(t, rec.units, 1)
	assert.Equal(t, "P01/2023-04 failed", rec.units[0])
}
