package toolchain

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/mriqsm/curate/internal/artifact"
	"github.com/mriqsm/curate/internal/pipeline"
)

// MaskTool generates a binary brain mask plus a field-of-view-adjusted
// image from the staged T1.
type MaskTool struct {
	Command   string
	Threshold float64
}

func (t MaskTool) Name() string { return t.Command }

func (t MaskTool) args(u pipeline.Unit) ([]string, error) {
	t1 := pipeline.Find(u.Dir, artifact.T1.Stem())
	if t1 == "" {
		return nil, fmt.Errorf("no staged T1 in %s", u.Dir)
	}
	return []string{
		"--input", t1,
		"--output_mask", filepath.Join(u.Dir, pipeline.FileBrainMask+".nii.gz"),
		"--output_image", filepath.Join(u.Dir, pipeline.FileT1FOV+".nii.gz"),
		"--threshold", strconv.FormatFloat(t.Threshold, 'g', -1, 64),
	}, nil
}

func (t MaskTool) Run(ctx context.Context, u pipeline.Unit) error {
	args, err := t.args(u)
	if err != nil {
		return err
	}
	return runCommand(ctx, t.Command, args...)
}

// BiasTool applies N4 bias-field correction to the FOV-adjusted T1 and the
// staged FLAIR, both against the generated brain mask. Correction
// parameters follow the collaborator's defaults (shrink factor 4,
// convergence 1e-7, 50 iterations per resolution level).
type BiasTool struct {
	Command string
}

func (t BiasTool) Name() string { return t.Command }

func (t BiasTool) invocations(u pipeline.Unit) ([][]string, error) {
	mask := pipeline.Find(u.Dir, pipeline.FileBrainMask)
	if mask == "" {
		return nil, fmt.Errorf("no brain mask in %s", u.Dir)
	}

	pairs := []struct{ in, out string }{
		{pipeline.FileT1FOV, pipeline.FileT1Corrected},
		{artifact.FLAIR.Stem(), pipeline.FileFLAIRCorrected},
	}

	var invocations [][]string
	for _, p := range pairs {
		in := pipeline.Find(u.Dir, p.in)
		if in == "" {
			return nil, fmt.Errorf("no %s in %s", p.in, u.Dir)
		}
		invocations = append(invocations, []string{
			"--input_image", in,
			"--mask_image", mask,
			"--output_image", filepath.Join(u.Dir, p.out+".nii.gz"),
		})
	}
	return invocations, nil
}

func (t BiasTool) Run(ctx context.Context, u pipeline.Unit) error {
	invocations, err := t.invocations(u)
	if err != nil {
		return err
	}
	for _, args := range invocations {
		if err := runCommand(ctx, t.Command, args...); err != nil {
			return err
		}
	}
	return nil
}

// ReorientTool reorients the fixed artifact set to canonical orientation.
// The external program renames its outputs (a "_canonical" infix), so the
// orchestrator re-resolves them afterwards rather than trusting fixed
// names.
type ReorientTool struct {
	Command string
}

func (t ReorientTool) Name() string { return t.Command }

func (t ReorientTool) args(u pipeline.Unit) ([]string, error) {
	required := []string{
		pipeline.FileT1Corrected,
		pipeline.FileFLAIRCorrected,
		artifact.Magnitude.Stem(),
		artifact.QSM.Stem(),
	}

	args := []string{"--input"}
	for _, stem := range required {
		path := pipeline.Find(u.Dir, stem)
		if path == "" {
			return nil, fmt.Errorf("no %s in %s", stem, u.Dir)
		}
		args = append(args, path)
	}

	// Optional members ride along when present.
	for _, stem := range []string{artifact.LesionMask.Stem(), pipeline.FileBrainMask} {
		if path := pipeline.Find(u.Dir, stem); path != "" {
			args = append(args, path)
		}
	}

	args = append(args, "--output_dir", filepath.Join(u.Dir, pipeline.DirReoriented))
	return args, nil
}

func (t ReorientTool) Run(ctx context.Context, u pipeline.Unit) error {
	args, err := t.args(u)
	if err != nil {
		return err
	}
	return runCommand(ctx, t.Command, args...)
}

// RegisterTool registers the canonical T1 to the magnitude image and
// carries the transform over to the FLAIR (linear interpolation) and the
// lesion mask (nearest neighbor) when one exists.
type RegisterTool struct {
	Command string
}

func (t RegisterTool) Name() string { return t.Command }

func (t RegisterTool) args(u pipeline.Unit) ([]string, error) {
	dir := filepath.Join(u.Dir, pipeline.DirReoriented)
	found, err := artifact.Resolve(dir, artifact.DefaultSubstrings())
	if err != nil {
		return nil, err
	}

	for _, kind := range []artifact.Kind{artifact.T1, artifact.FLAIR, artifact.Magnitude} {
		if _, ok := found[kind]; !ok {
			return nil, fmt.Errorf("no canonical %s in %s", kind, dir)
		}
	}

	args := []string{
		"--t1", found[artifact.T1],
		"--flair", found[artifact.FLAIR],
		"--magnitude", found[artifact.Magnitude],
		"--out_dir", filepath.Join(u.Dir, pipeline.DirRegistered),
	}
	if mask, ok := found[artifact.LesionMask]; ok {
		args = append(args, "--mask", mask)
	}
	return args, nil
}

func (t RegisterTool) Run(ctx context.Context, u pipeline.Unit) error {
	args, err := t.args(u)
	if err != nil {
		return err
	}
	return runCommand(ctx, t.Command, args...)
}
