package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mriqsm/curate/internal/artifact"
	"github.com/mriqsm/curate/internal/config"
	"github.com/mriqsm/curate/internal/dataset"
	"github.com/mriqsm/curate/internal/pipeline"
	"github.com/mriqsm/curate/internal/staging"
)

var selectFlags struct {
	Policy     string
	Index      int
	ChildCount int
}

var stageCmd = &cobra.Command{
	Use:   "stage <root> <output_root>",
	Short: "Select one session per subject and stage its artifacts",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		units, err := stageAll(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("staged %d unit(s) under %s\n", len(units), args[1])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{stageCmd, runCmd} {
		c.Flags().StringVar(&selectFlags.Policy, "select", "",
			"session selection policy: positional or child-count")
		c.Flags().IntVar(&selectFlags.Index, "index", -1,
			"0-based session index for the positional policy")
		c.Flags().IntVar(&selectFlags.ChildCount, "child-count", 0,
			"immediate child-directory count for the child-count policy")
	}
}

// selection merges flag overrides into the configured selection policy.
// The default is positional index 1: the second acquisition.
func selection() (config.Selection, error) {
	sel := cfg.Selection
	if selectFlags.Policy != "" {
		sel.Policy = selectFlags.Policy
	}
	if selectFlags.Index >= 0 {
		sel.Index = selectFlags.Index
	}
	if selectFlags.ChildCount > 0 {
		sel.ChildCount = selectFlags.ChildCount
	}

	switch sel.Policy {
	case "":
		sel.Policy = config.PolicyPositional
		if selectFlags.Index < 0 && sel.Index == 0 {
			sel.Index = 1
		}
	case config.PolicyPositional, config.PolicyChildCount:
	default:
		return config.Selection{}, fmt.Errorf("unknown selection policy %q", sel.Policy)
	}
	return sel, nil
}

func selectSession(sessions []dataset.Session, sel config.Selection) (dataset.Session, error) {
	if sel.Policy == config.PolicyChildCount {
		return dataset.SelectByChildCount(sessions, sel.ChildCount)
	}
	return dataset.SelectPositional(sessions, sel.Index)
}

// locatorTable is the built-in glob table with config overrides applied.
func locatorTable() (artifact.Table, error) {
	table := artifact.DefaultTable()
	for name, glob := range cfg.Patterns {
		kind, ok := artifact.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown artifact %q in patterns", name)
		}
		table[kind] = glob
	}
	return table, nil
}

// stageAll discovers subjects under root, selects one session each, and
// stages the selected sessions under outputRoot. Subjects whose selection
// or staging fails are logged and skipped; only a root-level failure
// aborts the walk. Units missing a required artifact are staged partially
// and marked so the pipeline skips them without invoking any stage.
func stageAll(root, outputRoot string) ([]pipeline.Unit, error) {
	sel, err := selection()
	if err != nil {
		return nil, err
	}
	table, err := locatorTable()
	if err != nil {
		return nil, err
	}

	archiveGlob := cfg.ArchiveGlob
	if archiveGlob == "" {
		archiveGlob = artifact.DefaultArchiveGlob
	}
	memberGlob := cfg.MaskMemberGlob
	if memberGlob == "" {
		memberGlob = staging.DefaultMaskMemberGlob
	}

	subjects, err := dataset.Subjects(root)
	if err != nil {
		return nil, err
	}

	var units []pipeline.Unit
	for _, subj := range subjects {
		catalog := dataset.Catalog{Subject: subj, Prefix: cfg.SessionPrefix}
		sessions, err := catalog.Sessions()
		if err != nil {
			logger.Warn("skipping subject", zap.String("subject", subj.ID), zap.Error(err))
			continue
		}

		session, err := selectSession(sessions, sel)
		if err != nil {
			logger.Warn("skipping subject", zap.String("subject", subj.ID), zap.Error(err))
			continue
		}

		manifest, err := staging.Resolve(session, outputRoot, table, archiveGlob)
		if err != nil {
			logger.Warn("skipping subject", zap.String("subject", subj.ID), zap.Error(err))
			continue
		}
		var missing []string
		for _, kind := range manifest.MissingRequired {
			logger.Warn("required artifact not found",
				zap.String("unit", subj.ID+"/"+session.Name),
				zap.Stringer("artifact", kind))
			missing = append(missing, kind.String())
		}

		staged, err := staging.Write(manifest, memberGlob)
		if err != nil {
			// Archive trouble degrades the unit (mask absent) rather
			// than dropping it; the staged files are already in place.
			logger.Warn("staging incomplete",
				zap.String("unit", subj.ID+"/"+session.Name), zap.Error(err))
		}
		logger.Info("staged",
			zap.String("unit", subj.ID+"/"+session.Name),
			zap.Int("artifacts", len(staged)),
			zap.Bool("complete", manifest.Complete()))

		units = append(units, pipeline.Unit{
			Subject: subj.ID,
			Session: session.Name,
			Dir:     manifest.Dir,
			Missing: missing,
		})
	}
	return units, nil
}
