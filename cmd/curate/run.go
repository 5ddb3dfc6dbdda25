package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mriqsm/curate/internal/pipeline"
	"github.com/mriqsm/curate/internal/pipeline/toolchain"
	"github.com/mriqsm/curate/internal/runrecord"
)

var thresholdFlag float64

var runCmd = &cobra.Command{
	Use:   "run <root> <output_root>",
	Short: "Stage all subjects, then run the processing pipeline per unit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, outputRoot := args[0], args[1]

		threshold, err := cfg.Threshold(thresholdFlag,
			cmd.Flags().Changed("threshold"), toolchain.DefaultThreshold)
		if err != nil {
			return err
		}

		units, err := stageAll(root, outputRoot)
		if err != nil {
			return err
		}
		if len(units) == 0 {
			return fmt.Errorf("no units staged under %s", root)
		}

		store, err := runrecord.Open(outputRoot)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.StartRun(root, outputRoot)
		if err != nil {
			return err
		}

		tools := toolchain.New(toolchain.Config{
			MaskCommand:     cfg.Tools.Mask,
			BiasCommand:     cfg.Tools.Bias,
			ReorientCommand: cfg.Tools.Reorient,
			RegisterCommand: cfg.Tools.Register,
			Threshold:       threshold,
		})

		opts := []pipeline.Option{pipeline.WithRecorder(rec)}
		if cfg.StageTimeout > 0 {
			opts = append(opts, pipeline.WithStageTimeout(cfg.StageTimeout))
		}
		orch := pipeline.NewOrchestrator(tools, logger, opts...)

		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for ev := range orch.Progress() {
				fmt.Println(pipeline.FormatProgress(ev))
			}
		}()

		summary := orch.RunAll(cmd.Context(), units)

		// Close the progress channel and wait for the printer to drain it
		// so the summary line lands after every stage line.
		orch.Close()
		<-drained

		succeeded, skipped, failed := summary.Counts()
		fmt.Printf("run complete: %d succeeded, %d skipped, %d failed\n",
			succeeded, skipped, failed)

		if summary.AllFailed() {
			return fmt.Errorf("all %d unit(s) failed", failed)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Float64Var(&thresholdFlag, "threshold", toolchain.DefaultThreshold,
		"mask-generation detection threshold")
}
