package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mriqsm/curate/internal/dataset"
)

var compareCmd = &cobra.Command{
	Use:   "compare <baseline_root> <followup_root>",
	Short: "Compare the subject populations of two study roots",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		overlap, err := dataset.CompareRoots(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		printIDs := func(label string, ids dataset.IDSet) {
			fmt.Printf("%s (%d):\n", label, len(ids))
			for _, id := range ids.Sorted() {
				fmt.Printf("  %s\n", id)
			}
		}
		printIDs("in both", overlap.Both)
		printIDs("baseline only", overlap.OnlyBaseline)
		printIDs("follow-up only", overlap.OnlyFollowup)
		return nil
	},
}
