package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mriqsm/curate/internal/runrecord"
)

var statusCmd = &cobra.Command{
	Use:   "status <output_root>",
	Short: "Show the most recent run recorded under an output root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runrecord.Open(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		info, units, stages, err := store.LatestRun()
		if errors.Is(err, sql.ErrNoRows) {
			fmt.Println("No runs recorded.")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("Run %s  started %s\n", info.ID, info.StartedAt)
		fmt.Printf("  root: %s\n  output: %s\n\n", info.Root, info.OutputRoot)

		byUnit := make(map[string][]runrecord.StageRow)
		for _, s := range stages {
			key := s.Subject + "/" + s.Session
			byUnit[key] = append(byUnit[key], s)
		}

		for _, u := range units {
			key := u.Subject + "/" + u.Session
			fmt.Printf("%s  [%s]", key, u.Outcome)
			if u.Reason != "" {
				fmt.Printf("  %s", u.Reason)
			}
			fmt.Println()
			for _, s := range byUnit[key] {
				fmt.Printf("  %-18s %s", s.Stage, s.Status)
				if s.Detail != "" {
					fmt.Printf("  %s", s.Detail)
				}
				fmt.Println()
			}
		}
		return nil
	},
}
