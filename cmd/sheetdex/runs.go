package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent ingest runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		backend, err := openRunLog(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		records, err := backend.List(ctx, runsLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("No runs recorded (%s)\n", backend.Name())
			return nil
		}

		fmt.Printf("%-36s  %-20s  %-9s  %6s  %6s  %-16s  %s\n",
			"ID", "STARTED", "STATUS", "OK", "FAILED", "INDEX", "SOURCE")
		for _, r := range records {
			fmt.Printf("%-36s  %-20s  %-9s  %6d  %6d  %-16s  %s\n",
				r.ID,
				r.StartedAt.Local().Format(time.DateTime),
				r.Status,
				r.Succeeded,
				r.Failed,
				r.Index,
				r.Source)
			if r.Error != "" {
				fmt.Printf("    %s\n", r.Error)
			}
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to show (0 = all)")
}
