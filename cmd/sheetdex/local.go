package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sheetdex/sheetdex/pkg/mapping"
	"github.com/sheetdex/sheetdex/pkg/sheet"
)

var inspectSheet string

var inspectCmd = &cobra.Command{
	Use:   "inspect <file|s3://bucket/key>",
	Short: "Show the header of a workbook and the field each column maps to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		reader, err := newReader(ctx, args, inspectSheet)
		if err != nil {
			return err
		}
		header, err := reader.Headers(ctx, args[0])
		if err != nil {
			return err
		}
		if len(header) == 0 {
			fmt.Println("Workbook has no rows")
			return nil
		}

		collided := make(map[int]mapping.Collision)
		collisions := mapping.FindCollisions(header)
		for _, c := range collisions {
			collided[c.First] = c
			collided[c.Second] = c
		}

		fmt.Printf("%-4s %-30s %s\n", "COL", "HEADER", "FIELD")
		for i, h := range header {
			line := fmt.Sprintf("%-4d %-30q %s", i+1, h, mapping.Sanitize(h))
			if c, ok := collided[i]; ok {
				line += fmt.Sprintf("  ! collides (columns %d and %d)", c.First+1, c.Second+1)
			}
			fmt.Println(line)
		}

		if len(collisions) > 0 {
			fmt.Printf("\n%d collision(s): with the last_wins policy the rightmost column wins\n", len(collisions))
		}
		return nil
	},
}

var sampleCmd = &cobra.Command{
	Use:   "sample <out.xlsx>",
	Short: "Write a sample workbook to try ingestion with",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := sheet.WriteSample(args[0], time.Now()); err != nil {
			return err
		}
		fmt.Printf("Sample workbook written to %s\n", args[0])
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectSheet, "sheet", "", "Sheet to read (default: first sheet)")
}
