package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func AllocateAutoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "allocate-auto",
		Short: "Run one automatic allocation pass and print the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.engine.ProcessAutomatic(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "allocated: %d\nskipped: %d\n", summary.Allocated, summary.Skipped)
			return nil
		},
	}
}
