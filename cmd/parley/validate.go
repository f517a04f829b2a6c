package main

import (
	"fmt"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the flows for consistency",
	Long:  `Loads every flow and reports schema errors and transitions pointing to missing flows or nodes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		report, err := cli.Validate(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, issue := range report.Issues {
			fmt.Fprintf(out, "  - %s\n", issue)
		}
		if !report.OK() {
			return fmt.Errorf("validation failed: %d flows loaded, %d dropped, %d issues",
				report.Loaded, len(report.Dropped), len(report.Issues))
		}
		fmt.Fprintf(out, "%d flows are valid.\n", report.Loaded)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
