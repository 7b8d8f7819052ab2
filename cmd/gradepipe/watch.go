package main

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-grade the configured assignments on the scheduler interval",
	Long: `watch runs a batch for every assignment listed under scheduler.assignments,
immediately and then once per scheduler.interval, until interrupted.
Results are exported but never posted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		application, logger, err := buildApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer application.Close()

		logger.Info("watching assignments")
		return application.Watch(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
