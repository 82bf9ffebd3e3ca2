package main

import (
	"github.com/spf13/cobra"

	"github.com/xhad/minutemate/pkg/logger"
)

func newRootCommand(newApp appFactory, log *logger.Logger) *cobra.Command {
	var configFlag, envFlag, levelFlag string

	ctx := newCommandContext(&configFlag, &envFlag, &levelFlag, newApp)
	ctx.log = log

	rootCmd := &cobra.Command{
		Use:           "minutemate",
		Short:         "Ingest municipal meeting records and answer questions about them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&envFlag, "env-file", ".env", "Environment file to load before reading config")
	rootCmd.PersistentFlags().StringVar(&levelFlag, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newIngestCommand(ctx))
	rootCmd.AddCommand(newReprocessCommand(ctx))
	rootCmd.AddCommand(newAskCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newHarvestCommand(ctx))

	return rootCmd
}
