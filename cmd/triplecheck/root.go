package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var schemaFlag string
	var logLevelFlag string

	ctx := newCommandContext(&schemaFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "triplecheck",
		Short:         "Validate harvested records through schema, cross-reference and external checks",
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

	rootCmd.PersistentFlags().StringVar(&schemaFlag, "schema", "", "YAML schema registry file (overrides TRIPLECHECK_SCHEMA_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "warn", "Log level for engine diagnostics on stderr")

	rootCmd.AddCommand(newValidateCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newSchemasCommand(ctx))

	return rootCmd
}
