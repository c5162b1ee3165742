package main

import (
	"github.com/spf13/cobra"

	"arr/internal/logging"
)

var (
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:   "arr",
	Short: "Assembly reference resolver",
	Long: `arr computes the transitive closure of assembly references for a
project, chooses one concrete file per assembly identity, decides which
files are copied to the output directory, and explains every decision in
a structured log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "human", "log format (human, json)")
}

func newLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.Format(flagLogFormat),
		Level:  logging.LogLevel(flagLogLevel),
	})
}
