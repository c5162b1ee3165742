package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"arr/internal/declog"
)

var (
	flagLogDB        string
	flagLogKind      string
	flagLogReference string
	flagLogLimit     int
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Query a persisted decision log",
	Long: `Reads the SQLite decision log written by "arr resolve" when
decisionLogDb is configured, and prints the recorded events of the
latest invocation in the file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := declog.Query(flagLogDB, declog.QueryOptions{
			Kind:      flagLogKind,
			Reference: flagLogReference,
			Limit:     flagLogLimit,
		})
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no events")
			return nil
		}
		sink := declog.NewTextSink(cmd.OutOrStdout())
		for _, ev := range events {
			if err := sink.Write(ev); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	logCmd.Flags().StringVar(&flagLogDB, "db", "arr-log.db", "decision log database")
	logCmd.Flags().StringVar(&flagLogKind, "kind", "", "filter by event kind")
	logCmd.Flags().StringVar(&flagLogReference, "reference", "", "filter by reference fusion name")
	logCmd.Flags().IntVar(&flagLogLimit, "limit", 0, "maximum events to print")
	rootCmd.AddCommand(logCmd)
}
