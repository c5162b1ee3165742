package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"arr/internal/config"
	"arr/internal/declog"
	"arr/internal/report"
	"arr/internal/resolve"
)

var (
	flagResolveConfig string
	flagReport        string
	flagAutoUnify     bool
	flagSilent        bool
	flagStateFile     string
	flagNoDeps        bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Run one resolver invocation from a config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(flagResolveConfig)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("auto-unify") {
			cfg.AutoUnify = flagAutoUnify
		}
		if cmd.Flags().Changed("silent") {
			cfg.Silent = flagSilent
		}
		if cmd.Flags().Changed("state-file") {
			cfg.StateFile = flagStateFile
		}
		if flagNoDeps {
			cfg.FindDependencies = false
		}

		logger := newLogger()
		opts := []resolve.Option{}
		if !cfg.Silent {
			opts = append(opts, resolve.WithSink(declog.NewTextSink(cmd.OutOrStdout())))
		}

		result, err := resolve.New(cfg, logger, opts...).Run(cmd.Context())
		if err != nil {
			return err
		}

		if flagReport != "" {
			if err := report.Write(flagReport, result); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "resolved %d primary and %d dependency files, %d copy-local\n",
			len(result.ResolvedFiles), len(result.ResolvedDependencyFiles), len(result.CopyLocalFiles))
		for _, s := range result.SuggestedRedirects {
			fmt.Fprintf(cmd.OutOrStdout(), "suggested redirect: %s -> %s\n", s.Partial, s.MaxVersion)
		}
		if !result.Success {
			return fmt.Errorf("resolution completed with errors")
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVarP(&flagResolveConfig, "config", "c", "arr.json", "resolver configuration file")
	resolveCmd.Flags().StringVar(&flagReport, "report", "", "write the output tables to this file (.json, .yaml or .toml)")
	resolveCmd.Flags().BoolVar(&flagAutoUnify, "auto-unify", false, "synthesize binding redirects to settle version conflicts")
	resolveCmd.Flags().BoolVar(&flagSilent, "silent", false, "suppress the per-reference log block")
	resolveCmd.Flags().StringVar(&flagStateFile, "state-file", "", "path of the persistent probe cache")
	resolveCmd.Flags().BoolVar(&flagNoDeps, "no-dependencies", false, "resolve primaries only")
	rootCmd.AddCommand(resolveCmd)
}
