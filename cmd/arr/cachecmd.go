package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"arr/internal/cache"
)

var flagCacheStateFile string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the persistent probe cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show entry count of the state file",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cache.NewResolutionCache(newLogger())
		if err := c.Load(flagCacheStateFile); err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "no state file")
				return nil
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d cached probe results\n", c.Len())
		return nil
	},
}

var cacheVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every cached entry against the filesystem",
	Long: `Verify re-reads every cached file and compares metadata digests, which
catches files rewritten without an mtime change that plain lookups would
trust.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cache.NewResolutionCache(newLogger())
		if err := c.Load(flagCacheStateFile); err != nil {
			return err
		}
		stale := 0
		for _, e := range c.Verify() {
			if e.Status != cache.VerifyFresh {
				stale++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-14s %s\n", e.Status, e.Path)
		}
		if stale > 0 {
			return fmt.Errorf("%d entries need reprobing", stale)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the state file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.Remove(flagCacheStateFile); err != nil && !os.IsNotExist(err) {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "state file removed")
		return nil
	},
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&flagCacheStateFile, "state-file", "arr.cache", "path of the persistent probe cache")
	cacheCmd.AddCommand(cacheStatusCmd, cacheVerifyCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
