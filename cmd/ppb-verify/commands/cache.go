package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"ppbverify/internal/components/chrono"

	"github.com/spf13/cobra"
)

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspects or clears the configured cache of one record kind.",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats [--kind <kind>]",
	Short: "Prints the cache statistics as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		verifier, err := newVerifier(ctx, selectedCfg, selectedKind(), chrono.NewStandardImpl(), cliTelemetry())
		if err != nil {
			return err
		}
		defer verifier.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(verifier.CacheStats(ctx))
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [--kind <kind>]",
	Short: "Removes every cached result of the record kind.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		verifier, err := newVerifier(ctx, selectedCfg, selectedKind(), chrono.NewStandardImpl(), cliTelemetry())
		if err != nil {
			return err
		}
		defer verifier.Close()

		if !verifier.ClearCache(ctx) {
			return fmt.Errorf("cache not enabled")
		}
		fmt.Println("Cache cleared successfully")
		return nil
	},
}
