package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"ppbverify/internal/components/chrono"
	"ppbverify/internal/verify"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	verifyNoCache bool
	verifyJSON    bool
)

func init() {
	verifyCmd.Flags().BoolVar(&verifyNoCache, "no-cache", false, "Bypass the cache for these lookups.")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Print the response envelopes as JSON lines.")
	rootCmd.AddCommand(verifyCmd)
}

func renderResults(out io.Writer, key string, results []verify.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{key, "Success", "Message", "From cache", "Time (ms)"})
	for _, result := range results {
		s := result.Summary()
		t.AppendRow(table.Row{s.Identifier, s.Success, s.Message, s.FromCache, fmt.Sprintf("%.2f", s.ProcessingTimeMS)})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

var verifyCmd = &cobra.Command{
	Use:   "verify [--kind <kind>] <identifier>...",
	Short: "Verifies identifiers against the portal and prints the results.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		verifier, err := newVerifier(ctx, selectedCfg, selectedKind(), chrono.NewStandardImpl(), cliTelemetry())
		if err != nil {
			return err
		}
		defer verifier.Close()

		results := make([]verify.Result, 0, len(args))
		for _, id := range args {
			results = append(results, verifier.VerifyResult(ctx, id, !verifyNoCache))
		}

		if verifyJSON {
			enc := json.NewEncoder(os.Stdout)
			for _, result := range results {
				if err := enc.Encode(result); err != nil {
					return err
				}
			}
			return nil
		}
		renderResults(os.Stdout, verifier.IdentifierKey(), results)
		return nil
	},
}
