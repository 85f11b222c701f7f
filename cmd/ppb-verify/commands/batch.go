package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"ppbverify/internal/components/chrono"
	"ppbverify/internal/store"
	"ppbverify/internal/verify"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	batchDB          string
	batchConcurrency int
	batchNoCache     bool
)

func init() {
	batchCmd.Flags().StringVar(&batchDB, "db", "results.db", "The sqlite file or libsql:// url to write results to.")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "Verifications in flight at once, the portal rate limit still applies.")
	batchCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "Bypass the cache for these lookups.")
	rootCmd.AddCommand(batchCmd)
}

// readIdentifiers returns the non-empty lines of path, lines starting with #
// are skipped.
func readIdentifiers(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

func toRow(kind verify.Kind, result verify.Result, recorded time.Time) (store.Row, error) {
	s := result.Summary()
	row := store.Row{
		Identifier:       s.Identifier,
		Kind:             string(kind),
		Success:          s.Success,
		Message:          s.Message,
		FromCache:        s.FromCache,
		ProcessingTimeMS: s.ProcessingTimeMS,
		RecordedAt:       recorded,
	}
	if s.Data == nil {
		return row, nil
	}
	data, err := json.Marshal(s.Data)
	if err != nil {
		return row, fmt.Errorf("marshal %s: %w", s.Identifier, err)
	}
	row.DataJSON = string(data)

	var stamped struct {
		VerifiedAt string `json:"verified_at"`
	}
	if err := json.Unmarshal(data, &stamped); err == nil {
		row.VerifiedAt = stamped.VerifiedAt
	}
	return row, nil
}

var batchCmd = &cobra.Command{
	Use:   "batch [--kind <kind>] [--db <path/to/results.db>] <identifiers.txt>",
	Short: "Verifies every identifier of a file and writes the results to a database.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind := selectedKind()

		ids, err := readIdentifiers(args[0])
		if err != nil {
			return fmt.Errorf("read identifiers: %w", err)
		}

		out, err := store.Open(ctx, batchDB)
		if err != nil {
			return err
		}
		defer out.Close()

		clock := chrono.NewStandardImpl()
		verifier, err := newVerifier(ctx, selectedCfg, kind, clock, cliTelemetry())
		if err != nil {
			return err
		}
		defer verifier.Close()

		var (
			mu   sync.Mutex
			rows = make([]store.Row, 0, len(ids))
		)
		t1 := time.Now()

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(max(batchConcurrency, 1))
		for _, id := range ids {
			group.Go(func() error {
				result := verifier.VerifyResult(groupCtx, id, !batchNoCache)
				row, err := toRow(kind, result, clock.Now())
				if err != nil {
					return err
				}
				mu.Lock()
				rows = append(rows, row)
				mu.Unlock()
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
		if err := out.Insert(ctx, rows...); err != nil {
			return fmt.Errorf("write results: %w", err)
		}

		succeeded, failed, err := out.Count(ctx, string(kind))
		if err != nil {
			return err
		}
		logger.Info("batch finished",
			"kind", kind,
			"identifiers", len(ids),
			"seconds", time.Since(t1).Seconds(),
			"stored_succeeded", succeeded,
			"stored_failed", failed,
		)
		return nil
	},
}
