package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/compass-cli/internal/config"
	"github.com/sells-group/compass-cli/internal/monitoring"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize run health over a lookback window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeRead); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours, _ := cmd.Flags().GetInt("lookback-hours")
		snap, err := monitoring.NewCollector(st, st, nil).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		formatSnapshot(os.Stdout, snap)
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("lookback-hours", 24, "window of runs to summarize")
	statusCmd.Flags().Bool("json", false, "print snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}

func formatSnapshot(out io.Writer, s *monitoring.MetricsSnapshot) {
	fmt.Fprintf(out, "Runs (last %dh): %d total, %d completed, %d partial, %d failed, %d running\n",
		s.LookbackHours, s.RunsTotal, s.RunsCompleted, s.RunsPartial, s.RunsFailed, s.RunsRunning)
	fmt.Fprintf(out, "Fail rate:      %.1f%%\n", s.FailRate*100)
	fmt.Fprintf(out, "Avg confidence: %.2f\n", s.AvgConfidence)
	fmt.Fprintf(out, "Run cost:       $%.4f\n", s.RunCostUSD)
	fmt.Fprintf(out, "Ledger spend:   $%.4f\n", s.LedgerSpendUSD)
	if len(s.Breakers) > 0 {
		names := make([]string, 0, len(s.Breakers))
		for n := range s.Breakers {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(out, "Breaker %s: %s\n", n, s.Breakers[n])
		}
	}
}
