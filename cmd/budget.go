package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/compass-cli/internal/budget"
	"github.com/sells-group/compass-cli/internal/config"
	"github.com/sells-group/compass-cli/internal/model"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect the cost ledger",
}

var budgetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show spend against the budget cap",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ledger, closeFn, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		st, err := ledger.Status(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "budget status")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		formatBudgetStatus(os.Stdout, st)
		return nil
	},
}

var budgetHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent ledger entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ledger, closeFn, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := ledger.History(cmd.Context(), limit)
		if err != nil {
			return eris.Wrap(err, "budget history")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No ledger entries.")
			return nil
		}
		formatLedger(os.Stdout, entries)
		return nil
	},
}

// openLedger opens the store and a ledger over it for read commands.
func openLedger(cmd *cobra.Command) (*budget.Ledger, func(), error) {
	if err := cfg.Validate(config.ModeRead); err != nil {
		return nil, nil, err
	}
	calc, err := initCalculator()
	if err != nil {
		return nil, nil, err
	}
	st, err := initStore(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	return newLedger(st, calc), func() { _ = st.Close() }, nil
}

func init() {
	budgetStatusCmd.Flags().Bool("json", false, "print status as JSON")
	budgetHistoryCmd.Flags().Int("limit", 20, "max number of entries")

	budgetCmd.AddCommand(budgetStatusCmd)
	budgetCmd.AddCommand(budgetHistoryCmd)
	rootCmd.AddCommand(budgetCmd)
}

func formatBudgetStatus(out io.Writer, st *budget.Status) {
	fmt.Fprintf(out, "Cap:        $%.2f\n", st.Cap)
	fmt.Fprintf(out, "Spent:      $%.4f (%.1f%%)\n", st.CurrentSpend, st.PercentUsed)
	fmt.Fprintf(out, "Remaining:  $%.4f\n", st.Remaining)
	fmt.Fprintf(out, "Health:     %s\n", st.HealthLevel)
	if len(st.RecentEntries) > 0 {
		fmt.Fprintln(out)
		formatLedger(out, st.RecentEntries)
	}
}

func formatLedger(out io.Writer, entries []model.LedgerEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tRUN\tOPERATION\tCOST_USD\tUNITS")
	for _, e := range entries {
		run := e.RunID
		if run == "" {
			run = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.6f\t%.0f\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), run, e.Operation, e.Cost, e.Units)
	}
	_ = w.Flush()
}
