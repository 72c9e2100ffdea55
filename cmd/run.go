package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/compass-cli/internal/config"
	"github.com/sells-group/compass-cli/internal/model"
	"github.com/sells-group/compass-cli/internal/pipeline"
)

var (
	runCompany string
	runDomain  string
	runFormat  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Research a single company and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, config.ModeRun)
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Pipeline.Run(ctx, model.Company{Name: runCompany, Domain: runDomain})
		if err != nil {
			return eris.Wrap(err, "run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", rep.RunID),
			zap.String("status", string(rep.Result.Status)),
			zap.String("route", string(rep.Result.Route)),
		)

		d, err := pipeline.GetRunDetail(ctx, env.Store, rep.RunID)
		if err != nil {
			// The run is stored; fall back to the in-memory summary.
			zap.L().Warn("failed to load run detail", zap.String("run_id", rep.RunID), zap.Error(err))
			fmt.Fprintln(os.Stdout, rep.String())
			return nil
		}
		return pipeline.Export(os.Stdout, d, runFormat)
	},
}

func init() {
	runCmd.Flags().StringVar(&runCompany, "company", "", "company name (required)")
	runCmd.Flags().StringVar(&runDomain, "domain", "", "company domain, e.g. acme.com")
	runCmd.Flags().StringVar(&runFormat, "format", pipeline.FormatMarkdown, "report format (md, json, csv)")
	_ = runCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(runCmd)
}
