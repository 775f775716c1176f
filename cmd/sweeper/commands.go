package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/osmike/sweeper"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the entry loop until a win is confirmed, the process gives up, or it is interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("starting contest submission scheduler",
			zap.String("config", cfgPath),
			zap.Time("next_run", app.NextRun()),
		)
		if err := app.Run(ctx); err != nil {
			return err
		}
		if app.Halted() {
			logger.Info("win confirmed, nothing left to do")
		} else {
			logger.Info("scheduler stopped by user")
		}
		return nil
	},
}

var pickPool string

var pickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Select one identity exactly as the loop would and print it",
	Long: `pick draws one identity under the table's exclusive lock and persists the selection:
the real pool counts it as a use and starts its cool-down, the probe pool refreshes its last-used time.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		r, err := app.Pick(cmd.Context(), sweeper.PoolName(pickPool), time.Now())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "key\t%s\n", r.Key)
		fmt.Fprintf(w, "usage_count\t%d\n", r.UsageCount)
		fmt.Fprintf(w, "last_used\t%s\n", r.LastUsed.Format(time.RFC3339))
		for name, v := range r.Fields {
			fmt.Fprintf(w, "%s\t%s\n", name, v)
		}
		return w.Flush()
	},
}

var receiptsCmd = &cobra.Command{
	Use:   "receipts",
	Short: "List the receipts still available",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		fresh, dummy, err := app.Receipts()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "real (%d) in %s\n", len(fresh), cfg.Real.ReceiptsDir)
		for _, n := range fresh {
			fmt.Fprintf(out, "  %s\n", n)
		}
		fmt.Fprintf(out, "probe (%d) in %s\n", len(dummy), cfg.Probe.ReceiptsDir)
		for _, n := range dummy {
			fmt.Fprintf(out, "  %s\n", n)
		}
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent submission attempts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		attempts, err := app.History(historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "START\tMODE\tRESULT\tIDENTITY\tRECEIPT\tDURATION\tERROR")
		for _, a := range attempts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				a.StartAt.Local().Format(time.DateTime), a.Mode, a.Result, a.Identity, a.Asset,
				a.ExecutionTime.Round(time.Millisecond), a.Error)
		}
		return w.Flush()
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and show when the next tick is due",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		w, err := cfg.Window()
		if err != nil {
			return err
		}
		now := time.Now()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "configuration ok (%s)\n", cfgPath)
		fmt.Fprintf(out, "window:    %s (open now: %t, next open: %s)\n", w, w.Contains(now), w.NextOpen(now).Format(time.DateTime))
		fmt.Fprintf(out, "next tick: %s\n", app.NextRun().Format(time.DateTime))
		return nil
	},
}

func init() {
	pickCmd.Flags().StringVar(&pickPool, "pool", string(sweeper.RealPool), "identity pool to draw from: real or probe")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of attempts to show, 0 for all")
}
