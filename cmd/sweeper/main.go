// Command sweeper runs the contest auto-entry loop and its maintenance commands.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/osmike/sweeper"
	"github.com/osmike/sweeper/internal/config"
	errs "github.com/osmike/sweeper/internal/error"
	"github.com/osmike/sweeper/internal/logging"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"go.uber.org/zap"
)

// Exit codes.
const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
	exitGaveUp = 3
)

var (
	cfgPath string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sweeper",
	Short: "Automated contest entries: probe cheaply, commit only on a win",
	Long: `sweeper enters a contest form on a schedule.

Every due tick inside the daily window submits a probe with a throwaway identity and receipt.
Only a winning probe spends a real identity and a real receipt. A confirmed win stops the loop
for good; a winning probe that cannot be confirmed after the retry makes the process exit.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}

		opts := logging.Options{Level: cfg.Logging.Level}
		// Only the loop writes the day file; one-shot commands log to the console.
		if cmd.Name() == runCmd.Name() {
			opts.Dir = cfg.Logging.Dir
		}
		var closeLog func() error
		if logger, closeLog, err = logging.New(opts); err != nil {
			return err
		}
		atexit.Register(func() { _ = closeLog() })
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultPath, "path to sweeper.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(runCmd, pickCmd, receiptsCmd, historyCmd, checkCmd)
}

// newApp builds the application and schedules its shutdown.
func newApp() (*sweeper.App, error) {
	app, err := sweeper.New(cfg, logger, sweeper.Options{})
	if err != nil {
		return nil, err
	}
	atexit.Register(func() {
		if err := app.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	})
	return app, nil
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errs.ErrGaveUp):
		return exitGaveUp
	case errs.KindOf(err) == errs.KindInvalid:
		return exitConfig
	default:
		return exitError
	}
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		if logger != nil {
			logger.Error("sweeper stopped", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	atexit.Exit(exitCode(err))
}
