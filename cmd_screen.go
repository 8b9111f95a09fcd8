package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chazu/trajscreen/pkg/config"
	"github.com/chazu/trajscreen/pkg/logging"
	"github.com/spf13/cobra"
)

var screenFlags struct {
	config     string
	workers    int
	exhaustive bool
	budget     time.Duration
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen every entry/target pair of a run file",
	Long: "Screen evaluates the plan named in the run file over the cross product\n" +
		"of entry and target fiducials. Interrupting the run writes the partial\n" +
		"results; pending trajectories are reported as such.",
	RunE: runScreen,
}

func init() {
	f := screenCmd.Flags()
	f.StringVarP(&screenFlags.config, "config", "c", "", "Run file (required)")
	f.IntVar(&screenFlags.workers, "workers", 0, "Worker goroutines (overrides [run] workers)")
	f.BoolVar(&screenFlags.exhaustive, "exhaustive", false, "Evaluate every criterion and report violation overlaps")
	f.DurationVar(&screenFlags.budget, "budget", 0, "Wall-clock limit for screening (overrides [run] budget)")

	_ = screenCmd.MarkFlagRequired("config")
}

func runScreen(cmd *cobra.Command, _ []string) error {
	con, err := config.Read(screenFlags.config)
	if err != nil {
		return err
	}
	if err := applyLogConfig(cmd, con); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp()
	run, err := app.Screen(ctx, con, Overrides{
		Workers:    screenFlags.workers,
		Exhaustive: screenFlags.exhaustive,
		Budget:     screenFlags.budget,
	})
	if err != nil {
		return err
	}
	if err := app.WriteOutputs(cmd.OutOrStdout(), con, run); err != nil {
		return err
	}
	if run.Result.Cancelled {
		return fmt.Errorf("screening cancelled after %d of %d trajectories", run.Result.Evaluated, run.Result.Total())
	}
	return nil
}

// applyLogConfig switches logging to the run file's [log] section unless
// the matching flag was given explicitly.
func applyLogConfig(cmd *cobra.Command, con *config.Config) error {
	level, format := con.Log.Level, con.Log.Format
	if cmd.Flags().Changed("log-level") {
		level = rootFlags.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		format = rootFlags.logFormat
	}
	return logging.Setup(level, format, cmd.ErrOrStderr())
}
