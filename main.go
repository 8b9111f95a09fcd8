// trajscreen screens straight electrode trajectories against anatomical
// surface meshes.
//
// Usage:
//
//	trajscreen screen --config run.cfg [--workers N] [--exhaustive] [--budget 5m]
//	trajscreen check --plan plan.lisp
//	trajscreen mesh --config run.cfg
package main

import (
	"fmt"
	"os"

	"github.com/chazu/trajscreen/pkg/logging"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "trajscreen",
	Short: "Screen electrode trajectories against anatomical surfaces",
	Long: "trajscreen evaluates every entry/target pair against a plan of\n" +
		"must-intersect, must-not-intersect and incidence angle criteria.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return logging.Setup(rootFlags.logLevel, rootFlags.logFormat, cmd.ErrOrStderr())
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(screenCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(meshCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
