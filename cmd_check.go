package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var checkFlags struct {
	plan string
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate and validate a plan file",
	RunE:  runCheck,
}

func init() {
	f := checkCmd.Flags()
	f.StringVarP(&checkFlags.plan, "plan", "p", "", "Plan file (required)")

	_ = checkCmd.MarkFlagRequired("plan")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	src, err := os.ReadFile(checkFlags.plan)
	if err != nil {
		return err
	}
	res, err := NewApp().CheckPlan(string(src))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "%s\n", w.Error())
	}
	if len(res.Errors) > 0 {
		return &PlanError{Path: checkFlags.plan, Errors: res.Errors}
	}

	fmt.Fprintf(out, "Structures: %d\n", len(res.Plan.Structures))
	for _, d := range res.Plan.Structures {
		if d.IsUnion() {
			fmt.Fprintf(out, "  %s = %s | %s\n", d.Name, d.Union[0], d.Union[1])
		} else {
			fmt.Fprintf(out, "  %s <- %s (iso %g)\n", d.Name, d.Volume, d.Iso)
		}
	}
	fmt.Fprintf(out, "Criteria:   %d\n", len(res.Plan.Criteria))
	for i, c := range res.Plan.Criteria {
		fmt.Fprintf(out, "  %d. %s\n", i, c.Label())
	}
	return nil
}
