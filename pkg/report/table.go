package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteTable renders s as terminal tables: the verdict counts, then one row
// per criterion and, for exhaustive runs, the violation overlaps.
func WriteTable(w io.Writer, s Summary) error {
	counts := table.NewWriter()
	counts.SetStyle(table.StyleLight)
	counts.AppendHeader(table.Row{"Queries", "Evaluated", "Accepted", "Rejected", "Failed", "Pending", "Elapsed"})
	counts.AppendRow(table.Row{s.Queries, s.Evaluated, s.Accepted, s.Rejected, s.Failed, s.Pending, s.Elapsed})
	if _, err := fmt.Fprintln(w, counts.Render()); err != nil {
		return err
	}
	if s.Cancelled {
		if _, err := fmt.Fprintln(w, "screening was cancelled; pending trajectories were not evaluated"); err != nil {
			return err
		}
	}

	if len(s.Criteria) > 0 {
		exhaustive := len(s.Overlaps) > 0
		crit := table.NewWriter()
		crit.SetStyle(table.StyleLight)
		header := table.Row{"#", "Criterion", "First violation"}
		if exhaustive {
			header = append(header, "Violations")
		}
		crit.AppendHeader(header)
		for _, c := range s.Criteria {
			row := table.Row{c.Index, c.Label, c.FirstViolations}
			if exhaustive {
				row = append(row, c.Violations)
			}
			crit.AppendRow(row)
		}
		footer := table.Row{"", "total", s.Rejected}
		if exhaustive {
			footer = append(footer, "")
		}
		crit.AppendFooter(footer)
		crit.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, Align: text.AlignRight},
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
		})
		if _, err := fmt.Fprintln(w, crit.Render()); err != nil {
			return err
		}
	}

	if len(s.Overlaps) > 0 {
		ov := table.NewWriter()
		ov.SetStyle(table.StyleLight)
		ov.AppendHeader(table.Row{"Violated criteria", "Trajectories"})
		for _, o := range s.Overlaps {
			ov.AppendRow(table.Row{strings.Join(o.Criteria, " + "), o.Count})
		}
		ov.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
		if _, err := fmt.Fprintln(w, ov.Render()); err != nil {
			return err
		}
	}
	return nil
}
