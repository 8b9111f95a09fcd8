// Package report turns screening results into files and terminal output:
// per-trajectory CSV records, a YAML summary and an exclusion table.
package report

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"math/bits"
	"slices"
	"strconv"

	"github.com/chazu/trajscreen/pkg/classify"
	"github.com/chazu/trajscreen/pkg/fcsv"
	"github.com/chazu/trajscreen/pkg/plan"
	"github.com/chazu/trajscreen/pkg/screen"
	"gopkg.in/yaml.v3"
)

// RecordHeader is the first row written by WriteRecords.
var RecordHeader = []string{"entry_index", "target_index", "entry_label", "target_label", "status", "criterion"}

// WriteRecords writes one CSV row per trajectory. Only accepted
// trajectories are written unless all is set. The criterion column holds
// the label of the first violated criterion for rejected rows.
func WriteRecords(w io.Writer, res *screen.Result, entries, targets []fcsv.Fiducial, crits []plan.CriterionSpec, all bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordHeader); err != nil {
		return err
	}
	for i, q := range res.Queries {
		v := res.Verdicts[i]
		if !all && v.Status != classify.StatusAccepted {
			continue
		}
		crit := ""
		if v.Criterion >= 0 && v.Criterion < len(crits) {
			crit = crits[v.Criterion].Label()
		}
		row := []string{
			strconv.FormatUint(uint64(q.Entry), 10),
			strconv.FormatUint(uint64(q.Target), 10),
			label(entries, q.Entry),
			label(targets, q.Target),
			v.Status.String(),
			crit,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func label(fs []fcsv.Fiducial, i uint32) string {
	if int(i) < len(fs) {
		return fs[i].Label
	}
	return ""
}

// CriterionSummary reports how often one criterion excluded trajectories.
// FirstViolations counts rejections attributed to this criterion; Violations
// counts every rejection it took part in and is only set in exhaustive runs.
type CriterionSummary struct {
	Index           int    `yaml:"index"`
	Label           string `yaml:"label"`
	FirstViolations int    `yaml:"first_violations"`
	Violations      int    `yaml:"violations,omitempty"`
}

// OverlapSummary counts rejected trajectories sharing one violation set.
type OverlapSummary struct {
	Criteria []string `yaml:"criteria"`
	Count    int      `yaml:"count"`
}

// Summary aggregates a screening result.
type Summary struct {
	Queries   int                `yaml:"queries"`
	Evaluated int                `yaml:"evaluated"`
	Accepted  int                `yaml:"accepted"`
	Rejected  int                `yaml:"rejected"`
	Failed    int                `yaml:"failed"`
	Pending   int                `yaml:"pending"`
	Cancelled bool               `yaml:"cancelled"`
	Elapsed   string             `yaml:"elapsed"`
	Criteria  []CriterionSummary `yaml:"criteria"`
	Overlaps  []OverlapSummary   `yaml:"overlaps,omitempty"`
}

// Summarize builds the summary of res. crits labels the criteria and must
// be in plan order.
func Summarize(res *screen.Result, crits []plan.CriterionSpec) Summary {
	s := Summary{
		Queries:   res.Total(),
		Evaluated: res.Evaluated,
		Accepted:  len(res.Accepted),
		Failed:    res.Failures,
		Pending:   res.Total() - res.Evaluated,
		Cancelled: res.Cancelled,
		Elapsed:   res.Elapsed.String(),
	}
	for i, n := range res.Rejections {
		s.Rejected += n
		cs := CriterionSummary{Index: i, Label: strconv.Itoa(i), FirstViolations: n}
		if i < len(crits) {
			cs.Label = crits[i].Label()
		}
		s.Criteria = append(s.Criteria, cs)
	}

	type overlap struct {
		mask  uint64
		count int
	}
	var overlaps []overlap
	for mask, n := range res.Overlaps {
		overlaps = append(overlaps, overlap{mask, n})
		for m := mask; m != 0; m &= m - 1 {
			if i := bits.TrailingZeros64(m); i < len(s.Criteria) {
				s.Criteria[i].Violations += n
			}
		}
	}
	slices.SortFunc(overlaps, func(a, b overlap) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.mask, b.mask)
	})
	for _, o := range overlaps {
		ov := OverlapSummary{Count: o.count}
		for m := o.mask; m != 0; m &= m - 1 {
			i := bits.TrailingZeros64(m)
			if i < len(s.Criteria) {
				ov.Criteria = append(ov.Criteria, s.Criteria[i].Label)
			} else {
				ov.Criteria = append(ov.Criteria, strconv.Itoa(i))
			}
		}
		s.Overlaps = append(s.Overlaps, ov)
	}
	return s
}

// WriteYAML encodes s as YAML.
func WriteYAML(w io.Writer, s Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return enc.Close()
}
