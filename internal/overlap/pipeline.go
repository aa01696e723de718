package overlap

import (
	"ocp/internal/core"
)

// CategoryResult is the outcome for one processed category.
type CategoryResult struct {
	Category  string
	Contracts int
	Groups    int
	Rows      []SavingsRow
	Savings   core.Money
}

// HasOverlap reports whether the category produced at least one savings row.
// A category without overlap is informational, not a failure.
func (c CategoryResult) HasOverlap() bool {
	return len(c.Rows) > 0
}

// Result is everything a pipeline run produces.
type Result struct {
	Assignments []Assignment
	Rows        []SavingsRow
	Categories  []CategoryResult
	ByCategory  []core.CategoryAmount
	Total       core.Money
}

// Empty reports whether nothing was analyzed.
func (r Result) Empty() bool {
	return len(r.Categories) == 0
}

// LastGroupID is the highest group id handed out in the run, 0 when none.
func (r Result) LastGroupID() int {
	last := 0
	for _, a := range r.Assignments {
		if a.GroupID > last {
			last = a.GroupID
		}
	}
	return last
}

// Run partitions contracts by category, keeps only categories in allow, and
// processes them in allow-list order: group, then aggregate. The group-id
// counter starts at zero and is threaded across categories so ids never
// repeat within a run.
//
// Allow-list entries with no contracts are skipped, repeated entries are
// processed once, and an empty allow-list yields an empty Result.
func Run(contracts []core.Contract, allow []string, sel Selections) Result {
	partitions := map[string][]core.Contract{}
	for _, c := range contracts {
		partitions[c.Category] = append(partitions[c.Category], c)
	}

	var (
		res  Result
		last int
		seen = map[string]bool{}
	)
	for _, category := range allow {
		if seen[category] {
			continue
		}
		seen[category] = true

		members := partitions[category]
		if len(members) == 0 {
			continue
		}

		first := last
		var tagged []Assignment
		tagged, last = AssignGroups(members, last)
		rows := Aggregate(category, tagged, sel)

		cr := CategoryResult{
			Category:  category,
			Contracts: len(members),
			Groups:    last - first,
			Rows:      rows,
		}
		for _, r := range rows {
			cr.Savings = cr.Savings.Add(r.EstimatedSavings)
		}

		res.Assignments = append(res.Assignments, tagged...)
		res.Rows = append(res.Rows, rows...)
		res.Categories = append(res.Categories, cr)
	}

	res.ByCategory, res.Total = Summarize(res.Rows)
	return res
}

// Categories returns the distinct categories of contracts in first-seen
// order. It is the default allow-list.
func Categories(contracts []core.Contract) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range contracts {
		if seen[c.Category] {
			continue
		}
		seen[c.Category] = true
		out = append(out, c.Category)
	}
	return out
}
