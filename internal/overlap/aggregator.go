package overlap

import (
	"ocp/internal/core"
)

// Policy names the rule used to compute a group's retained cost.
type Policy string

const (
	// PolicyAuto keeps the cheapest member and cancels the rest.
	PolicyAuto Policy = "auto"
	// PolicySelected keeps the members an operator picked.
	PolicySelected Policy = "selected"
)

// GroupKey addresses one overlap group within a run.
type GroupKey struct {
	Category string
	GroupID  int
}

// KeptSet is the set of contract ids retained in a group.
type KeptSet map[string]struct{}

// NewKeptSet builds a KeptSet from ids. NewKeptSet() is an explicit empty
// decision, which is different from no decision at all.
func NewKeptSet(ids ...string) KeptSet {
	s := make(KeptSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s KeptSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Selections holds operator retention choices. A group without an entry uses
// PolicyAuto; a group with an entry, even an empty one, uses PolicySelected.
type Selections map[GroupKey]KeptSet

// Keep records the retained ids for a group, replacing any earlier choice.
func (s Selections) Keep(category string, groupID int, ids ...string) {
	s[GroupKey{Category: category, GroupID: groupID}] = NewKeptSet(ids...)
}

// SavingsRow is the savings estimate for one overlap group with two or more
// members.
type SavingsRow struct {
	Category         string
	GroupID          int
	Members          int
	ContractIDs      []string
	TotalGroupCost   core.Money
	RetainedCost     core.Money
	EstimatedSavings core.Money
	Policy           Policy
	// Stale is set when a selection for this group named none of its members
	// and the row fell back to PolicyAuto.
	Stale            bool
}

// Aggregate computes one SavingsRow per multi-member group of a category,
// ordered by group id.
//
// Under PolicyAuto the retained cost is the cheapest member's total cost, so
// savings are never negative. Under PolicySelected it is the sum over kept
// members and savings may go negative when expensive contracts are kept. A
// group whose kept set is empty has no decision yet and yields no row. Kept
// ids that are not members of the group are ignored. A non-empty kept set
// that names no member at all was made for a different group (ids shift with
// allow-list order and data changes), so the row uses PolicyAuto and is
// marked Stale.
func Aggregate(category string, tagged []Assignment, sel Selections) []SavingsRow {
	var rows []SavingsRow
	for _, g := range Groups(tagged) {
		if len(g.Members) < 2 {
			continue
		}

		var total core.Money
		ids := make([]string, 0, len(g.Members))
		for _, c := range g.Members {
			total = total.Add(c.TotalCost())
			ids = append(ids, c.ID)
		}

		row := SavingsRow{
			Category:       category,
			GroupID:        g.ID,
			Members:        len(g.Members),
			ContractIDs:    ids,
			TotalGroupCost: total,
		}

		kept, decided := sel[GroupKey{Category: category, GroupID: g.ID}]
		switch {
		case !decided:
			row.Policy = PolicyAuto
			row.RetainedCost = minTotalCost(g.Members)
		case len(kept) == 0:
			continue
		default:
			matched := 0
			for _, c := range g.Members {
				if kept.Has(c.ID) {
					row.RetainedCost = row.RetainedCost.Add(c.TotalCost())
					matched++
				}
			}
			row.Policy = PolicySelected
			if matched == 0 {
				row.Policy = PolicyAuto
				row.RetainedCost = minTotalCost(g.Members)
				row.Stale = true
			}
		}
		row.EstimatedSavings = total.Sub(row.RetainedCost)
		rows = append(rows, row)
	}
	return rows
}

func minTotalCost(members []core.Contract) core.Money {
	low := members[0].TotalCost()
	for _, c := range members[1:] {
		if tc := c.TotalCost(); tc.Less(low) {
			low = tc
		}
	}
	return low
}

// Summarize rolls rows into per-category savings, in first-seen category
// order, and the grand total.
func Summarize(rows []SavingsRow) ([]core.CategoryAmount, core.Money) {
	index := map[string]int{}
	var (
		byCategory []core.CategoryAmount
		total      core.Money
	)
	for _, r := range rows {
		i, ok := index[r.Category]
		if !ok {
			i = len(byCategory)
			index[r.Category] = i
			byCategory = append(byCategory, core.CategoryAmount{Name: r.Category})
		}
		byCategory[i].Amount = byCategory[i].Amount.Add(r.EstimatedSavings)
		total = total.Add(r.EstimatedSavings)
	}
	return byCategory, total
}
