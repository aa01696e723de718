// Package overlap finds same-category contracts whose date ranges overlap and
// estimates the savings of retaining fewer contracts per overlap group.
//
// The package is pure: no I/O, no shared state, no errors. Every run builds
// its own group-id counter, so identical input always yields identical output.
package overlap

import (
	"slices"
	"time"

	"ocp/internal/core"
)

// Assignment is a contract tagged with the overlap group it belongs to.
type Assignment struct {
	Contract core.Contract
	GroupID  int
}

// AssignGroups sweeps the contracts of a single category into overlap groups.
//
// Contracts are ordered by start date (stable, so equal starts keep their input
// order) and merged with a running watermark holding the latest end seen in the
// open group. A contract starting after the watermark opens a new group; the
// counter is incremented before use, so the first group gets lastID+1.
// Overlap is transitive through the watermark: A-B and B-C overlapping puts
// A, B and C in one group even when A and C are disjoint.
//
// The returned counter is the last id handed out and seeds the next call.
// Empty input returns lastID unchanged.
func AssignGroups(contracts []core.Contract, lastID int) ([]Assignment, int) {
	if len(contracts) == 0 {
		return nil, lastID
	}

	sorted := slices.Clone(contracts)
	slices.SortStableFunc(sorted, func(a, b core.Contract) int {
		return a.Start.Compare(b.Start.Time)
	})

	out := make([]Assignment, 0, len(sorted))
	groupID := lastID
	var watermark time.Time
	open := false // false means the watermark is still -infinity

	for _, c := range sorted {
		start, end := c.Span()
		if !open || start.After(watermark) {
			groupID++
			watermark = end
			open = true
		} else if end.After(watermark) {
			watermark = end
		}
		out = append(out, Assignment{Contract: c, GroupID: groupID})
	}
	return out, groupID
}

// Group is the ordered membership of one overlap group.
type Group struct {
	ID      int
	Members []core.Contract
}

// Groups collects assignments into groups ordered by id. Member order follows
// the assignment order.
func Groups(tagged []Assignment) []Group {
	index := map[int]int{}
	var out []Group
	for _, a := range tagged {
		i, ok := index[a.GroupID]
		if !ok {
			i = len(out)
			index[a.GroupID] = i
			out = append(out, Group{ID: a.GroupID})
		}
		out[i].Members = append(out[i].Members, a.Contract)
	}
	slices.SortFunc(out, func(a, b Group) int {
		return a.ID - b.ID
	})
	return out
}
