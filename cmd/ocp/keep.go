package main

import (
	"fmt"
	"strconv"
	"strings"

	"ocp/internal/overlap"
)

// parseKeepSpec reads CATEGORY:GROUP=ID1,ID2. An empty id list after the
// equals sign keeps none of the group's members. The category may itself
// contain colons; the last one before the equals sign separates the group.
func parseKeepSpec(s string) (overlap.GroupKey, []string, error) {
	left, right, ok := strings.Cut(s, "=")
	if !ok {
		return overlap.GroupKey{}, nil, fmt.Errorf("keep %q: want CATEGORY:GROUP=ID1,ID2", s)
	}
	i := strings.LastIndex(left, ":")
	if i < 0 {
		return overlap.GroupKey{}, nil, fmt.Errorf("keep %q: missing group id", s)
	}

	category := strings.TrimSpace(left[:i])
	if category == "" {
		return overlap.GroupKey{}, nil, fmt.Errorf("keep %q: empty category", s)
	}
	groupID, err := strconv.Atoi(strings.TrimSpace(left[i+1:]))
	if err != nil || groupID < 1 {
		return overlap.GroupKey{}, nil, fmt.Errorf("keep %q: group id must be a positive integer", s)
	}

	ids := []string{}
	for _, id := range strings.Split(right, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return overlap.GroupKey{Category: category, GroupID: groupID}, ids, nil
}

// parseKeepSpecs folds repeated --keep flags into selections. A later spec
// for the same group replaces an earlier one.
func parseKeepSpecs(specs []string) (overlap.Selections, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	sel := overlap.Selections{}
	for _, s := range specs {
		key, ids, err := parseKeepSpec(s)
		if err != nil {
			return nil, err
		}
		sel[key] = overlap.NewKeptSet(ids...)
	}
	return sel, nil
}
