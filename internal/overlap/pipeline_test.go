package overlap

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"ocp/internal/core"
)

func TestRun_Scenario_NetworkOverlap(t *testing.T) {
	res := Run(networkContracts(), []string{"Network"}, nil)

	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 savings row, got %d", len(res.Rows))
	}
	if res.Rows[0].EstimatedSavings.Cents != 10000 {
		t.Fatalf("savings = %d, want 10000", res.Rows[0].EstimatedSavings.Cents)
	}
	if res.Total.Cents != 10000 {
		t.Fatalf("total = %d, want 10000", res.Total.Cents)
	}
	if diff := cmp.Diff(map[string]int{"R1": 1, "R2": 1, "R3": 2}, groupIDs(res.Assignments)); diff != "" {
		t.Fatalf("assignments mismatch (-want +got):\n%s", diff)
	}
	if len(res.Categories) != 1 || res.Categories[0].Groups != 2 || res.Categories[0].Contracts != 3 {
		t.Fatalf("unexpected category result: %+v", res.Categories)
	}
}

func TestRun_Scenario_EmptyAllowList(t *testing.T) {
	res := Run(networkContracts(), nil, nil)
	if !res.Empty() {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if len(res.Rows) != 0 || len(res.Assignments) != 0 || !res.Total.IsZero() {
		t.Fatalf("expected nothing analyzed, got %+v", res)
	}
}

func TestRun_Scenario_EmptyKeptSetDropsRow(t *testing.T) {
	sel := Selections{}
	sel.Keep("Network", 1)

	res := Run(networkContracts(), []string{"Network"}, sel)
	if len(res.Rows) != 0 {
		t.Fatalf("expected no rows, got %+v", res.Rows)
	}
	if !res.Total.IsZero() {
		t.Fatalf("total = %d, want 0", res.Total.Cents)
	}
	if res.Categories[0].HasOverlap() {
		t.Fatalf("category should report no overlap rows")
	}
}

func TestRun_Scenario_IDsAcrossCategories(t *testing.T) {
	contracts := []core.Contract{
		contract("b1", "B", d(1, 1), d(1, 10), 1),
		contract("a1", "A", d(1, 1), d(1, 10), 1),
		contract("b2", "B", d(5, 1), d(5, 10), 1),
		contract("a2", "A", d(3, 1), d(3, 10), 1),
	}
	res := Run(contracts, []string{"A", "B"}, nil)

	want := map[string]int{"a1": 1, "a2": 2, "b1": 3, "b2": 4}
	if diff := cmp.Diff(want, groupIDs(res.Assignments)); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	if res.LastGroupID() != 4 {
		t.Fatalf("last group id = %d, want 4", res.LastGroupID())
	}
}

func TestRun_MonotonicIDs(t *testing.T) {
	contracts := []core.Contract{
		contract("n1", "Network", d(1, 1), d(2, 1), 100),
		contract("n2", "Network", d(1, 15), d(1, 20), 50),
		contract("s1", "Storage", d(1, 1), d(1, 5), 10),
		contract("s2", "Storage", d(2, 1), d(2, 5), 10),
		contract("p1", "Print", d(4, 1), d(4, 5), 10),
	}
	res := Run(contracts, []string{"Storage", "Print", "Network"}, nil)

	prev := 0
	for _, a := range res.Assignments {
		if a.GroupID < prev {
			t.Fatalf("group ids decreased: %d after %d", a.GroupID, prev)
		}
		prev = a.GroupID
	}
	seen := map[int]string{}
	for _, a := range res.Assignments {
		if owner, ok := seen[a.GroupID]; ok && owner != a.Contract.Category {
			t.Fatalf("group id %d reused across %s and %s", a.GroupID, owner, a.Contract.Category)
		}
		seen[a.GroupID] = a.Contract.Category
	}
}

func TestRun_FiltersAndDedupesAllowList(t *testing.T) {
	contracts := append(networkContracts(),
		contract("s1", "Storage", d(1, 1), d(1, 31), 700),
		contract("s2", "Storage", d(1, 2), d(1, 3), 300),
	)
	res := Run(contracts, []string{"Network", "Missing", "Network"}, nil)

	if len(res.Categories) != 1 || res.Categories[0].Category != "Network" {
		t.Fatalf("unexpected categories: %+v", res.Categories)
	}
	for _, a := range res.Assignments {
		if a.Contract.Category != "Network" {
			t.Fatalf("unselected category leaked: %+v", a)
		}
	}
}

func TestRun_CategoryWithoutOverlap(t *testing.T) {
	contracts := append(networkContracts(),
		contract("p1", "Print", d(1, 1), d(1, 2), 10),
		contract("p2", "Print", d(2, 1), d(2, 2), 10),
	)
	res := Run(contracts, []string{"Print", "Network"}, nil)

	if len(res.Categories) != 2 {
		t.Fatalf("expected 2 category results, got %d", len(res.Categories))
	}
	if res.Categories[0].HasOverlap() {
		t.Fatalf("Print should have no overlap")
	}
	if !res.Categories[1].HasOverlap() {
		t.Fatalf("Network should have overlap")
	}
	want := []core.CategoryAmount{{Name: "Network", Amount: core.Money{Cents: 10000}}}
	if diff := cmp.Diff(want, res.ByCategory); diff != "" {
		t.Fatalf("by category mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_Idempotent(t *testing.T) {
	contracts := append(networkContracts(),
		contract("s1", "Storage", d(1, 1), d(1, 31), 700),
		contract("s2", "Storage", d(1, 2), d(1, 3), 300),
		contract("s3", "Storage", d(1, 30), d(2, 3), 100),
	)
	sel := Selections{}
	sel.Keep("Storage", 3, "s1", "s3")
	allow := Categories(contracts)

	first := Run(contracts, allow, sel)
	second := Run(contracts, allow, sel)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("runs differ (-first +second):\n%s", diff)
	}
}

func TestCategories(t *testing.T) {
	contracts := []core.Contract{
		{Category: "Storage"}, {Category: "Network"}, {Category: "Storage"}, {Category: "Print"},
	}
	if diff := cmp.Diff([]string{"Storage", "Network", "Print"}, Categories(contracts)); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
}
