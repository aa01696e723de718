package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ocp/internal/core"
	"ocp/internal/overlap"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "ocp.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func fixtureContracts() []core.Contract {
	return []core.Contract{
		{ID: "R1", Name: "Fiber", Category: "Network", Start: core.NewDate(2025, 1, 1), End: core.NewDate(2025, 1, 31), Cost: core.Money{Cents: 10000}},
		{ID: "R2", Name: "Backup", Category: "Network", Start: core.NewDate(2025, 1, 15), End: core.NewDate(2025, 2, 15), Cost: core.Money{Cents: 5000}},
		{ID: "P1", Name: "Printer", Category: "Print", Start: core.NewDate(2025, 3, 1), End: core.NewDate(2025, 3, 31), Cost: core.Money{Cents: 3000}, Maintenance: core.Money{Cents: 550}},
	}
}

func TestImportAndListContracts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	n, err := repo.ImportContracts(ctx, fixtureContracts())
	if err != nil || n != 3 {
		t.Fatalf("import: n=%d err=%v", n, err)
	}

	got, err := repo.ListContracts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff(fixtureContracts(), got); diff != "" {
		t.Fatalf("contracts mismatch (-want +got):\n%s", diff)
	}

	// Re-import updates in place without duplicating rows.
	updated := fixtureContracts()[:1]
	updated[0].Cost = core.Money{Cents: 12000}
	if _, err := repo.ImportContracts(ctx, updated); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	got, _ = repo.ListContracts(ctx)
	if len(got) != 3 || got[0].Cost.Cents != 12000 {
		t.Fatalf("unexpected contracts after upsert: %+v", got)
	}
}

func TestImportContracts_RejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	bad := []core.Contract{fixtureContracts()[0], {ID: "X"}}
	if _, err := repo.ImportContracts(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
	got, _ := repo.ListContracts(context.Background())
	if len(got) != 0 {
		t.Fatalf("import should be atomic, got %d contracts", len(got))
	}
}

func TestListCategories(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if _, err := repo.ImportContracts(ctx, fixtureContracts()); err != nil {
		t.Fatal(err)
	}
	got, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []core.CategoryCount{{Name: "Network", Count: 2}, {Name: "Print", Count: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestSelections(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	net := overlap.GroupKey{Category: "Network", GroupID: 1}
	prt := overlap.GroupKey{Category: "Print", GroupID: 2}

	if err := repo.SaveSelection(ctx, net, []string{"R1", "R2"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveSelection(ctx, net, []string{"R2"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveSelection(ctx, prt, nil); err != nil {
		t.Fatal(err)
	}

	got, err := repo.ListSelections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := overlap.Selections{
		net: overlap.NewKeptSet("R2"),
		prt: overlap.NewKeptSet(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("selections mismatch (-want +got):\n%s", diff)
	}

	if err := repo.ClearSelection(ctx, net); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.ListSelections(ctx)
	if _, ok := got[net]; ok {
		t.Fatalf("selection not cleared: %v", got)
	}
	if _, ok := got[prt]; !ok {
		t.Fatalf("unrelated selection removed: %v", got)
	}
}

func TestSaveRunAndList(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	contracts := fixtureContracts()
	res := overlap.Run(contracts, overlap.Categories(contracts), nil)

	if err := repo.SaveRun(ctx, "run-1", res); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := repo.SaveRun(ctx, "run-2", overlap.Result{}); err != nil {
		t.Fatalf("save empty run: %v", err)
	}

	runs, err := repo.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	var first RunSummary
	for _, r := range runs {
		if r.ID == "run-1" {
			first = r
		}
	}
	if first.Groups != 2 || first.Rows != 1 || first.Total.Cents != 10000 {
		t.Fatalf("unexpected run summary: %+v", first)
	}
	if diff := cmp.Diff([]string{"Network", "Print"}, first.Categories); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}

	rows, err := repo.RunRows(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(res.Rows, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	if limited, _ := repo.ListRuns(ctx, 1); len(limited) != 1 {
		t.Fatalf("limit not applied: %d", len(limited))
	}
}

func TestSaveRun_DuplicateID(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.SaveRun(context.Background(), "dup", overlap.Result{}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SaveRun(context.Background(), "dup", overlap.Result{}); err == nil {
		t.Fatal("expected error on duplicate run id")
	}
}
