package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ocp/internal/amqp"
	"ocp/internal/core"
	"ocp/internal/overlap"
	"ocp/internal/sheets/memory"
)

type fakeRuns struct {
	saved map[string]overlap.Result
	err   error
}

func (f *fakeRuns) SaveRun(_ context.Context, runID string, res overlap.Result) error {
	if f.err != nil {
		return f.err
	}
	if f.saved == nil {
		f.saved = map[string]overlap.Result{}
	}
	f.saved[runID] = res
	return nil
}

type fakePublisher struct {
	msgs []*amqp.AnalysisCompletedMessage
	err  error
}

func (f *fakePublisher) PublishAnalysisCompleted(_ context.Context, msg *amqp.AnalysisCompletedMessage) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

type fakeReports struct {
	written []overlap.Result
	err     error
}

func (f *fakeReports) WriteReport(_ context.Context, res overlap.Result) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.written = append(f.written, res)
	return "Savings!A1:H3", nil
}

type failingReader struct{}

func (failingReader) ListContracts(context.Context) ([]core.Contract, error) {
	return nil, errors.New("sheet unavailable")
}

func day(m, d int) core.Date { return core.NewDate(2025, m, d) }

func testStore() *memory.Store {
	return memory.New([]core.Contract{
		{ID: "R1", Category: "Network", Start: day(1, 1), End: day(1, 31), Cost: core.Money{Cents: 10000}},
		{ID: "R2", Category: "Network", Start: day(1, 15), End: day(2, 15), Cost: core.Money{Cents: 5000}},
		{ID: "R3", Category: "Network", Start: day(3, 1), End: day(3, 31), Cost: core.Money{Cents: 3000}},
		{ID: "P1", Category: "Print", Start: day(1, 1), End: day(6, 30), Cost: core.Money{Cents: 2000}},
		{ID: "P2", Category: "Print", Start: day(2, 1), End: day(2, 28), Cost: core.Money{Cents: 1000}},
	})
}

func TestAnalyze_DefaultsToAllCategories(t *testing.T) {
	svc := NewAnalysisService(testStore())

	out, err := svc.Analyze(context.Background(), AnalysisRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if out.RunID != "" {
		t.Errorf("unsaved run should have no id, got %q", out.RunID)
	}
	var cats []string
	for _, cr := range out.Result.Categories {
		cats = append(cats, cr.Category)
	}
	if diff := cmp.Diff([]string{"Network", "Print"}, cats); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
	// Network 10000+5000-5000, Print 2000+1000-1000
	if out.Result.Total.Cents != 12000 {
		t.Errorf("total = %d, want 12000", out.Result.Total.Cents)
	}
}

func TestAnalyze_StoredSelectionsAndOverrides(t *testing.T) {
	ctx := context.Background()
	store := testStore()
	svc := NewAnalysisService(store, WithSelections(store, store))

	// Group 1 is Network {R1,R2}; group 3 is Print {P1,P2} when Network goes first.
	if err := svc.SaveSelection(ctx, overlap.GroupKey{Category: "Network", GroupID: 1}, []string{"R1"}); err != nil {
		t.Fatal(err)
	}
	out, err := svc.Analyze(ctx, AnalysisRequest{
		Categories: []string{"Network", "Print"},
		Selections: overlap.Selections{
			{Category: "Print", GroupID: 3}: overlap.NewKeptSet(),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Result.Rows) != 1 {
		t.Fatalf("expected only the Network row, got %+v", out.Result.Rows)
	}
	row := out.Result.Rows[0]
	if row.Policy != overlap.PolicySelected || row.EstimatedSavings.Cents != 5000 {
		t.Errorf("unexpected row: %+v", row)
	}
}

func TestAnalyze_SaveAndPublish(t *testing.T) {
	runs := &fakeRuns{}
	pub := &fakePublisher{}
	svc := NewAnalysisService(testStore(), WithRunStore(runs), WithPublisher(pub))

	out, err := svc.Analyze(context.Background(), AnalysisRequest{Save: true, RequestID: "req-7"})
	if err != nil {
		t.Fatal(err)
	}
	if out.RunID == "" {
		t.Fatal("expected a run id")
	}
	if _, ok := runs.saved[out.RunID]; !ok {
		t.Fatalf("run %s not saved", out.RunID)
	}
	if len(pub.msgs) != 1 || pub.msgs[0].RunID != out.RunID || pub.msgs[0].RequestID != "req-7" {
		t.Fatalf("unexpected messages: %+v", pub.msgs)
	}
}

func TestAnalyze_PublishFailureIsNotFatal(t *testing.T) {
	runs := &fakeRuns{}
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewAnalysisService(testStore(), WithRunStore(runs), WithPublisher(pub))

	out, err := svc.Analyze(context.Background(), AnalysisRequest{Save: true})
	if err != nil {
		t.Fatalf("publish failure should not fail analysis: %v", err)
	}
	if _, ok := runs.saved[out.RunID]; !ok {
		t.Fatal("run should still be saved")
	}
}

func TestAnalyze_SaveFailureIsFatal(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewAnalysisService(testStore(), WithRunStore(&fakeRuns{err: errors.New("disk full")}), WithPublisher(pub))

	if _, err := svc.Analyze(context.Background(), AnalysisRequest{Save: true}); err == nil {
		t.Fatal("expected save error")
	}
	if len(pub.msgs) != 0 {
		t.Fatal("nothing should be published for an unsaved run")
	}
}

func TestAnalyze_Report(t *testing.T) {
	t.Run("written", func(t *testing.T) {
		reports := &fakeReports{}
		svc := NewAnalysisService(testStore(), WithReportWriter(reports))
		out, err := svc.Analyze(context.Background(), AnalysisRequest{PublishReport: true})
		if err != nil {
			t.Fatal(err)
		}
		if out.ReportRef == "" || len(reports.written) != 1 {
			t.Fatalf("report not written: %+v", out)
		}
	})

	t.Run("no writer", func(t *testing.T) {
		svc := NewAnalysisService(testStore())
		if _, err := svc.Analyze(context.Background(), AnalysisRequest{PublishReport: true}); err == nil {
			t.Fatal("expected error without report writer")
		}
	})

	t.Run("writer error", func(t *testing.T) {
		svc := NewAnalysisService(testStore(), WithReportWriter(&fakeReports{err: errors.New("quota")}))
		if _, err := svc.Analyze(context.Background(), AnalysisRequest{PublishReport: true}); err == nil {
			t.Fatal("expected report error")
		}
	})
}

func TestAnalyze_ReportFailureSavesNothing(t *testing.T) {
	runs := &fakeRuns{}
	pub := &fakePublisher{}
	svc := NewAnalysisService(testStore(),
		WithRunStore(runs),
		WithPublisher(pub),
		WithReportWriter(&fakeReports{err: errors.New("quota")}))

	out, err := svc.Analyze(context.Background(), AnalysisRequest{Save: true, PublishReport: true})
	if err == nil {
		t.Fatal("expected report error")
	}
	if out.RunID != "" || len(runs.saved) != 0 {
		t.Errorf("no run should be saved, got id %q and %d runs", out.RunID, len(runs.saved))
	}
	if len(pub.msgs) != 0 {
		t.Errorf("no completion should be published, got %d", len(pub.msgs))
	}
}

func TestAnalyze_EmptyAllowListAnalyzesNothing(t *testing.T) {
	svc := NewAnalysisService(testStore())

	out, err := svc.Analyze(context.Background(), AnalysisRequest{Categories: []string{}})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Result.Empty() || len(out.Result.Rows) != 0 || !out.Result.Total.IsZero() {
		t.Fatalf("expected an empty result, got %+v", out.Result)
	}
}

func TestAnalyze_StoredSelectionForShiftedGroup(t *testing.T) {
	ctx := context.Background()
	store := testStore()
	svc := NewAnalysisService(store, WithSelections(store, store))

	// Under the default order group 2 is Network {R3}.
	if err := svc.SaveSelection(ctx, overlap.GroupKey{Category: "Network", GroupID: 2}, []string{"R3"}); err != nil {
		t.Fatal(err)
	}

	// With Print first, Network#2 is {R1,R2}, which the choice never named.
	out, err := svc.Analyze(ctx, AnalysisRequest{Categories: []string{"Print", "Network"}})
	if err != nil {
		t.Fatal(err)
	}
	var network *overlap.SavingsRow
	for i := range out.Result.Rows {
		if out.Result.Rows[i].Category == "Network" {
			network = &out.Result.Rows[i]
		}
	}
	if network == nil {
		t.Fatalf("expected a Network row, got %+v", out.Result.Rows)
	}
	if network.GroupID != 2 || network.Policy != overlap.PolicyAuto || !network.Stale {
		t.Errorf("unexpected row: %+v", network)
	}
	if network.EstimatedSavings.Cents != 10000 {
		t.Errorf("savings = %d, want 10000", network.EstimatedSavings.Cents)
	}
}

func TestAnalyze_ReaderError(t *testing.T) {
	svc := NewAnalysisService(failingReader{})
	if _, err := svc.Analyze(context.Background(), AnalysisRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := svc.Categories(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCategories(t *testing.T) {
	svc := NewAnalysisService(testStore())
	got, err := svc.Categories(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []core.CategoryCount{{Name: "Network", Count: 3}, {Name: "Print", Count: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestSelections_Validation(t *testing.T) {
	ctx := context.Background()
	store := testStore()

	readOnly := NewAnalysisService(store)
	if err := readOnly.SaveSelection(ctx, overlap.GroupKey{Category: "Network", GroupID: 1}, nil); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
	if err := readOnly.ClearSelection(ctx, overlap.GroupKey{Category: "Network", GroupID: 1}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}

	svc := NewAnalysisService(store, WithSelections(store, store))
	tests := []struct {
		name string
		key  overlap.GroupKey
	}{
		{"empty category", overlap.GroupKey{GroupID: 1}},
		{"zero group", overlap.GroupKey{Category: "Network"}},
		{"negative group", overlap.GroupKey{Category: "Network", GroupID: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.SaveSelection(ctx, tt.key, []string{"R1"}); !errors.Is(err, ErrInvalidGroup) {
				t.Errorf("expected ErrInvalidGroup, got %v", err)
			}
		})
	}

	key := overlap.GroupKey{Category: "Network", GroupID: 1}
	if err := svc.SaveSelection(ctx, key, []string{"R2"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.ClearSelection(ctx, key); err != nil {
		t.Fatal(err)
	}
	sel, _ := store.ListSelections(ctx)
	if len(sel) != 0 {
		t.Fatalf("expected no selections, got %v", sel)
	}
}
