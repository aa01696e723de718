package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"ocp/internal/core"
	"ocp/internal/overlap"
	"ocp/internal/storage"
)

func TestParseKeepSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantKey overlap.GroupKey
		wantIDs []string
		wantErr bool
	}{
		{"single id", "Network:1=R1", overlap.GroupKey{Category: "Network", GroupID: 1}, []string{"R1"}, false},
		{"several ids", "Network:2=R1, R2,", overlap.GroupKey{Category: "Network", GroupID: 2}, []string{"R1", "R2"}, false},
		{"keep none", "Print:3=", overlap.GroupKey{Category: "Print", GroupID: 3}, []string{}, false},
		{"colon in category", "Cloud:EU:4=C1", overlap.GroupKey{Category: "Cloud:EU", GroupID: 4}, []string{"C1"}, false},
		{"missing equals", "Network:1", overlap.GroupKey{}, nil, true},
		{"missing group", "Network=R1", overlap.GroupKey{}, nil, true},
		{"zero group", "Network:0=R1", overlap.GroupKey{}, nil, true},
		{"non-numeric group", "Network:x=R1", overlap.GroupKey{}, nil, true},
		{"empty category", ":1=R1", overlap.GroupKey{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ids, err := parseKeepSpec(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseKeepSpec(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if key != tt.wantKey {
				t.Errorf("key = %+v, want %+v", key, tt.wantKey)
			}
			if diff := cmp.Diff(tt.wantIDs, ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseKeepSpecs(t *testing.T) {
	sel, err := parseKeepSpecs(nil)
	if err != nil || sel != nil {
		t.Fatalf("no specs should mean no overrides, got %v, %v", sel, err)
	}

	sel, err = parseKeepSpecs([]string{"Network:1=R1", "Network:1=R2", "Print:2="})
	if err != nil {
		t.Fatal(err)
	}
	if got := sel[overlap.GroupKey{Category: "Network", GroupID: 1}]; !got.Has("R2") || got.Has("R1") {
		t.Errorf("later spec should replace earlier one, got %v", got)
	}
	if got, ok := sel[overlap.GroupKey{Category: "Print", GroupID: 2}]; !ok || len(got) != 0 {
		t.Errorf("empty spec should be an explicit keep-none, got %v (present=%v)", got, ok)
	}

	if _, err := parseKeepSpecs([]string{"Network:1=R1", "bad"}); err == nil {
		t.Error("expected error for malformed spec")
	}
}

func TestResultFromRows(t *testing.T) {
	rows := []overlap.SavingsRow{
		{Category: "Network", GroupID: 1, Members: 2, EstimatedSavings: core.Money{Cents: 10000}},
		{Category: "Print", GroupID: 2, Members: 3, EstimatedSavings: core.Money{Cents: 500}},
		{Category: "Network", GroupID: 3, Members: 2, EstimatedSavings: core.Money{Cents: 250}},
	}

	res := resultFromRows(rows)
	if res.Total.Cents != 10750 {
		t.Errorf("total = %d, want 10750", res.Total.Cents)
	}
	if len(res.Categories) != 2 {
		t.Fatalf("categories = %d, want 2", len(res.Categories))
	}
	network := res.Categories[0]
	if network.Category != "Network" || network.Groups != 2 || network.Contracts != 4 || network.Savings.Cents != 10250 {
		t.Errorf("unexpected Network summary: %+v", network)
	}
}

func TestWriteRuns(t *testing.T) {
	var buf bytes.Buffer
	if err := writeRuns(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No saved runs") {
		t.Errorf("unexpected empty output %q", buf.String())
	}

	buf.Reset()
	err := writeRuns(&buf, []storage.RunSummary{{
		ID:         "run-1",
		Categories: []string{"Network", "Print"},
		Groups:     3,
		Rows:       1,
		Total:      core.Money{Cents: 123456},
		CreatedAt:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"RUN", "run-1", "Network, Print", "$1,234.56"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteCategories(t *testing.T) {
	var buf bytes.Buffer
	if err := writeCategories(&buf, []core.CategoryCount{{Name: "Network", Count: 2}}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Network") || !strings.Contains(buf.String(), "2") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

const contractsCSV = "Contract_Name,Contract_ID,Service_Type,Start_Date,End_Date,Cost,Maintenance\n" +
	"Fiber,R1,Network,2025-01-01,2025-01-31,100.00,0\n" +
	"Backup,R2,Network,2025-01-15,2025-02-15,50.00,0\n" +
	"Printer,P1,Print,2025-03-01,2025-03-31,30.00,0\n"

func writeDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "contracts.csv"), []byte(contractsCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func readReport(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, data)
	}
	return doc
}

func TestAnalyzeCommand_MemoryBackend(t *testing.T) {
	t.Setenv("AMQP_URL", "")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	dir := writeDataDir(t)
	out := filepath.Join(t.TempDir(), "report.json")

	args := []string{"ocp", "--log-level", "error", "--backend", "memory", "--data-dir", dir,
		"analyze", "--format", "json", "--output", out}
	if err := newApp().Run(args); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got := readReport(t, out)["total_savings"]; got != "100.00" {
		t.Errorf("total_savings = %v, want 100.00", got)
	}

	// Keeping both members leaves nothing to save.
	args = append(args, "--keep", "Network:1=R1,R2")
	if err := newApp().Run(args); err != nil {
		t.Fatalf("analyze with keep: %v", err)
	}
	if got := readReport(t, out)["total_savings"]; got != "0.00" {
		t.Errorf("total_savings = %v, want 0.00", got)
	}
}

func TestAnalyzeCommand_CategoryWithComma(t *testing.T) {
	t.Setenv("AMQP_URL", "")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	dir := t.TempDir()
	csv := "Contract_Name,Contract_ID,Service_Type,Start_Date,End_Date,Cost,Maintenance\n" +
		"A,S1,\"Print, Copy\",2025-01-01,2025-01-31,20.00,0\n" +
		"B,S2,\"Print, Copy\",2025-01-10,2025-01-20,10.00,0\n" +
		"C,N1,Network,2025-01-01,2025-01-31,100.00,0\n" +
		"D,N2,Network,2025-01-15,2025-02-15,50.00,0\n"
	if err := os.WriteFile(filepath.Join(dir, "contracts.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "report.json")

	args := []string{"ocp", "--log-level", "error", "--backend", "memory", "--data-dir", dir,
		"analyze", "--format", "json", "--output", out, "--category", "Print, Copy"}
	if err := newApp().Run(args); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got := readReport(t, out)["total_savings"]; got != "10.00" {
		t.Errorf("total_savings = %v, want 10.00", got)
	}

	args = append(args, "--keep", "Print, Copy:1=S1,S2")
	if err := newApp().Run(args); err != nil {
		t.Fatalf("analyze with keep: %v", err)
	}
	if got := readReport(t, out)["total_savings"]; got != "0.00" {
		t.Errorf("total_savings = %v, want 0.00", got)
	}
}

func TestImportAndRunsCommands_SQLite(t *testing.T) {
	t.Setenv("AMQP_URL", "")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	dir := writeDataDir(t)
	db := filepath.Join(t.TempDir(), "ocp.db")
	base := []string{"ocp", "--log-level", "error", "--backend", "sqlite", "--sqlite-db", db}

	if err := newApp().Run(append(base, "import", "--file", filepath.Join(dir, "contracts.csv"))); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := newApp().Run(append(base, "keep", "--category", "Network", "--group", "1", "--none")); err != nil {
		t.Fatalf("keep: %v", err)
	}

	out := filepath.Join(t.TempDir(), "report.json")
	if err := newApp().Run(append(base, "analyze", "--save", "--format", "json", "--output", out)); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got := readReport(t, out)["total_savings"]; got != "0.00" {
		t.Errorf("keep-none should drop the only row, total_savings = %v", got)
	}

	repo, err := storage.NewSQLiteRepository(db)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	runs, err := repo.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("saved runs = %d, want 1", len(runs))
	}
}

func TestKeepCommand_FlagConflicts(t *testing.T) {
	t.Setenv("AMQP_URL", "")
	dir := writeDataDir(t)
	base := []string{"ocp", "--log-level", "error", "--data-dir", dir, "keep", "--category", "Network", "--group", "1"}

	for _, extra := range [][]string{
		nil,
		{"--clear", "--id", "R1"},
		{"--none", "--id", "R1"},
	} {
		if err := newApp().Run(append(append([]string{}, base...), extra...)); err == nil {
			t.Errorf("keep %v: expected error", extra)
		}
	}
}

func TestAnalyzeCommand_SaveNeedsSQLite(t *testing.T) {
	t.Setenv("AMQP_URL", "")
	dir := writeDataDir(t)
	err := newApp().Run([]string{"ocp", "--log-level", "error", "--data-dir", dir, "analyze", "--save"})
	if err == nil || !strings.Contains(err.Error(), "sqlite") {
		t.Errorf("expected sqlite error, got %v", err)
	}
}
