package google

import (
	"context"
	"errors"
	"testing"

	"ocp/internal/core"
	"ocp/internal/overlap"
	ports "ocp/internal/sheets"
)

// Build a small matrix emulating a contracts tab as the Sheets API returns it
func TestParseContracts(t *testing.T) {
	values := [][]interface{}{
		{"Contract_Name", "Contract_ID", "Service_Type", "Start_Date", "End_Date", "Cost", "Maintenance"},
		{"Fiber A", "R1", "Network", "2025-01-01", "2025-01-31", "$100.00", "0"},
		{"Fiber B", "R2", "Network", "2025-01-15", "2025-02-15", 50.0, 0},
		{"Printer", "P1", "Print", "3/1/2025", "3/31/2025", "30", "5.5"},
		{"Broken", "X1", "Print", "n/a", "3/31/2025", "30", "5"},
	}
	contracts, rowErrs, err := parseContracts(values)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if len(contracts) != 3 {
		t.Fatalf("expected 3 contracts, got %d", len(contracts))
	}
	if len(rowErrs) != 1 || rowErrs[0].Row != 5 {
		t.Fatalf("unexpected row errors: %v", rowErrs)
	}
	if got := contracts[1].TotalCost().Cents; got != 5000 {
		t.Fatalf("R2 total cents got %d", got)
	}
	if got := contracts[2].TotalCost().Cents; got != 3550 {
		t.Fatalf("P1 total cents got %d", got)
	}
}

func TestParseContracts_Empty(t *testing.T) {
	contracts, rowErrs, err := parseContracts(nil)
	if err != nil || contracts != nil || rowErrs != nil {
		t.Fatalf("expected nothing, got %v %v %v", contracts, rowErrs, err)
	}
}

func TestParseContracts_MissingHeader(t *testing.T) {
	_, _, err := parseContracts([][]interface{}{{"Name", "Cost"}})
	if !errors.Is(err, ports.ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
}

func TestReportValues(t *testing.T) {
	res := overlap.Result{
		Rows: []overlap.SavingsRow{{
			Category:         "Network",
			GroupID:          1,
			Members:          2,
			ContractIDs:      []string{"R1", "R2"},
			TotalGroupCost:   core.Money{Cents: 15000},
			RetainedCost:     core.Money{Cents: 5000},
			EstimatedSavings: core.Money{Cents: 10000},
			Policy:           overlap.PolicyAuto,
		}},
		Total: core.Money{Cents: 10000},
	}
	values := reportValues(res)
	if len(values) != 3 {
		t.Fatalf("expected header, row and total, got %d rows", len(values))
	}
	row := values[1]
	if row[3] != "R1, R2" || row[6] != "100.00" || row[7] != "auto" {
		t.Fatalf("unexpected row: %v", row)
	}
	if values[2][0] != "Total" || values[2][6] != "100.00" {
		t.Fatalf("unexpected total row: %v", values[2])
	}
}

func TestColumnLetter(t *testing.T) {
	cases := map[int]string{1: "A", 8: "H", 26: "Z", 27: "AA", 52: "AZ"}
	for n, want := range cases {
		if got := columnLetter(n); got != want {
			t.Errorf("columnLetter(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	if _, err := NewFromEnv(context.Background()); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestNew_DefaultSheetNames(t *testing.T) {
	c := New(nil, "id", " ", "")
	if c.contractsSheet != "Contracts" || c.reportSheet != "Savings" {
		t.Fatalf("unexpected defaults: %q %q", c.contractsSheet, c.reportSheet)
	}
	if _, err := c.ListContracts(context.Background()); err == nil {
		t.Fatal("expected error with nil service")
	}
}
