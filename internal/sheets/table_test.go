package sheets

import (
	"errors"
	"strings"
	"testing"

	"ocp/internal/core"
)

var header = []string{"Contract_Name", "Contract_ID", "Service_Type", "Start_Date", "End_Date", "Cost", "Maintenance"}

func TestParseTable(t *testing.T) {
	rows := [][]string{
		{"Fiber A", "C-1", "Network", "2025-01-01", "2025-01-31", "100", "0"},
		{"Fiber B", "C-2", "Network", "01/15/2025", "2/15/2025", "$40.00", "10"},
		{"", "", "", "", "", "", ""},
		{"Bad date", "C-3", "Network", "someday", "2025-01-31", "1", "1"},
		{"Bad cost", "C-4", "Network", "2025-01-01", "2025-01-31", "lots", "1"},
		{"Dup", "C-1", "Network", "2025-01-01", "2025-01-31", "1", "1"},
		{"No category", "C-5", "", "2025-01-01", "2025-01-31", "1", "1"},
		{"Short row", "C-6", "Storage", "2025-03-01", "2025-03-31", "30"},
	}

	contracts, rowErrs, err := ParseTable(header, rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contracts) != 2 {
		t.Fatalf("expected 2 contracts, got %d: %+v", len(contracts), contracts)
	}
	c2 := contracts[1]
	if c2.ID != "C-2" || c2.Name != "Fiber B" || c2.Category != "Network" {
		t.Fatalf("unexpected contract: %+v", c2)
	}
	if !c2.Start.Equal(core.NewDate(2025, 1, 15).Time) || !c2.End.Equal(core.NewDate(2025, 2, 15).Time) {
		t.Fatalf("unexpected dates: %v %v", c2.Start, c2.End)
	}
	if c2.TotalCost().Cents != 5000 {
		t.Fatalf("total cost: got %d", c2.TotalCost().Cents)
	}

	wantRows := []int{5, 6, 7, 8, 9}
	if len(rowErrs) != len(wantRows) {
		t.Fatalf("expected %d row errors, got %v", len(wantRows), rowErrs)
	}
	for i, re := range rowErrs {
		if re.Row != wantRows[i] {
			t.Errorf("row error %d: row=%d, want %d (%v)", i, re.Row, wantRows[i], re)
		}
	}
	if !errors.Is(rowErrs[2], ErrDuplicateID) {
		t.Errorf("expected duplicate id error, got %v", rowErrs[2])
	}
	if !errors.Is(rowErrs[3], core.ErrEmptyCategory) {
		t.Errorf("expected empty category error, got %v", rowErrs[3])
	}
	if !strings.Contains(rowErrs[4].Error(), "maintenance") {
		t.Errorf("expected maintenance error for the short row, got %v", rowErrs[4])
	}
}

func TestParseTable_ByteOrderMark(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		row    []string
	}{
		{
			name:   "name column first",
			header: append([]string{"\ufeff" + header[0]}, header[1:]...),
			row:    []string{"Fiber A", "C-1", "Network", "2025-01-01", "2025-01-31", "100", "0"},
		},
		{
			name:   "id column first",
			header: []string{"\ufeffContract_ID", "Service_Type", "Start_Date", "End_Date", "Cost", "Maintenance"},
			row:    []string{"C-1", "Network", "2025-01-01", "2025-01-31", "100", "0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			contracts, rowErrs, err := ParseTable(tt.header, [][]string{tt.row})
			if err != nil || len(rowErrs) != 0 || len(contracts) != 1 {
				t.Fatalf("unexpected result: %v %v %v", contracts, rowErrs, err)
			}
			if contracts[0].ID != "C-1" {
				t.Errorf("id = %q, want C-1", contracts[0].ID)
			}
		})
	}
}

func TestParseTable_HeaderMatchingIsLoose(t *testing.T) {
	h := []string{"contract id", "SERVICE TYPE", "start-date", "End_Date", "cost", "Maintenance"}
	contracts, rowErrs, err := ParseTable(h, [][]string{{"X", "Print", "2025-01-01", "2025-01-02", "1", "2"}})
	if err != nil || len(rowErrs) != 0 || len(contracts) != 1 {
		t.Fatalf("unexpected result: %v %v %v", contracts, rowErrs, err)
	}
	if contracts[0].Name != "" {
		t.Fatalf("optional name should be empty, got %q", contracts[0].Name)
	}
}

func TestParseTable_MissingColumns(t *testing.T) {
	_, _, err := ParseTable([]string{"Contract_ID", "Service_Type", "Cost"}, nil)
	if !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("expected ErrMissingColumns, got %v", err)
	}
	for _, col := range []string{ColStart, ColEnd, ColMaintenance} {
		if !strings.Contains(err.Error(), col) {
			t.Errorf("error should name %s: %v", col, err)
		}
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2025-01-31", true},
		{"2025-01-31 13:45:00", true},
		{"2025-01-31T13:45:00Z", true},
		{"01/31/2025", true},
		{"1/31/2025", true},
		{"31.01.2025", false},
		{"", false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("%q expected ok, got %v", tc.in, err)
			}
			if !got.Equal(core.NewDate(2025, 1, 31).Time) {
				t.Fatalf("%q parsed to %v", tc.in, got)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}
