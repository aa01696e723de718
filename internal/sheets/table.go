package sheets

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ocp/internal/core"
)

// Column headers of a contract table.
const (
	ColName        = "Contract_Name"
	ColID          = "Contract_ID"
	ColCategory    = "Service_Type"
	ColStart       = "Start_Date"
	ColEnd         = "End_Date"
	ColCost        = "Cost"
	ColMaintenance = "Maintenance"
)

// RequiredColumns must all be present in a contract table header.
var RequiredColumns = []string{ColID, ColCategory, ColStart, ColEnd, ColCost, ColMaintenance}

var ErrMissingColumns = errors.New("missing required columns")

var ErrDuplicateID = errors.New("duplicate contract id")

// Date layouts accepted in date cells, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
}

// RowError reports a rejected data row. Row is 1-based and counts the header
// as row 1, matching what a spreadsheet shows.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// ParseTable converts a header plus data rows into contracts.
//
// Header matching ignores case, spaces and underscores. A header missing any
// required column fails the whole table. Individual rows that cannot be
// coerced, or reuse an id already seen, are returned as RowErrors and skipped;
// blank rows are ignored silently.
func ParseTable(header []string, rows [][]string) ([]core.Contract, []RowError, error) {
	cols := map[string]int{}
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}

	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := cols[normalizeHeader(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s; got headers=%v", ErrMissingColumns, strings.Join(missing, ", "), header)
	}

	get := func(row []string, name string) string {
		idx, ok := cols[normalizeHeader(name)]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var (
		out    []core.Contract
		errs   []RowError
		seenID = map[string]bool{}
	)
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		rowNum := i + 2

		c := core.Contract{
			ID:       get(row, ColID),
			Name:     get(row, ColName),
			Category: get(row, ColCategory),
		}
		var err error
		if c.Start, err = ParseDate(get(row, ColStart)); err != nil {
			errs = append(errs, RowError{Row: rowNum, Err: fmt.Errorf("start date: %w", err)})
			continue
		}
		if c.End, err = ParseDate(get(row, ColEnd)); err != nil {
			errs = append(errs, RowError{Row: rowNum, Err: fmt.Errorf("end date: %w", err)})
			continue
		}
		if c.Cost, err = core.ParseAmount(get(row, ColCost)); err != nil {
			errs = append(errs, RowError{Row: rowNum, Err: fmt.Errorf("cost: %w", err)})
			continue
		}
		if c.Maintenance, err = core.ParseAmount(get(row, ColMaintenance)); err != nil {
			errs = append(errs, RowError{Row: rowNum, Err: fmt.Errorf("maintenance: %w", err)})
			continue
		}
		if err := c.Validate(); err != nil {
			errs = append(errs, RowError{Row: rowNum, Err: err})
			continue
		}
		if seenID[c.ID] {
			errs = append(errs, RowError{Row: rowNum, Err: fmt.Errorf("%w %q", ErrDuplicateID, c.ID)})
			continue
		}
		seenID[c.ID] = true
		out = append(out, c)
	}
	return out, errs, nil
}

// ParseDate parses a date cell in any accepted layout and truncates it to
// the calendar day in UTC.
func ParseDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, core.ErrZeroDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.NewDate(t.Year(), int(t.Month()), t.Day()), nil
		}
	}
	return core.Date{}, fmt.Errorf("unrecognized date %q", s)
}

// ToStrings converts a row of spreadsheet cells to trimmed strings.
func ToStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// normalizeHeader also drops the byte order mark spreadsheet exports put in
// front of the first cell.
func normalizeHeader(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "\ufeff")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", " ", "", "-", "").Replace(s)
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
