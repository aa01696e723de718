package google

import (
	"strings"

	"ocp/internal/core"
	"ocp/internal/overlap"
	ports "ocp/internal/sheets"
)

var reportHeader = []interface{}{
	"Service_Type", "Overlap_Group", "Contracts", "Contract_IDs",
	"Total Group Cost", "Retained Cost", "Estimated Savings", "Policy",
}

// parseContracts converts a values matrix (as returned by Sheets API) into
// contracts. The first row is the header.
func parseContracts(values [][]interface{}) ([]core.Contract, []ports.RowError, error) {
	if len(values) == 0 {
		return nil, nil, nil
	}
	header := ports.ToStrings(values[0])
	rows := make([][]string, 0, len(values)-1)
	for _, v := range values[1:] {
		rows = append(rows, ports.ToStrings(v))
	}
	return ports.ParseTable(header, rows)
}

// reportValues lays out a result as a header row, one row per savings row,
// and a closing total row.
func reportValues(res overlap.Result) [][]interface{} {
	values := [][]interface{}{reportHeader}
	for _, r := range res.Rows {
		values = append(values, []interface{}{
			r.Category,
			r.GroupID,
			r.Members,
			strings.Join(r.ContractIDs, ", "),
			r.TotalGroupCost.String(),
			r.RetainedCost.String(),
			r.EstimatedSavings.String(),
			string(r.Policy),
		})
	}
	values = append(values, []interface{}{"Total", "", "", "", "", "", res.Total.String(), ""})
	return values
}
