// Package report renders analysis results for terminals, files and APIs.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"ocp/internal/core"
	"ocp/internal/overlap"
)

type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts a format name case-insensitively; empty means table.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatCSV, FormatMarkdown:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want table, json, csv or markdown)", s)
	}
}

// Column headers follow the spreadsheet the tool was built around.
var csvHeader = []string{
	"Service_Type", "Overlap_Group", "Contracts", "Contract_IDs",
	"Total Group Cost", "Retained Cost", "Estimated Savings", "Policy",
}

// Render writes res to w in the given format.
func Render(w io.Writer, f Format, res overlap.Result) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, res)
	case FormatCSV:
		return writeCSV(w, res)
	case FormatMarkdown:
		return writeMarkdown(w, res)
	case FormatTable, "":
		return writeTable(w, res)
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

// Row is the wire form of a savings row. Amounts are fixed two-decimal strings.
type Row struct {
	Category         string   `json:"category"`
	GroupID          int      `json:"group_id"`
	Members          int      `json:"members"`
	ContractIDs      []string `json:"contract_ids"`
	TotalGroupCost   string   `json:"total_group_cost"`
	RetainedCost     string   `json:"retained_cost"`
	EstimatedSavings string   `json:"estimated_savings"`
	Policy           string   `json:"policy"`
	Stale            bool     `json:"stale_selection,omitempty"`
}

type CategorySummary struct {
	Category   string `json:"category"`
	Contracts  int    `json:"contracts"`
	Groups     int    `json:"groups"`
	HasOverlap bool   `json:"has_overlap"`
	Savings    string `json:"savings"`
}

// Document is the JSON report body.
type Document struct {
	RunID        string            `json:"run_id,omitempty"`
	Categories   []CategorySummary `json:"categories"`
	Rows         []Row             `json:"rows"`
	TotalSavings string            `json:"total_savings"`
}

// NewDocument converts a result into its JSON form.
func NewDocument(res overlap.Result) Document {
	doc := Document{
		Categories:   make([]CategorySummary, 0, len(res.Categories)),
		Rows:         make([]Row, 0, len(res.Rows)),
		TotalSavings: res.Total.String(),
	}
	for _, cr := range res.Categories {
		doc.Categories = append(doc.Categories, CategorySummary{
			Category:   cr.Category,
			Contracts:  cr.Contracts,
			Groups:     cr.Groups,
			HasOverlap: cr.HasOverlap(),
			Savings:    cr.Savings.String(),
		})
	}
	for _, r := range res.Rows {
		doc.Rows = append(doc.Rows, Row{
			Category:         r.Category,
			GroupID:          r.GroupID,
			Members:          r.Members,
			ContractIDs:      r.ContractIDs,
			TotalGroupCost:   r.TotalGroupCost.String(),
			RetainedCost:     r.RetainedCost.String(),
			EstimatedSavings: r.EstimatedSavings.String(),
			Policy:           string(r.Policy),
			Stale:            r.Stale,
		})
	}
	return doc
}

func writeJSON(w io.Writer, res overlap.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewDocument(res))
}

func writeCSV(w io.Writer, res overlap.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range res.Rows {
		rec := []string{
			r.Category,
			strconv.Itoa(r.GroupID),
			strconv.Itoa(r.Members),
			strings.Join(r.ContractIDs, ";"),
			r.TotalGroupCost.String(),
			r.RetainedCost.String(),
			r.EstimatedSavings.String(),
			string(r.Policy),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeTable(w io.Writer, res overlap.Result) error {
	if res.Empty() {
		_, err := fmt.Fprintln(w, "No categories analyzed.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, cr := range res.Categories {
		fmt.Fprintf(tw, "%s (%d contracts, %d groups)\n", cr.Category, cr.Contracts, cr.Groups)
		if !cr.HasOverlap() {
			fmt.Fprintf(tw, "  No overlapping contracts found for %s.\n\n", cr.Category)
			continue
		}
		fmt.Fprintln(tw, "  GROUP\tCONTRACTS\tTOTAL\tRETAINED\tSAVINGS\tPOLICY\t")
		for _, r := range cr.Rows {
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\t%s\t\n",
				r.GroupID,
				strings.Join(r.ContractIDs, ", "),
				Dollars(r.TotalGroupCost),
				Dollars(r.RetainedCost),
				Dollars(r.EstimatedSavings),
				r.Policy)
		}
		fmt.Fprintf(tw, "  Savings for %s: %s\n\n", cr.Category, Dollars(cr.Savings))
	}
	if len(res.Rows) == 0 {
		fmt.Fprintln(tw, "No overlapping contracts found in any selected category.")
	} else {
		fmt.Fprintf(tw, "Total Estimated Savings: %s\n", Dollars(res.Total))
	}
	return tw.Flush()
}

func writeMarkdown(w io.Writer, res overlap.Result) error {
	var b strings.Builder
	b.WriteString("## Contract Overlap Report\n\n")
	if res.Empty() {
		b.WriteString("No categories analyzed.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	for _, cr := range res.Categories {
		fmt.Fprintf(&b, "### %s\n\n", cr.Category)
		if !cr.HasOverlap() {
			fmt.Fprintf(&b, "No overlapping contracts found for %s.\n\n", cr.Category)
			continue
		}
		b.WriteString("| Group | Contracts | Total Group Cost | Retained Cost | Estimated Savings | Policy |\n")
		b.WriteString("|------:|-----------|-----------------:|--------------:|------------------:|--------|\n")
		for _, r := range cr.Rows {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s |\n",
				r.GroupID,
				strings.Join(r.ContractIDs, ", "),
				Dollars(r.TotalGroupCost),
				Dollars(r.RetainedCost),
				Dollars(r.EstimatedSavings),
				r.Policy)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "**Total Estimated Savings:** %s\n", Dollars(res.Total))
	_, err := io.WriteString(w, b.String())
	return err
}

// Dollars formats m as $1,234.56, with a leading minus for negatives.
func Dollars(m core.Money) string {
	s := m.String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := "$" + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
