package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"ocp/internal/core"
	"ocp/internal/overlap"
	ports "ocp/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc            *gsheet.Service
	spreadsheetID  string
	contractsSheet string
	reportSheet    string
}

// Ensure interface conformance
var (
	_ ports.ContractReader = (*Client)(nil)
	_ ports.ReportWriter   = (*Client)(nil)
)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional sheet names: GOOGLE_CONTRACTS_SHEET (default "Contracts"),
// GOOGLE_REPORT_SHEET (default "Savings").
func NewFromEnv(ctx context.Context) (*Client, error) {
	return Dial(ctx,
		os.Getenv("GOOGLE_SPREADSHEET_ID"),
		os.Getenv("GOOGLE_CONTRACTS_SHEET"),
		os.Getenv("GOOGLE_REPORT_SHEET"))
}

// Dial authenticates with service account credentials and returns a client
// bound to one spreadsheet.
func Dial(ctx context.Context, spreadsheetID, contractsSheet, reportSheet string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return New(svc, spreadsheetID, contractsSheet, reportSheet), nil
}

// New wraps an existing Sheets service. Blank sheet names fall back to
// "Contracts" and "Savings".
func New(svc *gsheet.Service, spreadsheetID, contractsSheet, reportSheet string) *Client {
	contractsSheet = strings.TrimSpace(contractsSheet)
	if contractsSheet == "" {
		contractsSheet = "Contracts"
	}
	reportSheet = strings.TrimSpace(reportSheet)
	if reportSheet == "" {
		reportSheet = "Savings"
	}
	return &Client{
		svc:            svc,
		spreadsheetID:  spreadsheetID,
		contractsSheet: contractsSheet,
		reportSheet:    reportSheet,
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials
// from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS, falling back to a saved OAuth token.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		ts, err := oauthTokenSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("missing service account credentials and no usable OAuth token: %w", err)
		}
		slog.DebugContext(ctx, "Using OAuth user credentials", "token_file", TokenFileFromEnv())
		service, err := gsheet.NewService(ctx, goption.WithTokenSource(ts))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		return service, nil
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ListContracts reads the contracts sheet. The first row is the header; rows
// that fail coercion are logged and skipped.
func (c *Client) ListContracts(ctx context.Context) ([]core.Contract, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:Z", c.contractsSheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	contracts, rowErrs, err := parseContracts(resp.Values)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rng, err)
	}
	for _, re := range rowErrs {
		slog.WarnContext(ctx, "Rejected contract row", "sheet", c.contractsSheet, "row", re.Row, "error", re.Err)
	}
	return contracts, nil
}

// WriteReport replaces the content of the report sheet with the savings rows
// and the grand total.
func (c *Client) WriteReport(ctx context.Context, res overlap.Result) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	clearRange := fmt.Sprintf("%s!A:Z", c.reportSheet)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("clear %s: %w", clearRange, err)
	}

	values := reportValues(res)
	rng := fmt.Sprintf("%s!A1:%s%d", c.reportSheet, columnLetter(len(reportHeader)), len(values))
	vr := &gsheet.ValueRange{Values: values}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Savings report written", "range", rng, "rows", len(res.Rows))
	return rng, nil
}

func columnLetter(n int) string {
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}
