package backend

import (
	"context"

	"ocp/internal/amqp"
	"ocp/internal/services"
	"ocp/internal/sheets"
	"ocp/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult bundles the collaborators a data source provides. Only
// Contracts is always set; the rest depend on the backend type and on
// which optional integrations are configured.
type BackendResult struct {
	Type BackendType

	Contracts  sheets.ContractReader
	Selections sheets.SelectionReader
	Writer     sheets.SelectionWriter
	Reports    sheets.ReportWriter

	// Repository is set for the sqlite backend.
	Repository *storage.SQLiteRepository
	// Publisher is set when AMQP is configured.
	Publisher *amqp.Client

	Cleanup CleanupFunc
}

// Service builds an analysis service wired to every collaborator present.
func (r *BackendResult) Service() *services.AnalysisService {
	var opts []services.Option
	if r.Selections != nil || r.Writer != nil {
		opts = append(opts, services.WithSelections(r.Selections, r.Writer))
	}
	if r.Repository != nil {
		opts = append(opts, services.WithRunStore(r.Repository))
	}
	if r.Reports != nil {
		opts = append(opts, services.WithReportWriter(r.Reports))
	}
	if r.Publisher != nil {
		opts = append(opts, services.WithPublisher(r.Publisher))
	}
	return services.NewAnalysisService(r.Contracts, opts...)
}

// Close runs Cleanup if present.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Optional broker for completion events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets. With the sheets backend contracts are read from
	// GoogleContractsSheet; with any backend a spreadsheet ID enables the
	// report sink.
	GoogleSpreadsheetID  string
	GoogleContractsSheet string
	GoogleReportSheet    string

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
