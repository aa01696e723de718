package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ocp/internal/amqp"
	gsheet "ocp/internal/sheets/google"
	"ocp/internal/sheets/memory"
	"ocp/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger

	// dialSheets is replaced in tests.
	dialSheets func(ctx context.Context, id, contracts, report string) (*gsheet.Client, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger:     logger,
		dialSheets: gsheet.Dial,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case SheetsBackend:
		res, err = f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		res, err = f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}
	res.Type = config.Type

	if res.Reports == nil && config.GoogleSpreadsheetID != "" {
		f.attachReportSheet(ctx, config, res)
	}
	f.attachPublisher(config, res)

	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Contracts:  repo,
		Selections: repo,
		Writer:     repo,
		Repository: repo,
		Cleanup:    repo.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := f.dialSheets(ctx, config.GoogleSpreadsheetID, config.GoogleContractsSheet, config.GoogleReportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "contracts_sheet", config.GoogleContractsSheet)

	// Selections are not written back to the spreadsheet.
	return &BackendResult{
		Contracts: cli,
		Reports:   cli,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store, err := memory.NewFromFiles(ctx, dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load contracts from %s: %w", dataDir, err)
	}

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{
		Contracts:  store,
		Selections: store,
		Writer:     store,
	}, nil
}

// attachReportSheet wires the spreadsheet as report sink. Failures only
// disable the sink.
func (f *DefaultFactory) attachReportSheet(ctx context.Context, config Config, res *BackendResult) {
	cli, err := f.dialSheets(ctx, config.GoogleSpreadsheetID, config.GoogleContractsSheet, config.GoogleReportSheet)
	if err != nil {
		f.logger.Warn("Failed to initialize report sheet, continuing without it", "error", err)
		return
	}
	res.Reports = cli
	f.logger.Info("Initialized report sheet", "sheet", config.GoogleReportSheet)
}

// attachPublisher connects the completion publisher. The broker is optional.
func (f *DefaultFactory) attachPublisher(config Config, res *BackendResult) {
	if config.AMQPURL == "" {
		return
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		return
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	res.Publisher = client
	prev := res.Cleanup
	res.Cleanup = func() error {
		var errs []error
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close amqp: %w", err))
		}
		if prev != nil {
			if err := prev(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
