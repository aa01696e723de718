package sheets

import (
	"context"

	"ocp/internal/core"
	"ocp/internal/overlap"
)

// Ports for outbound adapters.
type (
	// ContractReader returns the validated contract set to analyze.
	ContractReader interface {
		ListContracts(ctx context.Context) ([]core.Contract, error)
	}

	// SelectionReader returns operator retention choices keyed by group.
	SelectionReader interface {
		ListSelections(ctx context.Context) (overlap.Selections, error)
	}

	// SelectionWriter records or clears the retention choice for one group.
	// Saving an empty id list is an explicit "no decision yet".
	SelectionWriter interface {
		SaveSelection(ctx context.Context, key overlap.GroupKey, kept []string) error
		ClearSelection(ctx context.Context, key overlap.GroupKey) error
	}

	// ReportWriter publishes a pipeline result somewhere a person can read it.
	ReportWriter interface {
		WriteReport(ctx context.Context, res overlap.Result) (ref string, err error)
	}
)
