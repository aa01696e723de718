package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ocp/internal/amqp"
	"ocp/internal/core"
	applog "ocp/internal/log"
	"ocp/internal/overlap"
	"ocp/internal/sheets"
)

// ErrReadOnly is returned when the data source cannot store selections.
var ErrReadOnly = errors.New("data source does not store selections")

// RunStore persists analysis results.
type RunStore interface {
	SaveRun(ctx context.Context, runID string, res overlap.Result) error
}

// CompletionPublisher announces finished runs.
type CompletionPublisher interface {
	PublishAnalysisCompleted(ctx context.Context, msg *amqp.AnalysisCompletedMessage) error
}

// AnalysisService orchestrates an analysis across the data source, the run
// store, the report sink and the message broker. Only the contract reader is
// required.
type AnalysisService struct {
	contracts  sheets.ContractReader
	selections sheets.SelectionReader
	writer     sheets.SelectionWriter
	runs       RunStore
	reports    sheets.ReportWriter
	publisher  CompletionPublisher
}

// Option configures optional collaborators.
type Option func(*AnalysisService)

func WithSelections(r sheets.SelectionReader, w sheets.SelectionWriter) Option {
	return func(s *AnalysisService) {
		s.selections = r
		s.writer = w
	}
}

func WithRunStore(r RunStore) Option {
	return func(s *AnalysisService) { s.runs = r }
}

func WithReportWriter(w sheets.ReportWriter) Option {
	return func(s *AnalysisService) { s.reports = w }
}

func WithPublisher(p CompletionPublisher) Option {
	return func(s *AnalysisService) { s.publisher = p }
}

func NewAnalysisService(contracts sheets.ContractReader, opts ...Option) *AnalysisService {
	s := &AnalysisService{contracts: contracts}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalysisRequest describes one analysis.
type AnalysisRequest struct {
	// Categories is the allow-list, processed in order. Nil means every
	// category in first-seen order; a non-nil empty list analyzes nothing.
	Categories []string
	// Selections override stored choices for the groups they name.
	Selections overlap.Selections
	// Save persists the run when a run store is configured.
	Save bool
	// PublishReport writes the result to the report sink.
	PublishReport bool
	// RequestID links the run to a queued request.
	RequestID string
}

// AnalysisOutcome is the result of Analyze. RunID is empty when the run was
// not saved.
type AnalysisOutcome struct {
	RunID     string
	Result    overlap.Result
	ReportRef string
}

// Analyze loads contracts and selections, runs the overlap pipeline and hands
// the result to the configured sinks. Broker failures are logged and do not
// fail the analysis.
func (s *AnalysisService) Analyze(ctx context.Context, req AnalysisRequest) (AnalysisOutcome, error) {
	contracts, err := s.contracts.ListContracts(ctx)
	if err != nil {
		return AnalysisOutcome{}, fmt.Errorf("list contracts: %w", err)
	}

	sel, err := s.loadSelections(ctx, req.Selections)
	if err != nil {
		return AnalysisOutcome{}, err
	}

	allow := req.Categories
	if allow == nil {
		allow = overlap.Categories(contracts)
	}

	res := overlap.Run(contracts, allow, sel)
	out := AnalysisOutcome{Result: res}
	for _, r := range res.Rows {
		if r.Stale {
			slog.WarnContext(ctx, "Selection names no member of its group, keeping the cheapest contract",
				"category", r.Category,
				"group_id", r.GroupID,
				"contracts", r.ContractIDs)
		}
	}

	// The report goes out before the run is saved so a failed write leaves
	// nothing behind and the request can be retried.
	if req.PublishReport {
		if s.reports == nil {
			return out, errors.New("no report writer configured")
		}
		ref, err := s.reports.WriteReport(ctx, res)
		if err != nil {
			return out, fmt.Errorf("write report: %w", err)
		}
		out.ReportRef = ref
	}

	if req.Save && s.runs != nil {
		runID := uuid.NewString()
		if err := s.runs.SaveRun(ctx, runID, res); err != nil {
			return out, fmt.Errorf("save run: %w", err)
		}
		out.RunID = runID
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogAnalysisCompleted(ctx, out.RunID, len(contracts), len(res.Rows), res.Total.Cents)

	if out.RunID != "" {
		s.publishCompleted(ctx, out.RunID, req.RequestID, res)
	}

	return out, nil
}

func (s *AnalysisService) loadSelections(ctx context.Context, overrides overlap.Selections) (overlap.Selections, error) {
	sel := overlap.Selections{}
	if s.selections != nil {
		stored, err := s.selections.ListSelections(ctx)
		if err != nil {
			return nil, fmt.Errorf("list selections: %w", err)
		}
		for k, v := range stored {
			sel[k] = v
		}
	}
	for k, v := range overrides {
		sel[k] = v
	}
	return sel, nil
}

func (s *AnalysisService) publishCompleted(ctx context.Context, runID, requestID string, res overlap.Result) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping completion message")
		return
	}
	msg := amqp.NewAnalysisCompletedMessage(runID, requestID, res)
	if err := s.publisher.PublishAnalysisCompleted(ctx, msg); err != nil {
		// The run is saved; consumers can still find it by id.
		slog.ErrorContext(ctx, "Failed to publish completion message",
			"run_id", runID, "error", err)
	}
}

// Categories lists each category with its contract count in first-seen order.
func (s *AnalysisService) Categories(ctx context.Context) ([]core.CategoryCount, error) {
	contracts, err := s.contracts.ListContracts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	index := map[string]int{}
	var out []core.CategoryCount
	for _, c := range contracts {
		i, ok := index[c.Category]
		if !ok {
			i = len(out)
			index[c.Category] = i
			out = append(out, core.CategoryCount{Name: c.Category})
		}
		out[i].Count++
	}
	return out, nil
}

// SaveSelection records which contracts to keep in a group. An empty kept
// list records "keep none", which removes the group from the savings rows.
func (s *AnalysisService) SaveSelection(ctx context.Context, key overlap.GroupKey, kept []string) error {
	if s.writer == nil {
		return ErrReadOnly
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.writer.SaveSelection(ctx, key, kept); err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

// ClearSelection forgets the choice for a group so it falls back to keeping
// the cheapest member.
func (s *AnalysisService) ClearSelection(ctx context.Context, key overlap.GroupKey) error {
	if s.writer == nil {
		return ErrReadOnly
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := s.writer.ClearSelection(ctx, key); err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}
	return nil
}

// ErrInvalidGroup is returned for selection keys that cannot name a group.
var ErrInvalidGroup = errors.New("invalid group")

func validateKey(key overlap.GroupKey) error {
	if key.Category == "" {
		return fmt.Errorf("%w: %w", ErrInvalidGroup, core.ErrEmptyCategory)
	}
	if key.GroupID < 1 {
		return fmt.Errorf("%w: group id must be positive, got %d", ErrInvalidGroup, key.GroupID)
	}
	return nil
}
