package worker

import (
	"context"
	"fmt"
	"log/slog"

	"ocp/internal/amqp"
	"ocp/internal/services"
)

// AnalysisWorker runs queued analysis requests and saves each run.
type AnalysisWorker struct {
	analyzer      services.Analyzer
	publishReport bool
}

func NewAnalysisWorker(analyzer services.Analyzer, publishReport bool) *AnalysisWorker {
	return &AnalysisWorker{
		analyzer:      analyzer,
		publishReport: publishReport,
	}
}

// HandleAnalysisRequest processes a single request message from AMQP. A
// returned error makes the consumer requeue the message.
func (w *AnalysisWorker) HandleAnalysisRequest(ctx context.Context, msg *amqp.AnalysisRequestMessage) error {
	slog.InfoContext(ctx, "Processing analysis request",
		"request_id", msg.ID,
		"categories", msg.Categories,
		"queued_at", msg.Timestamp)

	out, err := w.analyzer.Analyze(ctx, services.AnalysisRequest{
		Categories:    msg.Categories,
		Save:          true,
		PublishReport: w.publishReport,
		RequestID:     msg.ID,
	})
	if err != nil {
		if out.RunID == "" {
			return fmt.Errorf("analyze request %s: %w", msg.ID, err)
		}
		// The run is stored; a redelivery would only store it again.
		slog.ErrorContext(ctx, "Analysis saved with errors",
			"request_id", msg.ID,
			"run_id", out.RunID,
			"error", err)
		return nil
	}

	slog.InfoContext(ctx, "Analysis request completed",
		"request_id", msg.ID,
		"run_id", out.RunID,
		"rows", len(out.Result.Rows),
		"total_savings_cents", out.Result.Total.Cents,
		"report", out.ReportRef)

	return nil
}
