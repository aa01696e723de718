package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SchedulerConfig holds configuration for the analysis scheduler
type SchedulerConfig struct {
	// Interval between scheduled analyses (default: 24h)
	Interval time.Duration

	// Categories restricts scheduled runs; empty means all categories.
	Categories []string

	// PublishReport also writes each run to the report sink.
	PublishReport bool
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: 24 * time.Hour,
	}
}

// Analyzer is the part of AnalysisService the scheduler drives.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (AnalysisOutcome, error)
}

// Scheduler re-runs and saves the analysis on a fixed interval so the run
// history follows the data source.
type Scheduler struct {
	analyzer Analyzer
	config   SchedulerConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewScheduler(analyzer Analyzer, config SchedulerConfig) *Scheduler {
	return &Scheduler{
		analyzer: analyzer,
		config:   config,
	}
}

// Start begins the loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %v", s.config.Interval)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	slog.InfoContext(ctx, "Analysis scheduler started", "interval", s.config.Interval)
	return nil
}

// Stop gracefully stops the scheduler and waits for the current run.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
		slog.InfoContext(ctx, "Analysis scheduler stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Analysis scheduler stop timed out")
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.runOnce(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	out, err := s.analyzer.Analyze(ctx, AnalysisRequest{
		Categories:    s.config.Categories,
		Save:          true,
		PublishReport: s.config.PublishReport,
	})
	if err != nil {
		slog.ErrorContext(ctx, "Scheduled analysis failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "Scheduled analysis saved",
		"run_id", out.RunID,
		"rows", len(out.Result.Rows),
		"total_savings_cents", out.Result.Total.Cents)
}
