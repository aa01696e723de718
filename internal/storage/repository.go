package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ocp/internal/core"
	"ocp/internal/overlap"
	"ocp/internal/sheets"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

var (
	_ sheets.ContractReader  = (*SQLiteRepository)(nil)
	_ sheets.SelectionReader = (*SQLiteRepository)(nil)
	_ sheets.SelectionWriter = (*SQLiteRepository)(nil)
)

// RunSummary describes a persisted analysis run.
type RunSummary struct {
	ID         string
	Categories []string
	Groups     int
	Rows       int
	Total      core.Money
	CreatedAt  time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ImportContracts upserts contracts by id in a single transaction.
func (r *SQLiteRepository) ImportContracts(ctx context.Context, contracts []core.Contract) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	for _, c := range contracts {
		if err := c.Validate(); err != nil {
			return 0, fmt.Errorf("contract %q: %w", c.ID, err)
		}
		err := q.UpsertContract(ctx, Contract{
			ID:               c.ID,
			Name:             c.Name,
			Category:         c.Category,
			StartDate:        c.Start.Format(dateLayout),
			EndDate:          c.End.Format(dateLayout),
			CostCents:        c.Cost.Cents,
			MaintenanceCents: c.Maintenance.Cents,
		})
		if err != nil {
			return 0, fmt.Errorf("upsert contract %q: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}

	slog.InfoContext(ctx, "Contracts imported to SQLite", "count", len(contracts))
	return len(contracts), nil
}

// ListContracts implements sheets.ContractReader
func (r *SQLiteRepository) ListContracts(ctx context.Context) ([]core.Contract, error) {
	dbContracts, err := r.queries.ListContracts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}

	contracts := make([]core.Contract, 0, len(dbContracts))
	for _, c := range dbContracts {
		start, err := time.Parse(dateLayout, c.StartDate)
		if err != nil {
			return nil, fmt.Errorf("contract %q start date: %w", c.ID, err)
		}
		end, err := time.Parse(dateLayout, c.EndDate)
		if err != nil {
			return nil, fmt.Errorf("contract %q end date: %w", c.ID, err)
		}
		contracts = append(contracts, core.Contract{
			ID:          c.ID,
			Name:        c.Name,
			Category:    c.Category,
			Start:       core.Date{Time: start},
			End:         core.Date{Time: end},
			Cost:        core.Money{Cents: c.CostCents},
			Maintenance: core.Money{Cents: c.MaintenanceCents},
		})
	}
	return contracts, nil
}

// ListCategories returns each category with its contract count, in the order
// categories were first imported.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.CategoryCount, error) {
	rows, err := r.queries.ListCategoryCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.CategoryCount, len(rows))
	for i, row := range rows {
		out[i] = core.CategoryCount{Name: row.Category, Count: int(row.Count)}
	}
	return out, nil
}

// ListSelections implements sheets.SelectionReader
func (r *SQLiteRepository) ListSelections(ctx context.Context) (overlap.Selections, error) {
	rows, err := r.queries.ListRetained(ctx)
	if err != nil {
		return nil, fmt.Errorf("list retained contracts: %w", err)
	}
	sel := overlap.Selections{}
	for _, row := range rows {
		key := overlap.GroupKey{Category: row.Category, GroupID: int(row.GroupID)}
		kept, ok := sel[key]
		if !ok {
			kept = overlap.NewKeptSet()
			sel[key] = kept
		}
		if row.ContractID.Valid {
			kept[row.ContractID.String] = struct{}{}
		}
	}
	return sel, nil
}

// SaveSelection implements sheets.SelectionWriter. An empty kept list is
// stored as an explicit "keep none" decision.
func (r *SQLiteRepository) SaveSelection(ctx context.Context, key overlap.GroupKey, kept []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save selection: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	gid := int64(key.GroupID)
	if err := q.UpsertDecision(ctx, key.Category, gid); err != nil {
		return fmt.Errorf("upsert decision: %w", err)
	}
	if err := q.DeleteRetained(ctx, key.Category, gid); err != nil {
		return fmt.Errorf("delete retained: %w", err)
	}
	for _, id := range kept {
		if err := q.InsertRetained(ctx, key.Category, gid, id); err != nil {
			return fmt.Errorf("insert retained %q: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save selection: %w", err)
	}

	slog.InfoContext(ctx, "Selection saved",
		"category", key.Category,
		"group_id", key.GroupID,
		"kept", len(kept))
	return nil
}

// ClearSelection implements sheets.SelectionWriter
func (r *SQLiteRepository) ClearSelection(ctx context.Context, key overlap.GroupKey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear selection: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	gid := int64(key.GroupID)
	if err := q.DeleteRetained(ctx, key.Category, gid); err != nil {
		return fmt.Errorf("delete retained: %w", err)
	}
	if err := q.DeleteDecision(ctx, key.Category, gid); err != nil {
		return fmt.Errorf("delete decision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear selection: %w", err)
	}

	slog.InfoContext(ctx, "Selection cleared", "category", key.Category, "group_id", key.GroupID)
	return nil
}

// SaveRun stores a result and its savings rows under runID.
func (r *SQLiteRepository) SaveRun(ctx context.Context, runID string, res overlap.Result) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	groups := 0
	for _, cr := range res.Categories {
		groups += cr.Groups
	}
	err = q.InsertRun(ctx, AnalysisRun{
		ID:                runID,
		Categories:        strings.Join(categoryNames(res), ","),
		GroupCount:        int64(groups),
		RowCount:          int64(len(res.Rows)),
		TotalSavingsCents: res.Total.Cents,
	})
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, row := range res.Rows {
		ids, err := json.Marshal(row.ContractIDs)
		if err != nil {
			return fmt.Errorf("encode contract ids: %w", err)
		}
		err = q.InsertSavingsRow(ctx, SavingsRow{
			RunID:           runID,
			Category:        row.Category,
			GroupID:         int64(row.GroupID),
			Members:         int64(row.Members),
			ContractIDs:     string(ids),
			TotalGroupCents: row.TotalGroupCost.Cents,
			RetainedCents:   row.RetainedCost.Cents,
			SavingsCents:    row.EstimatedSavings.Cents,
			Policy:          string(row.Policy),
		})
		if err != nil {
			return fmt.Errorf("insert savings row %s/%d: %w", row.Category, row.GroupID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save run: %w", err)
	}

	slog.InfoContext(ctx, "Analysis run saved",
		"run_id", runID,
		"rows", len(res.Rows),
		"total_savings_cents", res.Total.Cents)
	return nil
}

// ListRuns returns the most recent runs first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	runs, err := r.queries.ListRuns(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]RunSummary, len(runs))
	for i, run := range runs {
		var cats []string
		if run.Categories != "" {
			cats = strings.Split(run.Categories, ",")
		}
		out[i] = RunSummary{
			ID:         run.ID,
			Categories: cats,
			Groups:     int(run.GroupCount),
			Rows:       int(run.RowCount),
			Total:      core.Money{Cents: run.TotalSavingsCents},
			CreatedAt:  run.CreatedAt.Time,
		}
	}
	return out, nil
}

// RunRows returns the savings rows stored for a run, ordered by group id.
func (r *SQLiteRepository) RunRows(ctx context.Context, runID string) ([]overlap.SavingsRow, error) {
	rows, err := r.queries.ListSavingsRows(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list savings rows: %w", err)
	}
	out := make([]overlap.SavingsRow, len(rows))
	for i, row := range rows {
		var ids []string
		if err := json.Unmarshal([]byte(row.ContractIDs), &ids); err != nil {
			return nil, fmt.Errorf("decode contract ids for group %d: %w", row.GroupID, err)
		}
		out[i] = overlap.SavingsRow{
			Category:         row.Category,
			GroupID:          int(row.GroupID),
			Members:          int(row.Members),
			ContractIDs:      ids,
			TotalGroupCost:   core.Money{Cents: row.TotalGroupCents},
			RetainedCost:     core.Money{Cents: row.RetainedCents},
			EstimatedSavings: core.Money{Cents: row.SavingsCents},
			Policy:           overlap.Policy(row.Policy),
		}
	}
	return out, nil
}

func categoryNames(res overlap.Result) []string {
	names := make([]string, len(res.Categories))
	for i, cr := range res.Categories {
		names[i] = cr.Category
	}
	return names
}
