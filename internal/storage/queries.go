package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Contract is a row of the contracts table.
type Contract struct {
	ID               string
	Name             string
	Category         string
	StartDate        string
	EndDate          string
	CostCents        int64
	MaintenanceCents int64
}

type AnalysisRun struct {
	ID                string
	Categories        string
	GroupCount        int64
	RowCount          int64
	TotalSavingsCents int64
	CreatedAt         sql.NullTime
}

type SavingsRow struct {
	RunID           string
	Category        string
	GroupID         int64
	Members         int64
	ContractIDs     string
	TotalGroupCents int64
	RetainedCents   int64
	SavingsCents    int64
	Policy          string
}

type RetainedRow struct {
	Category   string
	GroupID    int64
	ContractID sql.NullString
}

type CategoryCountRow struct {
	Category string
	Count    int64
}

const upsertContract = `
INSERT INTO contracts (id, name, category, start_date, end_date, cost_cents, maintenance_cents)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    category = excluded.category,
    start_date = excluded.start_date,
    end_date = excluded.end_date,
    cost_cents = excluded.cost_cents,
    maintenance_cents = excluded.maintenance_cents,
    updated_at = CURRENT_TIMESTAMP`

func (q *Queries) UpsertContract(ctx context.Context, arg Contract) error {
	_, err := q.db.ExecContext(ctx, upsertContract,
		arg.ID, arg.Name, arg.Category, arg.StartDate, arg.EndDate,
		arg.CostCents, arg.MaintenanceCents)
	return err
}

// Insertion order is kept via rowid so listings stay deterministic.
const listContracts = `
SELECT id, name, category, start_date, end_date, cost_cents, maintenance_cents
FROM contracts
ORDER BY rowid`

func (q *Queries) ListContracts(ctx context.Context) ([]Contract, error) {
	rows, err := q.db.QueryContext(ctx, listContracts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Contract
	for rows.Next() {
		var i Contract
		if err := rows.Scan(&i.ID, &i.Name, &i.Category, &i.StartDate, &i.EndDate,
			&i.CostCents, &i.MaintenanceCents); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listCategoryCounts = `
SELECT category, COUNT(*) AS count
FROM contracts
GROUP BY category
ORDER BY MIN(rowid)`

func (q *Queries) ListCategoryCounts(ctx context.Context) ([]CategoryCountRow, error) {
	rows, err := q.db.QueryContext(ctx, listCategoryCounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategoryCountRow
	for rows.Next() {
		var i CategoryCountRow
		if err := rows.Scan(&i.Category, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertDecision = `
INSERT INTO retention_decisions (category, group_id) VALUES (?, ?)
ON CONFLICT(category, group_id) DO UPDATE SET updated_at = CURRENT_TIMESTAMP`

func (q *Queries) UpsertDecision(ctx context.Context, category string, groupID int64) error {
	_, err := q.db.ExecContext(ctx, upsertDecision, category, groupID)
	return err
}

const deleteRetained = `DELETE FROM retained_contracts WHERE category = ? AND group_id = ?`

func (q *Queries) DeleteRetained(ctx context.Context, category string, groupID int64) error {
	_, err := q.db.ExecContext(ctx, deleteRetained, category, groupID)
	return err
}

const insertRetained = `
INSERT OR IGNORE INTO retained_contracts (category, group_id, contract_id) VALUES (?, ?, ?)`

func (q *Queries) InsertRetained(ctx context.Context, category string, groupID int64, contractID string) error {
	_, err := q.db.ExecContext(ctx, insertRetained, category, groupID, contractID)
	return err
}

const deleteDecision = `DELETE FROM retention_decisions WHERE category = ? AND group_id = ?`

func (q *Queries) DeleteDecision(ctx context.Context, category string, groupID int64) error {
	_, err := q.db.ExecContext(ctx, deleteDecision, category, groupID)
	return err
}

// Decisions with no retained contracts come back with a NULL contract id.
const listRetained = `
SELECT d.category, d.group_id, r.contract_id
FROM retention_decisions d
LEFT JOIN retained_contracts r ON r.category = d.category AND r.group_id = d.group_id
ORDER BY d.category, d.group_id, r.contract_id`

func (q *Queries) ListRetained(ctx context.Context) ([]RetainedRow, error) {
	rows, err := q.db.QueryContext(ctx, listRetained)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RetainedRow
	for rows.Next() {
		var i RetainedRow
		if err := rows.Scan(&i.Category, &i.GroupID, &i.ContractID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertRun = `
INSERT INTO analysis_runs (id, categories, group_count, row_count, total_savings_cents)
VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertRun(ctx context.Context, arg AnalysisRun) error {
	_, err := q.db.ExecContext(ctx, insertRun,
		arg.ID, arg.Categories, arg.GroupCount, arg.RowCount, arg.TotalSavingsCents)
	return err
}

const insertSavingsRow = `
INSERT INTO savings_rows (run_id, category, group_id, members, contract_ids,
    total_group_cents, retained_cents, savings_cents, policy)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertSavingsRow(ctx context.Context, arg SavingsRow) error {
	_, err := q.db.ExecContext(ctx, insertSavingsRow,
		arg.RunID, arg.Category, arg.GroupID, arg.Members, arg.ContractIDs,
		arg.TotalGroupCents, arg.RetainedCents, arg.SavingsCents, arg.Policy)
	return err
}

const listRuns = `
SELECT id, categories, group_count, row_count, total_savings_cents, created_at
FROM analysis_runs
ORDER BY created_at DESC, rowid DESC
LIMIT ?`

func (q *Queries) ListRuns(ctx context.Context, limit int64) ([]AnalysisRun, error) {
	rows, err := q.db.QueryContext(ctx, listRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AnalysisRun
	for rows.Next() {
		var i AnalysisRun
		if err := rows.Scan(&i.ID, &i.Categories, &i.GroupCount, &i.RowCount,
			&i.TotalSavingsCents, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listSavingsRows = `
SELECT run_id, category, group_id, members, contract_ids,
    total_group_cents, retained_cents, savings_cents, policy
FROM savings_rows
WHERE run_id = ?
ORDER BY group_id`

func (q *Queries) ListSavingsRows(ctx context.Context, runID string) ([]SavingsRow, error) {
	rows, err := q.db.QueryContext(ctx, listSavingsRows, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SavingsRow
	for rows.Next() {
		var i SavingsRow
		if err := rows.Scan(&i.RunID, &i.Category, &i.GroupID, &i.Members, &i.ContractIDs,
			&i.TotalGroupCents, &i.RetainedCents, &i.SavingsCents, &i.Policy); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
