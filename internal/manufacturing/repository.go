package manufacturing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// TxRuntime combines the stock ledger with process persistence so one
// transaction covers debits, the credit, both movements and the completed
// process row.
type TxRuntime interface {
	stock.TxLedger
	CompleteProcess(ctx context.Context, process Process) error
}

// Repository abstracts process persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRuntime) error) error
	Insert(ctx context.Context, process Process) (int64, error)
	UpdateStatus(ctx context.Context, companyID, id int64, from, to ProcessStatus, reason string, shortages []Shortage) error
	Get(ctx context.Context, companyID, id int64) (*Process, error)
	List(ctx context.Context, companyID int64, filter ProcessFilter) ([]Process, int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL process repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRuntime struct {
	stock.TxLedger
	tx pgx.Tx
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRuntime) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRuntime{TxLedger: stock.NewTxLedger(tx), tx: tx})
	})
}

func (r *repository) Insert(ctx context.Context, process Process) (int64, error) {
	shortages, err := marshalShortages(process.Shortages)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO manufacturing_processes
(company_id, reference, formula_id, raw_warehouse_id, finished_warehouse_id, quantity, status, total_cost, cost_per_unit, failure_reason, shortages, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW()) RETURNING id`,
		process.CompanyID, process.Reference, process.FormulaID, process.RawWarehouseID, process.FinishedWarehouseID,
		process.Quantity, string(process.Status), process.TotalCost, process.CostPerUnit,
		process.FailureReason, shortages, process.CreatedBy).Scan(&id)
	return id, err
}

// UpdateStatus performs a guarded transition. The WHERE clause carries the
// expected current status so terminal states can never be left again.
func (r *repository) UpdateStatus(ctx context.Context, companyID, id int64, from, to ProcessStatus, reason string, shortages []Shortage) error {
	if !from.CanTransition(to) {
		return ErrIllegalTransition
	}
	data, err := marshalShortages(shortages)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE manufacturing_processes
SET status=$1, failure_reason=$2, shortages=COALESCE($3, shortages)
WHERE company_id=$4 AND id=$5 AND status=$6`,
		string(to), reason, data, companyID, id, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIllegalTransition
	}
	return nil
}

func (t *txRuntime) CompleteProcess(ctx context.Context, process Process) error {
	tag, err := t.tx.Exec(ctx, `UPDATE manufacturing_processes
SET status=$1, total_cost=$2, cost_per_unit=$3, out_movement_id=$4, in_movement_id=$5, completed_at=NOW()
WHERE company_id=$6 AND id=$7 AND status=$8`,
		string(StatusCompleted), process.TotalCost, process.CostPerUnit,
		process.OutMovementID, process.InMovementID, process.CompanyID, process.ID, string(StatusInProgress))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIllegalTransition
	}
	return nil
}

const processColumns = `id, company_id, reference, formula_id, raw_warehouse_id, finished_warehouse_id, quantity, status, total_cost, cost_per_unit, failure_reason, shortages, COALESCE(out_movement_id, 0), COALESCE(in_movement_id, 0), created_by, created_at, completed_at`

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Process, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+processColumns+`
FROM manufacturing_processes WHERE company_id=$1 AND id=$2`, companyID, id)
	process, err := scanProcess(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProcessNotFound
		}
		return nil, err
	}
	return process, nil
}

func (r *repository) List(ctx context.Context, companyID int64, filter ProcessFilter) ([]Process, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	const cond = `company_id=$1
  AND ($2::bigint = 0 OR formula_id=$2)
  AND ($3::text = '' OR status=$3)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM manufacturing_processes WHERE `+cond,
		companyID, filter.FormulaID, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+processColumns+`
FROM manufacturing_processes WHERE `+cond+`
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`, companyID, filter.FormulaID, string(filter.Status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	processes := []Process{}
	for rows.Next() {
		process, err := scanProcess(rows)
		if err != nil {
			return nil, 0, err
		}
		processes = append(processes, *process)
	}
	return processes, total, rows.Err()
}

func scanProcess(row pgx.Row) (*Process, error) {
	var p Process
	var status string
	var shortages []byte
	var completedAt *time.Time
	err := row.Scan(&p.ID, &p.CompanyID, &p.Reference, &p.FormulaID, &p.RawWarehouseID, &p.FinishedWarehouseID,
		&p.Quantity, &status, &p.TotalCost, &p.CostPerUnit, &p.FailureReason, &shortages,
		&p.OutMovementID, &p.InMovementID, &p.CreatedBy, &p.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	p.Status = ProcessStatus(status)
	p.CompletedAt = completedAt
	if len(shortages) > 0 {
		if err := json.Unmarshal(shortages, &p.Shortages); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func marshalShortages(shortages []Shortage) ([]byte, error) {
	if shortages == nil {
		return nil, nil
	}
	return json.Marshal(shortages)
}
