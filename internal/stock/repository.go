package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxLedger exposes the transactional operations used by the ledger and the
// manufacturing executor. Every mutation on a balance row goes through
// GetBalanceForUpdate first so the read-check-write sequence holds the row
// lock until commit.
type TxLedger interface {
	GetBalanceForUpdate(ctx context.Context, companyID, itemID, warehouseID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	InsertMovementLines(ctx context.Context, movementID int64, lines []MovementLine) error
	ConfirmMovement(ctx context.Context, companyID, movementID int64) error
}

type txLedger struct {
	tx pgx.Tx
}

// NewTxLedger wraps an open transaction in the TxLedger interface. Used by
// modules that combine ledger mutations with their own rows in one
// transaction.
func NewTxLedger(tx pgx.Tx) TxLedger {
	return &txLedger{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txLedger{tx: tx})
	})
}

// GetBalance returns the balance without locking. Absence means zero stock,
// never an error.
func (r *Repository) GetBalance(ctx context.Context, companyID, itemID, warehouseID int64) (Balance, error) {
	if r == nil {
		return Balance{}, errors.New("stock repository not initialised")
	}
	var bal Balance
	err := r.pool.QueryRow(ctx, `SELECT company_id, item_id, warehouse_id, quantity, reserved_qty, available_qty, updated_at
FROM stock_balances WHERE company_id=$1 AND item_id=$2 AND warehouse_id=$3`, companyID, itemID, warehouseID).
		Scan(&bal.CompanyID, &bal.ItemID, &bal.WarehouseID, &bal.Quantity, &bal.Reserved, &bal.Available, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{CompanyID: companyID, ItemID: itemID, WarehouseID: warehouseID}, nil
		}
		return Balance{}, err
	}
	return bal, nil
}

// ListMovements returns movement headers matching the filter, oldest first.
func (r *Repository) ListMovements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, movement_type, status, warehouse_id, quantity, unit_cost, total_value, ref_module, ref_id, note, posted_at, created_by, created_at
FROM stock_movements
WHERE company_id=$1
  AND ($2::bigint = 0 OR warehouse_id=$2)
  AND ($3::text = '' OR movement_type=$3)
  AND posted_at BETWEEN COALESCE($4, '-infinity') AND COALESCE($5, 'infinity')
ORDER BY posted_at ASC, id ASC
LIMIT $6`, companyID, filter.WarehouseID, string(filter.Type), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.Type, &m.Status, &m.WarehouseID, &m.Quantity, &m.UnitCost, &m.TotalValue, &m.RefModule, &m.RefID, &m.Note, &m.PostedAt, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

// GetMovement returns one movement with its lines.
func (r *Repository) GetMovement(ctx context.Context, companyID, id int64) (Movement, error) {
	var m Movement
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, movement_type, status, warehouse_id, quantity, unit_cost, total_value, ref_module, ref_id, note, posted_at, created_by, created_at
FROM stock_movements WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&m.ID, &m.CompanyID, &m.Type, &m.Status, &m.WarehouseID, &m.Quantity, &m.UnitCost, &m.TotalValue, &m.RefModule, &m.RefID, &m.Note, &m.PostedAt, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, ErrMovementNotFound
		}
		return Movement{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, movement_id, item_id, quantity, unit_cost FROM stock_movement_lines WHERE movement_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Movement{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line MovementLine
		if err := rows.Scan(&line.ID, &line.MovementID, &line.ItemID, &line.Quantity, &line.UnitCost); err != nil {
			return Movement{}, err
		}
		m.Lines = append(m.Lines, line)
	}
	return m, rows.Err()
}

func (l *txLedger) GetBalanceForUpdate(ctx context.Context, companyID, itemID, warehouseID int64) (Balance, error) {
	var bal Balance
	err := l.tx.QueryRow(ctx, `SELECT company_id, item_id, warehouse_id, quantity, reserved_qty, available_qty, updated_at
FROM stock_balances WHERE company_id=$1 AND item_id=$2 AND warehouse_id=$3 FOR UPDATE`, companyID, itemID, warehouseID).
		Scan(&bal.CompanyID, &bal.ItemID, &bal.WarehouseID, &bal.Quantity, &bal.Reserved, &bal.Available, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{CompanyID: companyID, ItemID: itemID, WarehouseID: warehouseID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (l *txLedger) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := l.tx.Exec(ctx, `INSERT INTO stock_balances (company_id, item_id, warehouse_id, quantity, reserved_qty, available_qty, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (company_id, item_id, warehouse_id) DO UPDATE SET quantity=EXCLUDED.quantity, reserved_qty=EXCLUDED.reserved_qty, available_qty=EXCLUDED.available_qty, updated_at=NOW()`,
		balance.CompanyID, balance.ItemID, balance.WarehouseID, balance.Quantity, balance.Reserved, balance.Available)
	return err
}

func (l *txLedger) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	var id int64
	err := l.tx.QueryRow(ctx, `INSERT INTO stock_movements (company_id, movement_type, status, warehouse_id, quantity, unit_cost, total_value, ref_module, ref_id, note, posted_at, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW()) RETURNING id`,
		movement.CompanyID, string(movement.Type), string(movement.Status), movement.WarehouseID, movement.Quantity, movement.UnitCost, movement.TotalValue,
		movement.RefModule, movement.RefID, movement.Note, movement.PostedAt, movement.CreatedBy).Scan(&id)
	return id, err
}

func (l *txLedger) InsertMovementLines(ctx context.Context, movementID int64, lines []MovementLine) error {
	for _, line := range lines {
		if _, err := l.tx.Exec(ctx, `INSERT INTO stock_movement_lines (movement_id, item_id, quantity, unit_cost)
VALUES ($1,$2,$3,$4)`, movementID, line.ItemID, line.Quantity, line.UnitCost); err != nil {
			return err
		}
	}
	return nil
}

func (l *txLedger) ConfirmMovement(ctx context.Context, companyID, movementID int64) error {
	tag, err := l.tx.Exec(ctx, `UPDATE stock_movements SET status=$1 WHERE company_id=$2 AND id=$3 AND status=$4`,
		string(MovementConfirmed), companyID, movementID, string(MovementDraft))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMovementNotFound
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
