package warehouses

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists warehouses. Every call is scoped to one company.
type Repository interface {
	List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Warehouse, int, error)
	Get(ctx context.Context, companyID, id int64) (Warehouse, error)
	Create(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	Update(ctx context.Context, companyID, id int64, warehouse Warehouse) error
	Delete(ctx context.Context, companyID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL warehouse repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const warehouseColumns = `id, company_id, code, name, address, status, created_at, updated_at`

func (r *repository) List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Warehouse, int, error) {
	filters = filters.Normalize()

	cond := ` WHERE company_id=$1`
	args := []any{companyID}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		cond += ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR code ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	if filters.Active != nil {
		status := StatusInactive
		if *filters.Active {
			status = StatusActive
		}
		args = append(args, status)
		cond += ` AND status=$` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM warehouses`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + warehouseColumns + ` FROM warehouses` + cond +
		` ORDER BY ` + shared.SortOrder(filters.SortBy, filters.SortDir, "name", "code", "name", "created_at")
	args = append(args, filters.Limit, filters.Offset())
	query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var warehouses []Warehouse
	for rows.Next() {
		wh, err := scanWarehouse(rows)
		if err != nil {
			return nil, 0, err
		}
		warehouses = append(warehouses, wh)
	}
	return warehouses, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Warehouse, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE company_id=$1 AND id=$2`, companyID, id)
	wh, err := scanWarehouse(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Warehouse{}, shared.ErrNotFound
		}
		return Warehouse{}, err
	}
	return wh, nil
}

func (r *repository) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouses
(company_id, code, name, address, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		warehouse.CompanyID, warehouse.Code, warehouse.Name, warehouse.Address, warehouse.Status).
		Scan(&warehouse.ID, &warehouse.CreatedAt, &warehouse.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Warehouse{}, shared.ErrDuplicate
		}
		return Warehouse{}, err
	}
	return warehouse, nil
}

func (r *repository) Update(ctx context.Context, companyID, id int64, warehouse Warehouse) error {
	tag, err := r.pool.Exec(ctx, `UPDATE warehouses
SET code=$1, name=$2, address=$3, status=$4, updated_at=NOW()
WHERE company_id=$5 AND id=$6`,
		warehouse.Code, warehouse.Name, warehouse.Address, warehouse.Status, companyID, id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return shared.ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM warehouses WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanWarehouse(row pgx.Row) (Warehouse, error) {
	var wh Warehouse
	err := row.Scan(&wh.ID, &wh.CompanyID, &wh.Code, &wh.Name, &wh.Address, &wh.Status, &wh.CreatedAt, &wh.UpdatedAt)
	return wh, err
}
