package items

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository persists items. Every call is scoped to one company.
type Repository interface {
	List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Item, int, error)
	Get(ctx context.Context, companyID, id int64) (Item, error)
	Create(ctx context.Context, item Item) (Item, error)
	Update(ctx context.Context, companyID, id int64, item Item) error
	Delete(ctx context.Context, companyID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL item repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const itemColumns = `id, company_id, code, name, unit_id, purchase_price, sale_price, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Item, int, error) {
	filters = filters.Normalize()

	cond := ` WHERE company_id=$1`
	args := []any{companyID}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		cond += ` AND (name ILIKE $` + strconv.Itoa(len(args)) + ` OR code ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	if filters.Active != nil {
		args = append(args, *filters.Active)
		cond += ` AND is_active=$` + strconv.Itoa(len(args))
	}
	if filters.UnitID > 0 {
		args = append(args, filters.UnitID)
		cond += ` AND unit_id=$` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + itemColumns + ` FROM items` + cond +
		` ORDER BY ` + shared.SortOrder(filters.SortBy, filters.SortDir, "name", "code", "name", "created_at")
	args = append(args, filters.Limit, filters.Offset())
	query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE company_id=$1 AND id=$2`, companyID, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, shared.ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *repository) Create(ctx context.Context, item Item) (Item, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO items
(company_id, code, name, unit_id, purchase_price, sale_price, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		item.CompanyID, item.Code, item.Name, item.UnitID, item.PurchasePrice, item.SalePrice, item.IsActive).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Item{}, shared.ErrDuplicate
		}
		return Item{}, err
	}
	return item, nil
}

func (r *repository) Update(ctx context.Context, companyID, id int64, item Item) error {
	tag, err := r.pool.Exec(ctx, `UPDATE items
SET code=$1, name=$2, unit_id=$3, purchase_price=$4, sale_price=$5, is_active=$6, updated_at=NOW()
WHERE company_id=$7 AND id=$8`,
		item.Code, item.Name, item.UnitID, item.PurchasePrice, item.SalePrice, item.IsActive, companyID, id)
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
	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.CompanyID, &item.Code, &item.Name, &item.UnitID,
		&item.PurchasePrice, &item.SalePrice, &item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}
