package bom

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// Repository abstracts formula persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, companyID, id int64) (*Formula, error)
	GetByNumber(ctx context.Context, companyID int64, number string) (*Formula, error)
	List(ctx context.Context, companyID int64, filter ListFilter) ([]Formula, int, error)
	Insert(ctx context.Context, formula Formula) (int64, error)
	InsertLines(ctx context.Context, formulaID int64, lines []ComponentLine) error
	Update(ctx context.Context, formula Formula) error
	DeleteLines(ctx context.Context, formulaID int64) error
	Delete(ctx context.Context, companyID, id int64) error
	NextSequence(ctx context.Context, companyID int64, prefix string) (int, error)
	RefreshLineCosts(ctx context.Context, companyID int64) (int64, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL formula repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Formula, error) {
	return r.getWhere(ctx, companyID, `id=$2`, id)
}

func (r *repository) GetByNumber(ctx context.Context, companyID int64, number string) (*Formula, error) {
	return r.getWhere(ctx, companyID, `number=$2`, number)
}

func (r *repository) getWhere(ctx context.Context, companyID int64, cond string, arg any) (*Formula, error) {
	var f Formula
	query := fmt.Sprintf(`SELECT id, company_id, number, item_id, output_qty, is_active, note, created_at, updated_at
FROM formulas WHERE company_id=$1 AND %s`, cond)
	err := r.db.QueryRow(ctx, query, companyID, arg).
		Scan(&f.ID, &f.CompanyID, &f.Number, &f.ItemID, &f.OutputQty, &f.IsActive, &f.Note, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	lines, err := r.lines(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	f.Lines = lines
	return &f, nil
}

func (r *repository) lines(ctx context.Context, formulaID int64) ([]ComponentLine, error) {
	rows, err := r.db.Query(ctx, `SELECT id, formula_id, seq, item_id, quantity, unit_cost
FROM formula_lines WHERE formula_id=$1 ORDER BY seq ASC, id ASC`, formulaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []ComponentLine
	for rows.Next() {
		var line ComponentLine
		if err := rows.Scan(&line.ID, &line.FormulaID, &line.Seq, &line.ItemID, &line.Quantity, &line.UnitCost); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *repository) List(ctx context.Context, companyID int64, filter ListFilter) ([]Formula, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	var active any
	if filter.Active != nil {
		active = *filter.Active
	}

	const cond = `company_id=$1
  AND ($2::bigint = 0 OR item_id=$2)
  AND ($3::boolean IS NULL OR is_active=$3)
  AND ($4::text = '' OR number ILIKE '%' || $4 || '%')`

	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM formulas WHERE `+cond,
		companyID, filter.ItemID, active, filter.Search).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, `SELECT id, company_id, number, item_id, output_qty, is_active, note, created_at, updated_at
FROM formulas WHERE `+cond+`
ORDER BY number DESC
LIMIT $5 OFFSET $6`, companyID, filter.ItemID, active, filter.Search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	formulas := []Formula{}
	for rows.Next() {
		var f Formula
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.Number, &f.ItemID, &f.OutputQty, &f.IsActive, &f.Note, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, 0, err
		}
		formulas = append(formulas, f)
	}
	return formulas, total, rows.Err()
}

func (r *repository) Insert(ctx context.Context, formula Formula) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO formulas (company_id, number, item_id, output_qty, is_active, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id`,
		formula.CompanyID, formula.Number, formula.ItemID, formula.OutputQty, formula.IsActive, formula.Note).Scan(&id)
	return id, err
}

func (r *repository) InsertLines(ctx context.Context, formulaID int64, lines []ComponentLine) error {
	for _, line := range lines {
		if _, err := r.db.Exec(ctx, `INSERT INTO formula_lines (formula_id, seq, item_id, quantity, unit_cost)
VALUES ($1,$2,$3,$4,$5)`, formulaID, line.Seq, line.ItemID, line.Quantity, line.UnitCost); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) Update(ctx context.Context, formula Formula) error {
	tag, err := r.db.Exec(ctx, `UPDATE formulas SET item_id=$1, output_qty=$2, is_active=$3, note=$4, updated_at=NOW()
WHERE company_id=$5 AND id=$6`, formula.ItemID, formula.OutputQty, formula.IsActive, formula.Note, formula.CompanyID, formula.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) DeleteLines(ctx context.Context, formulaID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM formula_lines WHERE formula_id=$1`, formulaID)
	return err
}

func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM formulas WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NextSequence returns the next number suffix for a month prefix, 1 when no
// prior formula exists.
func (r *repository) NextSequence(ctx context.Context, companyID int64, prefix string) (int, error) {
	var max int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(substring(number from length($2) + 1)::int), 0)
FROM formulas WHERE company_id=$1 AND number LIKE $2 || '%'`, companyID, prefix).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// RefreshLineCosts re-prices component lines from the item master. Returns the
// number of lines touched.
func (r *repository) RefreshLineCosts(ctx context.Context, companyID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE formula_lines fl
SET unit_cost = i.purchase_price
FROM formulas f, items i
WHERE fl.formula_id = f.id AND fl.item_id = i.id
  AND f.company_id = $1 AND i.company_id = $1
  AND fl.unit_cost <> i.purchase_price`, companyID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
