package bom

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryFormulaRepo struct {
	formulas map[int64]Formula
	lines    map[int64][]ComponentLine
	nextID   int64

	// failInsertTimes forces unique violations on the next N inserts.
	failInsertTimes int
}

func newMemoryFormulaRepo() *memoryFormulaRepo {
	return &memoryFormulaRepo{formulas: make(map[int64]Formula), lines: make(map[int64][]ComponentLine)}
}

func (r *memoryFormulaRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *memoryFormulaRepo) Get(ctx context.Context, companyID, id int64) (*Formula, error) {
	f, ok := r.formulas[id]
	if !ok || f.CompanyID != companyID {
		return nil, ErrNotFound
	}
	f.Lines = append([]ComponentLine(nil), r.lines[id]...)
	return &f, nil
}

func (r *memoryFormulaRepo) GetByNumber(ctx context.Context, companyID int64, number string) (*Formula, error) {
	for id, f := range r.formulas {
		if f.CompanyID == companyID && f.Number == number {
			return r.Get(ctx, companyID, id)
		}
	}
	return nil, ErrNotFound
}

func (r *memoryFormulaRepo) List(ctx context.Context, companyID int64, filter ListFilter) ([]Formula, int, error) {
	var result []Formula
	for _, f := range r.formulas {
		if f.CompanyID == companyID {
			result = append(result, f)
		}
	}
	return result, len(result), nil
}

func (r *memoryFormulaRepo) Insert(ctx context.Context, formula Formula) (int64, error) {
	if r.failInsertTimes > 0 {
		r.failInsertTimes--
		return 0, &pgconn.PgError{Code: "23505", ConstraintName: "formulas_company_number_key"}
	}
	for _, f := range r.formulas {
		if f.CompanyID == formula.CompanyID && f.Number == formula.Number {
			return 0, &pgconn.PgError{Code: "23505", ConstraintName: "formulas_company_number_key"}
		}
	}
	r.nextID++
	formula.ID = r.nextID
	formula.CreatedAt = time.Now()
	formula.UpdatedAt = formula.CreatedAt
	r.formulas[formula.ID] = formula
	return formula.ID, nil
}

func (r *memoryFormulaRepo) InsertLines(ctx context.Context, formulaID int64, lines []ComponentLine) error {
	for i := range lines {
		lines[i].FormulaID = formulaID
	}
	r.lines[formulaID] = append(r.lines[formulaID], lines...)
	return nil
}

func (r *memoryFormulaRepo) Update(ctx context.Context, formula Formula) error {
	existing, ok := r.formulas[formula.ID]
	if !ok || existing.CompanyID != formula.CompanyID {
		return ErrNotFound
	}
	formula.UpdatedAt = time.Now()
	r.formulas[formula.ID] = formula
	return nil
}

func (r *memoryFormulaRepo) DeleteLines(ctx context.Context, formulaID int64) error {
	delete(r.lines, formulaID)
	return nil
}

func (r *memoryFormulaRepo) Delete(ctx context.Context, companyID, id int64) error {
	f, ok := r.formulas[id]
	if !ok || f.CompanyID != companyID {
		return ErrNotFound
	}
	delete(r.formulas, id)
	return nil
}

func (r *memoryFormulaRepo) NextSequence(ctx context.Context, companyID int64, prefix string) (int, error) {
	max := 0
	for _, f := range r.formulas {
		if f.CompanyID != companyID || !strings.HasPrefix(f.Number, prefix) {
			continue
		}
		var seq int
		for _, c := range f.Number[len(prefix):] {
			seq = seq*10 + int(c-'0')
		}
		if seq > max {
			max = seq
		}
	}
	return max + 1, nil
}

func (r *memoryFormulaRepo) RefreshLineCosts(ctx context.Context, companyID int64) (int64, error) {
	return 0, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateAssignsSequentialNumbers(t *testing.T) {
	repo := newMemoryFormulaRepo()
	svc := NewService(repo, testLogger())
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	input := CreateInput{
		CompanyID: 1,
		ItemID:    100,
		OutputQty: dec("1"),
		Lines:     []ComponentInput{{ItemID: 200, Quantity: dec("5"), UnitCost: dec("2")}},
	}

	first, err := svc.Create(ctx, input)
	require.NoError(t, err)
	require.Equal(t, "MF-202603-0001", first.Number)

	second, err := svc.Create(ctx, input)
	require.NoError(t, err)
	require.Equal(t, "MF-202603-0002", second.Number)
}

func TestCreateRetriesOnNumberCollision(t *testing.T) {
	repo := newMemoryFormulaRepo()
	repo.failInsertTimes = 1
	svc := NewService(repo, testLogger())
	ctx := context.Background()

	formula, err := svc.Create(ctx, CreateInput{
		CompanyID: 1,
		ItemID:    100,
		OutputQty: dec("1"),
		Lines:     []ComponentInput{{ItemID: 200, Quantity: dec("5"), UnitCost: dec("2")}},
	})
	require.NoError(t, err)
	require.NotNil(t, formula)

	repo.failInsertTimes = numberRetries
	_, err = svc.Create(ctx, CreateInput{
		CompanyID: 1,
		ItemID:    100,
		OutputQty: dec("1"),
		Lines:     []ComponentInput{{ItemID: 200, Quantity: dec("5"), UnitCost: dec("2")}},
	})
	require.ErrorIs(t, err, ErrNumberConflict)
}

func TestGetEnforcesTenantScope(t *testing.T) {
	repo := newMemoryFormulaRepo()
	svc := NewService(repo, testLogger())
	ctx := context.Background()

	formula, err := svc.Create(ctx, CreateInput{
		CompanyID: 1,
		ItemID:    100,
		OutputQty: dec("1"),
		Lines:     []ComponentInput{{ItemID: 200, Quantity: dec("5"), UnitCost: dec("2")}},
	})
	require.NoError(t, err)

	_, err = svc.Get(ctx, 2, formula.ID)
	require.ErrorIs(t, err, ErrNotFound)

	found, err := svc.Get(ctx, 1, formula.ID)
	require.NoError(t, err)
	require.Len(t, found.Lines, 1)
}

func TestGetByNumberEnforcesTenantScope(t *testing.T) {
	repo := newMemoryFormulaRepo()
	svc := NewService(repo, testLogger())
	ctx := context.Background()

	formula, err := svc.Create(ctx, CreateInput{
		CompanyID: 1,
		ItemID:    100,
		OutputQty: dec("1"),
		Lines:     []ComponentInput{{ItemID: 200, Quantity: dec("5"), UnitCost: dec("2")}},
	})
	require.NoError(t, err)

	found, err := svc.GetByNumber(ctx, 1, formula.Number)
	require.NoError(t, err)
	require.Equal(t, formula.ID, found.ID)
	require.Len(t, found.Lines, 1)

	_, err = svc.GetByNumber(ctx, 2, formula.Number)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetByNumber(ctx, 1, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRejectsInvalidComponents(t *testing.T) {
	repo := newMemoryFormulaRepo()
	svc := NewService(repo, testLogger())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{CompanyID: 1, ItemID: 100, OutputQty: dec("1")})
	require.ErrorIs(t, err, ErrNoComponents)

	_, err = svc.Create(ctx, CreateInput{
		CompanyID: 1,
		ItemID:    100,
		OutputQty: dec("1"),
		Lines:     []ComponentInput{{ItemID: 200, Quantity: dec("0"), UnitCost: dec("2")}},
	})
	require.ErrorIs(t, err, ErrInvalidComponent)
}

func TestFormulaUnitCost(t *testing.T) {
	f := Formula{OutputQty: dec("10"), Lines: []ComponentLine{
		{Quantity: dec("5"), UnitCost: dec("2.5")},
		{Quantity: dec("0.25"), UnitCost: dec("40")},
	}}
	require.True(t, f.BatchCost().Equal(dec("22.5")))
	require.True(t, f.UnitCost().Equal(dec("2.25")))

	require.True(t, Formula{}.UnitCost().IsZero())
}

func TestGenerateNumberUsesMonthPrefix(t *testing.T) {
	repo := newMemoryFormulaRepo()
	svc := NewService(repo, testLogger())

	number, err := svc.GenerateNumber(context.Background(), 1, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "MF-202612-0001", number)
}
