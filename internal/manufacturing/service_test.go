package manufacturing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/bom"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// memoryStock backs the real stock ledger with maps so the executor tests
// drive the genuine debit and credit logic.
type memoryStock struct {
	balances  map[string]stock.Balance
	movements []stock.Movement
	nextID    int64
}

func newMemoryStock() *memoryStock {
	return &memoryStock{balances: make(map[string]stock.Balance)}
}

func stockKey(companyID, itemID, warehouseID int64) string {
	return fmt.Sprintf("%d:%d:%d", companyID, itemID, warehouseID)
}

func (m *memoryStock) set(companyID, itemID, warehouseID int64, qty string) {
	q := dec(qty)
	m.balances[stockKey(companyID, itemID, warehouseID)] = stock.Balance{
		CompanyID: companyID, ItemID: itemID, WarehouseID: warehouseID,
		Quantity: q, Available: q,
	}
}

func (m *memoryStock) WithTx(ctx context.Context, fn func(context.Context, stock.TxLedger) error) error {
	return fn(ctx, m)
}

func (m *memoryStock) GetBalance(ctx context.Context, companyID, itemID, warehouseID int64) (stock.Balance, error) {
	if bal, ok := m.balances[stockKey(companyID, itemID, warehouseID)]; ok {
		return bal, nil
	}
	return stock.Balance{CompanyID: companyID, ItemID: itemID, WarehouseID: warehouseID}, nil
}

func (m *memoryStock) ListMovements(ctx context.Context, companyID int64, filter stock.MovementFilter) ([]stock.Movement, error) {
	return m.movements, nil
}

func (m *memoryStock) GetMovement(ctx context.Context, companyID, id int64) (stock.Movement, error) {
	for _, mv := range m.movements {
		if mv.ID == id {
			return mv, nil
		}
	}
	return stock.Movement{}, stock.ErrMovementNotFound
}

func (m *memoryStock) GetBalanceForUpdate(ctx context.Context, companyID, itemID, warehouseID int64) (stock.Balance, error) {
	if bal, ok := m.balances[stockKey(companyID, itemID, warehouseID)]; ok {
		return bal, nil
	}
	return stock.Balance{}, stock.ErrBalanceNotFound
}

func (m *memoryStock) UpsertBalance(ctx context.Context, balance stock.Balance) error {
	m.balances[stockKey(balance.CompanyID, balance.ItemID, balance.WarehouseID)] = balance
	return nil
}

func (m *memoryStock) InsertMovement(ctx context.Context, movement stock.Movement) (int64, error) {
	m.nextID++
	movement.ID = m.nextID
	m.movements = append(m.movements, movement)
	return movement.ID, nil
}

func (m *memoryStock) InsertMovementLines(ctx context.Context, movementID int64, lines []stock.MovementLine) error {
	for i := range m.movements {
		if m.movements[i].ID == movementID {
			m.movements[i].Lines = append(m.movements[i].Lines, lines...)
		}
	}
	return nil
}

func (m *memoryStock) ConfirmMovement(ctx context.Context, companyID, movementID int64) error {
	for i := range m.movements {
		if m.movements[i].ID == movementID && m.movements[i].Status == stock.MovementDraft {
			m.movements[i].Status = stock.MovementConfirmed
			return nil
		}
	}
	return stock.ErrMovementNotFound
}

// memoryEnv implements Repository with snapshot rollback so a failed
// transaction leaves the stock maps untouched, like a real rollback would.
type memoryEnv struct {
	stock        *memoryStock
	processes    map[int64]Process
	nextID       int64
	beforeTx     func()
	failComplete error
	lockErr      error
}

func newMemoryEnv() *memoryEnv {
	return &memoryEnv{stock: newMemoryStock(), processes: make(map[int64]Process)}
}

func (e *memoryEnv) WithTx(ctx context.Context, fn func(context.Context, TxRuntime) error) error {
	if e.beforeTx != nil {
		e.beforeTx()
	}
	balances := make(map[string]stock.Balance, len(e.stock.balances))
	for k, v := range e.stock.balances {
		balances[k] = v
	}
	movements := append([]stock.Movement(nil), e.stock.movements...)
	nextID := e.stock.nextID
	processes := make(map[int64]Process, len(e.processes))
	for k, v := range e.processes {
		processes[k] = v
	}

	if err := fn(ctx, &memoryRuntime{env: e}); err != nil {
		e.stock.balances = balances
		e.stock.movements = movements
		e.stock.nextID = nextID
		e.processes = processes
		return err
	}
	return nil
}

func (e *memoryEnv) Insert(ctx context.Context, process Process) (int64, error) {
	e.nextID++
	process.ID = e.nextID
	e.processes[process.ID] = process
	return process.ID, nil
}

func (e *memoryEnv) UpdateStatus(ctx context.Context, companyID, id int64, from, to ProcessStatus, reason string, shortages []Shortage) error {
	process, ok := e.processes[id]
	if !ok || process.CompanyID != companyID {
		return ErrProcessNotFound
	}
	if process.Status != from || !from.CanTransition(to) {
		return ErrIllegalTransition
	}
	process.Status = to
	process.FailureReason = reason
	if shortages != nil {
		process.Shortages = shortages
	}
	e.processes[id] = process
	return nil
}

func (e *memoryEnv) Get(ctx context.Context, companyID, id int64) (*Process, error) {
	process, ok := e.processes[id]
	if !ok || process.CompanyID != companyID {
		return nil, ErrProcessNotFound
	}
	return &process, nil
}

func (e *memoryEnv) List(ctx context.Context, companyID int64, filter ProcessFilter) ([]Process, int, error) {
	var out []Process
	for _, p := range e.processes {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

type memoryRuntime struct {
	env *memoryEnv
}

func (rt *memoryRuntime) GetBalanceForUpdate(ctx context.Context, companyID, itemID, warehouseID int64) (stock.Balance, error) {
	if rt.env.lockErr != nil {
		return stock.Balance{}, rt.env.lockErr
	}
	return rt.env.stock.GetBalanceForUpdate(ctx, companyID, itemID, warehouseID)
}

func (rt *memoryRuntime) UpsertBalance(ctx context.Context, balance stock.Balance) error {
	return rt.env.stock.UpsertBalance(ctx, balance)
}

func (rt *memoryRuntime) InsertMovement(ctx context.Context, movement stock.Movement) (int64, error) {
	return rt.env.stock.InsertMovement(ctx, movement)
}

func (rt *memoryRuntime) InsertMovementLines(ctx context.Context, movementID int64, lines []stock.MovementLine) error {
	return rt.env.stock.InsertMovementLines(ctx, movementID, lines)
}

func (rt *memoryRuntime) ConfirmMovement(ctx context.Context, companyID, movementID int64) error {
	return rt.env.stock.ConfirmMovement(ctx, companyID, movementID)
}

func (rt *memoryRuntime) CompleteProcess(ctx context.Context, process Process) error {
	if rt.env.failComplete != nil {
		return rt.env.failComplete
	}
	stored, ok := rt.env.processes[process.ID]
	if !ok || stored.Status != StatusInProgress {
		return ErrIllegalTransition
	}
	stored.Status = StatusCompleted
	stored.TotalCost = process.TotalCost
	stored.CostPerUnit = process.CostPerUnit
	stored.OutMovementID = process.OutMovementID
	stored.InMovementID = process.InMovementID
	now := time.Now()
	stored.CompletedAt = &now
	rt.env.processes[process.ID] = stored
	return nil
}

type memoryFormulas struct {
	formulas map[int64]*bom.Formula
}

func (m *memoryFormulas) Get(ctx context.Context, companyID, id int64) (*bom.Formula, error) {
	formula, ok := m.formulas[id]
	if !ok || formula.CompanyID != companyID {
		return nil, bom.ErrNotFound
	}
	return formula, nil
}

type memoryMetrics struct {
	runs map[string]int
}

func (m *memoryMetrics) ObserveManufacturingRun(status string) {
	if m.runs == nil {
		m.runs = make(map[string]int)
	}
	m.runs[status]++
}

type memoryIdem struct {
	keys map[string]bool
}

func (m *memoryIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Cake batter: 10 units of output consume 4 flour at 2.5 and 2 sugar at 1.
func testFormula() *bom.Formula {
	return &bom.Formula{
		ID:        7,
		CompanyID: 1,
		Number:    "MF-202609-0001",
		ItemID:    100,
		OutputQty: dec("10"),
		IsActive:  true,
		Lines: []bom.ComponentLine{
			{Seq: 1, ItemID: 1, Quantity: dec("4"), UnitCost: dec("2.5")},
			{Seq: 2, ItemID: 2, Quantity: dec("2"), UnitCost: dec("1")},
		},
	}
}

func newTestService(env *memoryEnv) (*Service, *memoryMetrics) {
	metrics := &memoryMetrics{}
	svc := NewService(env, &memoryFormulas{formulas: map[int64]*bom.Formula{7: testFormula()}},
		stock.NewLedger(env.stock), nil, nil, metrics, nil,
		slog.New(slog.DiscardHandler))
	return svc, metrics
}

func cmdFor(qty string) ExecuteCommand {
	return ExecuteCommand{
		CompanyID:           1,
		FormulaID:           7,
		RawWarehouseID:      10,
		FinishedWarehouseID: 20,
		Quantity:            dec(qty),
		ActorID:             42,
	}
}

func TestExecuteHappyPath(t *testing.T) {
	env := newMemoryEnv()
	env.stock.set(1, 1, 10, "100")
	env.stock.set(1, 2, 10, "50")
	svc, metrics := newTestService(env)

	result, err := svc.Execute(context.Background(), cmdFor("20"))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.True(t, result.TotalCost.Equal(dec("24")), "got %s", result.TotalCost)
	require.True(t, result.CostPerUnit.Equal(dec("1.2")), "got %s", result.CostPerUnit)
	require.Empty(t, result.Shortages)

	flour := env.stock.balances[stockKey(1, 1, 10)]
	require.True(t, flour.Quantity.Equal(dec("92")))
	sugar := env.stock.balances[stockKey(1, 2, 10)]
	require.True(t, sugar.Quantity.Equal(dec("46")))
	finished := env.stock.balances[stockKey(1, 100, 20)]
	require.True(t, finished.Quantity.Equal(dec("20")))

	process, err := svc.Get(context.Background(), 1, result.ProcessID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, process.Status)
	require.NotZero(t, process.OutMovementID)
	require.NotZero(t, process.InMovementID)
	require.NotNil(t, process.CompletedAt)

	require.Len(t, env.stock.movements, 2)
	for _, movement := range env.stock.movements {
		require.Equal(t, stock.MovementConfirmed, movement.Status)
		require.Equal(t, stock.MovementManufacturing, movement.Type)
	}
	out := env.stock.movements[0]
	require.True(t, out.Quantity.Equal(dec("-12")), "got %s", out.Quantity)
	require.Len(t, out.Lines, 2)
	in := env.stock.movements[1]
	require.True(t, in.Quantity.Equal(dec("20")))
	require.Len(t, in.Lines, 1)
	require.Equal(t, int64(100), in.Lines[0].ItemID)

	require.Equal(t, 1, metrics.runs["completed"])
}

func TestExecuteRejectsWithCompleteShortageList(t *testing.T) {
	env := newMemoryEnv()
	env.stock.set(1, 1, 10, "5")
	// no sugar at all
	svc, metrics := newTestService(env)

	result, err := svc.Execute(context.Background(), cmdFor("20"))
	require.NoError(t, err)
	require.Equal(t, StatusRejected, result.Status)
	require.Len(t, result.Shortages, 2, "every gap reported, not only the first")

	require.Equal(t, int64(1), result.Shortages[0].ItemID)
	require.True(t, result.Shortages[0].Required.Equal(dec("8")))
	require.True(t, result.Shortages[0].Available.Equal(dec("5")))
	require.True(t, result.Shortages[0].Shortage.Equal(dec("3")))
	require.Equal(t, int64(2), result.Shortages[1].ItemID)
	require.True(t, result.Shortages[1].Shortage.Equal(dec("4")))

	// nothing moved
	require.True(t, env.stock.balances[stockKey(1, 1, 10)].Quantity.Equal(dec("5")))
	require.Empty(t, env.stock.movements)
	_, ok := env.stock.balances[stockKey(1, 100, 20)]
	require.False(t, ok)

	process, err := svc.Get(context.Background(), 1, result.ProcessID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, process.Status)
	require.Len(t, process.Shortages, 2)
	require.Equal(t, 1, metrics.runs["rejected"])
}

func TestExecuteRollsBackOnFailure(t *testing.T) {
	env := newMemoryEnv()
	env.stock.set(1, 1, 10, "100")
	env.stock.set(1, 2, 10, "50")
	env.failComplete = errors.New("connection reset")
	svc, metrics := newTestService(env)

	_, err := svc.Execute(context.Background(), cmdFor("20"))
	require.Error(t, err)

	// rollback restored every balance and dropped both movements
	require.True(t, env.stock.balances[stockKey(1, 1, 10)].Quantity.Equal(dec("100")))
	require.True(t, env.stock.balances[stockKey(1, 2, 10)].Quantity.Equal(dec("50")))
	_, ok := env.stock.balances[stockKey(1, 100, 20)]
	require.False(t, ok)
	require.Empty(t, env.stock.movements)

	processes, _, err := svc.List(context.Background(), 1, ProcessFilter{})
	require.NoError(t, err)
	require.Len(t, processes, 1)
	require.Equal(t, StatusFailed, processes[0].Status)
	require.Equal(t, 1, metrics.runs["failed"])
}

func TestExecuteReportsConcurrencyConflict(t *testing.T) {
	env := newMemoryEnv()
	env.stock.set(1, 1, 10, "100")
	env.stock.set(1, 2, 10, "50")
	// a concurrent consumer drains flour between the availability check and
	// the locked debit
	env.beforeTx = func() {
		env.stock.set(1, 1, 10, "3")
	}
	svc, _ := newTestService(env)

	_, err := svc.Execute(context.Background(), cmdFor("20"))
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	require.True(t, env.stock.balances[stockKey(1, 1, 10)].Quantity.Equal(dec("3")))
	require.True(t, env.stock.balances[stockKey(1, 2, 10)].Quantity.Equal(dec("50")))
	require.Empty(t, env.stock.movements)

	processes, _, err := svc.List(context.Background(), 1, ProcessFilter{})
	require.NoError(t, err)
	require.Len(t, processes, 1)
	require.Equal(t, StatusFailed, processes[0].Status)
}

func TestExecuteClassifiesSerializationFailure(t *testing.T) {
	env := newMemoryEnv()
	env.stock.set(1, 1, 10, "100")
	env.stock.set(1, 2, 10, "50")
	// an overlapping run committed first; under repeatable read the losing
	// locked read fails with SQLSTATE 40001
	env.lockErr = &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
	svc, metrics := newTestService(env)

	_, err := svc.Execute(context.Background(), cmdFor("20"))
	require.ErrorIs(t, err, ErrConcurrencyConflict)

	require.True(t, env.stock.balances[stockKey(1, 1, 10)].Quantity.Equal(dec("100")))
	require.True(t, env.stock.balances[stockKey(1, 2, 10)].Quantity.Equal(dec("50")))
	require.Empty(t, env.stock.movements)

	processes, _, err := svc.List(context.Background(), 1, ProcessFilter{})
	require.NoError(t, err)
	require.Len(t, processes, 1)
	require.Equal(t, StatusFailed, processes[0].Status)
	require.Equal(t, 1, metrics.runs["failed"])
}

func TestExecuteScalesComponentsToBatchSize(t *testing.T) {
	env := newMemoryEnv()
	env.stock.set(1, 1, 10, "100")
	env.stock.set(1, 2, 10, "50")
	svc, _ := newTestService(env)

	// a quarter batch: components scale by 2.5/10
	result, err := svc.Execute(context.Background(), cmdFor("2.5"))
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.True(t, env.stock.balances[stockKey(1, 1, 10)].Quantity.Equal(dec("99")))
	require.True(t, env.stock.balances[stockKey(1, 2, 10)].Quantity.Equal(dec("49.5")))
	require.True(t, result.TotalCost.Equal(dec("3")))
	require.True(t, result.CostPerUnit.Equal(dec("1.2")))
}

func TestExecuteValidatesCommand(t *testing.T) {
	env := newMemoryEnv()
	svc, _ := newTestService(env)

	cmd := cmdFor("0")
	_, err := svc.Execute(context.Background(), cmd)
	require.ErrorIs(t, err, ErrInvalidInput)

	cmd = cmdFor("10")
	cmd.FormulaID = 99
	_, err = svc.Execute(context.Background(), cmd)
	require.ErrorIs(t, err, ErrInvalidInput)

	require.Empty(t, env.processes, "invalid input creates no process")
}

func TestExecuteRejectsInactiveFormula(t *testing.T) {
	env := newMemoryEnv()
	formula := testFormula()
	formula.IsActive = false
	metrics := &memoryMetrics{}
	svc := NewService(env, &memoryFormulas{formulas: map[int64]*bom.Formula{7: formula}},
		stock.NewLedger(env.stock), nil, nil, metrics, nil, slog.New(slog.DiscardHandler))

	_, err := svc.Execute(context.Background(), cmdFor("10"))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestExecuteDeduplicatesByIdempotencyKey(t *testing.T) {
	env := newMemoryEnv()
	env.stock.set(1, 1, 10, "100")
	env.stock.set(1, 2, 10, "50")
	metrics := &memoryMetrics{}
	svc := NewService(env, &memoryFormulas{formulas: map[int64]*bom.Formula{7: testFormula()}},
		stock.NewLedger(env.stock), nil, nil, metrics, &memoryIdem{},
		slog.New(slog.DiscardHandler))

	cmd := cmdFor("10")
	cmd.IdempotencyKey = "req-1"
	_, err := svc.Execute(context.Background(), cmd)
	require.NoError(t, err)

	_, err = svc.Execute(context.Background(), cmd)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.True(t, env.stock.balances[stockKey(1, 100, 20)].Quantity.Equal(dec("10")),
		"retry must not produce twice")
}

func TestCostPerUnitZeroQuantity(t *testing.T) {
	require.True(t, CostPerUnit(dec("24"), decimal.Zero).IsZero())
	require.True(t, CostPerUnit(dec("24"), dec("20")).Equal(dec("1.2")))
}

func TestStatusTransitions(t *testing.T) {
	require.True(t, StatusDraft.CanTransition(StatusRejected))
	require.True(t, StatusDraft.CanTransition(StatusInProgress))
	require.True(t, StatusInProgress.CanTransition(StatusCompleted))
	require.True(t, StatusInProgress.CanTransition(StatusFailed))

	require.False(t, StatusDraft.CanTransition(StatusCompleted))
	require.False(t, StatusRejected.CanTransition(StatusInProgress))
	require.False(t, StatusCompleted.CanTransition(StatusFailed))

	for _, s := range []ProcessStatus{StatusRejected, StatusCompleted, StatusFailed} {
		require.True(t, s.Terminal())
	}
	require.False(t, StatusInProgress.Terminal())
}
