package manufacturing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/bom"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// FormulaStore resolves the formula a run executes.
type FormulaStore interface {
	Get(ctx context.Context, companyID, id int64) (*bom.Formula, error)
}

// LedgerPort covers the stock operations the executor drives. Credit and
// Debit run against the transaction handed out by Repository.WithTx so the
// whole run commits or rolls back together.
type LedgerPort interface {
	GetBalance(ctx context.Context, companyID, itemID, warehouseID int64) (stock.Balance, error)
	Credit(ctx context.Context, tx stock.TxLedger, companyID, itemID, warehouseID int64, qty decimal.Decimal) (stock.Balance, error)
	Debit(ctx context.Context, tx stock.TxLedger, companyID, itemID, warehouseID int64, qty decimal.Decimal) (stock.Balance, error)
}

// ReferenceChecker verifies warehouses before the executor touches stock.
type ReferenceChecker interface {
	WarehouseExists(ctx context.Context, companyID, id int64) (bool, error)
}

// AuditPort records who ran what.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts run outcomes.
type MetricsPort interface {
	ObserveManufacturingRun(status string)
}

// IdempotencyPort deduplicates execute requests by client key.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

const idempotencyModule = "manufacturing"

// Service executes manufacturing runs.
type Service struct {
	repo     Repository
	formulas FormulaStore
	ledger   LedgerPort
	refs     ReferenceChecker
	audit    AuditPort
	metrics  MetricsPort
	idem     IdempotencyPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the executor. audit, metrics, refs and idem may be nil in
// tests.
func NewService(repo Repository, formulas FormulaStore, ledger LedgerPort, refs ReferenceChecker, audit AuditPort, metrics MetricsPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		formulas: formulas,
		ledger:   ledger,
		refs:     refs,
		audit:    audit,
		metrics:  metrics,
		idem:     idem,
		logger:   logger,
		now:      time.Now,
	}
}

// requirement is one raw material demand of a run.
type requirement struct {
	itemID   int64
	quantity decimal.Decimal
	unitCost decimal.Decimal
}

// Execute runs one manufacturing process end to end.
//
// The availability check walks every component and collects every gap before
// deciding, so a rejection reports the complete shortage list. The check runs
// without locks; the debits inside the transaction re-validate under row
// locks, and a shortage appearing between the two reads is reported as a
// concurrency conflict.
func (s *Service) Execute(ctx context.Context, cmd ExecuteCommand) (*ExecuteResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	if s.idem != nil && cmd.IdempotencyKey != "" {
		if err := s.idem.CheckAndInsert(ctx, cmd.IdempotencyKey, idempotencyModule); err != nil {
			return nil, err
		}
	}
	if err := s.checkWarehouses(ctx, cmd); err != nil {
		return nil, err
	}

	formula, err := s.formulas.Get(ctx, cmd.CompanyID, cmd.FormulaID)
	if err != nil {
		if errors.Is(err, bom.ErrNotFound) {
			return nil, fmt.Errorf("%w: formula %d not found", ErrInvalidInput, cmd.FormulaID)
		}
		return nil, err
	}
	if !formula.IsActive {
		return nil, fmt.Errorf("%w: formula %s is inactive", ErrInvalidInput, formula.Number)
	}
	if len(formula.Lines) == 0 {
		return nil, fmt.Errorf("%w: formula %s has no components", ErrInvalidInput, formula.Number)
	}
	if formula.OutputQty.Sign() <= 0 {
		return nil, fmt.Errorf("%w: formula %s output quantity must be positive", ErrInvalidInput, formula.Number)
	}

	reqs, totalCost := buildRequirements(formula, cmd.Quantity)
	shortages, err := s.checkAvailability(ctx, cmd, reqs)
	if err != nil {
		return nil, err
	}

	process := Process{
		CompanyID:           cmd.CompanyID,
		Reference:           "MO-" + uuid.NewString(),
		FormulaID:           formula.ID,
		RawWarehouseID:      cmd.RawWarehouseID,
		FinishedWarehouseID: cmd.FinishedWarehouseID,
		Quantity:            cmd.Quantity,
		Status:              StatusDraft,
		CreatedBy:           cmd.ActorID,
	}

	if len(shortages) > 0 {
		return s.reject(ctx, cmd, process, shortages)
	}

	process.TotalCost = totalCost
	process.CostPerUnit = CostPerUnit(totalCost, cmd.Quantity)
	return s.run(ctx, cmd, process, formula, reqs)
}

func (s *Service) checkWarehouses(ctx context.Context, cmd ExecuteCommand) error {
	if s.refs == nil {
		return nil
	}
	for _, id := range []int64{cmd.RawWarehouseID, cmd.FinishedWarehouseID} {
		ok, err := s.refs.WarehouseExists(ctx, cmd.CompanyID, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: warehouse %d not found", ErrInvalidInput, id)
		}
	}
	return nil
}

// buildRequirements scales each component line to the produced quantity and
// totals the raw material cost.
func buildRequirements(formula *bom.Formula, quantity decimal.Decimal) ([]requirement, decimal.Decimal) {
	reqs := make([]requirement, 0, len(formula.Lines))
	totalCost := decimal.Zero
	for _, line := range formula.Lines {
		required := line.Quantity.Mul(quantity).Div(formula.OutputQty)
		reqs = append(reqs, requirement{itemID: line.ItemID, quantity: required, unitCost: line.UnitCost})
		totalCost = totalCost.Add(required.Mul(line.UnitCost))
	}
	return reqs, totalCost
}

func (s *Service) checkAvailability(ctx context.Context, cmd ExecuteCommand, reqs []requirement) ([]Shortage, error) {
	var shortages []Shortage
	for _, req := range reqs {
		bal, err := s.ledger.GetBalance(ctx, cmd.CompanyID, req.itemID, cmd.RawWarehouseID)
		if err != nil {
			return nil, err
		}
		if bal.Available.LessThan(req.quantity) {
			shortages = append(shortages, Shortage{
				ItemID:    req.itemID,
				Required:  req.quantity,
				Available: bal.Available,
				Shortage:  req.quantity.Sub(bal.Available),
			})
		}
	}
	return shortages, nil
}

// reject records the shortage list on a terminal rejected process. A
// rejection mutates no stock and is a normal outcome, not an error.
func (s *Service) reject(ctx context.Context, cmd ExecuteCommand, process Process, shortages []Shortage) (*ExecuteResult, error) {
	process.Status = StatusRejected
	process.Shortages = shortages
	id, err := s.repo.Insert(ctx, process)
	if err != nil {
		return nil, err
	}
	s.observe(StatusRejected)
	s.auditRecord(ctx, cmd, id, "manufacturing.reject")
	s.log(ctx).Warn("manufacturing run rejected",
		slog.Int64("process_id", id),
		slog.Int64("formula_id", cmd.FormulaID),
		slog.Int("shortages", len(shortages)))
	return &ExecuteResult{ProcessID: id, Status: StatusRejected, Shortages: shortages}, nil
}

func (s *Service) run(ctx context.Context, cmd ExecuteCommand, process Process, formula *bom.Formula, reqs []requirement) (*ExecuteResult, error) {
	id, err := s.repo.Insert(ctx, process)
	if err != nil {
		return nil, err
	}
	process.ID = id
	if err := s.repo.UpdateStatus(ctx, cmd.CompanyID, id, StatusDraft, StatusInProgress, "", nil); err != nil {
		return nil, err
	}

	txErr := s.repo.WithTx(ctx, func(ctx context.Context, rt TxRuntime) error {
		consumed := decimal.Zero
		for _, req := range reqs {
			if _, err := s.ledger.Debit(ctx, rt, cmd.CompanyID, req.itemID, cmd.RawWarehouseID, req.quantity); err != nil {
				if errors.Is(err, stock.ErrInsufficientStock) {
					return fmt.Errorf("%w: item %d", ErrConcurrencyConflict, req.itemID)
				}
				return err
			}
			consumed = consumed.Add(req.quantity)
		}
		if _, err := s.ledger.Credit(ctx, rt, cmd.CompanyID, formula.ItemID, cmd.FinishedWarehouseID, cmd.Quantity); err != nil {
			return err
		}

		outID, err := s.emitMovement(ctx, rt, process, cmd.RawWarehouseID, consumed.Neg(), reqs)
		if err != nil {
			return err
		}
		inID, err := s.emitMovement(ctx, rt, process, cmd.FinishedWarehouseID, cmd.Quantity,
			[]requirement{{itemID: formula.ItemID, quantity: cmd.Quantity, unitCost: process.CostPerUnit}})
		if err != nil {
			return err
		}

		process.OutMovementID = outID
		process.InMovementID = inID
		return rt.CompleteProcess(ctx, process)
	})
	if txErr != nil {
		// A serialization failure means another transaction touched the same
		// balance rows after our snapshot; callers see it as a conflict, like
		// a lock-time shortage.
		if db.IsSerializationFailure(txErr) {
			txErr = fmt.Errorf("%w: %s", ErrConcurrencyConflict, txErr)
		}
		return nil, s.fail(ctx, cmd, id, txErr)
	}

	s.observe(StatusCompleted)
	s.auditRecord(ctx, cmd, id, "manufacturing.execute")
	s.log(ctx).Info("manufacturing run completed",
		slog.Int64("process_id", id),
		slog.Int64("formula_id", cmd.FormulaID),
		slog.String("quantity", cmd.Quantity.String()),
		slog.String("total_cost", process.TotalCost.String()))
	return &ExecuteResult{
		ProcessID:   id,
		Status:      StatusCompleted,
		TotalCost:   process.TotalCost,
		CostPerUnit: process.CostPerUnit,
	}, nil
}

// emitMovement inserts a manufacturing movement and confirms it inside the
// same transaction. Quantity is signed; lines stay positive.
func (s *Service) emitMovement(ctx context.Context, rt TxRuntime, process Process, warehouseID int64, quantity decimal.Decimal, reqs []requirement) (int64, error) {
	movement := stock.Movement{
		CompanyID:   process.CompanyID,
		Type:        stock.MovementManufacturing,
		Status:      stock.MovementDraft,
		WarehouseID: warehouseID,
		Quantity:    quantity,
		TotalValue:  process.TotalCost,
		RefModule:   idempotencyModule,
		RefID:       process.Reference,
		PostedAt:    s.now(),
		CreatedBy:   process.CreatedBy,
	}
	id, err := rt.InsertMovement(ctx, movement)
	if err != nil {
		return 0, err
	}
	lines := make([]stock.MovementLine, 0, len(reqs))
	for _, req := range reqs {
		lines = append(lines, stock.MovementLine{ItemID: req.itemID, Quantity: req.quantity, UnitCost: req.unitCost})
	}
	if err := rt.InsertMovementLines(ctx, id, lines); err != nil {
		return 0, err
	}
	if err := rt.ConfirmMovement(ctx, process.CompanyID, id); err != nil {
		return 0, err
	}
	return id, nil
}

// fail marks the process failed after the transaction rolled back. The stock
// ledger is untouched at this point.
func (s *Service) fail(ctx context.Context, cmd ExecuteCommand, id int64, cause error) error {
	if err := s.repo.UpdateStatus(ctx, cmd.CompanyID, id, StatusInProgress, StatusFailed, cause.Error(), nil); err != nil {
		s.log(ctx).Error("marking process failed", slog.Int64("process_id", id), slog.Any("error", err))
	}
	s.observe(StatusFailed)
	s.log(ctx).Warn("manufacturing run failed",
		slog.Int64("process_id", id),
		slog.Any("error", cause))
	return cause
}

// Get returns one process scoped to the company.
func (s *Service) Get(ctx context.Context, companyID, id int64) (*Process, error) {
	if companyID <= 0 || id <= 0 {
		return nil, ErrProcessNotFound
	}
	return s.repo.Get(ctx, companyID, id)
}

// List returns processes matching the filter with a total count.
func (s *Service) List(ctx context.Context, companyID int64, filter ProcessFilter) ([]Process, int, error) {
	return s.repo.List(ctx, companyID, filter)
}

func (s *Service) observe(status ProcessStatus) {
	if s.metrics != nil {
		s.metrics.ObserveManufacturingRun(string(status))
	}
}

func (s *Service) auditRecord(ctx context.Context, cmd ExecuteCommand, processID int64, action string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		CompanyID: cmd.CompanyID,
		ActorID:   cmd.ActorID,
		Action:    action,
		Entity:    "manufacturing_process",
		EntityID:  strconv.FormatInt(processID, 10),
		At:        s.now(),
	})
	if err != nil {
		s.log(ctx).Error("audit record", slog.Any("error", err))
	}
}

func (s *Service) log(context.Context) *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
