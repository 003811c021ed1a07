package manufacturing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ProcessStatus tracks the lifecycle of one manufacturing execution.
//
//	draft -> rejected                          (shortage found, nothing mutated)
//	draft -> in_progress -> completed          (atomic deduction+credit+movements)
//	draft -> in_progress -> failed             (rolled back)
//
// All of rejected, completed and failed are terminal; a retry is a new process.
type ProcessStatus string

const (
	StatusDraft      ProcessStatus = "draft"
	StatusInProgress ProcessStatus = "in_progress"
	StatusRejected   ProcessStatus = "rejected"
	StatusCompleted  ProcessStatus = "completed"
	StatusFailed     ProcessStatus = "failed"
)

var validTransitions = map[ProcessStatus][]ProcessStatus{
	StatusDraft:      {StatusRejected, StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s ProcessStatus) CanTransition(next ProcessStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status accepts no further transition.
func (s ProcessStatus) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// Process links a formula to one concrete run.
type Process struct {
	ID                  int64           `json:"id"`
	CompanyID           int64           `json:"company_id"`
	Reference           string          `json:"reference"`
	FormulaID           int64           `json:"formula_id"`
	RawWarehouseID      int64           `json:"raw_warehouse_id"`
	FinishedWarehouseID int64           `json:"finished_warehouse_id"`
	Quantity            decimal.Decimal `json:"quantity"`
	Status              ProcessStatus   `json:"status"`
	TotalCost           decimal.Decimal `json:"total_cost"`
	CostPerUnit         decimal.Decimal `json:"cost_per_unit"`
	FailureReason       string          `json:"failure_reason,omitempty"`
	Shortages           []Shortage      `json:"shortages,omitempty"`
	OutMovementID       int64           `json:"out_movement_id,omitempty"`
	InMovementID        int64           `json:"in_movement_id,omitempty"`
	CreatedBy           int64           `json:"created_by"`
	CreatedAt           time.Time       `json:"created_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
}

// Shortage reports one raw material the run could not cover. The whole list,
// not only the first gap, is surfaced so callers can resolve everything in
// one pass.
type Shortage struct {
	ItemID    int64           `json:"item_id"`
	Required  decimal.Decimal `json:"required"`
	Available decimal.Decimal `json:"available"`
	Shortage  decimal.Decimal `json:"shortage"`
}

// ExecuteCommand is the validated input of one manufacturing run.
type ExecuteCommand struct {
	CompanyID           int64
	FormulaID           int64
	RawWarehouseID      int64
	FinishedWarehouseID int64
	Quantity            decimal.Decimal
	ActorID             int64
	IdempotencyKey      string
}

// Validate rejects the command before any read of stock.
func (c ExecuteCommand) Validate() error {
	switch {
	case c.CompanyID <= 0:
		return errors.New("company required")
	case c.FormulaID <= 0:
		return errors.New("formula required")
	case c.RawWarehouseID <= 0:
		return errors.New("raw materials warehouse required")
	case c.FinishedWarehouseID <= 0:
		return errors.New("finished product warehouse required")
	case c.Quantity.Sign() <= 0:
		return errors.New("produced quantity must be positive")
	}
	return nil
}

// ExecuteResult is returned to the request layer.
type ExecuteResult struct {
	ProcessID   int64           `json:"process_id"`
	Status      ProcessStatus   `json:"status"`
	TotalCost   decimal.Decimal `json:"total_raw_material_cost"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	Shortages   []Shortage      `json:"shortages,omitempty"`
}

// ProcessFilter filters process listings.
type ProcessFilter struct {
	FormulaID int64
	Status    ProcessStatus
	Page      int
	Limit     int
}

// ErrInvalidInput indicates a command rejected before any read of stock.
var ErrInvalidInput = errors.New("manufacturing: invalid input")

// ErrProcessNotFound indicates a process absent or outside the tenant scope.
var ErrProcessNotFound = errors.New("manufacturing: process not found")

// ErrConcurrencyConflict indicates a debit failed its re-validated
// availability check under lock although the earlier check passed. Callers
// treat it like insufficient stock; it is logged distinctly because it marks
// a race, not stale data.
var ErrConcurrencyConflict = errors.New("manufacturing: stock consumed by concurrent operation")

// ErrIllegalTransition indicates an attempt to leave a terminal status.
var ErrIllegalTransition = errors.New("manufacturing: illegal status transition")

// CostPerUnit divides the total manufacturing cost by the produced quantity,
// returning zero for a zero quantity instead of failing.
func CostPerUnit(totalCost, quantity decimal.Decimal) decimal.Decimal {
	if quantity.IsZero() {
		return decimal.Zero
	}
	return totalCost.Div(quantity)
}
