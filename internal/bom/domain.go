package bom

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Formula defines how a produced item is made: the yield per batch and the
// raw-material lines consumed per batch.
type Formula struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"company_id"`
	Number    string          `json:"number"`
	ItemID    int64           `json:"item_id"`
	OutputQty decimal.Decimal `json:"output_qty"`
	IsActive  bool            `json:"is_active"`
	Note      string          `json:"note,omitempty"`
	Lines     []ComponentLine `json:"lines"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ComponentLine is a single raw-material requirement within a formula.
// Quantity is the amount consumed per batch of OutputQty produced units and
// must be strictly positive.
type ComponentLine struct {
	ID        int64           `json:"id"`
	FormulaID int64           `json:"formula_id"`
	Seq       int32           `json:"seq"`
	ItemID    int64           `json:"item_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// BatchCost returns the raw-material cost of one full batch.
func (f Formula) BatchCost() decimal.Decimal {
	total := decimal.Zero
	for _, line := range f.Lines {
		total = total.Add(line.Quantity.Mul(line.UnitCost))
	}
	return total
}

// UnitCost returns the raw-material cost per produced unit, zero when the
// formula has no yield.
func (f Formula) UnitCost() decimal.Decimal {
	if f.OutputQty.IsZero() {
		return decimal.Zero
	}
	return f.BatchCost().Div(f.OutputQty)
}

// ListFilter filters formula listings.
type ListFilter struct {
	ItemID int64
	Active *bool
	Search string
	Page   int
	Limit  int
}

// ErrNotFound indicates a formula absent or outside the tenant scope.
var ErrNotFound = errors.New("bom: formula not found")

// ErrInvalidComponent indicates a non-positive component quantity.
var ErrInvalidComponent = errors.New("bom: component quantity must be positive")

// ErrNoComponents indicates a formula without lines.
var ErrNoComponents = errors.New("bom: formula requires at least one component")

// ErrNumberConflict indicates a formula-number collision that exhausted its
// retries. Treated as retryable by callers, never silently overwritten.
var ErrNumberConflict = errors.New("bom: formula number conflict")
