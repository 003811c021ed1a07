package stock

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementInbound represents an inbound movement.
	MovementInbound MovementType = "IN"
	// MovementOutbound represents an outbound movement.
	MovementOutbound MovementType = "OUT"
	// MovementTransfer used for transfer meta records.
	MovementTransfer MovementType = "TRANSFER"
	// MovementManufacturing marks movements emitted by manufacturing runs.
	MovementManufacturing MovementType = "MANUFACTURING"
	// MovementCount indicates stock count corrections.
	MovementCount MovementType = "COUNT"
)

// MovementStatus tracks the movement lifecycle. Confirmation is one-way.
type MovementStatus string

const (
	// MovementDraft is the initial state of a movement.
	MovementDraft MovementStatus = "DRAFT"
	// MovementConfirmed is the terminal state of a movement.
	MovementConfirmed MovementStatus = "CONFIRMED"
)

// Balance summarises stock per item and warehouse within a company.
// Available always equals Quantity minus Reserved.
type Balance struct {
	CompanyID   int64
	ItemID      int64
	WarehouseID int64
	Quantity    decimal.Decimal
	Reserved    decimal.Decimal
	Available   decimal.Decimal
	UpdatedAt   time.Time
}

// Movement models an immutable stock-change record. Quantity is signed:
// positive for inbound, negative for outbound.
type Movement struct {
	ID          int64
	CompanyID   int64
	Type        MovementType
	Status      MovementStatus
	WarehouseID int64
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	TotalValue  decimal.Decimal
	RefModule   string
	RefID       string
	Note        string
	PostedAt    time.Time
	CreatedBy   int64
	CreatedAt   time.Time
	Lines       []MovementLine
}

// MovementLine records one item's share of a movement.
type MovementLine struct {
	ID         int64
	MovementID int64
	ItemID     int64
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
}

// MovementFilter filters movement listings.
type MovementFilter struct {
	WarehouseID int64
	ItemID      int64
	Type        MovementType
	From        time.Time
	To          time.Time
	Limit       int
}

// ErrInsufficientStock triggered when a debit would overdraw the available
// quantity. Recoverable: callers map it to a rejected process, not a crash.
var ErrInsufficientStock = errors.New("stock: insufficient available quantity")

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("stock: quantity must be positive")

// ErrBalanceNotFound indicates a missing balance row. Absence means zero
// stock; only the locked read paths surface it.
var ErrBalanceNotFound = errors.New("stock: balance not found")

// ErrMovementNotFound indicates a missing movement row.
var ErrMovementNotFound = errors.New("stock: movement not found")
