package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts repository usage for the ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error
	GetBalance(ctx context.Context, companyID, itemID, warehouseID int64) (Balance, error)
	ListMovements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error)
	GetMovement(ctx context.Context, companyID, id int64) (Movement, error)
}

// Ledger is the single source of truth for quantity-on-hand per item and
// warehouse within a company.
type Ledger struct {
	repo RepositoryPort
}

// NewLedger builds the Ledger.
func NewLedger(repo RepositoryPort) *Ledger {
	return &Ledger{repo: repo}
}

// WithTx runs fn inside one storage transaction. The manufacturing executor
// uses this to make its debit, credit and movement emission all-or-nothing.
func (l *Ledger) WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error {
	return l.repo.WithTx(ctx, fn)
}

// GetBalance returns the balance, zero-valued when the row does not exist.
func (l *Ledger) GetBalance(ctx context.Context, companyID, itemID, warehouseID int64) (Balance, error) {
	if companyID <= 0 || itemID <= 0 || warehouseID <= 0 {
		return Balance{}, errors.New("stock: company, item and warehouse required")
	}
	return l.repo.GetBalance(ctx, companyID, itemID, warehouseID)
}

// Movements lists movement headers for audit consumers.
func (l *Ledger) Movements(ctx context.Context, companyID int64, filter MovementFilter) ([]Movement, error) {
	if companyID <= 0 {
		return nil, errors.New("stock: company required")
	}
	return l.repo.ListMovements(ctx, companyID, filter)
}

// Movement returns one movement with lines.
func (l *Ledger) Movement(ctx context.Context, companyID, id int64) (Movement, error) {
	if companyID <= 0 || id <= 0 {
		return Movement{}, ErrMovementNotFound
	}
	return l.repo.GetMovement(ctx, companyID, id)
}

// Credit increments quantity and available by qty inside the given
// transaction, creating the balance row lazily.
func (l *Ledger) Credit(ctx context.Context, tx TxLedger, companyID, itemID, warehouseID int64, qty decimal.Decimal) (Balance, error) {
	if qty.Sign() <= 0 {
		return Balance{}, ErrInvalidQuantity
	}
	bal, err := lockedBalance(ctx, tx, companyID, itemID, warehouseID)
	if err != nil {
		return Balance{}, err
	}
	bal.Quantity = bal.Quantity.Add(qty)
	bal.Available = bal.Quantity.Sub(bal.Reserved)
	if err := tx.UpsertBalance(ctx, bal); err != nil {
		return Balance{}, err
	}
	return bal, nil
}

// Debit decrements quantity and available by qty inside the given
// transaction. The availability check runs under the row lock, so a debit can
// never overdraw stock regardless of concurrent callers.
func (l *Ledger) Debit(ctx context.Context, tx TxLedger, companyID, itemID, warehouseID int64, qty decimal.Decimal) (Balance, error) {
	if qty.Sign() <= 0 {
		return Balance{}, ErrInvalidQuantity
	}
	bal, err := lockedBalance(ctx, tx, companyID, itemID, warehouseID)
	if err != nil {
		return Balance{}, err
	}
	if bal.Available.LessThan(qty) {
		return Balance{}, fmt.Errorf("item %d warehouse %d: available %s < required %s: %w",
			itemID, warehouseID, bal.Available, qty, ErrInsufficientStock)
	}
	bal.Quantity = bal.Quantity.Sub(qty)
	bal.Available = bal.Quantity.Sub(bal.Reserved)
	if err := tx.UpsertBalance(ctx, bal); err != nil {
		return Balance{}, err
	}
	return bal, nil
}

func lockedBalance(ctx context.Context, tx TxLedger, companyID, itemID, warehouseID int64) (Balance, error) {
	bal, err := tx.GetBalanceForUpdate(ctx, companyID, itemID, warehouseID)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return Balance{CompanyID: companyID, ItemID: itemID, WarehouseID: warehouseID}, nil
		}
		return Balance{}, err
	}
	return bal, nil
}
