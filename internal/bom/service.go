package bom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// numberRetries caps how often a create re-generates the formula number after
// losing a concurrent-insert race.
const numberRetries = 3

// Service coordinates formula definition and lookup.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the formula service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// ComponentInput describes one raw-material line of a new formula.
type ComponentInput struct {
	ItemID   int64
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// CreateInput describes a new formula.
type CreateInput struct {
	CompanyID int64
	ItemID    int64
	OutputQty decimal.Decimal
	Note      string
	Lines     []ComponentInput
}

// UpdateInput describes a formula mutation. Nil fields are untouched.
type UpdateInput struct {
	OutputQty *decimal.Decimal
	IsActive  *bool
	Note      *string
	Lines     []ComponentInput
}

// Create stores a formula with a generated number. Losing the number race
// against a concurrent create is retried with a fresh sequence.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Formula, error) {
	if input.CompanyID <= 0 || input.ItemID <= 0 {
		return nil, errors.New("bom: company and produced item required")
	}
	if input.OutputQty.Sign() <= 0 {
		return nil, errors.New("bom: output quantity must be positive")
	}
	lines, err := buildLines(input.Lines)
	if err != nil {
		return nil, err
	}

	var created *Formula
	for attempt := 0; attempt < numberRetries; attempt++ {
		number, err := s.GenerateNumber(ctx, input.CompanyID, s.now())
		if err != nil {
			return nil, err
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
			id, err := tx.Insert(ctx, Formula{
				CompanyID: input.CompanyID,
				Number:    number,
				ItemID:    input.ItemID,
				OutputQty: input.OutputQty,
				IsActive:  true,
				Note:      input.Note,
			})
			if err != nil {
				return err
			}
			if err := tx.InsertLines(ctx, id, lines); err != nil {
				return err
			}
			created, err = tx.Get(ctx, input.CompanyID, id)
			return err
		})
		if err == nil {
			return created, nil
		}
		if !db.IsUniqueViolation(err) {
			return nil, err
		}
		s.logger.Warn("formula number collision, retrying",
			slog.String("number", number), slog.Int("attempt", attempt+1))
	}
	return nil, ErrNumberConflict
}

// Get returns a formula with its component lines, scoped to the tenant.
func (s *Service) Get(ctx context.Context, companyID, id int64) (*Formula, error) {
	if companyID <= 0 || id <= 0 {
		return nil, ErrNotFound
	}
	return s.repo.Get(ctx, companyID, id)
}

// GetByNumber resolves a formula by its human-facing number.
func (s *Service) GetByNumber(ctx context.Context, companyID int64, number string) (*Formula, error) {
	if companyID <= 0 || number == "" {
		return nil, ErrNotFound
	}
	return s.repo.GetByNumber(ctx, companyID, number)
}

// List returns formulas matching the filter.
func (s *Service) List(ctx context.Context, companyID int64, filter ListFilter) ([]Formula, int, error) {
	if companyID <= 0 {
		return nil, 0, errors.New("bom: company required")
	}
	return s.repo.List(ctx, companyID, filter)
}

// Update replaces mutable fields and, when lines are given, the whole
// component set.
func (s *Service) Update(ctx context.Context, companyID, id int64, input UpdateInput) (*Formula, error) {
	current, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if input.OutputQty != nil {
		if input.OutputQty.Sign() <= 0 {
			return nil, errors.New("bom: output quantity must be positive")
		}
		current.OutputQty = *input.OutputQty
	}
	if input.IsActive != nil {
		current.IsActive = *input.IsActive
	}
	if input.Note != nil {
		current.Note = *input.Note
	}
	var lines []ComponentLine
	if input.Lines != nil {
		lines, err = buildLines(input.Lines)
		if err != nil {
			return nil, err
		}
	}

	var updated *Formula
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.Update(ctx, *current); err != nil {
			return err
		}
		if lines != nil {
			if err := tx.DeleteLines(ctx, id); err != nil {
				return err
			}
			if err := tx.InsertLines(ctx, id, lines); err != nil {
				return err
			}
		}
		updated, err = tx.Get(ctx, companyID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a formula and its lines.
func (s *Service) Delete(ctx context.Context, companyID, id int64) error {
	if companyID <= 0 || id <= 0 {
		return ErrNotFound
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		return tx.Delete(ctx, companyID, id)
	})
}

// GenerateNumber produces the next formula number for the tenant, formatted
// MF-YYYYMM-#### and monotonically increasing within the month.
func (s *Service) GenerateNumber(ctx context.Context, companyID int64, date time.Time) (string, error) {
	prefix := fmt.Sprintf("MF-%s-", date.Format("200601"))
	seq, err := s.repo.NextSequence(ctx, companyID, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

// RefreshCosts re-prices all component lines of a tenant from the item master.
func (s *Service) RefreshCosts(ctx context.Context, companyID int64) (int64, error) {
	if companyID <= 0 {
		return 0, errors.New("bom: company required")
	}
	touched, err := s.repo.RefreshLineCosts(ctx, companyID)
	if err != nil {
		return 0, err
	}
	if touched > 0 {
		s.logger.Info("formula line costs refreshed",
			slog.Int64("company_id", companyID), slog.Int64("lines", touched))
	}
	return touched, nil
}

func buildLines(inputs []ComponentInput) ([]ComponentLine, error) {
	if len(inputs) == 0 {
		return nil, ErrNoComponents
	}
	lines := make([]ComponentLine, 0, len(inputs))
	for i, in := range inputs {
		if in.ItemID <= 0 {
			return nil, fmt.Errorf("bom: line %d: item required", i+1)
		}
		if in.Quantity.Sign() <= 0 {
			return nil, fmt.Errorf("line %d: %w", i+1, ErrInvalidComponent)
		}
		if in.UnitCost.Sign() < 0 {
			return nil, fmt.Errorf("bom: line %d: unit cost must be >= 0", i+1)
		}
		lines = append(lines, ComponentLine{
			Seq:      int32(i + 1),
			ItemID:   in.ItemID,
			Quantity: in.Quantity,
			UnitCost: in.UnitCost,
		})
	}
	return lines, nil
}
