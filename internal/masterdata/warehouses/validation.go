package warehouses

import (
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
)

func (s *Service) validate(w Warehouse) error {
	if w.CompanyID <= 0 {
		return fmt.Errorf("%w: company is required", shared.ErrValidation)
	}
	if strings.TrimSpace(w.Code) == "" {
		return fmt.Errorf("%w: warehouse code is required", shared.ErrValidation)
	}
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("%w: warehouse name is required", shared.ErrValidation)
	}
	if w.Status != StatusActive && w.Status != StatusInactive {
		return fmt.Errorf("%w: unknown warehouse status %q", shared.ErrValidation, w.Status)
	}
	return nil
}
