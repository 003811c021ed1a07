package items

import (
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
)

func (s *Service) validate(item Item) error {
	if item.CompanyID <= 0 {
		return fmt.Errorf("%w: company is required", shared.ErrValidation)
	}
	if strings.TrimSpace(item.Code) == "" {
		return fmt.Errorf("%w: item code is required", shared.ErrValidation)
	}
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("%w: item name is required", shared.ErrValidation)
	}
	if item.UnitID <= 0 {
		return fmt.Errorf("%w: unit is required", shared.ErrValidation)
	}
	if item.PurchasePrice.Sign() < 0 || item.SalePrice.Sign() < 0 {
		return fmt.Errorf("%w: prices cannot be negative", shared.ErrValidation)
	}
	return nil
}
