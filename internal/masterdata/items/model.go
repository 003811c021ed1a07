package items

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item represents a stockable material or product within a company.
type Item struct {
	ID            int64           `json:"id"`
	CompanyID     int64           `json:"company_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	UnitID        int64           `json:"unit_id"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
