package warehouses

import "time"

// Status of a warehouse. Inactive warehouses refuse new stock operations.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Warehouse represents a storage location within a company.
type Warehouse struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
