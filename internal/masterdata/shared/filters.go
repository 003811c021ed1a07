package shared

import "errors"

const (
	// DefaultPage is the first list page.
	DefaultPage = 1
	// DefaultLimit bounds unpaginated list requests.
	DefaultLimit = 25
)

// ListFilters represents standard list page filters. Tenant scope is not a
// filter; every repository call takes the company id explicitly.
type ListFilters struct {
	Page    int
	Limit   int
	Search  string
	SortBy  string
	SortDir string
	Active  *bool
	UnitID  int64
}

// Normalize applies defaults so repositories never see zero paging values.
func (f ListFilters) Normalize() ListFilters {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	return f
}

// Offset computes a row offset from the normalized filters.
func (f ListFilters) Offset() int {
	offset := (f.Page - 1) * f.Limit
	if offset < 0 {
		return 0
	}
	return offset
}

var (
	// ErrNotFound indicates a record absent or outside the tenant scope.
	ErrNotFound = errors.New("resource not found")
	// ErrDuplicate indicates a code collision within a company.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidID indicates a non-positive identifier.
	ErrInvalidID = errors.New("invalid ID")
)

// SortOrder maps a requested column against an allow-list; unknown columns
// fall back to the default so filters never reach the SQL string raw.
func SortOrder(sortBy, sortDir, fallback string, allowed ...string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	for _, col := range allowed {
		if sortBy == col {
			return col + " " + dir
		}
	}
	return fallback + " " + dir
}
