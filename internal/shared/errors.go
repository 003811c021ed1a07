package shared

import "errors"

var (
	// ErrNotFound indicates a resource absent or outside the tenant scope.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a request rejected before touching storage.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates a retryable write collision.
	ErrConflict = errors.New("conflict")
	// ErrTenantMissing occurs when a request carries no company scope.
	ErrTenantMissing = errors.New("tenant not resolved")
)

// UserSafeMessage returns a message suitable for API consumers. Infrastructure
// errors are collapsed so storage details never leak into responses.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrTenantMissing):
		return err.Error()
	default:
		return "internal error"
	}
}
