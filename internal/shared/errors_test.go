package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserSafeMessageCollapsesInfrastructureErrors(t *testing.T) {
	require.Empty(t, UserSafeMessage(nil))
	require.Equal(t, "internal error", UserSafeMessage(errors.New("dial tcp 10.0.0.4:5432: connection refused")))

	wrapped := fmt.Errorf("formula 9: %w", ErrNotFound)
	require.Equal(t, wrapped.Error(), UserSafeMessage(wrapped))
	require.Equal(t, ErrConflict.Error(), UserSafeMessage(ErrConflict))
}
