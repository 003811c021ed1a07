package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func TestTenantMiddlewareUnpacksHeaders(t *testing.T) {
	var companyID, actorID int64
	var tenantErr error
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		companyID, tenantErr = shared.TenantFromContext(r.Context())
		actorID = shared.ActorFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TenantHeader, "7")
	req.Header.Set(ActorHeader, "42")
	TenantMiddleware(next).ServeHTTP(httptest.NewRecorder(), req)

	require.NoError(t, tenantErr)
	require.Equal(t, int64(7), companyID)
	require.Equal(t, int64(42), actorID)
}

func TestTenantMiddlewareIgnoresBadHeader(t *testing.T) {
	var tenantErr error
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, tenantErr = shared.TenantFromContext(r.Context())
	})

	for _, header := range []string{"", "abc", "-3", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(TenantHeader, header)
		}
		TenantMiddleware(next).ServeHTTP(httptest.NewRecorder(), req)
		require.ErrorIs(t, tenantErr, shared.ErrTenantMissing, "header %q", header)
	}
}
