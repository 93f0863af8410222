package policy

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorgate/vendorgate/pkg/httputil"
	"github.com/vendorgate/vendorgate/pkg/identity"
)

func TestValidateTenantScope(t *testing.T) {
	id := testIdentity(identity.RoleCompanyUser) // tenant 3

	t.Run("absent tenant id is valid", func(t *testing.T) {
		result := ValidateTenantScope(nil, id)
		assert.True(t, result.Valid)
		assert.Equal(t, int64(3), result.UserTenantID)
	})

	t.Run("matching tenant id is valid", func(t *testing.T) {
		requested := int64(3)
		result := ValidateTenantScope(&requested, id)
		assert.True(t, result.Valid)
	})

	t.Run("foreign tenant id is a mismatch", func(t *testing.T) {
		requested := int64(9)
		result := ValidateTenantScope(&requested, id)
		assert.False(t, result.Valid)
		assert.Equal(t, httputil.CodeTenantMismatch, result.ErrorCode)
		assert.Equal(t, int64(3), result.UserTenantID)
		require.NotNil(t, result.RequestedTenantID)
		assert.Equal(t, int64(9), *result.RequestedTenantID)
	})
}

func TestRequestedTenantID(t *testing.T) {
	t.Run("no tenant id carried", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/v1/documents", nil)
		got, err := RequestedTenantID(r)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("query parameter", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/v1/documents?tenant_id=12", nil)
		got, err := RequestedTenantID(r)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(12), *got)
	})

	t.Run("header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/v1/documents", nil)
		r.Header.Set("X-Tenant-ID", "5")
		got, err := RequestedTenantID(r)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(5), *got)
	})

	t.Run("query parameter wins over header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/v1/documents?tenant_id=12", nil)
		r.Header.Set("X-Tenant-ID", "5")
		got, err := RequestedTenantID(r)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(12), *got)
	})

	t.Run("malformed tenant id", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/v1/documents?tenant_id=abc", nil)
		_, err := RequestedTenantID(r)
		require.Error(t, err)
		assert.Equal(t, httputil.CodeValidation, httputil.AsAPIError(err).Code)
	})
}
