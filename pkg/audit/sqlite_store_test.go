package audit

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorgate/vendorgate/pkg/contextkeys"
)

func TestSQLiteStoreRecordAndRecent(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := contextkeys.WithRequestID(context.Background(), "req-9")
	r := httptest.NewRequest("DELETE", "/api/documents/5?tenant_id=99", nil)
	r.Header.Set("X-Forwarded-For", "10.1.2.3")

	event := TenantMismatchEvent(ctx, r, 7, 3, 99)
	require.NoError(t, store.Record(ctx, event))
	assert.NotZero(t, event.ID)

	events, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	got := events[0]
	assert.Equal(t, EventTypeSecurityTenantMismatch, got.EventType)
	assert.Equal(t, EventStatusDenied, got.Status)
	require.NotNil(t, got.UserID)
	assert.Equal(t, int64(7), *got.UserID)
	require.NotNil(t, got.TenantID)
	assert.Equal(t, int64(3), *got.TenantID)
	require.NotNil(t, got.RequestedTenantID)
	assert.Equal(t, int64(99), *got.RequestedTenantID)
	assert.Equal(t, "DELETE", got.Method)
	assert.Equal(t, "/api/documents/5", got.Path)
	assert.Equal(t, "req-9", got.RequestID)
	assert.Equal(t, "10.1.2.3", got.IPAddress)
}

func TestTenantMismatchIsSecurityEvent(t *testing.T) {
	event := TenantMismatchEvent(context.Background(), nil, 1, 2, 3)
	assert.True(t, event.IsSecurityEvent())

	denied := AccessDeniedEvent(context.Background(), 1, ResourceTypeDocument, "5", "not owner")
	assert.False(t, denied.IsSecurityEvent())
}

func TestFromContextFallsBackToNop(t *testing.T) {
	rec := FromContext(context.Background())
	assert.NoError(t, rec.Record(context.Background(), &Event{}))

	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := WithRecorder(context.Background(), store)
	assert.Same(t, Recorder(store), FromContext(ctx))
}
