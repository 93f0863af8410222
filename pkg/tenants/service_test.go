package tenants

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorgate/vendorgate/pkg/httputil"
)

func newMockService(t *testing.T) (*PostgresService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresService(db), mock
}

func tenantRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "slug", "tier", "status", "settings", "created_at", "updated_at", "deleted_at",
	})
}

func TestCreateGeneratesSlugAndDefaults(t *testing.T) {
	svc, mock := newMockService(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO tenants`).
		WithArgs("Acme Vendors", "acme-vendors", TierStandard, StatusActive, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(5, now, now))

	tenant := &Tenant{Name: "Acme Vendors"}
	require.NoError(t, svc.Create(context.Background(), tenant))

	assert.Equal(t, int64(5), tenant.ID)
	assert.Equal(t, "acme-vendors", tenant.Slug)
	assert.Equal(t, TierStandard, tenant.Tier)
	assert.Equal(t, StatusActive, tenant.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDExcludesDeleted(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery(`FROM tenants WHERE id = \$1 AND status != 'deleted'`).
		WithArgs(int64(9)).
		WillReturnRows(tenantRows())

	_, err := svc.GetByID(context.Background(), 9)
	require.Error(t, err)
	assert.Equal(t, httputil.CodeNotFound, httputil.AsAPIError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBySlug(t *testing.T) {
	svc, mock := newMockService(t)
	now := time.Now()

	mock.ExpectQuery(`FROM tenants WHERE slug = \$1`).
		WithArgs("acme").
		WillReturnRows(tenantRows().AddRow(3, "Acme", "acme", "pro", "active", []byte(`{"region":"eu"}`), now, now, nil))

	tenant, err := svc.GetBySlug(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(3), tenant.ID)
	assert.Equal(t, TierPro, tenant.Tier)
	assert.Equal(t, "eu", tenant.Settings["region"])
	assert.True(t, tenant.IsActive())
}

func TestSuspendRequiresActive(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec(`UPDATE tenants SET status = \$1`).
		WithArgs(StatusSuspended, int64(4), StatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := svc.Suspend(context.Background(), 4)
	require.Error(t, err)
	assert.Equal(t, httputil.CodeNotFound, httputil.AsAPIError(err).Code)
}

func TestSoftDeleteRetainsRow(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec(`UPDATE tenants SET status = 'deleted', deleted_at = now\(\)`).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.SoftDelete(context.Background(), 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckLimitUsers(t *testing.T) {
	svc, mock := newMockService(t)
	now := time.Now()

	// standard tier caps users at 50
	mock.ExpectQuery(`FROM tenants WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(tenantRows().AddRow(2, "Acme", "acme", "standard", "active", []byte(`{}`), now, now, nil))
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"users", "organizations"}).AddRow(50, 3))

	err := svc.CheckLimit(context.Background(), 2, LimitUsers)
	require.Error(t, err)
	assert.Equal(t, httputil.CodeConstraintViolation, httputil.AsAPIError(err).Code)
}

func TestCheckLimitUnderCap(t *testing.T) {
	svc, mock := newMockService(t)
	now := time.Now()

	mock.ExpectQuery(`FROM tenants WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(tenantRows().AddRow(2, "Acme", "acme", "enterprise", "active", []byte(`{}`), now, now, nil))
	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"users", "organizations"}).AddRow(120, 8))

	assert.NoError(t, svc.CheckLimit(context.Background(), 2, LimitUsers))
}

func TestLimitsForTier(t *testing.T) {
	assert.Equal(t, 50, LimitsForTier(TierStandard).MaxUsers)
	assert.Equal(t, 500, LimitsForTier(TierPro).MaxUsers)
	assert.Equal(t, 10000, LimitsForTier(TierEnterprise).MaxUsers)
}

func TestGenerateSlug(t *testing.T) {
	assert.Equal(t, "acme-vendors-gmbh", generateSlug("Acme Vendors GmbH"))
	assert.Equal(t, "caf-42", generateSlug("Café 42"))
}
