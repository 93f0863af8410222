package orgs

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorgate/vendorgate/pkg/httputil"
)

func orgRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "name", "slug", "kind", "status", "group_id", "settings", "created_at", "updated_at",
	})
}

func expectOrgLookup(mock sqlmock.Sqlmock, tenantID, id int64, kind OrgKind) {
	now := time.Now()
	mock.ExpectQuery(`FROM organizations WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs(tenantID, id).
		WillReturnRows(orgRows().AddRow(id, tenantID, "org", "org", kind, "active", nil, []byte(`{}`), now, now))
}

func TestCreateRelationshipValidatesKinds(t *testing.T) {
	svc, mock := newMockService(t)

	// vendor_id pointing at a company org is rejected
	expectOrgLookup(mock, 1, 10, KindCompany)

	err := svc.CreateRelationship(context.Background(), &VendorRelationship{
		TenantID: 1, VendorID: 10, CompanyID: 20,
	})
	require.Error(t, err)
	assert.Equal(t, httputil.CodeValidation, httputil.AsAPIError(err).Code)
}

func TestCreateRelationshipDefaultsPending(t *testing.T) {
	svc, mock := newMockService(t)
	now := time.Now()

	expectOrgLookup(mock, 1, 10, KindVendor)
	expectOrgLookup(mock, 1, 20, KindCompany)
	mock.ExpectQuery(`INSERT INTO vendor_relationships`).
		WithArgs(int64(1), int64(10), int64(20), RelationshipPending, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))

	rel := &VendorRelationship{TenantID: 1, VendorID: 10, CompanyID: 20}
	require.NoError(t, svc.CreateRelationship(context.Background(), rel))
	assert.Equal(t, RelationshipPending, rel.Status)
	assert.False(t, rel.IsActive())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRelationshipDecodesPermissions(t *testing.T) {
	svc, mock := newMockService(t)
	now := time.Now()

	perms := []byte(`{"upload_documents":true,"view_payments":false,"send_messages":true}`)
	mock.ExpectQuery(`FROM vendor_relationships WHERE tenant_id = \$1 AND vendor_id = \$2 AND company_id = \$3`).
		WithArgs(int64(1), int64(10), int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "vendor_id", "company_id", "status", "permissions", "created_at", "updated_at",
		}).AddRow(7, 1, 10, 20, "active", perms, now, now))

	rel, err := svc.GetRelationship(context.Background(), 1, 10, 20)
	require.NoError(t, err)
	assert.True(t, rel.IsActive())
	assert.True(t, rel.Permissions.UploadDocuments)
	assert.False(t, rel.Permissions.ViewPayments)
	assert.True(t, rel.Permissions.SendMessages)
}

func TestSetRelationshipStatusNotFound(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectExec(`UPDATE vendor_relationships SET status`).
		WithArgs(RelationshipTerminated, int64(1), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := svc.SetRelationshipStatus(context.Background(), 1, 99, RelationshipTerminated)
	require.Error(t, err)
	assert.Equal(t, httputil.CodeNotFound, httputil.AsAPIError(err).Code)
}
