package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vendorgate/vendorgate/pkg/identity"
	"github.com/vendorgate/vendorgate/pkg/policy"
)

func policyCanRead(d *Document, caller *identity.Identity) bool {
	return policy.CanRead(d.PolicyResource(), caller)
}

func TestDocumentPolicyProjection(t *testing.T) {
	vendorOrg := int64(10)
	doc := &Document{ID: 1, TenantID: 3, OrganizationID: 7, CreatedBy: 42, Shared: true, VendorID: &vendorOrg}

	res := doc.PolicyResource()
	assert.Equal(t, "document", res.Type)
	assert.Equal(t, int64(3), res.TenantID)
	assert.Equal(t, int64(7), res.OrganizationID)
	assert.Equal(t, int64(42), res.CreatedBy)
	assert.True(t, res.Shared)
	assert.Equal(t, vendorOrg, *res.VendorID)
}

func TestVendorSharedDocumentVisibility(t *testing.T) {
	// A company's shared document is readable only by the vendor it is
	// directed at, never by other companies or across tenants.
	vendorOrg := int64(10)
	doc := &Document{TenantID: 1, OrganizationID: 20, CreatedBy: 9, Shared: true, VendorID: &vendorOrg}

	vendor := &identity.Identity{ID: 5, Role: identity.RoleVendor, TenantID: 1, OrganizationID: 10}
	otherCompany := &identity.Identity{ID: 6, Role: identity.RoleCompanyUser, TenantID: 1, OrganizationID: 11}
	foreignVendor := &identity.Identity{ID: 7, Role: identity.RoleVendor, TenantID: 2, OrganizationID: 10}

	assert.True(t, policyCanRead(doc, vendor))
	assert.False(t, policyCanRead(doc, otherCompany))
	assert.False(t, policyCanRead(doc, foreignVendor))

	// Shared without a vendor designation stays private to its own
	// organization.
	undesignated := &Document{TenantID: 1, OrganizationID: 20, CreatedBy: 9, Shared: true}
	assert.False(t, policyCanRead(undesignated, vendor))
}

func TestMessagePolicyProjection(t *testing.T) {
	msg := &Message{TenantID: 1, FromOrgID: 10, ToOrgID: 20, FromUserID: 9}

	sender := &identity.Identity{ID: 9, Role: identity.RoleVendor, TenantID: 1, OrganizationID: 10}
	recipient := &identity.Identity{ID: 4, Role: identity.RoleCompanyUser, TenantID: 1, OrganizationID: 20}
	bystander := &identity.Identity{ID: 5, Role: identity.RoleCompanyUser, TenantID: 1, OrganizationID: 30}

	res := msg.PolicyResource()
	assert.True(t, policy.CanRead(res, sender))
	assert.True(t, policy.CanRead(res, recipient))
	assert.False(t, policy.CanRead(res, bystander))

	// Only the sender may mutate the message itself.
	assert.True(t, policy.CanWrite(res, sender))
	assert.False(t, policy.CanWrite(res, bystander))
}

func TestStatementFinalized(t *testing.T) {
	st := &Statement{}
	assert.False(t, st.IsFinalized())
}
