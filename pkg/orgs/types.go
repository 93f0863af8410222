// Package orgs manages organizations within a tenant, company group
// hierarchies, and the vendor relationships that connect vendor
// organizations to the companies they serve.
package orgs

import (
	"time"
)

// OrgKind distinguishes vendor organizations from company organizations
type OrgKind string

const (
	KindVendor  OrgKind = "vendor"
	KindCompany OrgKind = "company"
)

// OrgStatus represents organization status
type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
)

// Organization represents a vendor or company inside a tenant. The tenant
// id is set at creation and never changes.
type Organization struct {
	ID          int64          `json:"id"`
	TenantID    int64          `json:"tenant_id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Kind        OrgKind        `json:"kind"`
	Status      OrgStatus      `json:"status"`
	GroupID     *int64         `json:"group_id,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CompanyGroup is a node in the company hierarchy. Groups nest through
// ParentID; the hierarchy is kept acyclic at write time.
type CompanyGroup struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RelationshipStatus represents the lifecycle of a vendor relationship
type RelationshipStatus string

const (
	RelationshipPending    RelationshipStatus = "pending"
	RelationshipActive     RelationshipStatus = "active"
	RelationshipSuspended  RelationshipStatus = "suspended"
	RelationshipTerminated RelationshipStatus = "terminated"
)

// RelationshipPermissions controls what a vendor may do for a company
type RelationshipPermissions struct {
	UploadDocuments bool `json:"upload_documents"`
	ViewPayments    bool `json:"view_payments"`
	SendMessages    bool `json:"send_messages"`
}

// VendorRelationship connects a vendor organization to a company
// organization within the same tenant.
type VendorRelationship struct {
	ID          int64                   `json:"id"`
	TenantID    int64                   `json:"tenant_id"`
	VendorID    int64                   `json:"vendor_id"`
	CompanyID   int64                   `json:"company_id"`
	Status      RelationshipStatus      `json:"status"`
	Permissions RelationshipPermissions `json:"permissions"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// IsActive reports whether the relationship currently grants access
func (r *VendorRelationship) IsActive() bool {
	return r.Status == RelationshipActive
}
