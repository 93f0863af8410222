// Package resources holds the tenant-scoped business resources vendors and
// companies exchange through the portal: documents, payments, statements,
// and messages. Every resource exposes a PolicyResource projection so
// authorization stays in pkg/policy.
package resources

import (
	"time"

	"github.com/vendorgate/vendorgate/pkg/policy"
)

// Document is a file exchanged between a company and a vendor. The file
// content lives in object storage under FileKey; this row is the metadata.
type Document struct {
	ID             int64     `json:"id"`
	TenantID       int64     `json:"tenant_id"`
	OrganizationID int64     `json:"organization_id"`
	VendorID       *int64    `json:"vendor_id,omitempty"`
	CreatedBy      int64     `json:"created_by"`
	Title          string    `json:"title"`
	FileName       string    `json:"file_name"`
	FileKey        string    `json:"file_key,omitempty"`
	ContentType    string    `json:"content_type"`
	SizeBytes      int64     `json:"size_bytes"`
	Checksum       string    `json:"checksum,omitempty"`
	Shared         bool      `json:"shared"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PolicyResource projects the document for ownership predicates
func (d *Document) PolicyResource() policy.Resource {
	return policy.Resource{
		Type:           "document",
		TenantID:       d.TenantID,
		OrganizationID: d.OrganizationID,
		CreatedBy:      d.CreatedBy,
		Shared:         d.Shared,
		VendorID:       d.VendorID,
	}
}

// PaymentStatus represents the payment approval lifecycle
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRejected PaymentStatus = "rejected"
)

// Payment is a payment record from a company to a vendor. Amounts are
// integral cents; no floats anywhere near money.
type Payment struct {
	ID             int64         `json:"id"`
	TenantID       int64         `json:"tenant_id"`
	OrganizationID int64         `json:"organization_id"`
	VendorID       *int64        `json:"vendor_id,omitempty"`
	CreatedBy      int64         `json:"created_by"`
	AmountCents    int64         `json:"amount_cents"`
	Currency       string        `json:"currency"`
	Status         PaymentStatus `json:"status"`
	Reference      string        `json:"reference,omitempty"`
	DueDate        *time.Time    `json:"due_date,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// PolicyResource projects the payment for ownership predicates. Payments
// are always visible to the vendor they pay, hence Shared.
func (p *Payment) PolicyResource() policy.Resource {
	return policy.Resource{
		Type:           "payment",
		TenantID:       p.TenantID,
		OrganizationID: p.OrganizationID,
		CreatedBy:      p.CreatedBy,
		Shared:         true,
		VendorID:       p.VendorID,
	}
}

// Statement summarizes a vendor's activity for a period. Its total is
// derived from transactions and recomputed after every line change, so the
// stored total may briefly trail the lines.
type Statement struct {
	ID             int64      `json:"id"`
	TenantID       int64      `json:"tenant_id"`
	OrganizationID int64      `json:"organization_id"`
	VendorID       *int64     `json:"vendor_id,omitempty"`
	CreatedBy      int64      `json:"created_by"`
	PeriodStart    time.Time  `json:"period_start"`
	PeriodEnd      time.Time  `json:"period_end"`
	TotalCents     int64      `json:"total_cents"`
	Currency       string     `json:"currency"`
	FinalizedAt    *time.Time `json:"finalized_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// PolicyResource projects the statement for ownership predicates
func (s *Statement) PolicyResource() policy.Resource {
	return policy.Resource{
		Type:           "statement",
		TenantID:       s.TenantID,
		OrganizationID: s.OrganizationID,
		CreatedBy:      s.CreatedBy,
		Shared:         true,
		VendorID:       s.VendorID,
	}
}

// IsFinalized reports whether the statement accepts further transactions
func (s *Statement) IsFinalized() bool {
	return s.FinalizedAt != nil
}

// Transaction is a single statement line
type Transaction struct {
	ID          int64     `json:"id"`
	StatementID int64     `json:"statement_id"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	OccurredAt  time.Time `json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is a portal message between two organizations in a tenant
type Message struct {
	ID         int64      `json:"id"`
	TenantID   int64      `json:"tenant_id"`
	FromOrgID  int64      `json:"from_org_id"`
	ToOrgID    int64      `json:"to_org_id"`
	FromUserID int64      `json:"from_user_id"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// PolicyResource projects the message: readable by sender and recipient
// organizations, writable only by the sender.
func (m *Message) PolicyResource() policy.Resource {
	return policy.Resource{
		Type:           "message",
		TenantID:       m.TenantID,
		OrganizationID: m.FromOrgID,
		CreatedBy:      m.FromUserID,
		Shared:         true,
		VendorID:       &m.ToOrgID,
	}
}
