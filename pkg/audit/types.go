// Package audit records authorization decisions and security events.
// Cross-tenant access attempts are the one event class that must never be
// dropped silently; everything else is best-effort bookkeeping.
package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin        EventType = "auth.login"
	EventTypeAuthLogout       EventType = "auth.logout"
	EventTypeAuthLoginFailed  EventType = "auth.login_failed"
	EventTypeAuthTokenRevoke  EventType = "auth.token_revoke"

	// Authorization events
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"
	EventTypeAuthzRoleDenied   EventType = "authz.role_denied"

	// Security events
	EventTypeSecurityTenantMismatch EventType = "security.tenant_mismatch"

	// Data mutation events
	EventTypeDataDocumentCreate  EventType = "data.document_create"
	EventTypeDataDocumentUpdate  EventType = "data.document_update"
	EventTypeDataDocumentDelete  EventType = "data.document_delete"
	EventTypeDataPaymentCreate   EventType = "data.payment_create"
	EventTypeDataPaymentUpdate   EventType = "data.payment_update"
	EventTypeDataStatementCreate EventType = "data.statement_create"
	EventTypeDataMessageSend     EventType = "data.message_send"
	EventTypeDataFileUpload      EventType = "data.file_upload"
	EventTypeDataFileDelete      EventType = "data.file_delete"

	// Admin events
	EventTypeAdminTenantCreate      EventType = "admin.tenant_create"
	EventTypeAdminTenantSuspend     EventType = "admin.tenant_suspend"
	EventTypeAdminOrgCreate         EventType = "admin.org_create"
	EventTypeAdminGroupCreate       EventType = "admin.group_create"
	EventTypeAdminGroupDelete       EventType = "admin.group_delete"
	EventTypeAdminRelationshipChange EventType = "admin.relationship_change"
	EventTypeConfigWebhookCreate    EventType = "config.webhook_create"
	EventTypeConfigWebhookDelete    EventType = "config.webhook_delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeTenant       ResourceType = "tenant"
	ResourceTypeOrganization ResourceType = "organization"
	ResourceTypeCompanyGroup ResourceType = "company_group"
	ResourceTypeUser         ResourceType = "user"
	ResourceTypeDocument     ResourceType = "document"
	ResourceTypePayment      ResourceType = "payment"
	ResourceTypeStatement    ResourceType = "statement"
	ResourceTypeMessage      ResourceType = "message"
	ResourceTypeWebhook      ResourceType = "webhook"
	ResourceTypeFile         ResourceType = "file"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID         *int64 `json:"user_id,omitempty"`
	OrganizationID *int64 `json:"organization_id,omitempty"`
	TenantID       *int64 `json:"tenant_id,omitempty"`

	// Security context: the tenant the request tried to reach, when it
	// differs from the actor's own.
	RequestedTenantID *int64 `json:"requested_tenant_id,omitempty"`

	// Resource
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// IsSecurityEvent reports whether the event must reach durable storage
func (e *Event) IsSecurityEvent() bool {
	return e.EventType == EventTypeSecurityTenantMismatch
}

// ToJSON converts the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter represents filters for querying audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	UserID     *int64
	TenantID   *int64
	EventTypes []EventType
	Status     *EventStatus

	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}
