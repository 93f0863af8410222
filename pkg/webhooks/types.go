// Package webhooks delivers portal events to tenant-configured endpoints.
// Payloads are signed with HMAC-SHA256 so receivers can authenticate them;
// failed deliveries retry with exponential backoff through a scheduled
// sweep.
package webhooks

import (
	"time"
)

// EventType represents the type of webhook event
type EventType string

const (
	EventDocumentCreated      EventType = "document.created"
	EventDocumentUpdated      EventType = "document.updated"
	EventDocumentDeleted      EventType = "document.deleted"
	EventPaymentCreated       EventType = "payment.created"
	EventPaymentStatusChanged EventType = "payment.status_changed"
	EventStatementFinalized   EventType = "statement.finalized"
	EventMessageSent          EventType = "message.sent"
	EventRelationshipChanged  EventType = "relationship.changed"
)

// Event is a webhook event scoped to one tenant
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	TenantID  int64                  `json:"tenant_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscription is a tenant-registered webhook endpoint
type Subscription struct {
	ID        int64       `json:"id"`
	TenantID  int64       `json:"tenant_id"`
	URL       string      `json:"url"`
	Events    []EventType `json:"events"`
	Secret    string      `json:"-"`
	Active    bool        `json:"active"`
	CreatedBy int64       `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Matches reports whether the subscription wants this event type
func (s *Subscription) Matches(eventType EventType) bool {
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// DeliveryStatus represents the status of a webhook delivery
type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliverySuccess  DeliveryStatus = "success"
	DeliveryRetrying DeliveryStatus = "retrying"
	DeliveryFailed   DeliveryStatus = "failed"
)

// Delivery records one event delivery to one subscription, including every
// retry attempt.
type Delivery struct {
	ID             int64          `json:"id"`
	SubscriptionID int64          `json:"subscription_id"`
	TenantID       int64          `json:"tenant_id"`
	EventID        string         `json:"event_id"`
	EventType      EventType      `json:"event_type"`
	Payload        []byte         `json:"-"`
	URL            string         `json:"url"`
	Status         DeliveryStatus `json:"status"`
	StatusCode     int            `json:"status_code,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	Attempts       int            `json:"attempts"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// DeliveryStats summarizes delivery outcomes for a subscription
type DeliveryStats struct {
	Total    int `json:"total"`
	Success  int `json:"success"`
	Failed   int `json:"failed"`
	Retrying int `json:"retrying"`
}
