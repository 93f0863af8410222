package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/vendorgate/vendorgate/pkg/contextkeys"
)

// Recorder is the interface for audit logging
type Recorder interface {
	// Record persists an audit event
	Record(ctx context.Context, event *Event) error

	// Close flushes any buffered events
	Close() error
}

// FromContext retrieves the recorder from context, or a no-op recorder so
// call sites never need a nil check
func FromContext(ctx context.Context) Recorder {
	if rec, ok := ctx.Value(contextkeys.AuditRecorderKey).(Recorder); ok && rec != nil {
		return rec
	}
	return NopRecorder{}
}

// WithRecorder adds a recorder to the context
func WithRecorder(ctx context.Context, rec Recorder) context.Context {
	return context.WithValue(ctx, contextkeys.AuditRecorderKey, rec)
}

// NopRecorder discards all events
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, event *Event) error { return nil }
func (NopRecorder) Close() error                                   { return nil }

// NewEvent builds an event with timestamp and request context populated
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
}

// TenantMismatchEvent builds the security event for a cross-tenant attempt.
// It carries the caller, both tenant ids, and the request path and method,
// which is the full monitoring contract for this event class.
func TenantMismatchEvent(ctx context.Context, r *http.Request, userID, userTenantID, requestedTenantID int64) *Event {
	event := NewEvent(ctx, EventTypeSecurityTenantMismatch, EventStatusDenied)
	event.UserID = &userID
	event.TenantID = &userTenantID
	event.RequestedTenantID = &requestedTenantID
	event.Message = "request attempted to act on another tenant's data"
	if r != nil {
		event.Method = r.Method
		event.Path = r.URL.Path
		event.IPAddress = clientIP(r)
	}
	return event
}

// AccessDeniedEvent builds an authz denial event
func AccessDeniedEvent(ctx context.Context, userID int64, resourceType ResourceType, resourceID, reason string) *Event {
	event := NewEvent(ctx, EventTypeAuthzAccessDenied, EventStatusDenied)
	event.UserID = &userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = reason
	return event
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
