package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vendorgate/vendorgate/pkg/observability"
)

// Delivery headers. Receivers use the signature header to authenticate the
// payload and the id header to deduplicate redeliveries.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderID        = "X-Webhook-Id"
)

// Dispatcher fans events out to every matching subscription. Each
// subscription gets its own delivery attempt and delivery log; one slow or
// failing endpoint never blocks the others.
type Dispatcher struct {
	store   Store
	client  *http.Client
	policy  *RetryPolicy
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(store Store, timeout time.Duration, policy *RetryPolicy, metrics *observability.Metrics, logger *observability.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		store:   store,
		client:  &http.Client{Timeout: timeout},
		policy:  policy,
		metrics: metrics,
		logger:  logger,
	}
}

// NewEvent builds an event for dispatch
func NewEvent(tenantID int64, eventType EventType, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Dispatch sends an event to every active matching subscription in the
// tenant and waits for all attempts to settle. Delivery failures are
// recorded for retry, never returned: the originating mutation already
// succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) {
	subs, err := d.store.ListActiveForEvent(ctx, event.TenantID, event.Type)
	if err != nil {
		d.logger.WithError(err).WithField("event_type", string(event.Type)).
			Error("failed to load webhook subscriptions")
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.WithError(err).Error("failed to marshal webhook event")
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			d.deliverOnce(ctx, sub, event, payload)
		}(sub)
	}
	wg.Wait()
}

func (d *Dispatcher) deliverOnce(ctx context.Context, sub *Subscription, event *Event, payload []byte) {
	delivery := &Delivery{
		SubscriptionID: sub.ID,
		TenantID:       sub.TenantID,
		EventID:        event.ID,
		EventType:      event.Type,
		Payload:        payload,
		URL:            sub.URL,
		Status:         DeliveryPending,
	}
	if err := d.store.CreateDelivery(ctx, delivery); err != nil {
		d.logger.WithError(err).Error("failed to record webhook delivery")
		return
	}

	d.Attempt(ctx, sub.Secret, delivery)
}

// Attempt performs one delivery attempt and persists the outcome. Shared by
// the initial dispatch and the retry sweep.
func (d *Dispatcher) Attempt(ctx context.Context, secret string, delivery *Delivery) {
	delivery.Attempts++
	err := d.send(ctx, secret, delivery)

	if err == nil {
		delivery.Status = DeliverySuccess
		now := time.Now()
		delivery.CompletedAt = &now
		delivery.NextRetryAt = nil
		delivery.ErrorMessage = ""
	} else if d.policy.ShouldRetry(delivery.Attempts, err) {
		delivery.Status = DeliveryRetrying
		next := d.policy.NextRetryTime(delivery.Attempts)
		delivery.NextRetryAt = &next
		delivery.ErrorMessage = err.Error()
	} else {
		delivery.Status = DeliveryFailed
		now := time.Now()
		delivery.CompletedAt = &now
		delivery.NextRetryAt = nil
		delivery.ErrorMessage = err.Error()
	}

	if d.metrics != nil {
		d.metrics.WebhookDeliveriesTotal.WithLabelValues(string(delivery.Status)).Inc()
	}
	if updateErr := d.store.UpdateDelivery(ctx, delivery); updateErr != nil {
		d.logger.WithError(updateErr).WithField("delivery_id", delivery.ID).
			Error("failed to persist webhook delivery outcome")
	}
}

func (d *Dispatcher) send(ctx context.Context, secret string, delivery *Delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(delivery.EventType))
	req.Header.Set(HeaderID, delivery.EventID)
	if secret != "" {
		req.Header.Set(HeaderSignature, Signature(delivery.Payload, secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	delivery.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}
