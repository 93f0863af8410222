package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendorgate/vendorgate/pkg/observability"
)

// mockStore implements Store with overridable functions
type mockStore struct {
	mu         sync.Mutex
	deliveries []*Delivery

	listActiveFunc      func(ctx context.Context, tenantID int64, eventType EventType) ([]*Subscription, error)
	getSubscriptionFunc func(ctx context.Context, tenantID, id int64) (*Subscription, error)
	listDueFunc         func(ctx context.Context, now time.Time, limit int) ([]*Delivery, error)
}

func (m *mockStore) CreateSubscription(ctx context.Context, sub *Subscription) error { return nil }

func (m *mockStore) GetSubscription(ctx context.Context, tenantID, id int64) (*Subscription, error) {
	if m.getSubscriptionFunc != nil {
		return m.getSubscriptionFunc(ctx, tenantID, id)
	}
	return nil, nil
}

func (m *mockStore) ListSubscriptions(ctx context.Context, tenantID int64) ([]*Subscription, error) {
	return nil, nil
}

func (m *mockStore) ListActiveForEvent(ctx context.Context, tenantID int64, eventType EventType) ([]*Subscription, error) {
	if m.listActiveFunc != nil {
		return m.listActiveFunc(ctx, tenantID, eventType)
	}
	return nil, nil
}

func (m *mockStore) SetSubscriptionActive(ctx context.Context, tenantID, id int64, active bool) error {
	return nil
}

func (m *mockStore) DeleteSubscription(ctx context.Context, tenantID, id int64) error { return nil }

func (m *mockStore) CreateDelivery(ctx context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = int64(len(m.deliveries) + 1)
	d.CreatedAt = time.Now()
	m.deliveries = append(m.deliveries, d)
	return nil
}

func (m *mockStore) UpdateDelivery(ctx context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.deliveries {
		if existing.ID == d.ID {
			m.deliveries[i] = d
			return nil
		}
	}
	m.deliveries = append(m.deliveries, d)
	return nil
}

func (m *mockStore) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*Delivery, error) {
	if m.listDueFunc != nil {
		return m.listDueFunc(ctx, now, limit)
	}
	return nil, nil
}

func (m *mockStore) ListDeliveries(ctx context.Context, tenantID, subscriptionID int64, limit int) ([]*Delivery, error) {
	return nil, nil
}

func (m *mockStore) GetStats(ctx context.Context, tenantID, subscriptionID int64) (*DeliveryStats, error) {
	return nil, nil
}

func (m *mockStore) recorded() []*Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Delivery, len(m.deliveries))
	copy(out, m.deliveries)
	return out
}

func newTestDispatcher(store Store) *Dispatcher {
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewDispatcher(store, 5*time.Second, NewRetryPolicy(DefaultRetryConfig()), nil, logger)
}

func TestDispatchSignsAndDelivers(t *testing.T) {
	secret := "vg_dispatchsecret"
	var gotSig, gotEvent, gotID string
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotEvent = r.Header.Get(HeaderEvent)
		gotID = r.Header.Get(HeaderID)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &mockStore{
		listActiveFunc: func(ctx context.Context, tenantID int64, eventType EventType) ([]*Subscription, error) {
			return []*Subscription{{
				ID:       1,
				TenantID: tenantID,
				URL:      server.URL,
				Events:   []EventType{EventPaymentCreated},
				Secret:   secret,
				Active:   true,
			}}, nil
		},
	}
	d := newTestDispatcher(store)

	event := NewEvent(3, EventPaymentCreated, map[string]interface{}{"payment_id": float64(9)})
	d.Dispatch(context.Background(), event)

	// Receiver can authenticate the payload with the shared secret.
	assert.True(t, VerifySignature(gotBody, gotSig, secret))
	assert.Equal(t, string(EventPaymentCreated), gotEvent)
	assert.Equal(t, event.ID, gotID)

	recorded := store.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, DeliverySuccess, recorded[0].Status)
	assert.Equal(t, http.StatusOK, recorded[0].StatusCode)
	assert.Equal(t, 1, recorded[0].Attempts)
	assert.NotNil(t, recorded[0].CompletedAt)
	assert.Nil(t, recorded[0].NextRetryAt)
}

func TestDispatchSettlesAllSubscriptions(t *testing.T) {
	var hits int64
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer okServer.Close()
	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failServer.Close()

	store := &mockStore{
		listActiveFunc: func(ctx context.Context, tenantID int64, eventType EventType) ([]*Subscription, error) {
			return []*Subscription{
				{ID: 1, TenantID: tenantID, URL: okServer.URL, Secret: "s1", Active: true},
				{ID: 2, TenantID: tenantID, URL: failServer.URL, Secret: "s2", Active: true},
				{ID: 3, TenantID: tenantID, URL: okServer.URL, Secret: "s3", Active: true},
			}, nil
		},
	}
	d := newTestDispatcher(store)

	// Dispatch returns only after every attempt settles, and one failing
	// endpoint never blocks the others.
	d.Dispatch(context.Background(), NewEvent(3, EventDocumentCreated, nil))

	assert.Equal(t, int64(2), atomic.LoadInt64(&hits))
	recorded := store.recorded()
	require.Len(t, recorded, 3)

	byStatus := map[DeliveryStatus]int{}
	for _, del := range recorded {
		byStatus[del.Status]++
	}
	assert.Equal(t, 2, byStatus[DeliverySuccess])
	assert.Equal(t, 1, byStatus[DeliveryRetrying])
}

func TestAttemptSchedulesRetryOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	store := &mockStore{}
	d := newTestDispatcher(store)

	delivery := &Delivery{
		ID:        7,
		EventID:   "evt_7",
		EventType: EventMessageSent,
		Payload:   []byte(`{}`),
		URL:       server.URL,
		Status:    DeliveryPending,
	}
	before := time.Now()
	d.Attempt(context.Background(), "secret", delivery)

	assert.Equal(t, DeliveryRetrying, delivery.Status)
	assert.Equal(t, http.StatusBadGateway, delivery.StatusCode)
	assert.Equal(t, 1, delivery.Attempts)
	require.NotNil(t, delivery.NextRetryAt)
	assert.True(t, delivery.NextRetryAt.After(before))
	assert.NotEmpty(t, delivery.ErrorMessage)
}

func TestAttemptFailsPermanentlyAfterMaxAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := &mockStore{}
	d := newTestDispatcher(store)

	delivery := &Delivery{
		ID:       7,
		EventID:  "evt_7",
		Payload:  []byte(`{}`),
		URL:      server.URL,
		Status:   DeliveryRetrying,
		Attempts: DefaultRetryConfig().MaxAttempts - 1,
	}
	d.Attempt(context.Background(), "secret", delivery)

	assert.Equal(t, DeliveryFailed, delivery.Status)
	assert.Nil(t, delivery.NextRetryAt)
	assert.NotNil(t, delivery.CompletedAt)
}
