package webhooks

import (
	"context"
	"math"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vendorgate/vendorgate/pkg/observability"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      1 * time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements exponential backoff retry logic
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a new retry policy
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 1 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Minute
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = 2.0
	}
	return &RetryPolicy{config: config}
}

// ShouldRetry determines if a delivery should be retried
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}
	return attempts < p.config.MaxAttempts
}

// NextRetryDelay calculates the backoff before the next retry
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// NextRetryTime calculates when the next retry should occur
func (p *RetryPolicy) NextRetryTime(attempts int) time.Time {
	return time.Now().Add(p.NextRetryDelay(attempts))
}

// RetrySweeper re-attempts due deliveries on a cron schedule
type RetrySweeper struct {
	store      Store
	dispatcher *Dispatcher
	cron       *cron.Cron
	batchSize  int
	metrics    *observability.Metrics
	logger     *observability.Logger
}

// NewRetrySweeper creates a new RetrySweeper
func NewRetrySweeper(store Store, dispatcher *Dispatcher, metrics *observability.Metrics, logger *observability.Logger) *RetrySweeper {
	return &RetrySweeper{
		store:      store,
		dispatcher: dispatcher,
		cron:       cron.New(),
		batchSize:  100,
		metrics:    metrics,
		logger:     logger,
	}
}

// Start schedules the sweep. The schedule is a cron spec, for example
// "@every 30s".
func (s *RetrySweeper) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop stops the sweep and waits for a running sweep to finish
func (s *RetrySweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep re-attempts every due delivery once. Each attempt updates the
// delivery row, so a delivery that fails again simply surfaces in a later
// sweep until its attempts run out.
func (s *RetrySweeper) Sweep(ctx context.Context) {
	due, err := s.store.ListDueRetries(ctx, time.Now(), s.batchSize)
	if err != nil {
		s.logger.WithError(err).Error("failed to list due webhook retries")
		return
	}
	if s.metrics != nil {
		s.metrics.WebhookRetryQueueDepth.Set(float64(len(due)))
	}
	if len(due) == 0 {
		return
	}

	for _, delivery := range due {
		sub, err := s.store.GetSubscription(ctx, delivery.TenantID, delivery.SubscriptionID)
		if err != nil {
			// Subscription removed; abandon the delivery.
			now := time.Now()
			delivery.Status = DeliveryFailed
			delivery.CompletedAt = &now
			delivery.NextRetryAt = nil
			delivery.ErrorMessage = "subscription no longer exists"
			if updateErr := s.store.UpdateDelivery(ctx, delivery); updateErr != nil {
				s.logger.WithError(updateErr).Error("failed to abandon webhook delivery")
			}
			continue
		}
		if !sub.Active {
			continue
		}
		s.dispatcher.Attempt(ctx, sub.Secret, delivery)
	}
}
