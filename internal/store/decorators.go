package store

import (
	"context"
	"sync"
	"time"

	"github.com/orzi-eg/storefront/internal/circuitbreaker"
	"github.com/orzi-eg/storefront/internal/events"
	"github.com/orzi-eg/storefront/pkg/models"
	"github.com/sirupsen/logrus"
)

// GuardedStore fails fast while the backend keeps failing.
type GuardedStore struct {
	next    OrderStore
	breaker *circuitbreaker.CircuitBreaker
}

func NewGuardedStore(next OrderStore, breaker *circuitbreaker.CircuitBreaker) *GuardedStore {
	return &GuardedStore{next: next, breaker: breaker}
}

func (s *GuardedStore) InsertOrder(ctx context.Context, record models.OrderRecord) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.next.InsertOrder(ctx, record)
	})
}

func (s *GuardedStore) Breaker() *circuitbreaker.CircuitBreaker {
	return s.breaker
}

type EventPublisher interface {
	PublishOrderSubmitted(ctx context.Context, event events.OrderSubmittedEvent) error
}

// PublishingStore announces each stored order on the event stream.
// The insert is the source of truth: a failed publish is only logged.
// Events are sent in the background so the broker round trip never
// holds up the caller.
type PublishingStore struct {
	next      OrderStore
	publisher EventPublisher
	logger    *logrus.Logger
	inflight  sync.WaitGroup
}

func NewPublishingStore(next OrderStore, publisher EventPublisher, logger *logrus.Logger) *PublishingStore {
	return &PublishingStore{next: next, publisher: publisher, logger: logger}
}

func (s *PublishingStore) InsertOrder(ctx context.Context, record models.OrderRecord) error {
	if err := s.next.InsertOrder(ctx, record); err != nil {
		return err
	}

	event := events.OrderSubmittedEvent{
		Order:       record,
		SubmittedAt: time.Now(),
	}
	publishCtx := context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if err := s.publisher.PublishOrderSubmitted(publishCtx, event); err != nil {
			s.logger.WithError(err).Error("Failed to publish order submitted event")
		}
	}()
	return nil
}

// Wait blocks until every started publish has finished. Call it before
// closing the publisher.
func (s *PublishingStore) Wait() {
	s.inflight.Wait()
}
