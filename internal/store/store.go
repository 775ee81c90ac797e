// Package store writes submitted orders to the orders collection.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orzi-eg/storefront/pkg/models"
)

const (
	OrdersTable   = "orders"
	DefaultStatus = "pending"
)

// OrderStore is an append-only sink for submitted orders.
type OrderStore interface {
	InsertOrder(ctx context.Context, record models.OrderRecord) error
}

// MemoryStore keeps orders in process. Used for local runs and tests.
type MemoryStore struct {
	mutex  sync.RWMutex
	orders []models.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertOrder(ctx context.Context, record models.OrderRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.orders = append(s.orders, models.Order{
		ID:          uuid.New().String(),
		CreatedAt:   time.Now(),
		Status:      DefaultStatus,
		OrderRecord: record,
	})
	return nil
}

func (s *MemoryStore) Orders() []models.Order {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]models.Order, len(s.orders))
	copy(out, s.orders)
	return out
}
