package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/orzi-eg/storefront/pkg/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PostgresStore writes orders directly to a Postgres orders table.
// The *sql.DB must be opened with the "postgres" driver (lib/pq).
type PostgresStore struct {
	db     *sql.DB
	logger *logrus.Logger
	now    func() time.Time
	newID  func() string
}

func NewPostgresStore(db *sql.DB, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// WaitReady pings the database until it answers or attempts run out.
func (s *PostgresStore) WaitReady(ctx context.Context, attempts int, interval time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = s.db.PingContext(ctx); err == nil {
			s.logger.Info("Database connection established")
			return nil
		}
		s.logger.Info("Waiting for database...")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return errors.Wrap(err, "database not ready")
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(36) PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			governorate TEXT NOT NULL,
			area TEXT NOT NULL,
			full_address TEXT NOT NULL,
			bracelet_style TEXT NOT NULL,
			bracelet_image TEXT NOT NULL,
			status VARCHAR(50) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return errors.Wrap(err, "failed to create orders schema")
		}
	}
	return nil
}

func (s *PostgresStore) InsertOrder(ctx context.Context, record models.OrderRecord) error {
	id := s.newID()
	query := `
		INSERT INTO orders (id, name, phone, governorate, area, full_address,
			bracelet_style, bracelet_image, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query, id, record.Name, record.Phone,
		record.Governorate, record.Area, record.FullAddress,
		record.BraceletStyle, record.BraceletImage, DefaultStatus, s.now())
	if err != nil {
		return errors.Wrap(err, "failed to insert order")
	}

	s.logger.WithField("order_id", id).Info("Order saved")
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order := &models.Order{}
	query := `
		SELECT id, name, phone, governorate, area, full_address,
			bracelet_style, bracelet_image, status, created_at
		FROM orders WHERE id = $1
	`
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID, &order.Name, &order.Phone, &order.Governorate, &order.Area,
		&order.FullAddress, &order.BraceletStyle, &order.BraceletImage,
		&order.Status, &order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}
