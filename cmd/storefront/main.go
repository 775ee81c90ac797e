package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/orzi-eg/storefront/internal/circuitbreaker"
	"github.com/orzi-eg/storefront/internal/config"
	"github.com/orzi-eg/storefront/internal/events"
	"github.com/orzi-eg/storefront/internal/orderform"
	"github.com/orzi-eg/storefront/internal/store"
	"github.com/orzi-eg/storefront/internal/web"
	"github.com/orzi-eg/storefront/internal/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "storefront",
		Usage: "Orzi bracelet storefront and order form",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "optional dotenv file read before the environment",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "serve the storefront page and order form",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create the postgres orders table",
				Action: migrate,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("storefront exited")
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orderStore, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:        "order-store",
		MaxFailures: cfg.BreakerMaxFailures,
		Timeout:     cfg.BreakerTimeout,
	}, logger)
	var sink store.OrderStore = store.NewGuardedStore(orderStore, breaker)

	if cfg.KafkaEnabled() {
		producer, err := events.NewKafkaProducer(cfg.KafkaBrokers, logger)
		if err != nil {
			return errors.Wrap(err, "failed to create Kafka producer")
		}
		defer producer.Close()
		publishing := store.NewPublishingStore(sink, producer, logger)
		defer publishing.Wait()
		sink = publishing
	}

	hub := websocket.NewHub(nil, logger)
	sessions := orderform.NewSessions(func(id string) *orderform.Controller {
		form := orderform.NewController(sink, logger, orderform.Options{NoticeTimeout: cfg.NoticeTimeout})
		form.OnChange(func(view orderform.View) {
			hub.Publish(id, "form_state", view)
		})
		return form
	}, cfg.SessionTTL, logger)
	go sessions.Run(ctx, time.Minute)

	handler, err := web.NewHandler(sessions, hub, logger, web.Options{
		SecureCookies: cfg.SecureCookies,
		StaticDir:     cfg.StaticDir,
		HealthDetails: func() map[string]interface{} {
			return map[string]interface{}{
				"store_driver":  cfg.StoreDriver,
				"store_circuit": breaker.Metrics(),
				"events":        cfg.KafkaEnabled(),
			}
		},
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"port":  cfg.Port,
			"store": cfg.StoreDriver,
		}).Info("Starting storefront")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return errors.Wrap(err, "failed to start server")
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
	return nil
}

func migrate(c *cli.Context) error {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.DriverPostgres {
		return errors.Errorf("migrate needs %s_STORE_DRIVER=%s", config.EnvPrefix, config.DriverPostgres)
	}
	logger := cfg.NewLogger()

	db, err := openPostgres(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.NewPostgresStore(db, logger).EnsureSchema(c.Context); err != nil {
		return err
	}
	logger.Info("Orders schema is up to date")
	return nil
}

// openStore builds the configured order store. The returned cleanup
// releases whatever connection the store holds.
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (store.OrderStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverREST:
		return store.NewRESTStore(cfg.StoreURL, cfg.StoreKey, cfg.StoreTimeout, logger), func() {}, nil
	case config.DriverPostgres:
		db, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgresStore(db, logger)
		if err := pg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return pg, func() { db.Close() }, nil
	case config.DriverMemory:
		logger.Warn("Using in-memory order store, orders are lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}
	return nil, nil, errors.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DB.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if err := store.NewPostgresStore(db, logger).WaitReady(ctx, 30, 2*time.Second); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
