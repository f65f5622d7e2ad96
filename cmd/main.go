package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/car-rental/internal/auth"
	"github.com/ukydev/car-rental/internal/booking"
	"github.com/ukydev/car-rental/internal/catalog"
	"github.com/ukydev/car-rental/internal/config"
	"github.com/ukydev/car-rental/internal/db"
	"github.com/ukydev/car-rental/internal/events"
	"github.com/ukydev/car-rental/internal/handlers"
	"github.com/ukydev/car-rental/internal/logging"
	"github.com/ukydev/car-rental/internal/middleware"
	"github.com/ukydev/car-rental/internal/payment"
)

const (
	rateLimiterIdle  = 10 * time.Minute
	shutdownTimeout  = 15 * time.Second
	eventPublishWait = 5 * time.Second
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if cfg.UsesDefaultSecret() {
		logger.Warn("JWT_SECRET is not set; using the development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.WithError(err).Warn("MongoDB disconnect failed")
		}
	}()
	database := client.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		logger.WithError(err).Fatal("Failed to create indexes")
	}
	logger.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")

	publisher, closePublisher := newPublisher(cfg, logger)
	defer closePublisher()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, rateLimiterIdle, logger)
	sweepStop := make(chan struct{})
	defer close(sweepStop)
	limiter.StartSweeper(time.Minute, sweepStop)

	router := newRouter(cfg, db.NewStore(client, database), publisher, limiter, func(ctx context.Context) error {
		return client.Ping(ctx, nil)
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := serve(ctx, srv, logger); err != nil {
		logger.WithError(err).Fatal("HTTP server failed")
	}
}

// newPublisher connects to MQTT when a broker is configured and otherwise
// only logs events.
func newPublisher(cfg *config.Config, logger *log.Logger) (events.Publisher, func()) {
	if cfg.MQTTBroker == "" {
		return &events.LogPublisher{Logger: logger}, func() {}
	}
	publisher, closeFn, err := events.NewMQTTPublisher(events.MQTTConfig{
		Broker:      cfg.MQTTBroker,
		ClientID:    cfg.MQTTClientID,
		TopicPrefix: cfg.MQTTTopicPrefix,
		Timeout:     eventPublishWait,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("MQTT unavailable; events will only be logged")
		return &events.LogPublisher{Logger: logger}, func() {}
	}
	return publisher, closeFn
}

// newRouter builds every service over store and mounts them on one router.
func newRouter(cfg *config.Config, store *db.Store, publisher events.Publisher, limiter *middleware.RateLimiter, ping handlers.Pinger, logger *log.Logger) http.Handler {
	authService := auth.NewService(cfg)
	cars := catalog.NewService(store, publisher, logger)
	pricing := booking.Pricing{InsurancePerDay: cfg.InsurancePerDay, ExtraDriverPerDay: cfg.ExtraDriverPerDay}
	bookings := booking.NewService(store, pricing, publisher, logger)
	payments := payment.NewService(store, bookings, publisher, logger)

	return handlers.NewRouter(handlers.RouterConfig{
		Auth:        handlers.NewAuthHandler(authService, store.Users, bookings, cfg.IsAdminEmail, logger),
		Cars:        handlers.NewCarHandler(cars, bookings, logger),
		Bookings:    handlers.NewBookingHandler(bookings, logger),
		Payments:    handlers.NewPaymentHandler(payments, logger),
		AuthMW:      middleware.NewAuthMiddleware(authService, store.Users, logger),
		RateLimiter: limiter,
		Ping:        ping,
		Logger:      logger,
	})
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, logger *log.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
