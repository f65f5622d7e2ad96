package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/car-rental/internal/metrics"
	"github.com/ukydev/car-rental/internal/middleware"
	"github.com/ukydev/car-rental/internal/models"
)

// Pinger reports whether a backing store is reachable.
type Pinger func(ctx context.Context) error

// RouterConfig collects everything the HTTP surface is built from.
type RouterConfig struct {
	Auth        *AuthHandler
	Cars        *CarHandler
	Bookings    *BookingHandler
	Payments    *PaymentHandler
	AuthMW      *middleware.AuthMiddleware
	RateLimiter *middleware.RateLimiter
	Ping        Pinger
	Logger      *log.Logger
}

// NewRouter wires every route under /api plus /health and /metrics.
func NewRouter(cfg RouterConfig) *mux.Router {
	rs := responder{logger: cfg.Logger}
	r := mux.NewRouter()
	r.Use(
		middleware.Recover(cfg.Logger),
		middleware.RequestID,
		middleware.RequestLogger(cfg.Logger),
		metrics.InstrumentHandler,
	)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		rs.message(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		rs.message(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/health", healthHandler(rs, cfg.Ping)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter.Handler)
	}

	protect := func(h http.HandlerFunc) http.Handler {
		return cfg.AuthMW.Authenticate(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return cfg.AuthMW.Authenticate(cfg.AuthMW.RequireRole(models.RoleAdmin)(h))
	}

	api.HandleFunc("/auth/register", cfg.Auth.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", cfg.Auth.Login).Methods(http.MethodPost)
	api.Handle("/auth/me", protect(cfg.Auth.Me)).Methods(http.MethodGet)
	api.Handle("/auth/update-profile", protect(cfg.Auth.UpdateProfile)).Methods(http.MethodPut)

	api.HandleFunc("/cars", cfg.Cars.List).Methods(http.MethodGet)
	api.Handle("/cars", admin(cfg.Cars.Create)).Methods(http.MethodPost)
	api.HandleFunc("/cars/{id}", cfg.Cars.Get).Methods(http.MethodGet)
	api.Handle("/cars/{id}", admin(cfg.Cars.Update)).Methods(http.MethodPut)
	api.Handle("/cars/{id}", admin(cfg.Cars.Delete)).Methods(http.MethodDelete)
	api.HandleFunc("/cars/{id}/quote", cfg.Cars.Quote).Methods(http.MethodGet)
	api.Handle("/cars/{id}/ratings", protect(cfg.Cars.Rate)).Methods(http.MethodPost)

	api.Handle("/bookings", protect(cfg.Bookings.Create)).Methods(http.MethodPost)
	api.Handle("/bookings/my-bookings", protect(cfg.Bookings.Mine)).Methods(http.MethodGet)
	api.Handle("/bookings/{id}", protect(cfg.Bookings.Get)).Methods(http.MethodGet)
	api.Handle("/bookings/{id}/status", protect(cfg.Bookings.UpdateStatus)).Methods(http.MethodPatch)
	api.Handle("/admin/bookings/{id}/complete", admin(cfg.Bookings.Complete)).Methods(http.MethodPost)

	api.Handle("/payments/initialize", protect(cfg.Payments.Initialize)).Methods(http.MethodPost)
	api.Handle("/payments/process/{id}", protect(cfg.Payments.Process)).Methods(http.MethodPost)
	api.Handle("/payments/{id}/refund", protect(cfg.Payments.Refund)).Methods(http.MethodPost)
	api.Handle("/payments", protect(cfg.Payments.History)).Methods(http.MethodGet)
	api.Handle("/payments/{id}", protect(cfg.Payments.Get)).Methods(http.MethodGet)

	return r
}

func healthHandler(rs responder, ping Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ping(ctx); err != nil {
				rs.logger.WithError(err).Warn("Health check failed")
				rs.write(w, http.StatusServiceUnavailable, models.Envelope{
					Success: false,
					Message: "Database unavailable",
				})
				return
			}
		}
		rs.ok(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
