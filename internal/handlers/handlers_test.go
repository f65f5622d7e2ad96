package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/car-rental/internal/auth"
	"github.com/ukydev/car-rental/internal/booking"
	"github.com/ukydev/car-rental/internal/catalog"
	"github.com/ukydev/car-rental/internal/config"
	"github.com/ukydev/car-rental/internal/db/dbtest"
	"github.com/ukydev/car-rental/internal/events"
	"github.com/ukydev/car-rental/internal/middleware"
	"github.com/ukydev/car-rental/internal/models"
	"github.com/ukydev/car-rental/internal/payment"
)

const adminEmail = "admin@example.com"

type envelope struct {
	Success bool            `json:"success"`
	Count   *int            `json:"count"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type testServer struct {
	router http.Handler
	store  *dbtest.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithPing(t, nil)
}

func newTestServerWithPing(t *testing.T, ping Pinger) *testServer {
	t.Helper()
	logger := log.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		JWTSecret:         "handler-test-secret",
		JWTExpiry:         time.Hour,
		AdminEmails:       []string{adminEmail},
		InsurancePerDay:   10,
		ExtraDriverPerDay: 5,
	}
	store := dbtest.New()
	publisher := &events.LogPublisher{Logger: logger}
	authService := auth.NewService(cfg)

	cars := catalog.NewService(store.DB(), publisher, logger)
	pricing := booking.Pricing{InsurancePerDay: cfg.InsurancePerDay, ExtraDriverPerDay: cfg.ExtraDriverPerDay}
	bookings := booking.NewService(store.DB(), pricing, publisher, logger)
	payments := payment.NewService(store.DB(), bookings, publisher, logger)

	router := NewRouter(RouterConfig{
		Auth:     NewAuthHandler(authService, store.Users, bookings, cfg.IsAdminEmail, logger),
		Cars:     NewCarHandler(cars, bookings, logger),
		Bookings: NewBookingHandler(bookings, logger),
		Payments: NewPaymentHandler(payments, logger),
		AuthMW:   middleware.NewAuthMiddleware(authService, store.Users, logger),
		Ping:     ping,
		Logger:   logger,
	})
	return &testServer{router: router, store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	return w, env
}

func (s *testServer) register(t *testing.T, name, email string) (string, models.User) {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]interface{}{
		"name":     name,
		"email":    email,
		"password": "secret123",
		"phone":    "+14155550123",
	})
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	return resp.Token, resp.User
}

func carPayload() map[string]interface{} {
	return map[string]interface{}{
		"name":         "Corolla 2022",
		"brand":        "Toyota",
		"model":        "Corolla",
		"year":         2022,
		"color":        "Silver",
		"fuelType":     "Hybrid",
		"transmission": "Automatic",
		"pricePerDay":  50,
		"seats":        5,
		"images":       []string{"https://img.example.com/corolla.jpg"},
		"location":     "Downtown",
	}
}

func (s *testServer) createCar(t *testing.T, adminToken string) models.Car {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/cars", adminToken, carPayload())
	require.Equal(t, http.StatusCreated, w.Code, env.Message)
	var car models.Car
	require.NoError(t, json.Unmarshal(env.Data, &car))
	return car
}

func bookingPayload(carID string, startInDays, endInDays int) map[string]interface{} {
	base := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)
	return map[string]interface{}{
		"carId":             carID,
		"startDate":         base.AddDate(0, 0, startInDays).Format(time.RFC3339),
		"endDate":           base.AddDate(0, 0, endInDays).Format(time.RFC3339),
		"pickupLocation":    "Airport",
		"dropoffLocation":   "Downtown",
		"insurance":         true,
		"additionalDrivers": 1,
	}
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}
