package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestRateLimiter(t *testing.T) {
	t.Run("rate limit not exceeded", func(t *testing.T) {
		limiter := NewRateLimiter(1, 5, time.Minute, quietLogger())
		req := httptest.NewRequest("GET", "/api/cars", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		limiter.Handler(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rate limit exceeded", func(t *testing.T) {
		limiter := NewRateLimiter(0.001, 1, time.Minute, quietLogger())
		req := httptest.NewRequest("GET", "/api/cars", nil)
		req.RemoteAddr = "192.168.1.2:12345"

		handlerCalled := false
		handler := limiter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		handlerCalled = false
		handler.ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "Too many requests, please try again later", decodeMessage(t, w))

		other := httptest.NewRequest("GET", "/api/cars", nil)
		other.RemoteAddr = "192.168.1.3:12345"
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, other)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("sweep forgets idle clients", func(t *testing.T) {
		limiter := NewRateLimiter(1, 1, time.Minute, quietLogger())
		now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		limiter.now = func() time.Time { return now }

		limiter.limiter("10.0.0.1")
		now = now.Add(2 * time.Minute)
		limiter.limiter("10.0.0.2")

		assert.Equal(t, 1, limiter.Sweep())
	})
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", clientIP(req))

	req.Header.Set("X-Real-IP", "172.16.0.9")
	assert.Equal(t, "172.16.0.9", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestRequestLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	user := &models.User{ID: primitive.NewObjectID()}

	tests := []struct {
		name   string
		status int
		level  log.Level
	}{
		{"success", http.StatusOK, log.InfoLevel},
		{"client error", http.StatusNotFound, log.WarnLevel},
		{"server error", http.StatusInternalServerError, log.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook.Reset()
			handler := RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				recordUser(r.Context(), user.ID.Hex())
				w.WriteHeader(tt.status)
			})))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/cars", nil))
			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, tt.level, entry.Level)
			assert.Equal(t, tt.status, entry.Data["status"])
			assert.Equal(t, "/api/cars", entry.Data["path"])
			assert.Equal(t, user.ID.Hex(), entry.Data["user_id"])
			assert.NotEmpty(t, entry.Data["request_id"])
		})
	}
}

func TestRecover(t *testing.T) {
	logger, hook := test.NewNullLogger()
	handler := Recover(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/cars", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Server error", decodeMessage(t, w))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Recovered from panic", hook.LastEntry().Message)
}
