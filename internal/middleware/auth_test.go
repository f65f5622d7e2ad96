package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/car-rental/internal/auth"
	"github.com/ukydev/car-rental/internal/config"
	"github.com/ukydev/car-rental/internal/db"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockUserFinder is a mock implementation of UserFinder
type MockUserFinder struct {
	mock.Mock
}

func (m *MockUserFinder) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testAuthService() *auth.Service {
	return auth.NewService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})
}

func decodeMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env models.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.False(t, env.Success)
	return env.Message
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	authService := testAuthService()
	user := &models.User{
		ID:           primitive.NewObjectID(),
		Name:         "Test User",
		Email:        "test@example.com",
		PasswordHash: "hashed",
		Role:         models.RoleUser,
	}
	token, err := authService.GenerateToken(user)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		users := new(MockUserFinder)
		stored := *user
		users.On("FindByID", mock.Anything, user.ID).Return(&stored, nil)
		middleware := NewAuthMiddleware(authService, users, quietLogger())

		req := httptest.NewRequest("GET", "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			current, ok := UserFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, user.ID, current.ID)
			assert.Equal(t, user.Email, current.Email)
			assert.Empty(t, current.PasswordHash)
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
		users.AssertExpectations(t)
	})

	rejections := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing authorization header", "", http.StatusUnauthorized, "Not authorized to access this route"},
		{"non-bearer scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "Not authorized to access this route"},
		{"bearer without token", "Bearer ", http.StatusUnauthorized, "Not authorized to access this route"},
		{"invalid token", "Bearer invalid-token", http.StatusUnauthorized, "Token is invalid or expired"},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUserFinder)
			middleware := NewAuthMiddleware(authService, users, quietLogger())

			req := httptest.NewRequest("GET", "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
			})

			middleware.Authenticate(handler).ServeHTTP(w, req)
			assert.False(t, handlerCalled)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, decodeMessage(t, w))
			users.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
		})
	}

	t.Run("expired token", func(t *testing.T) {
		expired := auth.NewService(&config.Config{JWTSecret: "test-secret", JWTExpiry: -time.Minute})
		stale, err := expired.GenerateToken(user)
		require.NoError(t, err)
		middleware := NewAuthMiddleware(authService, new(MockUserFinder), quietLogger())

		req := httptest.NewRequest("GET", "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+stale)
		w := httptest.NewRecorder()

		middleware.Authenticate(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Token is invalid or expired", decodeMessage(t, w))
	})

	t.Run("user no longer exists", func(t *testing.T) {
		users := new(MockUserFinder)
		users.On("FindByID", mock.Anything, user.ID).Return(nil, db.ErrNotFound)
		middleware := NewAuthMiddleware(authService, users, quietLogger())

		req := httptest.NewRequest("GET", "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		middleware.Authenticate(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "User not found", decodeMessage(t, w))
	})

	t.Run("store failure", func(t *testing.T) {
		users := new(MockUserFinder)
		users.On("FindByID", mock.Anything, user.ID).Return(nil, errors.New("connection refused"))
		logger, hook := test.NewNullLogger()
		middleware := NewAuthMiddleware(authService, users, logger)

		req := httptest.NewRequest("GET", "/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		middleware.Authenticate(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Server error in authentication", decodeMessage(t, w))
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, log.ErrorLevel, hook.LastEntry().Level)
	})
}

func TestAuthMiddleware_RequireRole(t *testing.T) {
	middleware := NewAuthMiddleware(testAuthService(), new(MockUserFinder), quietLogger())

	tests := []struct {
		name   string
		user   *models.User
		called bool
		status int
	}{
		{"admin accessing admin endpoint", &models.User{Role: models.RoleAdmin}, true, http.StatusOK},
		{"user accessing admin endpoint", &models.User{Role: models.RoleUser}, false, http.StatusForbidden},
		{"no user in context", nil, false, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/cars", nil)
			if tt.user != nil {
				req = req.WithContext(WithUser(req.Context(), tt.user))
			}
			w := httptest.NewRecorder()

			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
			})

			middleware.RequireRole(models.RoleAdmin)(handler).ServeHTTP(w, req)
			assert.Equal(t, tt.called, handlerCalled)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusForbidden {
				assert.Equal(t, "Not authorized to perform this action", decodeMessage(t, w))
			}
		})
	}
}

func TestUserFromContext(t *testing.T) {
	user := &models.User{ID: primitive.NewObjectID(), Name: "Test User"}

	retrieved, ok := UserFromContext(WithUser(context.Background(), user))
	assert.True(t, ok)
	assert.Equal(t, user.ID, retrieved.ID)

	_, ok = UserFromContext(context.Background())
	assert.False(t, ok)

	_, ok = UserFromContext(WithUser(context.Background(), nil))
	assert.False(t, ok)
}
