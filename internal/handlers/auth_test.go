package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/car-rental/internal/auth"
	"github.com/ukydev/car-rental/internal/config"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockUserCollection is a mock implementation of db.UserCollection
type MockUserCollection struct {
	mock.Mock
}

func (m *MockUserCollection) Insert(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserCollection) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[primitive.ObjectID]*models.User), args.Error(1)
}

func (m *MockUserCollection) Update(ctx context.Context, id primitive.ObjectID, update models.ProfileUpdate) (*models.User, error) {
	args := m.Called(ctx, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) AddBooking(ctx context.Context, userID, bookingID primitive.ObjectID) error {
	args := m.Called(ctx, userID, bookingID)
	return args.Error(0)
}

func TestAuthHandler_Register(t *testing.T) {
	srv := newTestServer(t)

	t.Run("successful registration", func(t *testing.T) {
		w, env := srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]interface{}{
			"name":     "Jane Renter",
			"email":    "Jane@Example.com",
			"password": "secret123",
			"phone":    "+14155550123",
			"age":      30,
		})
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, env.Success)

		var resp models.AuthResponse
		decodeData(t, env, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "jane@example.com", resp.User.Email)
		assert.Equal(t, models.RoleUser, resp.User.Role)
		assert.NotContains(t, string(env.Data), "password")
	})

	t.Run("configured admin email", func(t *testing.T) {
		_, user := srv.register(t, "Admin", adminEmail)
		assert.Equal(t, models.RoleAdmin, user.Role)
	})

	tests := []struct {
		name    string
		body    map[string]interface{}
		message string
	}{
		{"duplicate email", map[string]interface{}{"name": "Again", "email": "jane@example.com", "password": "secret123", "phone": "+14155550123"}, "User already exists"},
		{"missing phone", map[string]interface{}{"name": "No Phone", "email": "nophone@example.com", "password": "secret123"}, "Please provide all required fields"},
		{"bad email", map[string]interface{}{"name": "Bad", "email": "not-an-email", "password": "secret123", "phone": "+14155550123"}, "Please provide a valid email"},
		{"short password", map[string]interface{}{"name": "Short", "email": "short@example.com", "password": "abc", "phone": "+14155550123"}, "Password must be at least 6 characters long"},
		{"bad phone", map[string]interface{}{"name": "Phone", "email": "phone@example.com", "password": "secret123", "phone": "12"}, "Please provide a valid phone number"},
		{"minor", map[string]interface{}{"name": "Kid", "email": "kid@example.com", "password": "secret123", "phone": "+14155550123", "age": 16}, "Renter must be at least 18 years old"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := srv.do(t, http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.Message)
		})
	}

	t.Run("invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString("{bad json"))
		w := httptest.NewRecorder()
		srv.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid request body")
	})
}

func TestAuthHandler_Register_StoreFailure(t *testing.T) {
	logger := log.New()
	logger.SetOutput(io.Discard)
	authService := auth.NewService(&config.Config{JWTSecret: "s", JWTExpiry: time.Hour})
	users := new(MockUserCollection)
	users.On("FindByEmail", mock.Anything, "jane@example.com").Return(nil, errors.New("server selection timeout"))
	handler := NewAuthHandler(authService, users, nil, nil, logger)

	body := `{"name":"Jane","email":"jane@example.com","password":"secret123","phone":"+14155550123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	handler.Register(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Error registering user")
	assert.NotContains(t, w.Body.String(), "server selection timeout")
	users.AssertExpectations(t)
	users.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestAuthHandler_Login(t *testing.T) {
	srv := newTestServer(t)
	srv.register(t, "Jane Renter", "jane@example.com")

	t.Run("successful login", func(t *testing.T) {
		w, env := srv.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "jane@example.com", Password: "secret123"})
		assert.Equal(t, http.StatusOK, w.Code)
		var resp models.AuthResponse
		decodeData(t, env, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "Jane Renter", resp.User.Name)
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		w1, env1 := srv.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "jane@example.com", Password: "wrong-pass"})
		w2, env2 := srv.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "ghost@example.com", Password: "secret123"})
		assert.Equal(t, http.StatusUnauthorized, w1.Code)
		assert.Equal(t, w1.Code, w2.Code)
		assert.Equal(t, "Invalid credentials", env1.Message)
		assert.Equal(t, env1.Message, env2.Message)
	})

	t.Run("missing fields", func(t *testing.T) {
		w, env := srv.do(t, http.MethodPost, "/api/auth/login", "", models.LoginRequest{Email: "jane@example.com"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Please provide email and password", env.Message)
	})
}

func TestAuthHandler_Me(t *testing.T) {
	srv := newTestServer(t)
	token, user := srv.register(t, "Jane Renter", "jane@example.com")

	t.Run("authenticated", func(t *testing.T) {
		w, env := srv.do(t, http.MethodGet, "/api/auth/me", token, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		var profile models.UserProfile
		decodeData(t, env, &profile)
		assert.Equal(t, user.ID, profile.ID)
		assert.Empty(t, profile.Bookings)
	})

	t.Run("missing token", func(t *testing.T) {
		w, env := srv.do(t, http.MethodGet, "/api/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Not authorized to access this route", env.Message)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := auth.NewService(&config.Config{JWTSecret: "handler-test-secret", JWTExpiry: -time.Minute})
		stale, err := expired.GenerateToken(&user)
		require.NoError(t, err)
		w, env := srv.do(t, http.MethodGet, "/api/auth/me", stale, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Token is invalid or expired", env.Message)
	})

	t.Run("deleted user", func(t *testing.T) {
		ghost := models.User{ID: primitive.NewObjectID(), Email: "ghost@example.com"}
		svc := auth.NewService(&config.Config{JWTSecret: "handler-test-secret", JWTExpiry: time.Hour})
		ghostToken, err := svc.GenerateToken(&ghost)
		require.NoError(t, err)
		w, env := srv.do(t, http.MethodGet, "/api/auth/me", ghostToken, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "User not found", env.Message)
	})
}

func TestAuthHandler_UpdateProfile(t *testing.T) {
	srv := newTestServer(t)
	token, _ := srv.register(t, "Jane Renter", "jane@example.com")

	t.Run("updates allowed fields", func(t *testing.T) {
		w, env := srv.do(t, http.MethodPut, "/api/auth/update-profile", token, map[string]interface{}{
			"name":          " Jane R. ",
			"phone":         "+14155550999",
			"licenseNumber": "DL-123",
		})
		assert.Equal(t, http.StatusOK, w.Code)
		var user models.User
		decodeData(t, env, &user)
		assert.Equal(t, "Jane R.", user.Name)
		assert.Equal(t, "+14155550999", user.Phone)
		assert.Equal(t, "DL-123", user.LicenseNumber)
		assert.Equal(t, "jane@example.com", user.Email)
	})

	tests := []struct {
		name    string
		body    map[string]interface{}
		message string
	}{
		{"password", map[string]interface{}{"password": "newsecret"}, "Password cannot be updated through this route"},
		{"email", map[string]interface{}{"email": "new@example.com"}, "Email cannot be updated through this route"},
		{"bad phone", map[string]interface{}{"phone": "abc"}, "Please provide a valid phone number"},
		{"minor", map[string]interface{}{"age": 17}, "Renter must be at least 18 years old"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := srv.do(t, http.MethodPut, "/api/auth/update-profile", token, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.message, env.Message)
		})
	}
}
