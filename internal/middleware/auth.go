package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/car-rental/internal/auth"
	"github.com/ukydev/car-rental/internal/db"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	UserContextKey      contextKey = "user"
	RequestIDContextKey contextKey = "request_id"
)

const (
	msgNoToken      = "Not authorized to access this route"
	msgBadToken     = "Token is invalid or expired"
	msgUserNotFound = "User not found"
	msgAuthFailure  = "Server error in authentication"
	msgForbidden    = "Not authorized to perform this action"
)

// UserFinder loads the account a token refers to.
type UserFinder interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// AuthMiddleware provides JWT authentication middleware
type AuthMiddleware struct {
	authService *auth.Service
	users       UserFinder
	logger      *log.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authService *auth.Service, users UserFinder, logger *log.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		users:       users,
		logger:      logger,
	}
}

// Authenticate requires a bearer token, verifies it and loads the user it
// names into the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := m.authService.ExtractTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, msgNoToken)
			return
		}

		claims, err := m.authService.ValidateToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, msgBadToken)
			return
		}

		userID, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, msgBadToken)
			return
		}

		user, err := m.users.FindByID(r.Context(), userID)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, msgUserNotFound)
			return
		}
		if err != nil {
			m.logger.WithError(err).WithField("user_id", claims.UserID).Error("Failed to load authenticated user")
			writeError(w, http.StatusInternalServerError, msgAuthFailure)
			return
		}
		user.PasswordHash = ""
		recordUser(r.Context(), user.ID.Hex())

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole lets the request through only when the authenticated user
// holds role. Admins pass every role check.
func (m *AuthMiddleware) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, msgNoToken)
				return
			}
			if user.Role != role && !user.IsAdmin() {
				writeError(w, http.StatusForbidden, msgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext returns the user loaded by Authenticate.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok && user != nil
}

// WithUser stores user in ctx the way Authenticate does.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.Envelope{Success: false, Message: message})
}
