package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/car-rental/internal/apperr"
	"github.com/ukydev/car-rental/internal/auth"
	"github.com/ukydev/car-rental/internal/db"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const msgInvalidCredentials = "Invalid credentials"

// RentalLister returns a user's bookings for the profile view.
type RentalLister interface {
	ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.BookingSummary, error)
}

// AuthHandler handles authentication requests
type AuthHandler struct {
	responder
	authService    *auth.Service
	userCollection db.UserCollection
	rentals        RentalLister
	isAdminEmail   func(string) bool
}

// NewAuthHandler creates a new authentication handler. isAdminEmail decides
// which registrations receive the admin role; nil grants it to nobody.
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection, rentals RentalLister, isAdminEmail func(string) bool, logger *log.Logger) *AuthHandler {
	if isAdminEmail == nil {
		isAdminEmail = func(string) bool { return false }
	}
	return &AuthHandler{
		responder:      responder{logger: logger},
		authService:    authService,
		userCollection: userCollection,
		rentals:        rentals,
		isAdminEmail:   isAdminEmail,
	}
}

// Register handles user registration
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "Error registering user")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.LicenseNumber = strings.TrimSpace(req.LicenseNumber)

	if err := h.authService.ValidateRegistration(&req); err != nil {
		h.fail(w, r, err, "Error registering user")
		return
	}

	_, err := h.userCollection.FindByEmail(r.Context(), req.Email)
	if err == nil {
		h.message(w, http.StatusBadRequest, "User already exists")
		return
	}
	if !errors.Is(err, db.ErrNotFound) {
		h.fail(w, r, err, "Error registering user")
		return
	}

	passwordHash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		h.fail(w, r, err, "Error registering user")
		return
	}

	role := models.RoleUser
	if h.isAdminEmail(req.Email) {
		role = models.RoleAdmin
	}
	user := &models.User{
		Name:          req.Name,
		Email:         req.Email,
		PasswordHash:  passwordHash,
		Phone:         req.Phone,
		Role:          role,
		LicenseNumber: req.LicenseNumber,
		Age:           req.Age,
	}
	if err := h.userCollection.Insert(r.Context(), user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			h.message(w, http.StatusBadRequest, "User already exists")
			return
		}
		h.fail(w, r, err, "Error registering user")
		return
	}

	h.respondWithToken(w, r, user, http.StatusCreated)
	h.logger.WithFields(log.Fields{"user_id": user.ID.Hex(), "role": user.Role}).Info("User registered")
}

// Login handles user login. Unknown emails and wrong passwords get the same
// answer.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "Error logging in")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		h.message(w, http.StatusBadRequest, "Please provide email and password")
		return
	}

	user, err := h.userCollection.FindByEmail(r.Context(), req.Email)
	if errors.Is(err, db.ErrNotFound) {
		h.message(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}
	if err != nil {
		h.fail(w, r, err, "Error logging in")
		return
	}
	if !h.authService.CheckPassword(req.Password, user.PasswordHash) {
		h.message(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}

	h.respondWithToken(w, r, user, http.StatusOK)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, user *models.User, status int) {
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		h.fail(w, r, err, "Failed to generate token")
		return
	}
	user.PasswordHash = ""
	h.ok(w, status, models.AuthResponse{User: *user, Token: token})
}

// Me returns the authenticated user with their bookings
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	current, err := currentUser(r)
	if err != nil {
		h.fail(w, r, err, "Error fetching user")
		return
	}

	user, err := h.userCollection.FindByID(r.Context(), current.ID)
	if errors.Is(err, db.ErrNotFound) {
		h.message(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.fail(w, r, err, "Error fetching user")
		return
	}
	user.PasswordHash = ""

	profile := models.UserProfile{User: *user, Bookings: []models.BookingSummary{}}
	if h.rentals != nil {
		bookings, err := h.rentals.ListForUser(r.Context(), user.ID)
		if err != nil {
			h.fail(w, r, err, "Error fetching user")
			return
		}
		profile.Bookings = bookings
	}
	h.ok(w, http.StatusOK, profile)
}

// UpdateProfile changes the caller's name, phone, licence or age
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		h.fail(w, r, err, "Error updating profile")
		return
	}

	var update models.ProfileUpdate
	if err := decodeJSON(r, &update); err != nil {
		h.fail(w, r, err, "Error updating profile")
		return
	}
	if err := h.validateProfileUpdate(&update); err != nil {
		h.fail(w, r, err, "Error updating profile")
		return
	}

	user, err := h.userCollection.Update(r.Context(), userID, update)
	if errors.Is(err, db.ErrNotFound) {
		h.message(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.fail(w, r, err, "Error updating profile")
		return
	}
	user.PasswordHash = ""
	h.ok(w, http.StatusOK, user)
}

func (h *AuthHandler) validateProfileUpdate(u *models.ProfileUpdate) error {
	if u.Password != "" {
		return apperr.Validation("Password cannot be updated through this route")
	}
	if u.Email != "" {
		return apperr.Validation("Email cannot be updated through this route")
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return apperr.Validation("Name cannot be empty")
		}
		u.Name = &name
	}
	if u.Phone != nil {
		phone := strings.TrimSpace(*u.Phone)
		if err := h.authService.ValidatePhone(phone); err != nil {
			return err
		}
		u.Phone = &phone
	}
	if u.LicenseNumber != nil {
		license := strings.TrimSpace(*u.LicenseNumber)
		u.LicenseNumber = &license
	}
	if u.Age != nil {
		if err := auth.ValidateAge(*u.Age); err != nil {
			return err
		}
	}
	return nil
}
