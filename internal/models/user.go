package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the system
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents a registered renter or administrator
type User struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name          string               `bson:"name" json:"name"`
	Email         string               `bson:"email" json:"email"`
	PasswordHash  string               `bson:"password_hash" json:"-"`
	Phone         string               `bson:"phone" json:"phone"`
	Role          Role                 `bson:"role" json:"role"`
	LicenseNumber string               `bson:"license_number,omitempty" json:"licenseNumber,omitempty"`
	Age           int                  `bson:"age,omitempty" json:"age,omitempty"`
	Rentals       []primitive.ObjectID `bson:"rentals" json:"rentals"`
	CreatedAt     time.Time            `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time            `bson:"updated_at" json:"updatedAt"`
}

// UserProfile is a user together with their populated rentals
type UserProfile struct {
	User
	Bookings []BookingSummary `json:"bookings"`
}

// UserRef is the public subset of a user embedded into other documents
type UserRef struct {
	ID    primitive.ObjectID `json:"id"`
	Name  string             `json:"name"`
	Email string             `json:"email,omitempty"`
	Phone string             `json:"phone,omitempty"`
}

// Ref returns the public reference for the user
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
}

// IsAdmin reports whether the user holds the administrative role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Phone         string `json:"phone"`
	LicenseNumber string `json:"licenseNumber,omitempty"`
	Age           int    `json:"age,omitempty"`
}

// ProfileUpdate carries the fields a user may change about themselves.
// Password and Email are decoded only so they can be rejected.
type ProfileUpdate struct {
	Name          *string `json:"name,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	LicenseNumber *string `json:"licenseNumber,omitempty"`
	Age           *int    `json:"age,omitempty"`
	Password      string  `json:"password,omitempty"`
	Email         string  `json:"email,omitempty"`
}

// AuthResponse represents a successful login or registration
type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Claims represents JWT claims
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Exp    int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}
