package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/car-rental/internal/apperr"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BookingService is the booking workflow as the HTTP layer uses it.
type BookingService interface {
	Create(ctx context.Context, userID primitive.ObjectID, req models.BookingRequest) (*models.Booking, error)
	ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.BookingSummary, error)
	Get(ctx context.Context, id string, userID primitive.ObjectID) (*models.BookingDetail, error)
	UpdateStatus(ctx context.Context, id string, userID primitive.ObjectID, status models.BookingStatus) (*models.Booking, error)
	Complete(ctx context.Context, id string) (*models.Booking, error)
}

// BookingHandler serves reservations
type BookingHandler struct {
	responder
	bookings BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingService, logger *log.Logger) *BookingHandler {
	return &BookingHandler{responder: responder{logger: logger}, bookings: bookings}
}

// Create reserves a car for the caller
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		h.fail(w, r, err, "Error creating booking")
		return
	}
	var req models.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "Error creating booking")
		return
	}
	booking, err := h.bookings.Create(r.Context(), userID, req)
	if err != nil {
		h.fail(w, r, err, "Error creating booking")
		return
	}
	h.ok(w, http.StatusCreated, booking)
}

// Mine lists the caller's bookings
func (h *BookingHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		h.fail(w, r, err, "Error fetching bookings")
		return
	}
	bookings, err := h.bookings.ListForUser(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err, "Error fetching bookings")
		return
	}
	h.list(w, bookings, len(bookings))
}

// Get returns one of the caller's bookings
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		h.fail(w, r, err, "Error fetching booking")
		return
	}
	booking, err := h.bookings.Get(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		h.fail(w, r, err, "Error fetching booking")
		return
	}
	h.ok(w, http.StatusOK, booking)
}

// UpdateStatus cancels one of the caller's bookings
func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		h.fail(w, r, err, "Error updating booking status")
		return
	}
	var req models.StatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "Error updating booking status")
		return
	}
	if req.Status == "" {
		h.fail(w, r, apperr.Validation("Please provide a status"), "Error updating booking status")
		return
	}
	booking, err := h.bookings.UpdateStatus(r.Context(), mux.Vars(r)["id"], userID, req.Status)
	if err != nil {
		h.fail(w, r, err, "Error updating booking status")
		return
	}
	h.ok(w, http.StatusOK, booking)
}

// Complete closes a confirmed booking
func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	booking, err := h.bookings.Complete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err, "Error completing booking")
		return
	}
	h.ok(w, http.StatusOK, booking)
}
