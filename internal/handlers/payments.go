package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentService is the payment simulator as the HTTP layer uses it.
type PaymentService interface {
	Initialize(ctx context.Context, userID primitive.ObjectID, req models.InitializePaymentRequest) (*models.Payment, error)
	Process(ctx context.Context, id string, userID primitive.ObjectID, details models.CardOrUPIDetails) (*models.Payment, error)
	Refund(ctx context.Context, id string, userID primitive.ObjectID, reason string) (*models.Payment, error)
	Get(ctx context.Context, id string, userID primitive.ObjectID) (*models.PaymentDetail, error)
	History(ctx context.Context, userID primitive.ObjectID) ([]models.PaymentDetail, error)
}

// PaymentHandler serves the payment simulator
type PaymentHandler struct {
	responder
	payments PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentService, logger *log.Logger) *PaymentHandler {
	return &PaymentHandler{responder: responder{logger: logger}, payments: payments}
}

// Initialize opens a pending payment for one of the caller's bookings
func (h *PaymentHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		h.fail(w, r, err, "Error initializing payment")
		return
	}
	var req models.InitializePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "Error initializing payment")
		return
	}
	payment, err := h.payments.Initialize(r.Context(), userID, req)
	if err != nil {
		h.fail(w, r, err, "Error initializing payment")
		return
	}
	h.ok(w, http.StatusCreated, payment)
}

// Process settles a pending payment
func (h *PaymentHandler) Process(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		h.fail(w, r, err, "Error processing payment")
		return
	}
	var req models.ProcessPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "Error processing payment")
		return
	}
	payment, err := h.payments.Process(r.Context(), mux.Vars(r)["id"], userID, req.PaymentDetails)
	if err != nil {
		h.fail(w, r, err, "Error processing payment")
		return
	}
	h.ok(w, http.StatusOK, payment)
}

// Refund reverses a completed payment. The body is optional.
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		h.fail(w, r, err, "Error refunding payment")
		return
	}
	var req models.RefundRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		h.fail(w, r, err, "Error refunding payment")
		return
	}
	payment, err := h.payments.Refund(r.Context(), mux.Vars(r)["id"], userID, req.Reason)
	if err != nil {
		h.fail(w, r, err, "Error refunding payment")
		return
	}
	h.ok(w, http.StatusOK, payment)
}

// Get returns one of the caller's payments
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		h.fail(w, r, err, "Error fetching payment details")
		return
	}
	payment, err := h.payments.Get(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		h.fail(w, r, err, "Error fetching payment details")
		return
	}
	h.ok(w, http.StatusOK, payment)
}

// History lists the caller's payments
func (h *PaymentHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		h.fail(w, r, err, "Error fetching payment history")
		return
	}
	payments, err := h.payments.History(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err, "Error fetching payment history")
		return
	}
	h.list(w, payments, len(payments))
}
