// Package payment simulates settling bookings by card or UPI.
package payment

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/car-rental/internal/apperr"
	"github.com/ukydev/car-rental/internal/db"
	"github.com/ukydev/car-rental/internal/events"
	"github.com/ukydev/car-rental/internal/metrics"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	msgPaymentNotFound  = "Payment not found"
	msgBookingNotFound  = "Booking not found"
	msgPaymentExists    = "Payment already exists for this booking"
	msgMissingDetails   = "Please provide all required payment details"
	msgAlreadyProcessed = "Payment has already been processed"

	idAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffixLength = 6
	maxAttempts  = 3
)

// BookingWorkflow is the part of the booking service a payment drives.
type BookingWorkflow interface {
	ConfirmPayment(ctx context.Context, bookingID primitive.ObjectID, transactionID string) (*models.Booking, error)
	MarkRefunded(ctx context.Context, bookingID primitive.ObjectID) error
	Announce(ctx context.Context, booking *models.Booking)
	Summaries(ctx context.Context, bookings []models.Booking) ([]models.BookingSummary, error)
}

// Service implements the payment simulator.
type Service struct {
	payments db.PaymentCollection
	bookings db.BookingCollection
	users    db.UserCollection
	tx       db.TxRunner
	workflow BookingWorkflow
	events   events.Publisher
	logger   *log.Logger
	now      func() time.Time
}

// NewService creates a payment service.
func NewService(store *db.Store, workflow BookingWorkflow, publisher events.Publisher, logger *log.Logger) *Service {
	return &Service{
		payments: store.Payments,
		bookings: store.Bookings,
		users:    store.Users,
		tx:       store.Tx,
		workflow: workflow,
		events:   publisher,
		logger:   logger,
		now:      time.Now,
	}
}

// NewTransactionID returns TXN, the millisecond timestamp and six random
// upper-case alphanumerics.
func NewTransactionID(now time.Time) string {
	return "TXN" + strconv.FormatInt(now.UnixMilli(), 10) + randomSuffix()
}

func newRefundID(now time.Time) string {
	return "RFD" + strconv.FormatInt(now.UnixMilli(), 10) + randomSuffix()
}

func randomSuffix() string {
	id := uuid.New()
	var b strings.Builder
	for i := 0; i < suffixLength; i++ {
		b.WriteByte(idAlphabet[int(id[i])%len(idAlphabet)])
	}
	return b.String()
}

// Initialize opens a pending payment for a booking owned by userID.
func (s *Service) Initialize(ctx context.Context, userID primitive.ObjectID, req models.InitializePaymentRequest) (*models.Payment, error) {
	if req.BookingID == "" || req.PaymentMethod == "" || req.BillingDetails == nil {
		return nil, apperr.Validation(msgMissingDetails)
	}
	if !models.IsValidPaymentMethod(req.PaymentMethod) {
		return nil, apperr.Validation("Payment method must be one of UPI, CREDIT_CARD, DEBIT_CARD")
	}
	billing := *req.BillingDetails
	billing.Name = strings.TrimSpace(billing.Name)
	billing.Email = strings.TrimSpace(billing.Email)
	billing.Phone = strings.TrimSpace(billing.Phone)
	if billing.Name == "" || billing.Email == "" || billing.Phone == "" {
		return nil, apperr.Validation("Please provide billing name, email and phone")
	}

	bookingID, err := primitive.ObjectIDFromHex(req.BookingID)
	if err != nil {
		return nil, apperr.NotFound(msgBookingNotFound)
	}
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound(msgBookingNotFound)
	}
	if err != nil {
		return nil, apperr.Internal("Error initializing payment", err)
	}
	if booking.UserID != userID {
		return nil, apperr.Forbidden("Not authorized to make payment for this booking")
	}
	if booking.Status == models.BookingCancelled {
		return nil, apperr.Validation("Cannot pay for a cancelled booking")
	}

	if _, err := s.payments.FindByBooking(ctx, bookingID); err == nil {
		return nil, apperr.Conflict(msgPaymentExists)
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, apperr.Internal("Error initializing payment", err)
	}

	payment := &models.Payment{
		BookingID:     bookingID,
		UserID:        userID,
		Amount:        booking.TotalAmount,
		PaymentMethod: req.PaymentMethod,
		Status:        models.PaymentPending,
		Billing:       billing,
	}
	if err := s.insert(ctx, payment, strings.TrimSpace(req.TransactionID)); err != nil {
		return nil, err
	}

	metrics.RecordPayment(string(payment.PaymentMethod), string(payment.Status))
	s.logger.WithFields(log.Fields{
		"payment_id":     payment.ID.Hex(),
		"booking_id":     bookingID.Hex(),
		"transaction_id": payment.TransactionID,
		"amount":         payment.Amount,
	}).Info("Payment initialized")
	s.emit(ctx, events.PaymentCreated, payment)
	return payment, nil
}

// insert stores payment under the supplied transaction id, or under a
// generated one, regenerating on the rare collision.
func (s *Service) insert(ctx context.Context, payment *models.Payment, suppliedTxn string) error {
	for attempt := 1; ; attempt++ {
		payment.TransactionID = suppliedTxn
		if payment.TransactionID == "" {
			payment.TransactionID = NewTransactionID(s.now())
		}
		err := s.payments.Insert(ctx, payment)
		if err == nil {
			return nil
		}
		if !errors.Is(err, db.ErrDuplicate) {
			return apperr.Internal("Error initializing payment", err)
		}
		if _, findErr := s.payments.FindByBooking(ctx, payment.BookingID); findErr == nil {
			return apperr.Conflict(msgPaymentExists)
		}
		if suppliedTxn != "" {
			return apperr.Conflict("Transaction ID is already in use")
		}
		if attempt == maxAttempts {
			return apperr.Internal("Error initializing payment", err)
		}
	}
}

// Process settles a pending payment. Method-specific details are checked
// before anything is written; on success the booking is confirmed.
func (s *Service) Process(ctx context.Context, id string, userID primitive.ObjectID, details models.CardOrUPIDetails) (*models.Payment, error) {
	payment, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, apperr.Forbidden("Not authorized to process this payment")
	}
	if payment.Status != models.PaymentPending {
		return nil, apperr.Validation(msgAlreadyProcessed)
	}
	recorded, err := validateDetails(payment.PaymentMethod, details)
	if err != nil {
		return nil, err
	}

	payment.Status = models.PaymentCompleted
	payment.PaymentDetails = recorded
	var booking *models.Booking
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.payments.Update(ctx, payment, models.PaymentPending); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return apperr.Conflict(msgAlreadyProcessed)
			}
			return err
		}
		b, err := s.workflow.ConfirmPayment(ctx, payment.BookingID, payment.TransactionID)
		if err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, wrap(err, "Error processing payment")
	}

	metrics.RecordPayment(string(payment.PaymentMethod), string(payment.Status))
	s.logger.WithFields(log.Fields{
		"payment_id":     payment.ID.Hex(),
		"booking_id":     payment.BookingID.Hex(),
		"transaction_id": payment.TransactionID,
	}).Info("Payment completed")
	s.workflow.Announce(ctx, booking)
	s.emit(ctx, events.PaymentCompleted, payment)
	return payment, nil
}

func validateDetails(method models.PaymentMethod, d models.CardOrUPIDetails) (*models.PaymentDetails, error) {
	recorded := &models.PaymentDetails{BankName: strings.TrimSpace(d.BankName)}
	switch {
	case method.IsCard():
		number := strings.ReplaceAll(strings.TrimSpace(d.CardNumber), " ", "")
		if number == "" || strings.TrimSpace(d.ExpiryDate) == "" || strings.TrimSpace(d.CVV) == "" {
			return nil, apperr.Validation("Please provide all card details")
		}
		if len(number) > 4 {
			number = number[len(number)-4:]
		}
		recorded.CardLastFour = number
	case method == models.MethodUPI:
		upi := strings.TrimSpace(d.UpiID)
		if upi == "" {
			return nil, apperr.Validation("Please provide UPI ID")
		}
		recorded.UpiID = upi
	}
	return recorded, nil
}

// Refund reverses a completed payment. The booking keeps its status; only
// its payment status changes.
func (s *Service) Refund(ctx context.Context, id string, userID primitive.ObjectID, reason string) (*models.Payment, error) {
	payment, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, apperr.Forbidden("Not authorized to refund this payment")
	}
	if payment.Status != models.PaymentCompleted {
		return nil, apperr.Validation("Only completed payments can be refunded")
	}

	now := s.now().UTC()
	payment.Status = models.PaymentRefunded
	payment.RefundDetails = &models.RefundDetails{
		RefundID:     newRefundID(now),
		RefundDate:   now,
		RefundAmount: payment.Amount,
		Reason:       strings.TrimSpace(reason),
	}
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.payments.Update(ctx, payment, models.PaymentCompleted); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return apperr.Conflict("Payment has already been refunded")
			}
			return err
		}
		return s.workflow.MarkRefunded(ctx, payment.BookingID)
	})
	if err != nil {
		return nil, wrap(err, "Error refunding payment")
	}

	metrics.RecordPayment(string(payment.PaymentMethod), string(payment.Status))
	s.logger.WithFields(log.Fields{
		"payment_id": payment.ID.Hex(),
		"refund_id":  payment.RefundDetails.RefundID,
	}).Info("Payment refunded")
	s.emit(ctx, events.PaymentRefunded, payment)
	return payment, nil
}

// Get returns a payment owned by userID with its booking and payer populated.
func (s *Service) Get(ctx context.Context, id string, userID primitive.ObjectID) (*models.PaymentDetail, error) {
	payment, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, apperr.Forbidden("Not authorized to view this payment")
	}
	details, err := s.populate(ctx, []models.Payment{*payment})
	if err != nil {
		return nil, apperr.Internal("Error fetching payment details", err)
	}
	detail := details[0]

	user, err := s.users.FindByID(ctx, userID)
	switch {
	case err == nil:
		ref := models.UserRef{ID: user.ID, Name: user.Name, Email: user.Email}
		detail.User = &ref
	case !errors.Is(err, db.ErrNotFound):
		return nil, apperr.Internal("Error fetching payment details", err)
	}
	return &detail, nil
}

// History lists a user's payments, newest first, with booking and car populated.
func (s *Service) History(ctx context.Context, userID primitive.ObjectID) ([]models.PaymentDetail, error) {
	payments, err := s.payments.FindByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("Error fetching payment history", err)
	}
	details, err := s.populate(ctx, payments)
	if err != nil {
		return nil, apperr.Internal("Error fetching payment history", err)
	}
	return details, nil
}

func (s *Service) populate(ctx context.Context, payments []models.Payment) ([]models.PaymentDetail, error) {
	bookings := make([]models.Booking, 0, len(payments))
	index := make(map[primitive.ObjectID]int, len(payments))
	for _, p := range payments {
		if _, seen := index[p.BookingID]; seen {
			continue
		}
		b, err := s.bookings.FindByID(ctx, p.BookingID)
		if errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		index[p.BookingID] = len(bookings)
		bookings = append(bookings, *b)
	}
	summaries, err := s.workflow.Summaries(ctx, bookings)
	if err != nil {
		return nil, err
	}

	out := make([]models.PaymentDetail, 0, len(payments))
	for _, p := range payments {
		detail := models.PaymentDetail{Payment: p}
		if i, ok := index[p.BookingID]; ok {
			summary := summaries[i]
			detail.Booking = &summary
		}
		out = append(out, detail)
	}
	return out, nil
}

func (s *Service) find(ctx context.Context, id string) (*models.Payment, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.NotFound(msgPaymentNotFound)
	}
	payment, err := s.payments.FindByID(ctx, oid)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound(msgPaymentNotFound)
	}
	if err != nil {
		return nil, apperr.Internal("Error fetching payment details", err)
	}
	return payment, nil
}

func (s *Service) emit(ctx context.Context, eventType string, p *models.Payment) {
	events.Emit(ctx, s.events, s.logger, events.Event{
		Type:      eventType,
		PaymentID: p.ID.Hex(),
		BookingID: p.BookingID.Hex(),
		UserID:    p.UserID.Hex(),
		Status:    string(p.Status),
	})
}

func wrap(err error, msg string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(msg, err)
}
