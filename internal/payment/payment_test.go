package payment

import (
	"context"
	"errors"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/car-rental/internal/apperr"
	"github.com/ukydev/car-rental/internal/booking"
	"github.com/ukydev/car-rental/internal/db/dbtest"
	"github.com/ukydev/car-rental/internal/events"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

type fixture struct {
	svc     *Service
	store   *dbtest.Store
	rec     *recorder
	user    *models.User
	car     *models.Car
	booking *models.Booking
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := dbtest.New()
	logger := log.New()
	logger.SetOutput(io.Discard)
	rec := &recorder{}
	ctx := context.Background()

	user := &models.User{Name: "Payer", Email: "payer@example.com", Phone: "+14155550100"}
	require.NoError(t, store.Users.Insert(ctx, user))
	car := &models.Car{Name: "Model 3", Brand: "Tesla", Model: "3", PricePerDay: 50, Available: true}
	require.NoError(t, store.Cars.Insert(ctx, car))

	bookings := booking.NewService(store.DB(), booking.DefaultPricing(), rec, logger)
	start := time.Now().UTC().AddDate(0, 0, 2)
	end := start.AddDate(0, 0, 3)
	b, err := bookings.Create(ctx, user.ID, models.BookingRequest{
		CarID:             car.ID.Hex(),
		StartDate:         &start,
		EndDate:           &end,
		PickupLocation:    "Airport",
		DropoffLocation:   "Airport",
		Insurance:         true,
		AdditionalDrivers: 1,
	})
	require.NoError(t, err)

	svc := NewService(store.DB(), bookings, rec, logger)
	return &fixture{svc: svc, store: store, rec: rec, user: user, car: car, booking: b}
}

func (f *fixture) initRequest(method models.PaymentMethod) models.InitializePaymentRequest {
	return models.InitializePaymentRequest{
		BookingID:     f.booking.ID.Hex(),
		PaymentMethod: method,
		BillingDetails: &models.Billing{
			Name:  "Payer",
			Email: "payer@example.com",
			Phone: "+14155550100",
		},
	}
}

func cardDetails() models.CardOrUPIDetails {
	return models.CardOrUPIDetails{
		CardNumber: "4111 1111 1111 1234",
		ExpiryDate: "12/30",
		CVV:        "123",
		BankName:   "First Bank",
	}
}

func TestNewTransactionID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := NewTransactionID(now)
	assert.Regexp(t, regexp.MustCompile(`^TXN1700000000123[A-Z0-9]{6}$`), id)
	assert.NotEqual(t, id, NewTransactionID(now))
}

func TestService_Initialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Initialize(ctx, f.user.ID, f.initRequest(models.MethodCreditCard))
	require.NoError(t, err)
	assert.False(t, payment.ID.IsZero())
	assert.Equal(t, 195.0, payment.Amount)
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Regexp(t, `^TXN\d+[A-Z0-9]{6}$`, payment.TransactionID)
	assert.True(t, f.rec.has(events.PaymentCreated))

	_, err = f.svc.Initialize(ctx, f.user.ID, f.initRequest(models.MethodUPI))
	require.Error(t, err)
	assert.Equal(t, "Payment already exists for this booking", apperr.MessageOf(err, ""))
	assert.Equal(t, 400, apperr.HTTPStatus(apperr.KindOf(err)))
}

func TestService_Initialize_SuppliedTransactionID(t *testing.T) {
	f := newFixture(t)
	req := f.initRequest(models.MethodUPI)
	req.TransactionID = "TXN-CLIENT-1"

	payment, err := f.svc.Initialize(context.Background(), f.user.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "TXN-CLIENT-1", payment.TransactionID)
}

func TestService_Initialize_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		user    primitive.ObjectID
		mutate  func(req *models.InitializePaymentRequest)
		kind    apperr.Kind
		message string
	}{
		{"missing booking", f.user.ID, func(r *models.InitializePaymentRequest) { r.BookingID = "" }, apperr.KindValidation, "Please provide all required payment details"},
		{"missing billing", f.user.ID, func(r *models.InitializePaymentRequest) { r.BillingDetails = nil }, apperr.KindValidation, "Please provide all required payment details"},
		{"blank phone", f.user.ID, func(r *models.InitializePaymentRequest) { r.BillingDetails.Phone = " " }, apperr.KindValidation, "Please provide billing name, email and phone"},
		{"unknown method", f.user.ID, func(r *models.InitializePaymentRequest) { r.PaymentMethod = "CASH" }, apperr.KindValidation, "Payment method must be one of UPI, CREDIT_CARD, DEBIT_CARD"},
		{"unknown booking", f.user.ID, func(r *models.InitializePaymentRequest) { r.BookingID = primitive.NewObjectID().Hex() }, apperr.KindNotFound, "Booking not found"},
		{"malformed booking", f.user.ID, func(r *models.InitializePaymentRequest) { r.BookingID = "xyz" }, apperr.KindNotFound, "Booking not found"},
		{"other user", primitive.NewObjectID(), func(*models.InitializePaymentRequest) {}, apperr.KindForbidden, "Not authorized to make payment for this booking"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.initRequest(models.MethodUPI)
			tt.mutate(&req)
			_, err := f.svc.Initialize(ctx, tt.user, req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Equal(t, tt.message, apperr.MessageOf(err, ""))
		})
	}
}

func TestService_Initialize_CancelledBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Bookings.UpdateStatus(ctx, f.booking.ID, models.BookingPending, models.BookingCancelled)
	require.NoError(t, err)

	_, err = f.svc.Initialize(ctx, f.user.ID, f.initRequest(models.MethodUPI))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestService_Process_Card(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Initialize(ctx, f.user.ID, f.initRequest(models.MethodDebitCard))
	require.NoError(t, err)

	processed, err := f.svc.Process(ctx, payment.ID.Hex(), f.user.ID, cardDetails())
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, processed.Status)
	require.NotNil(t, processed.PaymentDetails)
	assert.Equal(t, "1234", processed.PaymentDetails.CardLastFour)
	assert.Equal(t, "First Bank", processed.PaymentDetails.BankName)
	assert.Empty(t, processed.PaymentDetails.UpiID)

	b, err := f.store.Bookings.FindByID(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, b.Status)
	assert.Equal(t, models.PaymentCompleted, b.PaymentStatus)
	assert.Equal(t, payment.TransactionID, b.PaymentID)

	car, err := f.store.Cars.FindByID(ctx, f.car.ID)
	require.NoError(t, err)
	assert.False(t, car.Available)

	assert.True(t, f.rec.has(events.PaymentCompleted))
	assert.True(t, f.rec.has(events.BookingConfirmed))

	_, err = f.svc.Process(ctx, payment.ID.Hex(), f.user.ID, cardDetails())
	require.Error(t, err)
	assert.Equal(t, "Payment has already been processed", apperr.MessageOf(err, ""))
}

func TestService_Process_UPI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Initialize(ctx, f.user.ID, f.initRequest(models.MethodUPI))
	require.NoError(t, err)

	_, err = f.svc.Process(ctx, payment.ID.Hex(), f.user.ID, models.CardOrUPIDetails{})
	require.Error(t, err)
	assert.Equal(t, "Please provide UPI ID", apperr.MessageOf(err, ""))

	stored, err := f.store.Payments.FindByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.Status)

	processed, err := f.svc.Process(ctx, payment.ID.Hex(), f.user.ID, models.CardOrUPIDetails{UpiID: "payer@upi"})
	require.NoError(t, err)
	assert.Equal(t, "payer@upi", processed.PaymentDetails.UpiID)
}

func TestService_Process_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Initialize(ctx, f.user.ID, f.initRequest(models.MethodCreditCard))
	require.NoError(t, err)

	_, err = f.svc.Process(ctx, payment.ID.Hex(), primitive.NewObjectID(), cardDetails())
	assert.Equal(t, "Not authorized to process this payment", apperr.MessageOf(err, ""))

	_, err = f.svc.Process(ctx, primitive.NewObjectID().Hex(), f.user.ID, cardDetails())
	assert.Equal(t, "Payment not found", apperr.MessageOf(err, ""))

	incomplete := cardDetails()
	incomplete.CVV = ""
	_, err = f.svc.Process(ctx, payment.ID.Hex(), f.user.ID, incomplete)
	assert.Equal(t, "Please provide all card details", apperr.MessageOf(err, ""))

	_, err = f.store.Bookings.UpdateStatus(ctx, f.booking.ID, models.BookingPending, models.BookingCancelled)
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, payment.ID.Hex(), f.user.ID, cardDetails())
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestService_Process_StoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Initialize(ctx, f.user.ID, f.initRequest(models.MethodCreditCard))
	require.NoError(t, err)

	f.store.Tx.Err = errors.New("write conflict")
	_, err = f.svc.Process(ctx, payment.ID.Hex(), f.user.ID, cardDetails())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.Equal(t, "Error processing payment", apperr.MessageOf(err, ""))
}

func TestService_Refund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Initialize(ctx, f.user.ID, f.initRequest(models.MethodCreditCard))
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, payment.ID.Hex(), f.user.ID, "plans changed")
	assert.Equal(t, "Only completed payments can be refunded", apperr.MessageOf(err, ""))

	_, err = f.svc.Process(ctx, payment.ID.Hex(), f.user.ID, cardDetails())
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, payment.ID.Hex(), primitive.NewObjectID(), "")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	refunded, err := f.svc.Refund(ctx, payment.ID.Hex(), f.user.ID, " plans changed ")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundDetails)
	assert.Equal(t, 195.0, refunded.RefundDetails.RefundAmount)
	assert.Equal(t, "plans changed", refunded.RefundDetails.Reason)
	assert.Regexp(t, `^RFD\d+[A-Z0-9]{6}$`, refunded.RefundDetails.RefundID)

	b, err := f.store.Bookings.FindByID(ctx, f.booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, b.PaymentStatus)
	assert.Equal(t, models.BookingConfirmed, b.Status)
	assert.True(t, f.rec.has(events.PaymentRefunded))

	_, err = f.svc.Refund(ctx, payment.ID.Hex(), f.user.ID, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestService_GetAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payment, err := f.svc.Initialize(ctx, f.user.ID, f.initRequest(models.MethodUPI))
	require.NoError(t, err)

	detail, err := f.svc.Get(ctx, payment.ID.Hex(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, detail.ID)
	require.NotNil(t, detail.Booking)
	assert.Equal(t, f.booking.ID, detail.Booking.ID)
	require.NotNil(t, detail.Booking.Car)
	assert.Equal(t, "Model 3", detail.Booking.Car.Name)
	require.NotNil(t, detail.User)
	assert.Equal(t, "payer@example.com", detail.User.Email)

	_, err = f.svc.Get(ctx, payment.ID.Hex(), primitive.NewObjectID())
	assert.Equal(t, "Not authorized to view this payment", apperr.MessageOf(err, ""))

	history, err := f.svc.History(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, payment.ID, history[0].ID)
	require.NotNil(t, history[0].Booking)

	empty, err := f.svc.History(ctx, primitive.NewObjectID())
	require.NoError(t, err)
	assert.Empty(t, empty)

	f.store.Payments.Err = errors.New("socket closed")
	_, err = f.svc.History(ctx, f.user.ID)
	assert.Equal(t, "Error fetching payment history", apperr.MessageOf(err, ""))
}
