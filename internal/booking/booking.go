// Package booking implements the reservation workflow: creation with
// overlap detection, status transitions, and the vehicle availability
// cascade that follows each transition.
package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/car-rental/internal/apperr"
	"github.com/ukydev/car-rental/internal/db"
	"github.com/ukydev/car-rental/internal/events"
	"github.com/ukydev/car-rental/internal/metrics"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	msgBookingNotFound = "Booking not found"
	msgCarNotFound     = "Car not found"
	msgCarUnavailable  = "Car is not available for the selected dates"
	msgAlreadyBooked   = "Car is already booked for these dates"
	msgMissingDetails  = "Please provide all required booking details"
	msgStartInPast     = "Start date cannot be in the past"
	msgEndBeforeStart  = "End date must be after start date"
	msgInvalidStatus   = "Invalid status update request"
)

// Service implements the booking workflow.
type Service struct {
	users    db.UserCollection
	cars     db.CarCollection
	bookings db.BookingCollection
	tx       db.TxRunner
	pricing  Pricing
	events   events.Publisher
	logger   *log.Logger
	now      func() time.Time
}

// NewService creates a booking service backed by store.
func NewService(store *db.Store, pricing Pricing, publisher events.Publisher, logger *log.Logger) *Service {
	return &Service{
		users:    store.Users,
		cars:     store.Cars,
		bookings: store.Bookings,
		tx:       store.Tx,
		pricing:  pricing,
		events:   publisher,
		logger:   logger,
		now:      time.Now,
	}
}

// ValidateDates checks the requested range against the current time.
func (s *Service) ValidateDates(start, end time.Time) error {
	if start.Before(s.now()) {
		return apperr.Validation(msgStartInPast)
	}
	if !end.After(start) {
		return apperr.Validation(msgEndBeforeStart)
	}
	return nil
}

func (s *Service) validateRequest(req *models.BookingRequest) error {
	req.PickupLocation = strings.TrimSpace(req.PickupLocation)
	req.DropoffLocation = strings.TrimSpace(req.DropoffLocation)
	if req.CarID == "" || req.StartDate == nil || req.EndDate == nil ||
		req.PickupLocation == "" || req.DropoffLocation == "" {
		return apperr.Validation(msgMissingDetails)
	}
	if err := s.ValidateDates(*req.StartDate, *req.EndDate); err != nil {
		return err
	}
	if req.AdditionalDrivers < 0 {
		return apperr.Validation("Additional drivers cannot be negative")
	}
	return nil
}

// Create reserves a car for userID. The availability check, the overlap
// query and the insert run in one transaction that first writes the car,
// so concurrent reservations of the same car are serialised by the store.
func (s *Service) Create(ctx context.Context, userID primitive.ObjectID, req models.BookingRequest) (*models.Booking, error) {
	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}
	carID, err := primitive.ObjectIDFromHex(req.CarID)
	if err != nil {
		return nil, apperr.NotFound(msgCarNotFound)
	}
	start, end := req.StartDate.UTC(), req.EndDate.UTC()

	var created *models.Booking
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		car, err := s.cars.FindByID(ctx, carID)
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound(msgCarNotFound)
		}
		if err != nil {
			return err
		}
		if !car.Available {
			return apperr.Conflict(msgCarUnavailable)
		}
		if err := s.cars.TouchForBooking(ctx, carID); err != nil {
			return err
		}

		overlapping, err := s.bookings.FindOverlapping(ctx, carID, start, end)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return apperr.Conflict(msgAlreadyBooked)
		}

		days := Days(start, end)
		booking := &models.Booking{
			UserID:            userID,
			CarID:             carID,
			StartDate:         start,
			EndDate:           end,
			TotalDays:         days,
			TotalAmount:       s.pricing.Total(car.PricePerDay, days, req.Insurance, req.AdditionalDrivers),
			Status:            models.BookingPending,
			PaymentStatus:     models.PaymentPending,
			PickupLocation:    req.PickupLocation,
			DropoffLocation:   req.DropoffLocation,
			AdditionalDrivers: req.AdditionalDrivers,
			Insurance:         req.Insurance,
			SpecialRequests:   strings.TrimSpace(req.SpecialRequests),
		}
		if err := s.bookings.Insert(ctx, booking); err != nil {
			return err
		}
		if err := s.users.AddBooking(ctx, userID, booking.ID); err != nil {
			return err
		}
		created = booking
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			metrics.RecordBooking("conflict")
		}
		return nil, wrap(err, "Error creating booking")
	}

	metrics.RecordBooking("created")
	s.logger.WithFields(log.Fields{
		"booking_id": created.ID.Hex(),
		"car_id":     created.CarID.Hex(),
		"user_id":    userID.Hex(),
		"days":       created.TotalDays,
		"amount":     created.TotalAmount,
	}).Info("Booking created")
	s.emit(ctx, events.BookingCreated, created)
	return created, nil
}

// Quote prices a prospective booking without reserving anything.
func (s *Service) Quote(ctx context.Context, carID string, start, end time.Time, insurance bool, additionalDrivers int) (*models.Quote, error) {
	if err := s.ValidateDates(start, end); err != nil {
		return nil, err
	}
	if additionalDrivers < 0 {
		return nil, apperr.Validation("Additional drivers cannot be negative")
	}
	id, err := primitive.ObjectIDFromHex(carID)
	if err != nil {
		return nil, apperr.NotFound(msgCarNotFound)
	}
	car, err := s.cars.FindByID(ctx, id)
	if err != nil {
		return nil, wrap(notFound(err, msgCarNotFound), "Error fetching car")
	}
	q := s.pricing.Quote(car, Days(start, end), insurance, additionalDrivers)
	return &q, nil
}

// ListForUser returns a user's bookings, newest first, each with a short car reference.
func (s *Service) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.BookingSummary, error) {
	bookings, err := s.bookings.FindByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("Error fetching bookings", err)
	}
	return s.Summaries(ctx, bookings)
}

// Summaries attaches car references to bookings.
func (s *Service) Summaries(ctx context.Context, bookings []models.Booking) ([]models.BookingSummary, error) {
	ids := make([]primitive.ObjectID, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.CarID)
	}
	cars, err := s.cars.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("Error fetching bookings", err)
	}
	out := make([]models.BookingSummary, 0, len(bookings))
	for _, b := range bookings {
		summary := models.BookingSummary{Booking: b}
		if car, ok := cars[b.CarID]; ok {
			ref := car.Ref()
			summary.Car = &ref
		}
		out = append(out, summary)
	}
	return out, nil
}

// Get returns a booking owned by userID with its car and renter populated.
func (s *Service) Get(ctx context.Context, id string, userID primitive.ObjectID) (*models.BookingDetail, error) {
	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, apperr.Forbidden("Not authorized to access this booking")
	}

	detail := &models.BookingDetail{Booking: *booking}
	car, err := s.cars.FindByID(ctx, booking.CarID)
	switch {
	case err == nil:
		car.Ratings = nil
		detail.Car = car
	case !errors.Is(err, db.ErrNotFound):
		return nil, apperr.Internal("Error fetching booking", err)
	}
	user, err := s.users.FindByID(ctx, booking.UserID)
	switch {
	case err == nil:
		ref := user.Ref()
		detail.User = &ref
	case !errors.Is(err, db.ErrNotFound):
		return nil, apperr.Internal("Error fetching booking", err)
	}
	return detail, nil
}

// UpdateStatus applies an owner-requested transition. Owners may only
// cancel, and only a pending or confirmed booking.
func (s *Service) UpdateStatus(ctx context.Context, id string, userID primitive.ObjectID, status models.BookingStatus) (*models.Booking, error) {
	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, apperr.Forbidden("Not authorized to update this booking")
	}
	if status != models.BookingCancelled {
		return nil, apperr.Validation(msgInvalidStatus)
	}
	if !booking.Status.Active() {
		return nil, apperr.Validation("Only pending or confirmed bookings can be cancelled")
	}
	return s.transition(ctx, booking, models.BookingCancelled, "Error updating booking status")
}

// Complete closes a confirmed booking once the car has been returned.
func (s *Service) Complete(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingConfirmed {
		return nil, apperr.Validation("Only confirmed bookings can be completed")
	}
	return s.transition(ctx, booking, models.BookingCompleted, "Error completing booking")
}

func (s *Service) transition(ctx context.Context, booking *models.Booking, to models.BookingStatus, failMsg string) (*models.Booking, error) {
	var updated *models.Booking
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		b, err := s.bookings.UpdateStatus(ctx, booking.ID, booking.Status, to)
		if errors.Is(err, db.ErrNotFound) {
			return apperr.Conflict("Booking was modified by another request")
		}
		if err != nil {
			return err
		}
		if err := s.applyVehicleAvailability(ctx, b); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, wrap(err, failMsg)
	}
	s.logger.WithFields(log.Fields{
		"booking_id": updated.ID.Hex(),
		"from":       booking.Status,
		"to":         to,
	}).Info("Booking status changed")
	s.Announce(ctx, updated)
	return updated, nil
}

// Announce publishes the status a booking just reached, together with the
// availability change of its car. Call it once the transition is committed.
func (s *Service) Announce(ctx context.Context, b *models.Booking) {
	metrics.RecordBooking(string(b.Status))
	s.emit(ctx, "booking."+string(b.Status), b)
	if available, ok := availabilityFor(b.Status); ok {
		events.Emit(ctx, s.events, s.logger, events.Event{
			Type:      events.CarAvailability,
			CarID:     b.CarID.Hex(),
			BookingID: b.ID.Hex(),
			Available: &available,
		})
	}
}

// ConfirmPayment marks a booking paid and confirmed, and takes its car out
// of availability. It runs inside the caller's transaction; the caller
// announces the result after committing.
func (s *Service) ConfirmPayment(ctx context.Context, bookingID primitive.ObjectID, transactionID string) (*models.Booking, error) {
	booking, err := s.bookings.MarkPaid(ctx, bookingID, transactionID)
	if errors.Is(err, db.ErrNotFound) {
		if _, findErr := s.bookings.FindByID(ctx, bookingID); findErr == nil {
			return nil, apperr.Validation("Booking is no longer active")
		}
	}
	if err != nil {
		return nil, notFound(err, msgBookingNotFound)
	}
	if err := s.applyVehicleAvailability(ctx, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// MarkRefunded mirrors a refund onto the booking. The booking status and
// the car availability are left unchanged.
func (s *Service) MarkRefunded(ctx context.Context, bookingID primitive.ObjectID) error {
	if err := s.bookings.SetPaymentStatus(ctx, bookingID, models.PaymentRefunded); err != nil {
		return notFound(err, msgBookingNotFound)
	}
	return nil
}

// applyVehicleAvailability keeps the car's availability flag in step with
// the booking status it just reached.
func (s *Service) applyVehicleAvailability(ctx context.Context, booking *models.Booking) error {
	available, ok := availabilityFor(booking.Status)
	if !ok {
		return nil
	}
	err := s.cars.SetAvailability(ctx, booking.CarID, available)
	if errors.Is(err, db.ErrNotFound) {
		s.logger.WithField("car_id", booking.CarID.Hex()).Warn("Booked car no longer exists")
		return nil
	}
	return err
}

// availabilityFor reports the availability a car takes when one of its
// bookings reaches status, and whether status affects it at all.
func availabilityFor(status models.BookingStatus) (available, ok bool) {
	switch status {
	case models.BookingConfirmed:
		return false, true
	case models.BookingCancelled, models.BookingCompleted:
		return true, true
	}
	return false, false
}

func (s *Service) find(ctx context.Context, id string) (*models.Booking, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.NotFound(msgBookingNotFound)
	}
	booking, err := s.bookings.FindByID(ctx, oid)
	if err != nil {
		return nil, wrap(notFound(err, msgBookingNotFound), "Error fetching booking")
	}
	return booking, nil
}

func (s *Service) emit(ctx context.Context, eventType string, b *models.Booking) {
	events.Emit(ctx, s.events, s.logger, events.Event{
		Type:      eventType,
		BookingID: b.ID.Hex(),
		CarID:     b.CarID.Hex(),
		UserID:    b.UserID.Hex(),
		Status:    string(b.Status),
	})
}

// wrap leaves classified errors alone and hides anything else behind msg.
func wrap(err error, msg string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internal(msg, err)
}

func notFound(err error, msg string) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound(msg)
	}
	return err
}
