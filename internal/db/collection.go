package db

import (
	"context"
	"errors"
	"time"

	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when no document matches the lookup or the
	// guarded update.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicate is returned when a unique index rejects a write.
	ErrDuplicate = errors.New("duplicate document")

	errNilCollection = errors.New("mongo collection is nil")
)

// UserCollection defines the interface for user database operations.
type UserCollection interface {
	Insert(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error)
	Update(ctx context.Context, id primitive.ObjectID, update models.ProfileUpdate) (*models.User, error)
	AddBooking(ctx context.Context, userID, bookingID primitive.ObjectID) error
}

// CarCollection defines the interface for catalog operations.
type CarCollection interface {
	Insert(ctx context.Context, car *models.Car) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Car, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Car, error)
	Find(ctx context.Context, filter CarFilter) ([]models.Car, error)
	Update(ctx context.Context, car *models.Car) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	SetAvailability(ctx context.Context, id primitive.ObjectID, available bool) error
	// AddRating appends rating unless its user already rated the car, and
	// returns the car with the recomputed average. ErrDuplicate signals a
	// second rating from the same user.
	AddRating(ctx context.Context, id primitive.ObjectID, rating models.Rating) (*models.Car, error)
	// TouchForBooking writes the car document so that two transactions
	// booking the same car conflict with each other.
	TouchForBooking(ctx context.Context, id primitive.ObjectID) error
}

// BookingCollection defines the interface for booking operations.
type BookingCollection interface {
	Insert(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error)
	FindByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Booking, error)
	// FindOverlapping returns active bookings of carID whose range
	// intersects [start, end], bounds inclusive.
	FindOverlapping(ctx context.Context, carID primitive.ObjectID, start, end time.Time) ([]models.Booking, error)
	CountActiveForCar(ctx context.Context, carID primitive.ObjectID) (int64, error)
	// UpdateStatus moves a booking from one status to another. ErrNotFound
	// means no booking with that id is currently in status from.
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.BookingStatus) (*models.Booking, error)
	MarkPaid(ctx context.Context, id primitive.ObjectID, paymentID string) (*models.Booking, error)
	SetPaymentStatus(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus) error
}

// PaymentCollection defines the interface for payment operations.
type PaymentCollection interface {
	Insert(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error)
	FindByBooking(ctx context.Context, bookingID primitive.ObjectID) (*models.Payment, error)
	FindByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Payment, error)
	// Update persists status and details of payment if it is still in
	// status from.
	Update(ctx context.Context, payment *models.Payment, from models.PaymentStatus) error
}

// TxRunner runs fn atomically. Collections used inside fn must be called
// with the context fn receives.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store groups the collections a service needs.
type Store struct {
	Users    UserCollection
	Cars     CarCollection
	Bookings BookingCollection
	Payments PaymentCollection
	Tx       TxRunner
}
