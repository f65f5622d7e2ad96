// Package catalog manages the rentable cars and their ratings.
package catalog

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/car-rental/internal/apperr"
	"github.com/ukydev/car-rental/internal/db"
	"github.com/ukydev/car-rental/internal/events"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	msgCarNotFound   = "Car not found"
	msgAlreadyRated  = "You have already rated this car"
	msgInvalidRating = "Rating must be between 1 and 5"
	minCarYear       = 1886
)

// Service implements catalog operations.
type Service struct {
	cars     db.CarCollection
	users    db.UserCollection
	bookings db.BookingCollection
	events   events.Publisher
	logger   *log.Logger
}

// NewService creates a catalog service backed by store.
func NewService(store *db.Store, publisher events.Publisher, logger *log.Logger) *Service {
	return &Service{
		cars:     store.Cars,
		users:    store.Users,
		bookings: store.Bookings,
		events:   publisher,
		logger:   logger,
	}
}

// List returns the cars matching filter, newest first, without ratings.
func (s *Service) List(ctx context.Context, filter db.CarFilter) ([]models.Car, error) {
	cars, err := s.cars.Find(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("Error fetching cars", err)
	}
	return cars, nil
}

// Get returns a car with its ratings and the names of the raters.
func (s *Service) Get(ctx context.Context, id string) (*models.Car, error) {
	car, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(car.Ratings) == 0 {
		return car, nil
	}

	ids := make([]primitive.ObjectID, 0, len(car.Ratings))
	for _, r := range car.Ratings {
		ids = append(ids, r.User)
	}
	raters, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("Error fetching car", err)
	}
	for i := range car.Ratings {
		if u, ok := raters[car.Ratings[i].User]; ok {
			car.Ratings[i].UserName = u.Name
		}
	}
	return car, nil
}

// Create validates and stores a new car. Fuel type and transmission default
// to Petrol and Manual, availability to true.
func (s *Service) Create(ctx context.Context, in models.CarInput) (*models.Car, error) {
	car := &models.Car{
		FuelType:     models.FuelPetrol,
		Transmission: models.TransmissionManual,
		Available:    true,
	}
	apply(car, in)
	if err := Validate(car); err != nil {
		return nil, err
	}
	if err := s.cars.Insert(ctx, car); err != nil {
		return nil, apperr.Internal("Error creating car", err)
	}
	s.logger.WithFields(log.Fields{"car_id": car.ID.Hex(), "brand": car.Brand}).Info("Car created")
	return car, nil
}

// Update applies the non-nil fields of in and re-validates the result.
func (s *Service) Update(ctx context.Context, id string, in models.CarInput) (*models.Car, error) {
	car, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	wasAvailable := car.Available
	apply(car, in)
	if err := Validate(car); err != nil {
		return nil, err
	}
	if err := s.cars.Update(ctx, car); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFound(msgCarNotFound)
		}
		return nil, apperr.Internal("Error updating car", err)
	}
	if wasAvailable != car.Available {
		available := car.Available
		events.Emit(ctx, s.events, s.logger, events.Event{
			Type:      events.CarAvailability,
			CarID:     car.ID.Hex(),
			Available: &available,
		})
	}
	return car, nil
}

// Delete removes a car that has no pending or confirmed bookings.
func (s *Service) Delete(ctx context.Context, id string) error {
	car, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	active, err := s.bookings.CountActiveForCar(ctx, car.ID)
	if err != nil {
		return apperr.Internal("Error deleting car", err)
	}
	if active > 0 {
		return apperr.Conflict("Car has active bookings and cannot be deleted")
	}
	if err := s.cars.Delete(ctx, car.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound(msgCarNotFound)
		}
		return apperr.Internal("Error deleting car", err)
	}
	s.logger.WithField("car_id", car.ID.Hex()).Info("Car deleted")
	return nil
}

// Rate records userID's score for a car. A user may rate a car only once.
func (s *Service) Rate(ctx context.Context, carID string, userID primitive.ObjectID, req models.RatingRequest) (*models.Car, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, apperr.Validation(msgInvalidRating)
	}
	id, err := primitive.ObjectIDFromHex(carID)
	if err != nil {
		return nil, apperr.NotFound(msgCarNotFound)
	}

	car, err := s.cars.AddRating(ctx, id, models.Rating{
		User:   userID,
		Rating: req.Rating,
		Review: strings.TrimSpace(req.Review),
	})
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, apperr.NotFound(msgCarNotFound)
	case errors.Is(err, db.ErrDuplicate):
		return nil, apperr.Conflict(msgAlreadyRated)
	case err != nil:
		return nil, apperr.Internal("Error adding rating", err)
	}

	events.Emit(ctx, s.events, s.logger, events.Event{
		Type:   events.CarRated,
		CarID:  car.ID.Hex(),
		UserID: userID.Hex(),
	})
	return car, nil
}

func (s *Service) find(ctx context.Context, id string) (*models.Car, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.NotFound(msgCarNotFound)
	}
	car, err := s.cars.FindByID(ctx, oid)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound(msgCarNotFound)
	}
	if err != nil {
		return nil, apperr.Internal("Error fetching car", err)
	}
	return car, nil
}

func apply(car *models.Car, in models.CarInput) {
	if in.Name != nil {
		car.Name = strings.TrimSpace(*in.Name)
	}
	if in.Brand != nil {
		car.Brand = strings.TrimSpace(*in.Brand)
	}
	if in.Model != nil {
		car.Model = strings.TrimSpace(*in.Model)
	}
	if in.Year != nil {
		car.Year = *in.Year
	}
	if in.Color != nil {
		car.Color = strings.TrimSpace(*in.Color)
	}
	if in.FuelType != nil {
		car.FuelType = *in.FuelType
	}
	if in.Transmission != nil {
		car.Transmission = *in.Transmission
	}
	if in.PricePerDay != nil {
		car.PricePerDay = *in.PricePerDay
	}
	if in.Seats != nil {
		car.Seats = *in.Seats
	}
	if in.Images != nil {
		car.Images = in.Images
	}
	if in.Features != nil {
		features := make([]string, 0, len(in.Features))
		for _, f := range in.Features {
			if f = strings.TrimSpace(f); f != "" {
				features = append(features, f)
			}
		}
		car.Features = features
	}
	if in.Available != nil {
		car.Available = *in.Available
	}
	if in.Location != nil {
		car.Location = strings.TrimSpace(*in.Location)
	}
}

// Validate checks the catalog invariants of a car.
func Validate(car *models.Car) error {
	switch {
	case car.Name == "":
		return apperr.Validation("Car name is required")
	case car.Brand == "":
		return apperr.Validation("Brand is required")
	case car.Model == "":
		return apperr.Validation("Model is required")
	case car.Year == 0:
		return apperr.Validation("Year is required")
	case car.Year < minCarYear:
		return apperr.Validation("Year must be 1886 or later")
	case car.Color == "":
		return apperr.Validation("Color is required")
	case !models.IsValidFuelType(car.FuelType):
		return apperr.Validation("Fuel type must be one of Petrol, Diesel, Electric, Hybrid")
	case !models.IsValidTransmission(car.Transmission):
		return apperr.Validation("Transmission must be Manual or Automatic")
	case car.PricePerDay < 0:
		return apperr.Validation("Price cannot be negative")
	case car.Seats < 2:
		return apperr.Validation("Car must have at least 2 seats")
	case len(car.Images) == 0:
		return apperr.Validation("At least one image is required")
	case car.Location == "":
		return apperr.Validation("Location is required")
	}
	for _, img := range car.Images {
		if strings.TrimSpace(img) == "" {
			return apperr.Validation("At least one image is required")
		}
	}
	return nil
}

// ParseFilter reads listing filters from query parameters. Unparseable
// numbers are reported as validation errors.
func ParseFilter(q url.Values) (db.CarFilter, error) {
	f := db.CarFilter{
		Color:        strings.TrimSpace(q.Get("color")),
		FuelType:     models.FuelType(q.Get("fuelType")),
		Transmission: models.Transmission(q.Get("transmission")),
		Brand:        strings.TrimSpace(q.Get("brand")),
	}
	if v := q.Get("seats"); v != "" {
		seats, err := strconv.Atoi(v)
		if err != nil {
			return f, apperr.Validation("seats must be a number")
		}
		f.Seats = seats
	}
	if v := q.Get("minPrice"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, apperr.Validation("minPrice must be a number")
		}
		f.MinPrice = &price
	}
	if v := q.Get("maxPrice"); v != "" {
		price, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, apperr.Validation("maxPrice must be a number")
		}
		f.MaxPrice = &price
	}
	if q.Has("available") {
		available := q.Get("available") == "true"
		f.Available = &available
	}
	return f, nil
}
