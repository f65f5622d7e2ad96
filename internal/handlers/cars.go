package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/car-rental/internal/apperr"
	"github.com/ukydev/car-rental/internal/catalog"
	"github.com/ukydev/car-rental/internal/db"
	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CarService is the catalog as the HTTP layer uses it.
type CarService interface {
	List(ctx context.Context, filter db.CarFilter) ([]models.Car, error)
	Get(ctx context.Context, id string) (*models.Car, error)
	Create(ctx context.Context, in models.CarInput) (*models.Car, error)
	Update(ctx context.Context, id string, in models.CarInput) (*models.Car, error)
	Delete(ctx context.Context, id string) error
	Rate(ctx context.Context, carID string, userID primitive.ObjectID, req models.RatingRequest) (*models.Car, error)
}

// Quoter prices a prospective booking.
type Quoter interface {
	Quote(ctx context.Context, carID string, start, end time.Time, insurance bool, additionalDrivers int) (*models.Quote, error)
}

// CarHandler serves the vehicle catalog
type CarHandler struct {
	responder
	cars   CarService
	quotes Quoter
}

// NewCarHandler creates a new car handler
func NewCarHandler(cars CarService, quotes Quoter, logger *log.Logger) *CarHandler {
	return &CarHandler{responder: responder{logger: logger}, cars: cars, quotes: quotes}
}

// List returns cars matching the query filters
func (h *CarHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := catalog.ParseFilter(r.URL.Query())
	if err != nil {
		h.fail(w, r, err, "Error fetching cars")
		return
	}
	cars, err := h.cars.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err, "Error fetching cars")
		return
	}
	h.list(w, cars, len(cars))
}

// Get returns one car with rater names
func (h *CarHandler) Get(w http.ResponseWriter, r *http.Request) {
	car, err := h.cars.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err, "Error fetching car")
		return
	}
	h.ok(w, http.StatusOK, car)
}

// Create adds a car to the catalog
func (h *CarHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.CarInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err, "Error creating car")
		return
	}
	car, err := h.cars.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err, "Error creating car")
		return
	}
	h.ok(w, http.StatusCreated, car)
}

// Update changes the fields present in the body
func (h *CarHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in models.CarInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err, "Error updating car")
		return
	}
	car, err := h.cars.Update(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		h.fail(w, r, err, "Error updating car")
		return
	}
	h.ok(w, http.StatusOK, car)
}

// Delete removes a car without active bookings
func (h *CarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.cars.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err, "Error deleting car")
		return
	}
	h.message(w, http.StatusOK, "Car deleted successfully")
}

// Rate records the caller's single rating of a car
func (h *CarHandler) Rate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUserID(r)
	if err != nil {
		h.fail(w, r, err, "Error adding rating")
		return
	}
	var req models.RatingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err, "Error adding rating")
		return
	}
	car, err := h.cars.Rate(r.Context(), mux.Vars(r)["id"], userID, req)
	if err != nil {
		h.fail(w, r, err, "Error adding rating")
		return
	}
	h.ok(w, http.StatusOK, car)
}

// Quote prices a rental from the startDate, endDate, insurance and
// additionalDrivers query parameters.
func (h *CarHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseTime(q.Get("startDate"))
	if err != nil {
		h.fail(w, r, err, "Error calculating quote")
		return
	}
	end, err := parseTime(q.Get("endDate"))
	if err != nil {
		h.fail(w, r, err, "Error calculating quote")
		return
	}

	insurance := false
	if v := q.Get("insurance"); v != "" {
		insurance, err = strconv.ParseBool(v)
		if err != nil {
			h.fail(w, r, apperr.Validation("insurance must be true or false"), "Error calculating quote")
			return
		}
	}
	drivers := 0
	if v := q.Get("additionalDrivers"); v != "" {
		drivers, err = strconv.Atoi(v)
		if err != nil {
			h.fail(w, r, apperr.Validation("additionalDrivers must be a whole number"), "Error calculating quote")
			return
		}
	}

	quote, err := h.quotes.Quote(r.Context(), mux.Vars(r)["id"], start, end, insurance, drivers)
	if err != nil {
		h.fail(w, r, err, "Error calculating quote")
		return
	}
	h.ok(w, http.StatusOK, quote)
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, apperr.Validation("Please provide start and end dates")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation("Dates must be RFC 3339 timestamps or YYYY-MM-DD")
}
