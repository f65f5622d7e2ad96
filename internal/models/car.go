package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FuelType is the closed set of fuel types a car may have.
type FuelType string

const (
	FuelPetrol   FuelType = "Petrol"
	FuelDiesel   FuelType = "Diesel"
	FuelElectric FuelType = "Electric"
	FuelHybrid   FuelType = "Hybrid"
)

// Transmission is the closed set of gearbox types.
type Transmission string

const (
	TransmissionManual    Transmission = "Manual"
	TransmissionAutomatic Transmission = "Automatic"
)

// Car represents a rentable catalog entry.
type Car struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Brand         string             `bson:"brand" json:"brand"`
	Model         string             `bson:"model" json:"model"`
	Year          int                `bson:"year" json:"year"`
	Color         string             `bson:"color" json:"color"`
	FuelType      FuelType           `bson:"fuel_type" json:"fuelType"`
	Transmission  Transmission       `bson:"transmission" json:"transmission"`
	PricePerDay   float64            `bson:"price_per_day" json:"pricePerDay"`
	Seats         int                `bson:"seats" json:"seats"`
	Images        []string           `bson:"images" json:"images"`
	Features      []string           `bson:"features" json:"features"`
	Available     bool               `bson:"available" json:"available"`
	Location      string             `bson:"location" json:"location"`
	Ratings       []Rating           `bson:"ratings" json:"ratings,omitempty"`
	AverageRating float64            `bson:"average_rating" json:"averageRating"`
	BookingSeq    int64              `bson:"booking_seq" json:"-"`
	CreatedAt     time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updatedAt"`
}

// Rating is one user's score for a car.
type Rating struct {
	User     primitive.ObjectID `bson:"user" json:"user"`
	UserName string             `bson:"-" json:"userName,omitempty"`
	Rating   int                `bson:"rating" json:"rating"`
	Review   string             `bson:"review,omitempty" json:"review,omitempty"`
}

// CarRef is the subset of a car embedded in bookings and payment history.
type CarRef struct {
	ID     primitive.ObjectID `json:"id"`
	Name   string             `json:"name"`
	Brand  string             `json:"brand"`
	Model  string             `json:"model"`
	Images []string           `json:"images,omitempty"`
}

// Ref returns the embedded reference for the car.
func (c *Car) Ref() CarRef {
	return CarRef{ID: c.ID, Name: c.Name, Brand: c.Brand, Model: c.Model, Images: c.Images}
}

// RecomputeAverage sets AverageRating to the mean of all ratings.
func (c *Car) RecomputeAverage() {
	if len(c.Ratings) == 0 {
		c.AverageRating = 0
		return
	}
	sum := 0
	for _, r := range c.Ratings {
		sum += r.Rating
	}
	c.AverageRating = float64(sum) / float64(len(c.Ratings))
}

// HasRatingFrom reports whether userID already rated the car.
func (c *Car) HasRatingFrom(userID primitive.ObjectID) bool {
	for _, r := range c.Ratings {
		if r.User == userID {
			return true
		}
	}
	return false
}

// CarInput is the create/update payload. Nil fields are left unchanged on update.
type CarInput struct {
	Name         *string       `json:"name,omitempty"`
	Brand        *string       `json:"brand,omitempty"`
	Model        *string       `json:"model,omitempty"`
	Year         *int          `json:"year,omitempty"`
	Color        *string       `json:"color,omitempty"`
	FuelType     *FuelType     `json:"fuelType,omitempty"`
	Transmission *Transmission `json:"transmission,omitempty"`
	PricePerDay  *float64      `json:"pricePerDay,omitempty"`
	Seats        *int          `json:"seats,omitempty"`
	Images       []string      `json:"images,omitempty"`
	Features     []string      `json:"features,omitempty"`
	Available    *bool         `json:"available,omitempty"`
	Location     *string       `json:"location,omitempty"`
}

// RatingRequest is the body of a rating submission.
type RatingRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review,omitempty"`
}

// IsValidFuelType checks fuel type membership.
func IsValidFuelType(f FuelType) bool {
	switch f {
	case FuelPetrol, FuelDiesel, FuelElectric, FuelHybrid:
		return true
	}
	return false
}

// IsValidTransmission checks transmission membership.
func IsValidTransmission(t Transmission) bool {
	return t == TransmissionManual || t == TransmissionAutomatic
}
