package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BookingStatus is the lifecycle state of a reservation.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// Active reports whether the status blocks the car for its date range.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

// ActiveBookingStatuses lists the statuses that take part in overlap detection.
var ActiveBookingStatuses = []BookingStatus{BookingPending, BookingConfirmed}

// PaymentStatus is shared by bookings (as a mirror) and payments.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Booking is a reservation of one car by one user over a date range.
type Booking struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID            primitive.ObjectID `bson:"user_id" json:"userId"`
	CarID             primitive.ObjectID `bson:"car_id" json:"carId"`
	StartDate         time.Time          `bson:"start_date" json:"startDate"`
	EndDate           time.Time          `bson:"end_date" json:"endDate"`
	TotalDays         int                `bson:"total_days" json:"totalDays"`
	TotalAmount       float64            `bson:"total_amount" json:"totalAmount"`
	Status            BookingStatus      `bson:"status" json:"status"`
	PaymentStatus     PaymentStatus      `bson:"payment_status" json:"paymentStatus"`
	PickupLocation    string             `bson:"pickup_location" json:"pickupLocation"`
	DropoffLocation   string             `bson:"dropoff_location" json:"dropoffLocation"`
	AdditionalDrivers int                `bson:"additional_drivers" json:"additionalDrivers"`
	Insurance         bool               `bson:"insurance" json:"insurance"`
	SpecialRequests   string             `bson:"special_requests,omitempty" json:"specialRequests,omitempty"`
	PaymentID         string             `bson:"payment_id,omitempty" json:"paymentId,omitempty"`
	CreatedAt         time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updatedAt"`
}

// BookingRequest is the payload for creating a booking.
type BookingRequest struct {
	CarID             string     `json:"carId"`
	StartDate         *time.Time `json:"startDate"`
	EndDate           *time.Time `json:"endDate"`
	PickupLocation    string     `json:"pickupLocation"`
	DropoffLocation   string     `json:"dropoffLocation"`
	AdditionalDrivers int        `json:"additionalDrivers,omitempty"`
	Insurance         bool       `json:"insurance,omitempty"`
	SpecialRequests   string     `json:"specialRequests,omitempty"`
}

// StatusUpdateRequest is the payload of PATCH /bookings/{id}/status.
type StatusUpdateRequest struct {
	Status BookingStatus `json:"status"`
}

// BookingDetail is a booking with its car and renter populated.
type BookingDetail struct {
	Booking
	Car  *Car     `json:"car,omitempty"`
	User *UserRef `json:"user,omitempty"`
}

// BookingSummary is a booking with a short car reference, used in listings.
type BookingSummary struct {
	Booking
	Car *CarRef `json:"car,omitempty"`
}

// Quote is a price preview for a prospective booking.
type Quote struct {
	CarID             primitive.ObjectID `json:"carId"`
	TotalDays         int                `json:"totalDays"`
	BaseAmount        float64            `json:"baseAmount"`
	InsuranceAmount   float64            `json:"insuranceAmount"`
	ExtraDriverAmount float64            `json:"extraDriverAmount"`
	TotalAmount       float64            `json:"totalAmount"`
}
