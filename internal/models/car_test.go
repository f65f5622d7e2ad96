package models

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCar_RecomputeAverage(t *testing.T) {
	tests := []struct {
		name     string
		scores   []int
		expected float64
	}{
		{"no ratings", nil, 0},
		{"single rating", []int{4}, 4},
		{"mean of several", []int{5, 4, 3}, 4},
		{"fractional mean", []int{5, 4}, 4.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			car := &Car{AverageRating: 2}
			for _, s := range tt.scores {
				car.Ratings = append(car.Ratings, Rating{User: primitive.NewObjectID(), Rating: s})
			}
			car.RecomputeAverage()
			if car.AverageRating != tt.expected {
				t.Errorf("AverageRating = %v, want %v", car.AverageRating, tt.expected)
			}
		})
	}
}

func TestCar_HasRatingFrom(t *testing.T) {
	rater := primitive.NewObjectID()
	car := &Car{Ratings: []Rating{{User: rater, Rating: 5}}}

	if !car.HasRatingFrom(rater) {
		t.Error("expected existing rater to be found")
	}
	if car.HasRatingFrom(primitive.NewObjectID()) {
		t.Error("unexpected rater found")
	}
}

func TestEnumHelpers(t *testing.T) {
	if !IsValidFuelType(FuelHybrid) || IsValidFuelType("Steam") {
		t.Error("fuel type validation wrong")
	}
	if !IsValidTransmission(TransmissionAutomatic) || IsValidTransmission("CVT") {
		t.Error("transmission validation wrong")
	}
	if !IsValidPaymentMethod(MethodUPI) || !IsValidPaymentMethod(MethodDebitCard) || IsValidPaymentMethod("CASH") {
		t.Error("payment method validation wrong")
	}
	if MethodUPI.IsCard() || !MethodCreditCard.IsCard() {
		t.Error("IsCard wrong")
	}
}

func TestBookingStatus_Active(t *testing.T) {
	tests := map[BookingStatus]bool{
		BookingPending:   true,
		BookingConfirmed: true,
		BookingCancelled: false,
		BookingCompleted: false,
	}
	for status, want := range tests {
		if got := status.Active(); got != want {
			t.Errorf("%s.Active() = %v, want %v", status, got, want)
		}
	}
}
