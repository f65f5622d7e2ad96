package booking

import (
	"math"
	"time"

	"github.com/ukydev/car-rental/internal/models"
)

const millisPerDay = 24 * 60 * 60 * 1000

// Pricing holds the per-day surcharges applied on top of the car's rate.
type Pricing struct {
	InsurancePerDay   float64
	ExtraDriverPerDay float64
}

// DefaultPricing is 10 per day for insurance and 5 per extra driver per day.
func DefaultPricing() Pricing {
	return Pricing{InsurancePerDay: 10, ExtraDriverPerDay: 5}
}

// Days is the number of started days between start and end.
func Days(start, end time.Time) int {
	ms := end.Sub(start).Milliseconds()
	return int(math.Ceil(float64(ms) / millisPerDay))
}

// Quote itemises the price of renting car for days.
func (p Pricing) Quote(car *models.Car, days int, insurance bool, additionalDrivers int) models.Quote {
	q := models.Quote{
		CarID:      car.ID,
		TotalDays:  days,
		BaseAmount: car.PricePerDay * float64(days),
	}
	if insurance {
		q.InsuranceAmount = p.InsurancePerDay * float64(days)
	}
	if additionalDrivers > 0 {
		q.ExtraDriverAmount = p.ExtraDriverPerDay * float64(additionalDrivers*days)
	}
	q.TotalAmount = q.BaseAmount + q.InsuranceAmount + q.ExtraDriverAmount
	return q
}

// Total returns the amount due for a booking.
func (p Pricing) Total(pricePerDay float64, days int, insurance bool, additionalDrivers int) float64 {
	return p.Quote(&models.Car{PricePerDay: pricePerDay}, days, insurance, additionalDrivers).TotalAmount
}
