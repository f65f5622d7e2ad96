package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PaymentMethod is the closed set of accepted payment methods.
type PaymentMethod string

const (
	MethodUPI        PaymentMethod = "UPI"
	MethodCreditCard PaymentMethod = "CREDIT_CARD"
	MethodDebitCard  PaymentMethod = "DEBIT_CARD"
)

// IsCard reports whether the method settles against a card.
func (m PaymentMethod) IsCard() bool {
	return m == MethodCreditCard || m == MethodDebitCard
}

// IsValidPaymentMethod checks method membership.
func IsValidPaymentMethod(m PaymentMethod) bool {
	return m == MethodUPI || m.IsCard()
}

// Payment settles exactly one booking.
type Payment struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BookingID      primitive.ObjectID `bson:"booking_id" json:"bookingId"`
	UserID         primitive.ObjectID `bson:"user_id" json:"userId"`
	Amount         float64            `bson:"amount" json:"amount"`
	PaymentMethod  PaymentMethod      `bson:"payment_method" json:"paymentMethod"`
	Status         PaymentStatus      `bson:"status" json:"status"`
	TransactionID  string             `bson:"transaction_id" json:"transactionId"`
	PaymentDetails *PaymentDetails    `bson:"payment_details,omitempty" json:"paymentDetails,omitempty"`
	RefundDetails  *RefundDetails     `bson:"refund_details,omitempty" json:"refundDetails,omitempty"`
	Billing        Billing            `bson:"billing" json:"billing"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updatedAt"`
}

// PaymentDetails keeps only non-sensitive traces of the instrument used.
type PaymentDetails struct {
	CardLastFour string `bson:"card_last_four,omitempty" json:"cardLastFour,omitempty"`
	UpiID        string `bson:"upi_id,omitempty" json:"upiId,omitempty"`
	BankName     string `bson:"bank_name,omitempty" json:"bankName,omitempty"`
}

// RefundDetails records a refund of a completed payment.
type RefundDetails struct {
	RefundID     string    `bson:"refund_id" json:"refundId"`
	RefundDate   time.Time `bson:"refund_date" json:"refundDate"`
	RefundAmount float64   `bson:"refund_amount" json:"refundAmount"`
	Reason       string    `bson:"reason,omitempty" json:"reason,omitempty"`
}

// Billing is the payer snapshot captured at initialization.
type Billing struct {
	Name    string   `bson:"name" json:"name"`
	Email   string   `bson:"email" json:"email"`
	Phone   string   `bson:"phone" json:"phone"`
	Address *Address `bson:"address,omitempty" json:"address,omitempty"`
}

// Address is a postal address.
type Address struct {
	Street  string `bson:"street,omitempty" json:"street,omitempty"`
	City    string `bson:"city,omitempty" json:"city,omitempty"`
	State   string `bson:"state,omitempty" json:"state,omitempty"`
	ZipCode string `bson:"zip_code,omitempty" json:"zipCode,omitempty"`
	Country string `bson:"country,omitempty" json:"country,omitempty"`
}

// InitializePaymentRequest is the body of POST /payments/initialize.
type InitializePaymentRequest struct {
	BookingID      string        `json:"bookingId"`
	PaymentMethod  PaymentMethod `json:"paymentMethod"`
	BillingDetails *Billing      `json:"billingDetails"`
	TransactionID  string        `json:"transactionId,omitempty"`
}

// CardOrUPIDetails are the raw method fields submitted when processing.
type CardOrUPIDetails struct {
	CardNumber string `json:"cardNumber,omitempty"`
	ExpiryDate string `json:"expiryDate,omitempty"`
	CVV        string `json:"cvv,omitempty"`
	UpiID      string `json:"upiId,omitempty"`
	BankName   string `json:"bankName,omitempty"`
}

// ProcessPaymentRequest is the body of POST /payments/process/{id}.
type ProcessPaymentRequest struct {
	PaymentDetails CardOrUPIDetails `json:"paymentDetails"`
}

// RefundRequest is the body of POST /payments/{id}/refund.
type RefundRequest struct {
	Reason string `json:"reason,omitempty"`
}

// PaymentDetail is a payment with its booking (and the booking's car) populated.
type PaymentDetail struct {
	Payment
	Booking *BookingSummary `json:"booking,omitempty"`
	User    *UserRef        `json:"user,omitempty"`
}
