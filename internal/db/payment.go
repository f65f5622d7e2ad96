package db

import (
	"context"

	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPaymentCollection implements PaymentCollection for MongoDB.
type MongoPaymentCollection struct {
	Collection *mongo.Collection
}

// Insert inserts a payment and sets its generated ID. A second payment for
// the same booking, or a reused transaction id, yields ErrDuplicate.
func (c *MongoPaymentCollection) Insert(ctx context.Context, payment *models.Payment) error {
	if c.Collection == nil {
		return errNilCollection
	}
	payment.ID = primitive.NewObjectID()
	payment.CreatedAt = now()
	payment.UpdatedAt = payment.CreatedAt

	_, err := c.Collection.InsertOne(ctx, payment)
	return translate(err)
}

// FindByID finds a payment by its ID.
func (c *MongoPaymentCollection) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error) {
	return c.findOne(ctx, bson.M{"_id": id})
}

// FindByBooking finds the payment of a booking.
func (c *MongoPaymentCollection) FindByBooking(ctx context.Context, bookingID primitive.ObjectID) (*models.Payment, error) {
	return c.findOne(ctx, bson.M{"booking_id": bookingID})
}

// FindByUser lists a user's payments, newest first.
func (c *MongoPaymentCollection) FindByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Payment, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := c.Collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	payments := []models.Payment{}
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// Update writes the mutable fields of payment if it is still in status from.
// The transaction id is never rewritten.
func (c *MongoPaymentCollection) Update(ctx context.Context, payment *models.Payment, from models.PaymentStatus) error {
	if c.Collection == nil {
		return errNilCollection
	}
	payment.UpdatedAt = now()
	set := bson.M{
		"status":     payment.Status,
		"updated_at": payment.UpdatedAt,
	}
	if payment.PaymentDetails != nil {
		set["payment_details"] = payment.PaymentDetails
	}
	if payment.RefundDetails != nil {
		set["refund_details"] = payment.RefundDetails
	}
	result, err := c.Collection.UpdateOne(ctx, bson.M{"_id": payment.ID, "status": from}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *MongoPaymentCollection) findOne(ctx context.Context, filter bson.M) (*models.Payment, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var payment models.Payment
	if err := c.Collection.FindOne(ctx, filter).Decode(&payment); err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}
