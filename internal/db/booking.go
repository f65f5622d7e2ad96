package db

import (
	"context"
	"time"

	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBookingCollection implements BookingCollection for MongoDB.
type MongoBookingCollection struct {
	Collection *mongo.Collection
}

// Insert inserts a booking and sets its generated ID.
func (c *MongoBookingCollection) Insert(ctx context.Context, booking *models.Booking) error {
	if c.Collection == nil {
		return errNilCollection
	}
	booking.ID = primitive.NewObjectID()
	booking.CreatedAt = now()
	booking.UpdatedAt = booking.CreatedAt

	_, err := c.Collection.InsertOne(ctx, booking)
	return translate(err)
}

// FindByID finds a booking by its ID.
func (c *MongoBookingCollection) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var booking models.Booking
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking); err != nil {
		return nil, translate(err)
	}
	return &booking, nil
}

// FindByUser lists a user's bookings, newest first.
func (c *MongoBookingCollection) FindByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Booking, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := c.Collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	bookings := []models.Booking{}
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// FindOverlapping returns the active bookings of a car that intersect [start, end].
func (c *MongoBookingCollection) FindOverlapping(ctx context.Context, carID primitive.ObjectID, start, end time.Time) ([]models.Booking, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	filter := bson.M{
		"car_id":     carID,
		"status":     bson.M{"$in": models.ActiveBookingStatuses},
		"start_date": bson.M{"$lte": end},
		"end_date":   bson.M{"$gte": start},
	}
	cursor, err := c.Collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	bookings := []models.Booking{}
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// CountActiveForCar counts pending and confirmed bookings of a car.
func (c *MongoBookingCollection) CountActiveForCar(ctx context.Context, carID primitive.ObjectID) (int64, error) {
	if c.Collection == nil {
		return 0, errNilCollection
	}
	return c.Collection.CountDocuments(ctx, bson.M{
		"car_id": carID,
		"status": bson.M{"$in": models.ActiveBookingStatuses},
	})
}

// UpdateStatus moves a booking from status from to status to.
func (c *MongoBookingCollection) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.BookingStatus) (*models.Booking, error) {
	return c.findAndSet(ctx, bson.M{"_id": id, "status": from}, bson.M{"status": to})
}

// MarkPaid confirms an active booking and records the completed payment.
func (c *MongoBookingCollection) MarkPaid(ctx context.Context, id primitive.ObjectID, paymentID string) (*models.Booking, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": models.ActiveBookingStatuses}}
	return c.findAndSet(ctx, filter, bson.M{
		"status":         models.BookingConfirmed,
		"payment_status": models.PaymentCompleted,
		"payment_id":     paymentID,
	})
}

// SetPaymentStatus mirrors a payment status onto its booking.
func (c *MongoBookingCollection) SetPaymentStatus(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus) error {
	_, err := c.findAndSet(ctx, bson.M{"_id": id}, bson.M{"payment_status": status})
	return err
}

func (c *MongoBookingCollection) findAndSet(ctx context.Context, filter, set bson.M) (*models.Booking, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	set["updated_at"] = now()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var booking models.Booking
	if err := c.Collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&booking); err != nil {
		return nil, translate(err)
	}
	return &booking, nil
}
