package db

import (
	"context"
	"errors"
	"regexp"

	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CarFilter narrows a catalog listing. Zero values do not filter.
type CarFilter struct {
	Color        string
	FuelType     models.FuelType
	Transmission models.Transmission
	Brand        string
	Seats        int
	MinPrice     *float64
	MaxPrice     *float64
	Available    *bool
}

// BSON converts the filter into a MongoDB query document. Color matches as a
// case-insensitive substring, brand as a case-insensitive whole value.
func (f CarFilter) BSON() bson.M {
	query := bson.M{}
	if f.Color != "" {
		query["color"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Color), Options: "i"}
	}
	if f.FuelType != "" {
		query["fuel_type"] = f.FuelType
	}
	if f.Transmission != "" {
		query["transmission"] = f.Transmission
	}
	if f.Brand != "" {
		query["brand"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(f.Brand) + "$", Options: "i"}
	}
	if f.Seats > 0 {
		query["seats"] = f.Seats
	}
	if f.Available != nil {
		query["available"] = *f.Available
	}
	if f.MinPrice != nil || f.MaxPrice != nil {
		price := bson.M{}
		if f.MinPrice != nil {
			price["$gte"] = *f.MinPrice
		}
		if f.MaxPrice != nil {
			price["$lte"] = *f.MaxPrice
		}
		query["price_per_day"] = price
	}
	return query
}

// MongoCarCollection implements CarCollection for MongoDB.
type MongoCarCollection struct {
	Collection *mongo.Collection
}

// Insert inserts a car and sets its generated ID.
func (c *MongoCarCollection) Insert(ctx context.Context, car *models.Car) error {
	if c.Collection == nil {
		return errNilCollection
	}
	car.ID = primitive.NewObjectID()
	car.CreatedAt = now()
	car.UpdatedAt = car.CreatedAt
	if car.Ratings == nil {
		car.Ratings = []models.Rating{}
	}
	car.RecomputeAverage()

	_, err := c.Collection.InsertOne(ctx, car)
	return translate(err)
}

// FindByID finds a car by its ID, ratings included.
func (c *MongoCarCollection) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Car, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var car models.Car
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&car); err != nil {
		return nil, translate(err)
	}
	return &car, nil
}

// FindByIDs loads several cars at once, keyed by ID, without their ratings.
func (c *MongoCarCollection) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.Car, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	out := make(map[primitive.ObjectID]*models.Car, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	opts := options.Find().SetProjection(bson.M{"ratings": 0})
	cursor, err := c.Collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	var cars []models.Car
	if err := cursor.All(ctx, &cars); err != nil {
		return nil, err
	}
	for i := range cars {
		out[cars[i].ID] = &cars[i]
	}
	return out, nil
}

// Find lists cars matching filter, newest first, without their ratings.
func (c *MongoCarCollection) Find(ctx context.Context, filter CarFilter) ([]models.Car, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	opts := options.Find().
		SetProjection(bson.M{"ratings": 0}).
		SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := c.Collection.Find(ctx, filter.BSON(), opts)
	if err != nil {
		return nil, err
	}
	cars := []models.Car{}
	if err := cursor.All(ctx, &cars); err != nil {
		return nil, err
	}
	return cars, nil
}

// Update persists the editable attributes of car. Ratings, the average and
// the booking sequence are owned by their dedicated operations.
func (c *MongoCarCollection) Update(ctx context.Context, car *models.Car) error {
	if c.Collection == nil {
		return errNilCollection
	}
	car.UpdatedAt = now()
	set := bson.M{
		"name":          car.Name,
		"brand":         car.Brand,
		"model":         car.Model,
		"year":          car.Year,
		"color":         car.Color,
		"fuel_type":     car.FuelType,
		"transmission":  car.Transmission,
		"price_per_day": car.PricePerDay,
		"seats":         car.Seats,
		"images":        car.Images,
		"features":      car.Features,
		"available":     car.Available,
		"location":      car.Location,
		"updated_at":    car.UpdatedAt,
	}
	result, err := c.Collection.UpdateOne(ctx, bson.M{"_id": car.ID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete deletes a car by its ID.
func (c *MongoCarCollection) Delete(ctx context.Context, id primitive.ObjectID) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAvailability sets the availability flag of a car.
func (c *MongoCarCollection) SetAvailability(ctx context.Context, id primitive.ObjectID, available bool) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"available": available, "updated_at": now()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddRating appends rating and recomputes the average in a single update
// pipeline, guarded so a user can rate a car only once.
func (c *MongoCarCollection) AddRating(ctx context.Context, id primitive.ObjectID, rating models.Rating) (*models.Car, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	filter := bson.M{"_id": id, "ratings.user": bson.M{"$ne": rating.User}}
	entry := bson.M{"user": rating.User, "rating": rating.Rating}
	if rating.Review != "" {
		entry["review"] = rating.Review
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"ratings": bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$ratings", bson.A{}}},
				bson.A{entry},
			}},
			"updated_at": now(),
		}}},
		{{Key: "$set", Value: bson.M{"average_rating": bson.M{"$avg": "$ratings.rating"}}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var car models.Car
	err := c.Collection.FindOneAndUpdate(ctx, filter, pipeline, opts).Decode(&car)
	if err == nil {
		return &car, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	if _, findErr := c.FindByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, ErrDuplicate
}

// TouchForBooking increments the car's booking sequence.
func (c *MongoCarCollection) TouchForBooking(ctx context.Context, id primitive.ObjectID) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"booking_seq": 1}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
