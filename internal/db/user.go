package db

import (
	"context"
	"strings"

	"github.com/ukydev/car-rental/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoUserCollection implements UserCollection for MongoDB
type MongoUserCollection struct {
	Collection *mongo.Collection
}

// Insert inserts a new user and sets its generated ID. Emails are stored lower-cased.
func (c *MongoUserCollection) Insert(ctx context.Context, user *models.User) error {
	if c.Collection == nil {
		return errNilCollection
	}
	user.ID = primitive.NewObjectID()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now()
	user.UpdatedAt = user.CreatedAt
	if user.Rentals == nil {
		user.Rentals = []primitive.ObjectID{}
	}

	_, err := c.Collection.InsertOne(ctx, user)
	return translate(err)
}

// FindByID finds a user by their ID
func (c *MongoUserCollection) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var user models.User
	if err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// FindByEmail finds a user by their email
func (c *MongoUserCollection) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var user models.User
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(email))}
	if err := c.Collection.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// FindByIDs loads several users at once, keyed by ID. Missing ids are absent from the map.
func (c *MongoUserCollection) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.User, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	out := make(map[primitive.ObjectID]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cursor, err := c.Collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	for i := range users {
		out[users[i].ID] = &users[i]
	}
	return out, nil
}

// Update applies the non-nil profile fields and returns the updated user
func (c *MongoUserCollection) Update(ctx context.Context, id primitive.ObjectID, update models.ProfileUpdate) (*models.User, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	set := bson.M{"updated_at": now()}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Phone != nil {
		set["phone"] = *update.Phone
	}
	if update.LicenseNumber != nil {
		set["license_number"] = *update.LicenseNumber
	}
	if update.Age != nil {
		set["age"] = *update.Age
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user models.User
	err := c.Collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&user)
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// AddBooking records bookingID on the user's rental list
func (c *MongoUserCollection) AddBooking(ctx context.Context, userID, bookingID primitive.ObjectID) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{
			"$addToSet": bson.M{"rentals": bookingID},
			"$set":      bson.M{"updated_at": now()},
		},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
