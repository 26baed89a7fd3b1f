package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/evswap/swap-station/internal/models"
)

// InsertBooking inserts a booking. The partial unique index on
// (vehicle_id, station_id) for active statuses turns a duplicate active
// booking into ErrDuplicate.
func (c *MongoCollection) InsertBooking(ctx context.Context, booking models.Booking) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.InsertOne(ctx, booking)
	return duplicateAware(err)
}

// FindBookingByID finds a booking by its ID.
func (c *MongoCollection) FindBookingByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	var booking models.Booking
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &booking, nil
}

// FindActiveBooking returns the PENDING or CONFIRMED booking for a
// vehicle/station pair, if any.
func (c *MongoCollection) FindActiveBooking(ctx context.Context, vehicleID string, stationID primitive.ObjectID) (*models.Booking, error) {
	var booking models.Booking
	err := c.Collection.FindOne(ctx, bson.M{
		"vehicle_id": vehicleID,
		"station_id": stationID,
		"status":     bson.M{"$in": []models.BookingStatus{models.BookingPending, models.BookingConfirmed}},
	}).Decode(&booking)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &booking, nil
}

// FindBookingsByDriver returns the driver's bookings, newest first.
func (c *MongoCollection) FindBookingsByDriver(ctx context.Context, driverID string) ([]models.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := c.Collection.Find(ctx, bson.M{"driver_id": driverID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var bookings []models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// FindExpiredPending returns PENDING bookings whose expiry has passed.
func (c *MongoCollection) FindExpiredPending(ctx context.Context, now time.Time) ([]models.Booking, error) {
	cursor, err := c.Collection.Find(ctx, bson.M{
		"status":     models.BookingPending,
		"expires_at": bson.M{"$lt": now},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var bookings []models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// TransitionBooking is the storage-level compare-and-swap on booking status.
func (c *MongoCollection) TransitionBooking(ctx context.Context, id primitive.ObjectID, from []models.BookingStatus, to models.BookingStatus, set bson.M) (*models.Booking, error) {
	update := bson.M{"status": to}
	for k, v := range set {
		update[k] = v
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var booking models.Booking
	err := c.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": update},
		opts,
	).Decode(&booking)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &booking, nil
}

// SetBookingCode records the confirmation code minted for a booking.
func (c *MongoCollection) SetBookingCode(ctx context.Context, id primitive.ObjectID, code string) error {
	res, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"confirmation_code": code}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
