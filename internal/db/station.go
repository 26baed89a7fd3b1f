package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/evswap/swap-station/internal/models"
)

// InsertStation inserts a station record into the collection.
func (c *MongoCollection) InsertStation(ctx context.Context, station models.Station) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.InsertOne(ctx, station)
	return duplicateAware(err)
}

// FindStationByID finds a station by its ID.
func (c *MongoCollection) FindStationByID(ctx context.Context, id primitive.ObjectID) (*models.Station, error) {
	var station models.Station
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&station)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &station, nil
}

// ReservePending increments the station's pending-booking count as a single
// capacity-guarded write. The filter compares pending_count against capacity
// so two racing reservations can never both claim the last unit.
func (c *MongoCollection) ReservePending(ctx context.Context, id primitive.ObjectID) error {
	res, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": id, "$expr": bson.M{"$lt": bson.A{"$pending_count", "$capacity"}}},
		bson.M{"$inc": bson.M{"pending_count": 1}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Distinguish a full station from a missing one.
		if _, ferr := c.FindStationByID(ctx, id); ferr != nil {
			return ferr
		}
		return ErrConflict
	}
	return nil
}

// ReleasePending decrements the pending-booking count. A zero count is left
// untouched so double releases stay idempotent.
func (c *MongoCollection) ReleasePending(ctx context.Context, id primitive.ObjectID) error {
	_, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": id, "pending_count": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"pending_count": -1}},
	)
	return err
}
