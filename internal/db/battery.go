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

// InsertBattery inserts a battery record into the collection.
func (c *MongoCollection) InsertBattery(ctx context.Context, battery models.Battery) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.InsertOne(ctx, battery)
	return duplicateAware(err)
}

// FindBatteryByID finds a battery by its ID.
func (c *MongoCollection) FindBatteryByID(ctx context.Context, id primitive.ObjectID) (*models.Battery, error) {
	var battery models.Battery
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&battery)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &battery, nil
}

// FindBatteryByCode finds a battery by its scannable code.
func (c *MongoCollection) FindBatteryByCode(ctx context.Context, code string) (*models.Battery, error) {
	var battery models.Battery
	err := c.Collection.FindOne(ctx, bson.M{"code": code}).Decode(&battery)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &battery, nil
}

// FindBestInStation returns the healthiest IN_STATION battery at a station.
// Sort order makes the pick deterministic: state of health descending, then
// id ascending.
func (c *MongoCollection) FindBestInStation(ctx context.Context, stationID primitive.ObjectID) (*models.Battery, error) {
	opts := options.FindOne().SetSort(bson.D{
		{Key: "state_of_health", Value: -1},
		{Key: "_id", Value: 1},
	})
	var battery models.Battery
	err := c.Collection.FindOne(ctx, bson.M{
		"station_id": stationID,
		"state":      models.BatteryInStation,
	}, opts).Decode(&battery)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &battery, nil
}

// FindVehicleBattery returns the battery currently bound to a vehicle.
func (c *MongoCollection) FindVehicleBattery(ctx context.Context, vehicleID string) (*models.Battery, error) {
	var battery models.Battery
	err := c.Collection.FindOne(ctx, bson.M{
		"vehicle_id": vehicleID,
		"state":      models.BatteryInTransit,
	}).Decode(&battery)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &battery, nil
}

// TransitionBattery is the storage-level compare-and-swap on availability
// state. The state guard lives in the filter, so the update succeeds for at
// most one of any set of concurrent callers expecting the same prior state.
func (c *MongoCollection) TransitionBattery(ctx context.Context, id primitive.ObjectID, from, to models.BatteryState, set bson.M) (*models.Battery, error) {
	update := bson.M{"state": to}
	for k, v := range set {
		update[k] = v
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var battery models.Battery
	err := c.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "state": from},
		bson.M{"$set": update},
		opts,
	).Decode(&battery)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &battery, nil
}

// SetMounted stamps the time the physical cabinet confirmed the battery was
// mounted on the vehicle.
func (c *MongoCollection) SetMounted(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	res, err := c.Collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"mounted_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
