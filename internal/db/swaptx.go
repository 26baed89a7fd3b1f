package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/evswap/swap-station/internal/models"
)

// InsertSwapTransaction inserts a swap transaction record. The unique index
// on code keeps at most one record per confirmation code; a collision maps to
// ErrDuplicate.
func (c *MongoCollection) InsertSwapTransaction(ctx context.Context, tx models.SwapTransaction) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.InsertOne(ctx, tx)
	return duplicateAware(err)
}

// FinalizeSwapTransaction is the storage-level compare-and-swap settling an
// IN_PROGRESS transaction. The filter carries the outcome check, so of any
// number of concurrent settlers exactly one applies the terminal fields;
// terminal records never change again.
func (c *MongoCollection) FinalizeSwapTransaction(ctx context.Context, id string, set bson.M) (*models.SwapTransaction, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var tx models.SwapTransaction
	err := c.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "outcome": models.SwapInProgress},
		bson.M{"$set": set},
		opts,
	).Decode(&tx)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &tx, nil
}

// FindSwapTransactionByCode returns the transaction recorded for a
// confirmation code, the stored outcome replayed requests receive.
func (c *MongoCollection) FindSwapTransactionByCode(ctx context.Context, code string) (*models.SwapTransaction, error) {
	var tx models.SwapTransaction
	err := c.Collection.FindOne(ctx, bson.M{"code": code}).Decode(&tx)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// FindSwapTransactionsByDriver returns the driver's transactions, newest first.
func (c *MongoCollection) FindSwapTransactionsByDriver(ctx context.Context, driverID string) ([]models.SwapTransaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "completed_at", Value: -1}})
	cursor, err := c.Collection.Find(ctx, bson.M{"driver_id": driverID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var txs []models.SwapTransaction
	if err := cursor.All(ctx, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}
