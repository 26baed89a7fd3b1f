package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/evswap/swap-station/internal/models"
)

// InsertCode inserts a confirmation code. The partial unique index on active
// codes turns a collision with a live code into ErrDuplicate.
func (c *MongoCollection) InsertCode(ctx context.Context, code models.ConfirmationCode) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.InsertOne(ctx, code)
	return duplicateAware(err)
}

// FindCode looks a code up without touching it.
func (c *MongoCollection) FindCode(ctx context.Context, code string) (*models.ConfirmationCode, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "issued_at", Value: -1}})
	var cc models.ConfirmationCode
	err := c.Collection.FindOne(ctx, bson.M{"code": code}, opts).Decode(&cc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cc, nil
}

// ConsumeCode marks an unconsumed, unexpired code consumed in a single
// guarded write. The filter carries the consumed and expiry checks, so of any
// number of concurrent callers exactly one gets the prior document back.
func (c *MongoCollection) ConsumeCode(ctx context.Context, code string, now time.Time) (*models.ConfirmationCode, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	var cc models.ConfirmationCode
	err := c.Collection.FindOneAndUpdate(ctx,
		bson.M{
			"code":       code,
			"consumed":   false,
			"expires_at": bson.M{"$gt": now},
		},
		bson.M{"$set": bson.M{"consumed": true, "consumed_at": now}},
		opts,
	).Decode(&cc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &cc, nil
}
