package db

import (
	"context"
	"fmt"

	"github.com/evswap/swap-station/internal/models"
)

// AppendChange appends one entry to the inventory change log. The log is
// append-only; nothing in the service reads it back except reconciliation
// tooling.
func (c *MongoCollection) AppendChange(ctx context.Context, change models.InventoryChange) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.InsertOne(ctx, change)
	return err
}
