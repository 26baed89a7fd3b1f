package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Inventory change-log event types.
const (
	ChangeTransition     = "TRANSITION"
	ChangeMountConfirmed = "MOUNT_CONFIRMED"
)

// InventoryChange is one entry of the append-only inventory change log used
// for reconciliation and audit.
type InventoryChange struct {
	ID        string              `bson:"_id" json:"id"`
	Event     string              `bson:"event" json:"event"`
	BatteryID primitive.ObjectID  `bson:"battery_id" json:"battery_id"`
	From      BatteryState        `bson:"from,omitempty" json:"from,omitempty"`
	To        BatteryState        `bson:"to,omitempty" json:"to,omitempty"`
	StationID *primitive.ObjectID `bson:"station_id,omitempty" json:"station_id,omitempty"`
	VehicleID string              `bson:"vehicle_id,omitempty" json:"vehicle_id,omitempty"`
	At        time.Time           `bson:"at" json:"at"`
}
