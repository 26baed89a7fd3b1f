package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Station represents a battery swap station. Master data (name, address)
// comes from the catalog service; this record wraps it with the slot and
// booking-capacity state the inventory owns.
type Station struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Address      string             `bson:"address" json:"address"`
	Slots        []string           `bson:"slots" json:"slots"`
	Capacity     int                `bson:"capacity" json:"capacity"`
	PendingCount int                `bson:"pending_count" json:"pending_count"`
	Status       string             `bson:"status" json:"status"` // "active" or "inactive"
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

// SlotReservation is a claim on one unit of a station's booking capacity.
type SlotReservation struct {
	StationID  primitive.ObjectID `bson:"station_id" json:"station_id"`
	VehicleID  string             `bson:"vehicle_id" json:"vehicle_id"`
	ReservedAt time.Time          `bson:"reserved_at" json:"reserved_at"`
}
