package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BatteryState is the availability state of a battery.
type BatteryState string

const (
	BatteryInStation BatteryState = "IN_STATION"
	BatteryReserved  BatteryState = "RESERVED"
	BatteryInTransit BatteryState = "IN_TRANSIT"
	BatteryRetired   BatteryState = "RETIRED"
)

// Battery represents a swappable battery pack. A battery in RESERVED or
// IN_TRANSIT is bound to exactly one active booking or swap transaction.
type Battery struct {
	ID            primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Code          string              `bson:"code" json:"code"`
	Model         string              `bson:"model" json:"model"`
	StateOfHealth float64             `bson:"state_of_health" json:"state_of_health"` // 0-100
	State         BatteryState        `bson:"state" json:"state"`
	StationID     *primitive.ObjectID `bson:"station_id,omitempty" json:"station_id,omitempty"`
	VehicleID     string              `bson:"vehicle_id,omitempty" json:"vehicle_id,omitempty"`
	MountedAt     *time.Time          `bson:"mounted_at,omitempty" json:"mounted_at,omitempty"`
	CreatedAt     time.Time           `bson:"created_at" json:"created_at"`
}

// BatteryInfo is the read-only projection shown to the operator before a swap.
type BatteryInfo struct {
	BatteryID     primitive.ObjectID  `json:"battery_id"`
	Code          string              `json:"code"`
	Model         string              `json:"model"`
	StateOfHealth float64             `json:"state_of_health"`
	State         BatteryState        `json:"state"`
	StationID     *primitive.ObjectID `json:"station_id,omitempty"`
}

// Info projects a battery into its operator-facing view.
func (b *Battery) Info() BatteryInfo {
	return BatteryInfo{
		BatteryID:     b.ID,
		Code:          b.Code,
		Model:         b.Model,
		StateOfHealth: b.StateOfHealth,
		State:         b.State,
		StationID:     b.StationID,
	}
}
