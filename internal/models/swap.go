package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SwapOutcome is the result of a swap transaction. IN_PROGRESS marks an
// exchange whose batteries are still moving; it settles to exactly one of the
// terminal outcomes.
type SwapOutcome string

const (
	SwapInProgress SwapOutcome = "IN_PROGRESS"
	SwapSuccess    SwapOutcome = "SUCCESS"
	SwapFailed     SwapOutcome = "FAILED"
)

// SwapTransaction is the durable record of one physical battery exchange.
// At most one exists per confirmation code, it settles to a terminal outcome
// exactly once, and it doubles as the idempotency record for retried swap
// requests sharing the same code.
type SwapTransaction struct {
	ID            string              `bson:"_id" json:"id"`
	Code          string              `bson:"code" json:"code"`
	BookingID     primitive.ObjectID  `bson:"booking_id" json:"booking_id"`
	DriverID      string              `bson:"driver_id" json:"driver_id"`
	VehicleID     string              `bson:"vehicle_id" json:"vehicle_id"`
	StationID     primitive.ObjectID  `bson:"station_id" json:"station_id"`
	OldBatteryID  *primitive.ObjectID `bson:"old_battery_id,omitempty" json:"old_battery_id,omitempty"`
	NewBatteryID  *primitive.ObjectID `bson:"new_battery_id,omitempty" json:"new_battery_id,omitempty"`
	Outcome       SwapOutcome         `bson:"outcome" json:"outcome"`
	FailureReason string              `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	CompletedAt   time.Time           `bson:"completed_at" json:"completed_at"`
}
