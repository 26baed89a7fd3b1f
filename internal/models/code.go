package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConfirmationCode is a short-lived token presented at the station to trigger
// a swap. Codes are unique among unconsumed, unexpired codes; once consumed
// they are permanently inert.
type ConfirmationCode struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Code       string             `bson:"code" json:"code"`
	BookingID  primitive.ObjectID `bson:"booking_id" json:"booking_id"`
	IssuedAt   time.Time          `bson:"issued_at" json:"issued_at"`
	ExpiresAt  time.Time          `bson:"expires_at" json:"expires_at"`
	Consumed   bool               `bson:"consumed" json:"consumed"`
	ConsumedAt *time.Time         `bson:"consumed_at,omitempty" json:"consumed_at,omitempty"`
}

// Expired reports whether the code's validity window has passed.
func (c *ConfirmationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
