package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BookingStatus is the lifecycle status of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingExpired   BookingStatus = "EXPIRED"
)

// Booking reserves one station visit slot for one vehicle. Status only moves
// forward along the lifecycle; terminal states never change again.
type Booking struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DriverID          string             `bson:"driver_id" json:"driver_id"`
	VehicleID         string             `bson:"vehicle_id" json:"vehicle_id"`
	StationID         primitive.ObjectID `bson:"station_id" json:"station_id"`
	Status            BookingStatus      `bson:"status" json:"status"`
	ConfirmationCode  string             `bson:"confirmation_code,omitempty" json:"confirmation_code,omitempty"`
	ConfirmedBy       string             `bson:"confirmed_by,omitempty" json:"confirmed_by,omitempty"`
	SwapTransactionID string             `bson:"swap_transaction_id,omitempty" json:"swap_transaction_id,omitempty"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	ExpiresAt         time.Time          `bson:"expires_at" json:"expires_at"`
}

// IsActive reports whether the booking still blocks new bookings for its
// vehicle/station pair.
func (b *Booking) IsActive() bool {
	return b.Status == BookingPending || b.Status == BookingConfirmed
}

// CanTransition reports whether a status move is legal on the booking state
// machine. Terminal states have no outgoing edges.
func CanTransition(from, to BookingStatus) bool {
	switch from {
	case BookingPending:
		return to == BookingConfirmed || to == BookingCancelled ||
			to == BookingCompleted || to == BookingExpired
	case BookingConfirmed:
		return to == BookingCompleted
	default:
		return false
	}
}

// CreateBookingRequest is the payload for POST /api/booking.
type CreateBookingRequest struct {
	VehicleID string `json:"vehicle_id"`
	StationID string `json:"station_id"`
}
