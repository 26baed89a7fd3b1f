package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/evswap/swap-station/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a guarded update matched no document,
	// meaning the stored state differs from the expected one.
	ErrConflict = errors.New("state conflict")
	// ErrDuplicate is returned when an insert violates a unique index.
	ErrDuplicate = errors.New("duplicate key")
)

// StationCollection defines the interface for station slot accounting.
type StationCollection interface {
	InsertStation(ctx context.Context, station models.Station) error
	FindStationByID(ctx context.Context, id primitive.ObjectID) (*models.Station, error)
	// ReservePending increments the station's pending-booking count, guarded
	// by capacity. Returns ErrConflict when the station is at capacity.
	ReservePending(ctx context.Context, id primitive.ObjectID) error
	// ReleasePending decrements the pending-booking count, never below zero.
	ReleasePending(ctx context.Context, id primitive.ObjectID) error
}

// BatteryCollection defines the interface for battery inventory operations.
type BatteryCollection interface {
	InsertBattery(ctx context.Context, battery models.Battery) error
	FindBatteryByID(ctx context.Context, id primitive.ObjectID) (*models.Battery, error)
	FindBatteryByCode(ctx context.Context, code string) (*models.Battery, error)
	// FindBestInStation returns the IN_STATION battery at the station with the
	// highest state of health, ties broken by lowest id.
	FindBestInStation(ctx context.Context, stationID primitive.ObjectID) (*models.Battery, error)
	// FindVehicleBattery returns the battery currently bound to a vehicle.
	FindVehicleBattery(ctx context.Context, vehicleID string) (*models.Battery, error)
	// TransitionBattery atomically moves a battery from one availability state
	// to another, applying extra field updates in the same write. Returns
	// ErrConflict when the stored state is not `from`.
	TransitionBattery(ctx context.Context, id primitive.ObjectID, from, to models.BatteryState, set bson.M) (*models.Battery, error)
	SetMounted(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

// BookingCollection defines the interface for booking persistence.
type BookingCollection interface {
	// InsertBooking returns ErrDuplicate when an active booking already exists
	// for the same vehicle/station pair.
	InsertBooking(ctx context.Context, booking models.Booking) error
	FindBookingByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error)
	FindActiveBooking(ctx context.Context, vehicleID string, stationID primitive.ObjectID) (*models.Booking, error)
	FindBookingsByDriver(ctx context.Context, driverID string) ([]models.Booking, error)
	FindExpiredPending(ctx context.Context, now time.Time) ([]models.Booking, error)
	// TransitionBooking atomically moves a booking whose current status is one
	// of `from` to `to`, applying extra field updates in the same write.
	// Returns ErrConflict when the stored status matches none of `from`.
	TransitionBooking(ctx context.Context, id primitive.ObjectID, from []models.BookingStatus, to models.BookingStatus, set bson.M) (*models.Booking, error)
	SetBookingCode(ctx context.Context, id primitive.ObjectID, code string) error
}

// CodeCollection defines the interface for confirmation code persistence.
type CodeCollection interface {
	// InsertCode returns ErrDuplicate when the code collides with an active one.
	InsertCode(ctx context.Context, code models.ConfirmationCode) error
	FindCode(ctx context.Context, code string) (*models.ConfirmationCode, error)
	// ConsumeCode atomically marks an unconsumed, unexpired code consumed and
	// returns its prior (unconsumed) document. Returns ErrConflict when no such
	// code matched; the caller distinguishes missing, expired and replayed
	// codes with a follow-up FindCode.
	ConsumeCode(ctx context.Context, code string, now time.Time) (*models.ConfirmationCode, error)
}

// SwapTransactionCollection defines the interface for swap transaction records.
type SwapTransactionCollection interface {
	// InsertSwapTransaction returns ErrDuplicate when a transaction already
	// exists for the same confirmation code.
	InsertSwapTransaction(ctx context.Context, tx models.SwapTransaction) error
	// FinalizeSwapTransaction atomically settles an IN_PROGRESS transaction,
	// applying the terminal fields in the same write. Returns ErrConflict when
	// the transaction is already terminal.
	FinalizeSwapTransaction(ctx context.Context, id string, set bson.M) (*models.SwapTransaction, error)
	FindSwapTransactionByCode(ctx context.Context, code string) (*models.SwapTransaction, error)
	FindSwapTransactionsByDriver(ctx context.Context, driverID string) ([]models.SwapTransaction, error)
}

// ChangeLogCollection defines the interface for the append-only inventory
// change log.
type ChangeLogCollection interface {
	AppendChange(ctx context.Context, change models.InventoryChange) error
}
