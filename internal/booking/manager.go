package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/evswap/swap-station/internal/codes"
	"github.com/evswap/swap-station/internal/db"
	"github.com/evswap/swap-station/internal/inventory"
	"github.com/evswap/swap-station/internal/models"
)

var (
	ErrNotFound               = errors.New("booking not found")
	ErrDuplicateActiveBooking = errors.New("an active booking already exists for this vehicle and station")
	ErrForbidden              = errors.New("booking does not belong to requester")
	ErrInvalidTransition      = errors.New("illegal booking status transition")
)

// Manager drives the booking lifecycle: PENDING -> CONFIRMED -> COMPLETED,
// with PENDING -> CANCELLED and PENDING -> EXPIRED as the only side exits.
type Manager struct {
	bookings db.BookingCollection
	inv      *inventory.Store
	registry *codes.Registry
	ttl      time.Duration
}

// NewManager creates a booking lifecycle manager. ttl is how long a PENDING
// booking holds its slot before the sweep expires it.
func NewManager(bookings db.BookingCollection, inv *inventory.Store, registry *codes.Registry, ttl time.Duration) *Manager {
	return &Manager{bookings: bookings, inv: inv, registry: registry, ttl: ttl}
}

// Create books a station visit for a vehicle: reserves a slot, writes the
// PENDING booking and mints its confirmation code. The partial unique index
// on active bookings closes the race two concurrent creates would otherwise
// have between the duplicate pre-check and the insert.
func (m *Manager) Create(ctx context.Context, driverID, vehicleID string, stationID primitive.ObjectID) (*models.Booking, error) {
	if existing, err := m.bookings.FindActiveBooking(ctx, vehicleID, stationID); err == nil && existing != nil {
		return nil, ErrDuplicateActiveBooking
	}

	res, err := m.inv.ReserveSlot(ctx, stationID, vehicleID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	booking := models.Booking{
		ID:        primitive.NewObjectID(),
		DriverID:  driverID,
		VehicleID: vehicleID,
		StationID: stationID,
		Status:    models.BookingPending,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.bookings.InsertBooking(ctx, booking); err != nil {
		m.releaseSlot(ctx, res)
		if errors.Is(err, db.ErrDuplicate) {
			return nil, ErrDuplicateActiveBooking
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	code, err := m.registry.Issue(ctx, booking.ID)
	if err != nil {
		// Without a code the booking is unusable; roll it back.
		if _, terr := m.bookings.TransitionBooking(ctx, booking.ID,
			[]models.BookingStatus{models.BookingPending}, models.BookingCancelled, nil); terr != nil {
			log.WithError(terr).WithField("booking_id", booking.ID.Hex()).
				Error("failed to cancel booking after code issue failure")
		}
		m.releaseSlot(ctx, res)
		return nil, err
	}
	if err := m.bookings.SetBookingCode(ctx, booking.ID, code.Code); err != nil {
		log.WithError(err).WithField("booking_id", booking.ID.Hex()).
			Error("failed to record confirmation code on booking")
	}
	booking.ConfirmationCode = code.Code

	log.WithFields(log.Fields{
		"booking_id": booking.ID.Hex(),
		"vehicle_id": vehicleID,
		"station_id": stationID.Hex(),
	}).Info("booking created")
	return &booking, nil
}

// Cancel moves a PENDING booking to CANCELLED and releases its slot. Only the
// booking's driver may cancel; CONFIRMED bookings are not cancellable because
// their swap pipeline is already committed.
func (m *Manager) Cancel(ctx context.Context, bookingID primitive.ObjectID, requesterID string) error {
	booking, err := m.bookings.FindBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if booking.DriverID != requesterID {
		return ErrForbidden
	}
	if !models.CanTransition(booking.Status, models.BookingCancelled) {
		return ErrInvalidTransition
	}

	if _, err := m.bookings.TransitionBooking(ctx, bookingID,
		[]models.BookingStatus{models.BookingPending}, models.BookingCancelled, nil); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return ErrInvalidTransition
		}
		return err
	}

	m.releaseSlot(ctx, &models.SlotReservation{StationID: booking.StationID, VehicleID: booking.VehicleID})
	log.WithField("booking_id", bookingID.Hex()).Info("booking cancelled")
	return nil
}

// Confirm moves a PENDING booking to CONFIRMED, recording the staff member
// who activated it.
func (m *Manager) Confirm(ctx context.Context, bookingID primitive.ObjectID, staffID string) (*models.Booking, error) {
	booking, err := m.bookings.TransitionBooking(ctx, bookingID,
		[]models.BookingStatus{models.BookingPending}, models.BookingConfirmed,
		bson.M{"confirmed_by": staffID})
	if err != nil {
		if errors.Is(err, db.ErrConflict) {
			if _, ferr := m.bookings.FindBookingByID(ctx, bookingID); errors.Is(ferr, db.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, ErrInvalidTransition
		}
		return nil, err
	}
	log.WithFields(log.Fields{"booking_id": bookingID.Hex(), "staff_id": staffID}).
		Info("booking confirmed")
	return booking, nil
}

// MarkCompleted is invoked only by the swap transaction engine after a
// SUCCESS outcome. Legal from PENDING or CONFIRMED. A completed booking no
// longer occupies its station slot, so the slot is released here the same
// way the cancel and expiry exits do.
func (m *Manager) MarkCompleted(ctx context.Context, bookingID primitive.ObjectID, swapTxID string) error {
	booking, err := m.bookings.TransitionBooking(ctx, bookingID,
		[]models.BookingStatus{models.BookingPending, models.BookingConfirmed},
		models.BookingCompleted,
		bson.M{"swap_transaction_id": swapTxID})
	if err != nil {
		if errors.Is(err, db.ErrConflict) {
			return ErrInvalidTransition
		}
		return err
	}
	m.releaseSlot(ctx, &models.SlotReservation{StationID: booking.StationID, VehicleID: booking.VehicleID})
	return nil
}

// ExpireStale moves every PENDING booking past its expiry to EXPIRED and
// releases its slot. Each booking is guarded by its own compare-and-swap, so
// running the sweep twice over the same set has no additional effect.
func (m *Manager) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := m.bookings.FindExpiredPending(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find expired bookings: %w", err)
	}

	expired := 0
	for _, b := range stale {
		if _, err := m.bookings.TransitionBooking(ctx, b.ID,
			[]models.BookingStatus{models.BookingPending}, models.BookingExpired, nil); err != nil {
			if errors.Is(err, db.ErrConflict) {
				// Another sweep or a swap got there first.
				continue
			}
			log.WithError(err).WithField("booking_id", b.ID.Hex()).
				Error("failed to expire booking")
			continue
		}
		m.releaseSlot(ctx, &models.SlotReservation{StationID: b.StationID, VehicleID: b.VehicleID})
		expired++
	}
	if expired > 0 {
		log.WithField("count", expired).Info("expired stale bookings")
	}
	return expired, nil
}

// Get returns a booking owned by the driver.
func (m *Manager) Get(ctx context.Context, bookingID primitive.ObjectID, driverID string) (*models.Booking, error) {
	booking, err := m.bookings.FindBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if booking.DriverID != driverID {
		return nil, ErrForbidden
	}
	return booking, nil
}

// MyBookings returns the driver's bookings, newest first.
func (m *Manager) MyBookings(ctx context.Context, driverID string) ([]models.Booking, error) {
	return m.bookings.FindBookingsByDriver(ctx, driverID)
}

// GetByID returns any booking; used by the swap engine which authorizes by
// code possession, not ownership.
func (m *Manager) GetByID(ctx context.Context, bookingID primitive.ObjectID) (*models.Booking, error) {
	booking, err := m.bookings.FindBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return booking, nil
}

func (m *Manager) releaseSlot(ctx context.Context, res *models.SlotReservation) {
	if err := m.inv.ReleaseSlot(ctx, res); err != nil {
		log.WithError(err).WithField("station_id", res.StationID.Hex()).
			Error("failed to release station slot")
	}
}
