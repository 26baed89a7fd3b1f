package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/evswap/swap-station/internal/db"
	"github.com/evswap/swap-station/internal/models"
)

var (
	ErrNotFound         = errors.New("battery not found")
	ErrStationNotFound  = errors.New("station not found")
	ErrCapacityExceeded = errors.New("station booking capacity exceeded")
	ErrStateConflict    = errors.New("battery state conflict")
)

// Store is the authoritative record of stations, slots and battery
// availability state. Every successful state transition is appended to the
// inventory change log.
type Store struct {
	stations  db.StationCollection
	batteries db.BatteryCollection
	changes   db.ChangeLogCollection
}

// NewStore creates a new inventory store.
func NewStore(stations db.StationCollection, batteries db.BatteryCollection, changes db.ChangeLogCollection) *Store {
	return &Store{stations: stations, batteries: batteries, changes: changes}
}

// ReserveSlot claims one unit of a station's booking capacity for a vehicle.
func (s *Store) ReserveSlot(ctx context.Context, stationID primitive.ObjectID, vehicleID string) (*models.SlotReservation, error) {
	err := s.stations.ReservePending(ctx, stationID)
	if err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, ErrCapacityExceeded
		}
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrStationNotFound
		}
		return nil, fmt.Errorf("reserve slot: %w", err)
	}
	return &models.SlotReservation{
		StationID:  stationID,
		VehicleID:  vehicleID,
		ReservedAt: time.Now().UTC(),
	}, nil
}

// ReleaseSlot returns a previously reserved unit of booking capacity.
func (s *Store) ReleaseSlot(ctx context.Context, res *models.SlotReservation) error {
	if res == nil {
		return nil
	}
	if err := s.stations.ReleasePending(ctx, res.StationID); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

// GetStation returns a station by id.
func (s *Store) GetStation(ctx context.Context, id primitive.ObjectID) (*models.Station, error) {
	station, err := s.stations.FindStationByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrStationNotFound
		}
		return nil, err
	}
	return station, nil
}

// GetBattery returns a battery by its scannable code.
func (s *Store) GetBattery(ctx context.Context, code string) (*models.Battery, error) {
	battery, err := s.batteries.FindBatteryByCode(ctx, code)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return battery, nil
}

// BestAvailableBattery returns the healthiest IN_STATION battery at a
// station, ties broken by lowest id so concurrent selectors agree.
func (s *Store) BestAvailableBattery(ctx context.Context, stationID primitive.ObjectID) (*models.Battery, error) {
	battery, err := s.batteries.FindBestInStation(ctx, stationID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return battery, nil
}

// VehicleBattery returns the battery currently mounted on a vehicle, or
// ErrNotFound when the vehicle has none on record (first swap).
func (s *Store) VehicleBattery(ctx context.Context, vehicleID string) (*models.Battery, error) {
	battery, err := s.batteries.FindVehicleBattery(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return battery, nil
}

// TransitionBattery moves a battery between availability states with
// compare-and-swap semantics: it succeeds only if the stored state equals
// `from`, otherwise ErrStateConflict. Successful transitions append to the
// change log.
func (s *Store) TransitionBattery(ctx context.Context, id primitive.ObjectID, from, to models.BatteryState, set bson.M) (*models.Battery, error) {
	battery, err := s.batteries.TransitionBattery(ctx, id, from, to, set)
	if err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, ErrStateConflict
		}
		return nil, fmt.Errorf("transition battery: %w", err)
	}

	change := models.InventoryChange{
		ID:        uuid.NewString(),
		Event:     models.ChangeTransition,
		BatteryID: battery.ID,
		From:      from,
		To:        to,
		StationID: battery.StationID,
		VehicleID: battery.VehicleID,
		At:        time.Now().UTC(),
	}
	if err := s.changes.AppendChange(ctx, change); err != nil {
		// The transition already happened; a lost audit entry must not undo it.
		log.WithError(err).WithField("battery_id", battery.ID.Hex()).
			Error("failed to append inventory change")
	}
	return battery, nil
}

// ConfirmMounted records the physical cabinet's confirmation that a battery
// was mounted on the vehicle. This sits outside the swap's transactional
// boundary; the battery keeps its IN_TRANSIT binding.
func (s *Store) ConfirmMounted(ctx context.Context, batteryID primitive.ObjectID, at time.Time) error {
	if err := s.batteries.SetMounted(ctx, batteryID, at); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("confirm mounted: %w", err)
	}
	change := models.InventoryChange{
		ID:        uuid.NewString(),
		Event:     models.ChangeMountConfirmed,
		BatteryID: batteryID,
		At:        at,
	}
	if err := s.changes.AppendChange(ctx, change); err != nil {
		log.WithError(err).WithField("battery_id", batteryID.Hex()).
			Error("failed to append inventory change")
	}
	return nil
}

// AddStation registers a station record. Master data comes from the catalog
// service; this is the ingest point the catalog sync and dev tooling use.
func (s *Store) AddStation(ctx context.Context, station models.Station) error {
	return s.stations.InsertStation(ctx, station)
}

// AddBattery registers a battery record.
func (s *Store) AddBattery(ctx context.Context, battery models.Battery) error {
	return s.batteries.InsertBattery(ctx, battery)
}
