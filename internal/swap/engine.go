package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/evswap/swap-station/internal/booking"
	"github.com/evswap/swap-station/internal/codes"
	"github.com/evswap/swap-station/internal/db"
	"github.com/evswap/swap-station/internal/inventory"
	"github.com/evswap/swap-station/internal/models"
)

var (
	ErrBookingNotConfirmable = errors.New("booking is not in a swappable status")
	ErrNoBatteryAvailable    = errors.New("no battery available at this station")
	ErrNoMountedBattery      = errors.New("vehicle has no battery on record")
	ErrStateConflict         = errors.New("concurrent inventory conflict, swap aborted")
)

const (
	defaultReplayWait = 3 * time.Second
	defaultReplayPoll = 50 * time.Millisecond
)

// Engine executes the atomic old-battery-out / new-battery-in exchange.
// A confirmation code yields exactly one physical exchange and exactly one
// transaction record: the first caller to consume the code writes an
// IN_PROGRESS record before moving any battery and settles it to a terminal
// outcome; every other caller waits on that record instead of re-executing.
type Engine struct {
	inv         *inventory.Store
	registry    *codes.Registry
	lifecycle   *booking.Manager
	txs         db.SwapTransactionCollection
	retireBelow float64

	// replayWait bounds how long a replayed request waits for an IN_PROGRESS
	// record to settle before declaring the original exchange interrupted.
	replayWait time.Duration
	replayPoll time.Duration
}

// NewEngine creates a swap transaction engine. Batteries returning with a
// state of health below retireBelow are retired instead of going back into
// station stock.
func NewEngine(inv *inventory.Store, registry *codes.Registry, lifecycle *booking.Manager, txs db.SwapTransactionCollection, retireBelow float64) *Engine {
	return &Engine{
		inv:         inv,
		registry:    registry,
		lifecycle:   lifecycle,
		txs:         txs,
		retireBelow: retireBelow,
		replayWait:  defaultReplayWait,
		replayPoll:  defaultReplayPoll,
	}
}

// OldBatteryInfo resolves a code without consuming it and returns the battery
// currently mounted on the booked vehicle, for operator confirmation.
func (e *Engine) OldBatteryInfo(ctx context.Context, code string) (*models.BatteryInfo, error) {
	b, err := e.resolveBooking(ctx, code)
	if err != nil {
		return nil, err
	}
	battery, err := e.inv.VehicleBattery(ctx, b.VehicleID)
	if err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			return nil, ErrNoMountedBattery
		}
		return nil, err
	}
	info := battery.Info()
	return &info, nil
}

// NewBatteryInfo resolves a code without consuming it and returns the battery
// the engine would assign right now. The actual assignment happens at execute
// time; this is a preview.
func (e *Engine) NewBatteryInfo(ctx context.Context, code string) (*models.BatteryInfo, error) {
	b, err := e.resolveBooking(ctx, code)
	if err != nil {
		return nil, err
	}
	battery, err := e.inv.BestAvailableBattery(ctx, b.StationID)
	if err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			return nil, ErrNoBatteryAvailable
		}
		return nil, err
	}
	info := battery.Info()
	return &info, nil
}

// Execute runs the swap bound to a confirmation code exactly once.
//
// The code consumption is the serialization point: the single caller that
// observes the unconsumed code performs the exchange; concurrent and later
// callers get the recorded SwapTransaction back, whatever its outcome. The
// record is written IN_PROGRESS before the first battery moves, so a replay
// racing an in-flight exchange finds it and waits for the terminal outcome
// rather than inventing a second record.
func (e *Engine) Execute(ctx context.Context, code string) (*models.SwapTransaction, error) {
	res, err := e.registry.Consume(ctx, code)
	if err != nil {
		return nil, err
	}
	if res.Replay {
		return e.awaitTransaction(ctx, res.Binding.Code)
	}

	b, err := e.lifecycle.GetByID(ctx, res.Binding.BookingID)
	if err != nil {
		tx := e.recordFailure(ctx, code, nil, "booking not found")
		return tx, ErrBookingNotConfirmable
	}
	if !b.IsActive() {
		tx := e.recordFailure(ctx, code, b, fmt.Sprintf("booking status %s", b.Status))
		return tx, ErrBookingNotConfirmable
	}

	tx := models.SwapTransaction{
		ID:        uuid.NewString(),
		Code:      code,
		BookingID: b.ID,
		DriverID:  b.DriverID,
		VehicleID: b.VehicleID,
		StationID: b.StationID,
		Outcome:   models.SwapInProgress,
	}
	if err := e.txs.InsertSwapTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("record swap transaction: %w", err)
	}

	newBattery, err := e.inv.BestAvailableBattery(ctx, b.StationID)
	if err != nil {
		if errors.Is(err, inventory.ErrNotFound) {
			failed := e.settleFailure(ctx, tx.ID, code, "no battery available")
			return failed, ErrNoBatteryAvailable
		}
		failed := e.settleFailure(ctx, tx.ID, code, err.Error())
		return failed, err
	}

	var oldBattery *models.Battery
	oldBattery, err = e.inv.VehicleBattery(ctx, b.VehicleID)
	if err != nil {
		if !errors.Is(err, inventory.ErrNotFound) {
			failed := e.settleFailure(ctx, tx.ID, code, err.Error())
			return failed, err
		}
		// First swap for this vehicle: nothing to take back.
		oldBattery = nil
	}

	// New battery leaves station stock and binds to the vehicle.
	if _, err := e.inv.TransitionBattery(ctx, newBattery.ID,
		models.BatteryInStation, models.BatteryInTransit,
		bson.M{"vehicle_id": b.VehicleID, "station_id": nil, "mounted_at": nil}); err != nil {
		failed := e.settleFailure(ctx, tx.ID, code, "new battery state conflict")
		return failed, ErrStateConflict
	}

	// Old battery comes back into the station, or retires on low health.
	if oldBattery != nil {
		to := models.BatteryInStation
		set := bson.M{"station_id": b.StationID, "vehicle_id": "", "mounted_at": nil}
		if oldBattery.StateOfHealth < e.retireBelow {
			to = models.BatteryRetired
			set = bson.M{"station_id": nil, "vehicle_id": "", "mounted_at": nil}
		}
		if _, err := e.inv.TransitionBattery(ctx, oldBattery.ID,
			models.BatteryInTransit, to, set); err != nil {
			e.compensateNewBattery(ctx, newBattery, b)
			failed := e.settleFailure(ctx, tx.ID, code, "old battery state conflict")
			return failed, ErrStateConflict
		}
	}

	set := bson.M{
		"outcome":        models.SwapSuccess,
		"new_battery_id": newBattery.ID,
		"completed_at":   time.Now().UTC(),
	}
	if oldBattery != nil {
		set["old_battery_id"] = oldBattery.ID
	}
	final, err := e.txs.FinalizeSwapTransaction(ctx, tx.ID, set)
	if err != nil {
		if errors.Is(err, db.ErrConflict) {
			// A replayer outwaited us and settled the record as interrupted.
			// The exchange still happened; surface the stored outcome.
			log.WithField("transaction_id", tx.ID).
				Error("swap finished after its record was settled as interrupted")
			if stored, ferr := e.txs.FindSwapTransactionByCode(ctx, code); ferr == nil {
				return stored, nil
			}
		}
		return nil, fmt.Errorf("finalize swap transaction: %w", err)
	}

	if err := e.lifecycle.MarkCompleted(ctx, b.ID, final.ID); err != nil {
		// The physical exchange is done; a lifecycle race (e.g. the expiry
		// sweep won a PENDING booking mid-swap) must not fail the swap.
		log.WithError(err).WithField("booking_id", b.ID.Hex()).
			Warn("swap succeeded but booking could not be completed")
	}

	log.WithFields(log.Fields{
		"transaction_id": final.ID,
		"code":           code,
		"station_id":     b.StationID.Hex(),
		"vehicle_id":     b.VehicleID,
	}).Info("swap completed")
	return final, nil
}

// History returns the driver's swap transactions, newest first.
func (e *Engine) History(ctx context.Context, driverID string) ([]models.SwapTransaction, error) {
	return e.txs.FindSwapTransactionsByDriver(ctx, driverID)
}

func (e *Engine) resolveBooking(ctx context.Context, code string) (*models.Booking, error) {
	cc, err := e.registry.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}
	b, err := e.lifecycle.GetByID(ctx, cc.BookingID)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// awaitTransaction serves a consumed code from its stored transaction,
// polling while the record is still IN_PROGRESS. Only after the wait budget
// is spent does it treat the original exchange as interrupted.
func (e *Engine) awaitTransaction(ctx context.Context, code string) (*models.SwapTransaction, error) {
	deadline := time.Now().Add(e.replayWait)
	for {
		tx, err := e.txs.FindSwapTransactionByCode(ctx, code)
		if err == nil && tx.Outcome != models.SwapInProgress {
			return tx, nil
		}
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return e.settleInterrupted(ctx, code)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.replayPoll):
		}
	}
}

// settleInterrupted resolves a consumed code whose exchange never reached a
// terminal outcome within the wait budget: a crash between consumption and
// the record write leaves no record at all, a crash mid-exchange leaves an
// IN_PROGRESS one. Either way the code ends bound to a FAILED transaction,
// and the finalize compare-and-swap keeps concurrent settlers agreeing.
func (e *Engine) settleInterrupted(ctx context.Context, code string) (*models.SwapTransaction, error) {
	tx, err := e.txs.FindSwapTransactionByCode(ctx, code)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return nil, err
		}
		log.WithField("code", code).
			Warn("consumed code had no transaction record, recording failure")
		repaired := e.recordFailure(ctx, code, nil, "missing transaction record")
		if repaired == nil {
			return nil, fmt.Errorf("repair transaction record for code %s", code)
		}
		return repaired, nil
	}
	if tx.Outcome != models.SwapInProgress {
		return tx, nil
	}

	log.WithFields(log.Fields{"code": code, "transaction_id": tx.ID}).
		Warn("in-progress swap outwaited, settling as interrupted")
	final, err := e.txs.FinalizeSwapTransaction(ctx, tx.ID, bson.M{
		"outcome":        models.SwapFailed,
		"failure_reason": "swap interrupted",
		"completed_at":   time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, db.ErrConflict) {
			// The original caller (or another settler) got there first.
			return e.txs.FindSwapTransactionByCode(ctx, code)
		}
		return nil, err
	}
	return final, nil
}

// settleFailure moves the code's IN_PROGRESS record to FAILED. A conflict
// means a replayer already settled it; the stored record wins.
func (e *Engine) settleFailure(ctx context.Context, txID, code, reason string) *models.SwapTransaction {
	final, err := e.txs.FinalizeSwapTransaction(ctx, txID, bson.M{
		"outcome":        models.SwapFailed,
		"failure_reason": reason,
		"completed_at":   time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, db.ErrConflict) {
			if stored, ferr := e.txs.FindSwapTransactionByCode(ctx, code); ferr == nil {
				return stored
			}
		}
		log.WithError(err).WithField("code", code).
			Error("failed to settle FAILED swap transaction")
		return nil
	}
	log.WithFields(log.Fields{"code": code, "reason": reason}).
		Warn("swap failed")
	return final
}

// recordFailure writes a terminal FAILED transaction for failures that happen
// before the exchange starts. The unique index on code means a concurrent
// writer may win; the stored record is returned in that case.
func (e *Engine) recordFailure(ctx context.Context, code string, b *models.Booking, reason string) *models.SwapTransaction {
	tx := models.SwapTransaction{
		ID:            uuid.NewString(),
		Code:          code,
		Outcome:       models.SwapFailed,
		FailureReason: reason,
		CompletedAt:   time.Now().UTC(),
	}
	if b != nil {
		tx.BookingID = b.ID
		tx.DriverID = b.DriverID
		tx.VehicleID = b.VehicleID
		tx.StationID = b.StationID
	}
	if err := e.txs.InsertSwapTransaction(ctx, tx); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			if stored, ferr := e.txs.FindSwapTransactionByCode(ctx, code); ferr == nil {
				return stored
			}
		}
		log.WithError(err).WithField("code", code).
			Error("failed to record FAILED swap transaction")
		return nil
	}
	log.WithFields(log.Fields{"code": code, "reason": reason}).
		Warn("swap failed")
	return &tx
}

// compensateNewBattery undoes the new battery's IN_TRANSIT transition after
// the old-battery leg of the exchange conflicted. Best effort: a conflict
// here means someone else already moved the battery on.
func (e *Engine) compensateNewBattery(ctx context.Context, newBattery *models.Battery, b *models.Booking) {
	if _, err := e.inv.TransitionBattery(ctx, newBattery.ID,
		models.BatteryInTransit, models.BatteryInStation,
		bson.M{"station_id": b.StationID, "vehicle_id": "", "mounted_at": nil}); err != nil {
		log.WithError(err).WithField("battery_id", newBattery.ID.Hex()).
			Error("failed to return new battery to station stock")
	}
}
