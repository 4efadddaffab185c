package streak

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/areuok/server/internal/apperr"
	"github.com/areuok/server/internal/event"
	"github.com/areuok/server/internal/model"
	"github.com/areuok/server/internal/repo"
	"github.com/google/uuid"
)

// Engine computes and persists the daily sign-in streak transition.
//
// Streak continuity is measured in UTC calendar days: a sign-in extends the
// streak only when the previous record is from exactly the prior UTC day.
// The transition is idempotent within a day and race-safe across server
// instances because uniqueness of (device, day) lives in the database, not
// in process-level locking.
type Engine struct {
	devices repo.DeviceRepo
	signins repo.SigninRepo
	bus     *event.Bus

	// now is replaceable in tests
	now func() time.Time
}

// Status describes a device's current sign-in state
type Status struct {
	Device     model.Device
	LastSignin *time.Time
	Streak     int
}

// NewEngine creates a streak engine publishing to the given bus
func NewEngine(devices repo.DeviceRepo, signins repo.SigninRepo, bus *event.Bus) *Engine {
	return &Engine{
		devices: devices,
		signins: signins,
		bus:     bus,
		now:     time.Now,
	}
}

// RecordSignin performs the daily check-in for a device and returns the
// record for today.
//
// A repeat sign-in on the same UTC day returns the existing record
// unchanged. A sign-in on the day after the latest record extends the
// streak; any larger gap, or no prior record, starts a new streak at 1.
// When two calls race on the first sign-in of a day, the database constraint
// picks a winner and the loser returns the winner's record.
func (e *Engine) RecordSignin(ctx context.Context, deviceID uuid.UUID) (model.SigninRecord, error) {
	now := e.now().UTC()

	// Liveness touch is best-effort: its failure must not abort the sign-in.
	if err := e.devices.TouchLastSeen(ctx, deviceID); err != nil {
		log.Printf("signin: touch last_seen_at for device %s: %v", deviceID, err)
	}

	record, err := e.signins.GetForDay(ctx, deviceID, now)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.SigninRecord{}, apperr.Internal(err)
	}

	streak := 1
	last, err := e.signins.GetLatest(ctx, deviceID)
	switch {
	case err == nil:
		if sameUTCDay(last.Date, now.AddDate(0, 0, -1)) {
			streak = last.Streak + 1
		}
	case errors.Is(err, repo.ErrNotFound):
		// first-ever sign-in
	default:
		return model.SigninRecord{}, apperr.Internal(err)
	}

	record, err = e.signins.Insert(ctx, deviceID, now, streak)
	if errors.Is(err, repo.ErrDuplicateDay) {
		// Lost the race to a concurrent sign-in: the winner's record is the
		// record for today.
		record, err = e.signins.GetForDay(ctx, deviceID, now)
		if err != nil {
			return model.SigninRecord{}, apperr.Internal(err)
		}
		return record, nil
	}
	if err != nil {
		return model.SigninRecord{}, apperr.Internal(err)
	}

	e.publish(ctx, deviceID, now)

	return record, nil
}

// publish broadcasts the sign-in event. Nothing here may fail the check-in:
// a device lookup error is logged and the event skipped, and publishing to a
// bus with zero subscribers is a no-op.
func (e *Engine) publish(ctx context.Context, deviceID uuid.UUID, at time.Time) {
	device, err := e.devices.GetByID(ctx, deviceID)
	if err != nil {
		log.Printf("signin: load device %s for event: %v", deviceID, err)
		return
	}
	e.bus.Publish(model.SigninEvent{
		DeviceID:   deviceID,
		DeviceName: device.DeviceName,
		Time:       at,
	})
}

// Status returns the device's profile fields together with its most recent
// sign-in time and streak. A device with no records has streak 0.
func (e *Engine) Status(ctx context.Context, deviceID uuid.UUID) (Status, error) {
	device, err := e.devices.GetByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Status{}, apperr.NotFound("Device not found")
		}
		return Status{}, apperr.Internal(err)
	}

	status := Status{Device: device}

	last, err := e.signins.GetLatest(ctx, deviceID)
	switch {
	case err == nil:
		lastSignin := last.Date
		status.LastSignin = &lastSignin
		status.Streak = last.Streak
	case errors.Is(err, repo.ErrNotFound):
	default:
		return Status{}, apperr.Internal(err)
	}

	return status, nil
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
