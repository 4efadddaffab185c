package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/areuok/server/internal/model"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// dayLayout formats a UTC calendar day for the signin_records.day column
const dayLayout = "2006-01-02"

// SigninRepo defines the interface for signin record operations.
// Records are insert-only: uniqueness of (device, UTC day) is enforced by the
// database so it holds across concurrent server instances.
type SigninRepo interface {
	GetForDay(ctx context.Context, deviceID uuid.UUID, day time.Time) (model.SigninRecord, error)
	GetLatest(ctx context.Context, deviceID uuid.UUID) (model.SigninRecord, error)
	Insert(ctx context.Context, deviceID uuid.UUID, at time.Time, streak int) (model.SigninRecord, error)
}

type signinRepo struct {
	db *sql.DB
}

// NewSigninRepo creates a new SigninRepo instance
func NewSigninRepo(db *sql.DB) SigninRepo {
	return &signinRepo{db: db}
}

// GetForDay retrieves the record for the given device and UTC calendar day.
// Returns ErrNotFound if the device has not signed in that day.
func (r *signinRepo) GetForDay(ctx context.Context, deviceID uuid.UUID, day time.Time) (model.SigninRecord, error) {
	query := `
		SELECT device_id, date, streak
		FROM signin_records
		WHERE device_id = $1 AND day = $2
	`
	record, err := r.scanRecord(r.db.QueryRowContext(ctx, query, deviceID, day.UTC().Format(dayLayout)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SigninRecord{}, ErrNotFound
		}
		return model.SigninRecord{}, fmt.Errorf("failed to query signin record: %w", err)
	}
	return record, nil
}

// GetLatest retrieves the device's most recent record on any day.
// Returns ErrNotFound if the device has never signed in.
func (r *signinRepo) GetLatest(ctx context.Context, deviceID uuid.UUID) (model.SigninRecord, error) {
	query := `
		SELECT device_id, date, streak
		FROM signin_records
		WHERE device_id = $1
		ORDER BY date DESC
		LIMIT 1
	`
	record, err := r.scanRecord(r.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SigninRecord{}, ErrNotFound
		}
		return model.SigninRecord{}, fmt.Errorf("failed to query latest signin record: %w", err)
	}
	return record, nil
}

// Insert creates the record for the UTC day of at. Returns ErrDuplicateDay
// when a concurrent sign-in already created one for the same day.
func (r *signinRepo) Insert(ctx context.Context, deviceID uuid.UUID, at time.Time, streak int) (model.SigninRecord, error) {
	query := `
		INSERT INTO signin_records (device_id, date, day, streak)
		VALUES ($1, $2, $3, $4)
		RETURNING device_id, date, streak
	`
	record, err := r.scanRecord(r.db.QueryRowContext(ctx, query, deviceID, at, at.UTC().Format(dayLayout), streak))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return model.SigninRecord{}, ErrDuplicateDay
		}
		return model.SigninRecord{}, fmt.Errorf("failed to insert signin record: %w", err)
	}
	return record, nil
}

func (r *signinRepo) scanRecord(row *sql.Row) (model.SigninRecord, error) {
	var record model.SigninRecord
	var idStr string

	err := row.Scan(&idStr, &record.Date, &record.Streak)
	if err != nil {
		return model.SigninRecord{}, err
	}

	record.DeviceID, err = uuid.Parse(idStr)
	if err != nil {
		return model.SigninRecord{}, fmt.Errorf("failed to parse device ID: %w", err)
	}
	return record, nil
}
