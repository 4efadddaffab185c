package model

import (
	"time"

	"github.com/google/uuid"
)

// DeviceMode distinguishes devices that sign in from devices that supervise
type DeviceMode string

const (
	ModeSignin     DeviceMode = "signin"
	ModeSupervisor DeviceMode = "supervisor"
)

// Device represents a registered device
type Device struct {
	ID                uuid.UUID
	DeviceName        string
	IMEI              *string
	Mode              DeviceMode
	CreatedAt         time.Time
	LastSeenAt        time.Time
	LastNameUpdatedAt *time.Time
}

// SigninRecord is one day's check-in for a device. At most one record exists
// per device per UTC calendar day; records are never updated or deleted.
type SigninRecord struct {
	DeviceID uuid.UUID
	Date     time.Time
	Streak   int
}

// SupervisionStatus is the lifecycle state of a supervision request
type SupervisionStatus string

const (
	StatusPending  SupervisionStatus = "pending"
	StatusAccepted SupervisionStatus = "accepted"
	StatusRejected SupervisionStatus = "rejected"
)

// SupervisionRequest is a proposal to create a supervision relation.
// Requests are kept after acceptance or rejection as an audit trail.
type SupervisionRequest struct {
	RequestID    uuid.UUID
	SupervisorID uuid.UUID
	TargetID     uuid.UUID
	Status       SupervisionStatus
	CreatedAt    time.Time
}

// SupervisionRelation is a standing, directional permission letting the
// supervisor observe the target's sign-in events
type SupervisionRelation struct {
	RelationID     uuid.UUID
	SupervisorID   uuid.UUID
	TargetID       uuid.UUID
	SupervisorName *string
	TargetName     *string
	CreatedAt      *time.Time
}

// SigninEvent is the ephemeral value broadcast on the event bus when a device
// signs in. It is never persisted.
type SigninEvent struct {
	DeviceID   uuid.UUID `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Time       time.Time `json:"time"`
}
