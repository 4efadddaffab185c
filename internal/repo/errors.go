package repo

import "errors"

var (
	// ErrNotFound is returned when a queried row does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateDay is returned when inserting a signin record for a
	// (device, day) pair that already has one. Callers treat this as losing
	// a race to a concurrent sign-in, not as a failure.
	ErrDuplicateDay = errors.New("signin record already exists for this day")

	// ErrRelationExists is returned when accepting a request whose relation
	// already exists
	ErrRelationExists = errors.New("supervision relation already exists")

	// ErrNoPendingRequest is returned when no pending supervision request
	// matches the given pair
	ErrNoPendingRequest = errors.New("no pending supervision request")
)
