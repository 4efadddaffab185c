package supervision

import (
	"context"
	"errors"

	"github.com/areuok/server/internal/apperr"
	"github.com/areuok/server/internal/model"
	"github.com/areuok/server/internal/repo"
	"github.com/google/uuid"
)

// Service implements the supervision request workflow: requests are created
// pending and end up accepted (which also creates the relation) or rejected.
// It is the sole writer of the relations the Directory reads.
type Service struct {
	supervisions repo.SupervisionRepo
}

// NewService creates a supervision workflow service
func NewService(supervisions repo.SupervisionRepo) *Service {
	return &Service{supervisions: supervisions}
}

// Request creates a new pending supervision request. Existing pending
// requests for the same pair are left alone; Accept and Reject operate on
// the most recent one.
func (s *Service) Request(ctx context.Context, supervisorID, targetID uuid.UUID) (model.SupervisionRequest, error) {
	request, err := s.supervisions.CreateRequest(ctx, supervisorID, targetID)
	if err != nil {
		return model.SupervisionRequest{}, apperr.Internal(err)
	}
	return request, nil
}

// Pending lists pending requests targeting the given device, newest first
func (s *Service) Pending(ctx context.Context, targetID uuid.UUID) ([]model.SupervisionRequest, error) {
	requests, err := s.supervisions.PendingForTarget(ctx, targetID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return requests, nil
}

// Accept marks the most recent pending request for the pair as accepted and
// creates the supervision relation, atomically.
func (s *Service) Accept(ctx context.Context, supervisorID, targetID uuid.UUID) error {
	err := s.supervisions.AcceptMostRecent(ctx, supervisorID, targetID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrRelationExists):
		return apperr.BadRequest("Supervision relation already exists")
	case errors.Is(err, repo.ErrNoPendingRequest):
		return apperr.NotFound("Pending supervision request not found")
	default:
		return apperr.Internal(err)
	}
}

// Reject marks the most recent pending request for the pair as rejected
func (s *Service) Reject(ctx context.Context, supervisorID, targetID uuid.UUID) error {
	err := s.supervisions.RejectMostRecent(ctx, supervisorID, targetID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNoPendingRequest):
		return apperr.NotFound("Pending supervision request not found")
	default:
		return apperr.Internal(err)
	}
}

// List returns relations where the device is either party, with both device
// names attached
func (s *Service) List(ctx context.Context, deviceID uuid.UUID) ([]model.SupervisionRelation, error) {
	relations, err := s.supervisions.ListRelations(ctx, deviceID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return relations, nil
}

// Remove deletes a relation. Removing an already-absent relation succeeds,
// consistent with the general deletion policy.
func (s *Service) Remove(ctx context.Context, relationID uuid.UUID) error {
	if err := s.supervisions.DeleteRelation(ctx, relationID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}
