package supervision

import (
	"context"

	"github.com/areuok/server/internal/repo"
	"github.com/google/uuid"
)

// Directory answers whether one device is a registered supervisor of another.
// It is consulted once per event per open subscriber connection, so
// implementations must be safe for concurrent use.
type Directory interface {
	IsSupervisorOf(ctx context.Context, supervisorID, targetID uuid.UUID) (bool, error)
}

type repoDirectory struct {
	supervisions repo.SupervisionRepo
}

// NewDirectory creates a Directory that queries the relation store per call
func NewDirectory(supervisions repo.SupervisionRepo) Directory {
	return &repoDirectory{supervisions: supervisions}
}

func (d *repoDirectory) IsSupervisorOf(ctx context.Context, supervisorID, targetID uuid.UUID) (bool, error) {
	return d.supervisions.RelationExists(ctx, supervisorID, targetID)
}
