package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/areuok/server/internal/model"
	"github.com/google/uuid"
)

// SupervisionRepo defines the interface for supervision request and relation
// operations. Requests are an audit trail: they move from pending to accepted
// or rejected and are never deleted.
type SupervisionRepo interface {
	CreateRequest(ctx context.Context, supervisorID, targetID uuid.UUID) (model.SupervisionRequest, error)
	PendingForTarget(ctx context.Context, targetID uuid.UUID) ([]model.SupervisionRequest, error)
	AcceptMostRecent(ctx context.Context, supervisorID, targetID uuid.UUID) error
	RejectMostRecent(ctx context.Context, supervisorID, targetID uuid.UUID) error
	RelationExists(ctx context.Context, supervisorID, targetID uuid.UUID) (bool, error)
	ListRelations(ctx context.Context, deviceID uuid.UUID) ([]model.SupervisionRelation, error)
	DeleteRelation(ctx context.Context, relationID uuid.UUID) error
}

type supervisionRepo struct {
	db *sql.DB
}

// NewSupervisionRepo creates a new SupervisionRepo instance
func NewSupervisionRepo(db *sql.DB) SupervisionRepo {
	return &supervisionRepo{db: db}
}

// CreateRequest inserts a new pending supervision request. Multiple pending
// requests for the same pair are permitted; Accept and Reject act on the most
// recently created one.
func (r *supervisionRepo) CreateRequest(ctx context.Context, supervisorID, targetID uuid.UUID) (model.SupervisionRequest, error) {
	query := `
		INSERT INTO supervision_requests (supervisor_id, target_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING request_id, supervisor_id, target_id, status, created_at
	`
	request, err := scanRequest(r.db.QueryRowContext(ctx, query, supervisorID, targetID))
	if err != nil {
		return model.SupervisionRequest{}, fmt.Errorf("failed to create supervision request: %w", err)
	}
	return request, nil
}

// PendingForTarget lists pending requests targeting a device, newest first
func (r *supervisionRepo) PendingForTarget(ctx context.Context, targetID uuid.UUID) ([]model.SupervisionRequest, error) {
	query := `
		SELECT request_id, supervisor_id, target_id, status, created_at
		FROM supervision_requests
		WHERE target_id = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending requests: %w", err)
	}
	defer rows.Close()

	requests := []model.SupervisionRequest{}
	for rows.Next() {
		var request model.SupervisionRequest
		var requestIDStr, supervisorIDStr, targetIDStr, status string
		if err := rows.Scan(&requestIDStr, &supervisorIDStr, &targetIDStr, &status, &request.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan request row: %w", err)
		}
		if err := parseRequestIDs(&request, requestIDStr, supervisorIDStr, targetIDStr); err != nil {
			return nil, err
		}
		request.Status = model.SupervisionStatus(status)
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate request rows: %w", err)
	}

	return requests, nil
}

// AcceptMostRecent marks the most recent pending request for the pair as
// accepted and creates the supervision relation. Both effects commit in one
// transaction or not at all. Returns ErrRelationExists if the pair already
// has a relation and ErrNoPendingRequest if nothing is pending.
func (r *supervisionRepo) AcceptMostRecent(ctx context.Context, supervisorID, targetID uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM supervision_relations
			WHERE supervisor_id = $1 AND target_id = $2
		)
	`, supervisorID, targetID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check existing relation: %w", err)
	}
	if exists {
		return ErrRelationExists
	}

	var requestIDStr string
	err = tx.QueryRowContext(ctx, `
		SELECT request_id
		FROM supervision_requests
		WHERE supervisor_id = $1 AND target_id = $2 AND status = 'pending'
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, supervisorID, targetID).Scan(&requestIDStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoPendingRequest
		}
		return fmt.Errorf("failed to find pending request: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE supervision_requests
		SET status = 'accepted'
		WHERE request_id = $1
	`, requestIDStr); err != nil {
		return fmt.Errorf("failed to accept request: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO supervision_relations (supervisor_id, target_id)
		VALUES ($1, $2)
	`, supervisorID, targetID); err != nil {
		return fmt.Errorf("failed to create relation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit accept: %w", err)
	}
	return nil
}

// RejectMostRecent marks the most recent pending request for the pair as
// rejected. Returns ErrNoPendingRequest if nothing is pending.
func (r *supervisionRepo) RejectMostRecent(ctx context.Context, supervisorID, targetID uuid.UUID) error {
	query := `
		UPDATE supervision_requests
		SET status = 'rejected'
		WHERE request_id = (
			SELECT request_id
			FROM supervision_requests
			WHERE supervisor_id = $1 AND target_id = $2 AND status = 'pending'
			ORDER BY created_at DESC
			LIMIT 1
		)
	`
	result, err := r.db.ExecContext(ctx, query, supervisorID, targetID)
	if err != nil {
		return fmt.Errorf("failed to reject request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNoPendingRequest
	}
	return nil
}

// RelationExists reports whether supervisorID currently supervises targetID
func (r *supervisionRepo) RelationExists(ctx context.Context, supervisorID, targetID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM supervision_relations
			WHERE supervisor_id = $1 AND target_id = $2
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, supervisorID, targetID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check relation: %w", err)
	}
	return exists, nil
}

// ListRelations lists relations where the device is either party, enriched
// with both device names
func (r *supervisionRepo) ListRelations(ctx context.Context, deviceID uuid.UUID) ([]model.SupervisionRelation, error) {
	query := `
		SELECT sr.relation_id, sr.supervisor_id, sr.target_id, sr.created_at,
		       d1.device_name AS supervisor_name,
		       d2.device_name AS target_name
		FROM supervision_relations sr
		LEFT JOIN devices d1 ON sr.supervisor_id = d1.device_id
		LEFT JOIN devices d2 ON sr.target_id = d2.device_id
		WHERE sr.supervisor_id = $1 OR sr.target_id = $1
		ORDER BY sr.created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()

	relations := []model.SupervisionRelation{}
	for rows.Next() {
		var relation model.SupervisionRelation
		var relationIDStr, supervisorIDStr, targetIDStr string
		if err := rows.Scan(
			&relationIDStr,
			&supervisorIDStr,
			&targetIDStr,
			&relation.CreatedAt,
			&relation.SupervisorName,
			&relation.TargetName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan relation row: %w", err)
		}
		if relation.RelationID, err = uuid.Parse(relationIDStr); err != nil {
			return nil, fmt.Errorf("failed to parse relation ID: %w", err)
		}
		if relation.SupervisorID, err = uuid.Parse(supervisorIDStr); err != nil {
			return nil, fmt.Errorf("failed to parse supervisor ID: %w", err)
		}
		if relation.TargetID, err = uuid.Parse(targetIDStr); err != nil {
			return nil, fmt.Errorf("failed to parse target ID: %w", err)
		}
		relations = append(relations, relation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate relation rows: %w", err)
	}

	return relations, nil
}

// DeleteRelation deletes a relation by id. Deleting an absent relation is
// not an error.
func (r *supervisionRepo) DeleteRelation(ctx context.Context, relationID uuid.UUID) error {
	query := `
		DELETE FROM supervision_relations
		WHERE relation_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, relationID); err != nil {
		return fmt.Errorf("failed to delete relation: %w", err)
	}
	return nil
}

func scanRequest(row *sql.Row) (model.SupervisionRequest, error) {
	var request model.SupervisionRequest
	var requestIDStr, supervisorIDStr, targetIDStr, status string

	err := row.Scan(&requestIDStr, &supervisorIDStr, &targetIDStr, &status, &request.CreatedAt)
	if err != nil {
		return model.SupervisionRequest{}, err
	}
	if err := parseRequestIDs(&request, requestIDStr, supervisorIDStr, targetIDStr); err != nil {
		return model.SupervisionRequest{}, err
	}
	request.Status = model.SupervisionStatus(status)
	return request, nil
}

func parseRequestIDs(request *model.SupervisionRequest, requestID, supervisorID, targetID string) error {
	var err error
	if request.RequestID, err = uuid.Parse(requestID); err != nil {
		return fmt.Errorf("failed to parse request ID: %w", err)
	}
	if request.SupervisorID, err = uuid.Parse(supervisorID); err != nil {
		return fmt.Errorf("failed to parse supervisor ID: %w", err)
	}
	if request.TargetID, err = uuid.Parse(targetID); err != nil {
		return fmt.Errorf("failed to parse target ID: %w", err)
	}
	return nil
}
