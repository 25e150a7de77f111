package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
	"github.com/maktaba-platform/be-legal-deposit/internal/database"
)

// WorkflowStepsRepository manages the per-request step pipeline. Step rows
// are created together in one transaction and their numbering is fixed from
// then on; only status, handler, comments and timestamps change.
type WorkflowStepsRepository struct {
	db *database.DB
}

// NewWorkflowStepsRepository creates a new WorkflowStepsRepository.
func NewWorkflowStepsRepository(db *database.DB) *WorkflowStepsRepository {
	return &WorkflowStepsRepository{db: db}
}

// CreateSteps inserts the full step list for a request in one transaction.
// Fails with a conflict when steps already exist (idempotency guard).
func (r *WorkflowStepsRepository) CreateSteps(ctx context.Context, requestID string, stepNames []string) ([]*WorkflowStep, error) {
	steps := make([]*WorkflowStep, 0, len(stepNames))

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM workflow_steps WHERE request_id = $1)`,
			requestID,
		).Scan(&exists)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to check existing workflow")
		}
		if exists {
			return apperrors.Conflict("workflow already exists for this request")
		}

		query := `
			INSERT INTO workflow_steps
			    (request_id, step_number, step_name, status)
			VALUES ($1, $2, $3, $4::step_status)
			RETURNING id, created_at, updated_at
		`

		for i, name := range stepNames {
			step := &WorkflowStep{
				RequestID:  requestID,
				StepNumber: i + 1,
				StepName:   name,
				Status:     StepPending,
			}
			err := tx.QueryRow(ctx, query,
				step.RequestID,
				step.StepNumber,
				step.StepName,
				step.Status,
			).Scan(&step.ID, &step.CreatedAt, &step.UpdatedAt)
			if err != nil {
				return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create workflow step")
			}
			steps = append(steps, step)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return steps, nil
}

// GetByRequest returns all steps for a request ordered by step number.
func (r *WorkflowStepsRepository) GetByRequest(ctx context.Context, requestID string) ([]*WorkflowStep, error) {
	query := `
		SELECT id, request_id, step_number, step_name, status,
		       handler_id, comments, processed_at,
		       created_at, updated_at
		FROM workflow_steps
		WHERE request_id = $1
		ORDER BY step_number ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get workflow steps")
	}
	defer rows.Close()

	var steps []*WorkflowStep
	for rows.Next() {
		step, err := r.scanStep(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan workflow step")
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// UpdateStep updates exactly one step row. Setting the step en_cours is
// conditional on no other step of the request being en_cours; setting it
// termine stamps processed_at.
func (r *WorkflowStepsRepository) UpdateStep(
	ctx context.Context,
	requestID string,
	stepNumber int,
	status StepStatus,
	comments *string,
	handlerID *string,
) (*WorkflowStep, error) {
	query := `
		UPDATE workflow_steps
		SET status       = $3::step_status,
		    comments     = COALESCE($4, comments),
		    handler_id   = COALESCE($5, handler_id),
		    processed_at = CASE WHEN $3::step_status = 'termine' THEN NOW() ELSE processed_at END,
		    updated_at   = NOW()
		WHERE request_id = $1
		  AND step_number = $2
		  AND ($3::step_status <> 'en_cours' OR NOT EXISTS (
		        SELECT 1 FROM workflow_steps
		        WHERE request_id = $1
		          AND status = 'en_cours'
		          AND step_number <> $2))
		RETURNING id, request_id, step_number, step_name, status,
		          handler_id, comments, processed_at, created_at, updated_at
	`

	step, err := r.scanStep(r.db.QueryRow(ctx, query, requestID, stepNumber, status, comments, handlerID))
	if err == pgx.ErrNoRows {
		return nil, r.updateConflict(ctx, requestID, stepNumber)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to update workflow step")
	}
	return step, nil
}

// CompleteCurrentStep marks the request's en_cours step termine with the
// given comment. No-op when no step is running.
func (r *WorkflowStepsRepository) CompleteCurrentStep(ctx context.Context, requestID string, comment *string) error {
	query := `
		UPDATE workflow_steps
		SET status       = 'termine'::step_status,
		    comments     = COALESCE($2, comments),
		    processed_at = NOW(),
		    updated_at   = NOW()
		WHERE request_id = $1
		  AND status = 'en_cours'
	`

	_, err := r.db.Exec(ctx, query, requestID, comment)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to complete current step")
	}
	return nil
}

// updateConflict distinguishes a missing step from the one-running-step
// invariant after a conditional update matched zero rows.
func (r *WorkflowStepsRepository) updateConflict(ctx context.Context, requestID string, stepNumber int) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM workflow_steps WHERE request_id = $1 AND step_number = $2)`,
		requestID, stepNumber,
	).Scan(&exists)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to update workflow step")
	}
	if !exists {
		return apperrors.NotFound("workflow_step", fmt.Sprintf("%s/%d", requestID, stepNumber))
	}
	return apperrors.Conflict("another step is already in progress for this request")
}

// ── scan helper ───────────────────────────────────────────────────────────────

type stepScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowStepsRepository) scanStep(row stepScanner) (*WorkflowStep, error) {
	s := &WorkflowStep{}
	err := row.Scan(
		&s.ID,
		&s.RequestID,
		&s.StepNumber,
		&s.StepName,
		&s.Status,
		&s.HandlerID,
		&s.Comments,
		&s.ProcessedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
