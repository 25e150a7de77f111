package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
	"github.com/maktaba-platform/be-legal-deposit/internal/database"
)

// RequestRepository handles deposit request data operations.
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new request repository.
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new draft request.
func (r *RequestRepository) Create(ctx context.Context, req *DepositRequest) error {
	var metadataJSON []byte
	if req.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(req.Metadata)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal request metadata")
		}
	}

	query := `
		INSERT INTO deposit_requests
		    (request_number, owner_id, title, author, support_type,
		     workflow_type, status, metadata)
		VALUES ($1, $2, $3, $4, $5,
		        $6::workflow_type, $7::request_status, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		req.RequestNumber,
		req.OwnerID,
		req.Title,
		req.Author,
		req.SupportType,
		req.WorkflowType,
		req.Status,
		metadataJSON,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create deposit request")
	}
	return nil
}

// GetByID retrieves a request by its primary key.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*DepositRequest, error) {
	query := `
		SELECT id, request_number, owner_id, title, author, support_type,
		       workflow_type, status,
		       dl_number, isbn, issn, metadata,
		       submitted_at, created_at, updated_at
		FROM deposit_requests
		WHERE id = $1
	`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("deposit_request", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get deposit request")
	}
	return req, nil
}

// ListByOwner returns all requests created by a user, newest first.
func (r *RequestRepository) ListByOwner(ctx context.Context, ownerID string) ([]*DepositRequest, error) {
	query := `
		SELECT id, request_number, owner_id, title, author, support_type,
		       workflow_type, status,
		       dl_number, isbn, issn, metadata,
		       submitted_at, created_at, updated_at
		FROM deposit_requests
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list deposit requests")
	}
	defer rows.Close()

	var requests []*DepositRequest
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan deposit request")
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// TransitionStatus moves a request from one status to another with a
// conditional update. A losing concurrent writer (or an out-of-order call)
// gets a conflict error naming the current and attempted states instead of
// silently overwriting.
func (r *RequestRepository) TransitionStatus(ctx context.Context, id string, from, to RequestStatus) error {
	query := `
		UPDATE deposit_requests
		SET status       = $3::request_status,
		    submitted_at = CASE WHEN $3::request_status = 'soumis' THEN NOW() ELSE submitted_at END,
		    updated_at   = NOW()
		WHERE id = $1
		  AND status = $2::request_status
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, from, to).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return r.transitionConflict(ctx, id, to)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to transition request status")
	}
	return nil
}

// AttributeNumbers stamps the attributed numbers while moving the request
// from en_cours to attribue in a single conditional write.
func (r *RequestRepository) AttributeNumbers(ctx context.Context, id string, dlNumber, isbn, issn *string) error {
	query := `
		UPDATE deposit_requests
		SET status     = $5::request_status,
		    dl_number  = $2,
		    isbn       = $3,
		    issn       = $4,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = $6::request_status
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, dlNumber, isbn, issn,
		StatusNumbersAttributed, StatusInProgress).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return r.transitionConflict(ctx, id, StatusNumbersAttributed)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to attribute numbers")
	}
	return nil
}

// transitionConflict distinguishes an unknown request from an out-of-order
// transition after a conditional update matched zero rows.
func (r *RequestRepository) transitionConflict(ctx context.Context, id string, attempted RequestStatus) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return apperrors.Conflict(fmt.Sprintf(
		"invalid transition: request is '%s', cannot move to '%s'", current.Status, attempted))
}

// ── scan helper ───────────────────────────────────────────────────────────────

type requestScanner interface {
	Scan(dest ...any) error
}

func (r *RequestRepository) scanRequest(row requestScanner) (*DepositRequest, error) {
	req := &DepositRequest{}
	var metadataJSON []byte

	err := row.Scan(
		&req.ID,
		&req.RequestNumber,
		&req.OwnerID,
		&req.Title,
		&req.Author,
		&req.SupportType,
		&req.WorkflowType,
		&req.Status,
		&req.DLNumber,
		&req.ISBN,
		&req.ISSN,
		&metadataJSON,
		&req.SubmittedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &req.Metadata); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to unmarshal request metadata")
		}
	}
	return req, nil
}
