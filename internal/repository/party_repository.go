package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
	"github.com/maktaba-platform/be-legal-deposit/internal/database"
)

// PartyRepository handles reads and writes on request parties.
type PartyRepository struct {
	db *database.DB
}

// NewPartyRepository creates a new PartyRepository.
func NewPartyRepository(db *database.DB) *PartyRepository {
	return &PartyRepository{db: db}
}

// Upsert inserts the given parties for a request, or refreshes existing rows
// matched on (request_id, role, email). Re-attaching the same collaborators
// is a no-op apart from updated_at, which makes AttachParties idempotent.
func (r *PartyRepository) Upsert(ctx context.Context, parties []*Party) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO request_parties
			    (request_id, user_id, email, role, is_initiator, status)
			VALUES ($1, $2, $3, $4::party_role, $5, $6::approval_status)
			ON CONFLICT (request_id, role, email) DO UPDATE
			SET user_id      = EXCLUDED.user_id,
			    is_initiator = EXCLUDED.is_initiator,
			    updated_at   = NOW()
			RETURNING id, status, created_at, updated_at
		`

		for _, party := range parties {
			err := tx.QueryRow(ctx, query,
				party.RequestID,
				party.UserID,
				party.Email,
				party.Role,
				party.IsInitiator,
				party.Status,
			).Scan(&party.ID, &party.Status, &party.CreatedAt, &party.UpdatedAt)
			if err != nil {
				return apperrors.Wrap(err, apperrors.CodeInternal, "failed to upsert party")
			}
		}
		return nil
	})
}

// GetByID retrieves a single party.
func (r *PartyRepository) GetByID(ctx context.Context, id string) (*Party, error) {
	query := `
		SELECT id, request_id, user_id, email, role, is_initiator,
		       status, comment, decided_at, notified_at,
		       created_at, updated_at
		FROM request_parties
		WHERE id = $1
	`

	party, err := r.scanParty(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("party", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get party")
	}
	return party, nil
}

// ListByRequest returns all parties for a request ordered by creation.
func (r *PartyRepository) ListByRequest(ctx context.Context, requestID string) ([]*Party, error) {
	query := `
		SELECT id, request_id, user_id, email, role, is_initiator,
		       status, comment, decided_at, notified_at,
		       created_at, updated_at
		FROM request_parties
		WHERE request_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list parties")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetPendingForUser returns all pending parties across requests where the
// user is named, oldest first. Backs the pending-approvals inbox.
func (r *PartyRepository) GetPendingForUser(ctx context.Context, userID string) ([]*Party, error) {
	query := `
		SELECT p.id, p.request_id, p.user_id, p.email, p.role, p.is_initiator,
		       p.status, p.comment, p.decided_at, p.notified_at,
		       p.created_at, p.updated_at
		FROM request_parties p
		JOIN deposit_requests d ON d.id = p.request_id
		WHERE p.user_id = $1
		  AND p.status = 'pending'
		  AND d.status = 'en_attente_validation_b'
		ORDER BY p.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get pending confirmations")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// RecordDecision applies a party's approve/reject decision with a
// compare-and-swap on the pending status. Zero matched rows means the
// decision was already recorded.
func (r *PartyRepository) RecordDecision(ctx context.Context, id string, decision ApprovalStatus, comment *string) error {
	query := `
		UPDATE request_parties
		SET status     = $2::approval_status,
		    comment    = $3,
		    decided_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, decision, comment).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.Conflict("this confirmation was already processed")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to record party decision")
	}
	return nil
}

// MarkNotified stamps the moment an invitation was sent to the party.
func (r *PartyRepository) MarkNotified(ctx context.Context, id string) error {
	query := `
		UPDATE request_parties
		SET notified_at = NOW(),
		    updated_at  = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("party", id)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to mark party notified")
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type partyScanner interface {
	Scan(dest ...any) error
}

func (r *PartyRepository) scanParty(row partyScanner) (*Party, error) {
	p := &Party{}
	err := row.Scan(
		&p.ID,
		&p.RequestID,
		&p.UserID,
		&p.Email,
		&p.Role,
		&p.IsInitiator,
		&p.Status,
		&p.Comment,
		&p.DecidedAt,
		&p.NotifiedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PartyRepository) scanRows(rows pgx.Rows) ([]*Party, error) {
	var parties []*Party
	for rows.Next() {
		p, err := r.scanParty(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan party")
		}
		parties = append(parties, p)
	}
	return parties, nil
}
