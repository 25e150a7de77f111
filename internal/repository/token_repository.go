package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
	"github.com/maktaba-platform/be-legal-deposit/internal/database"
)

// TokenRepository manages confirmation token rows. The token string is the
// only credential; rows are never deleted, only consumed.
type TokenRepository struct {
	db *database.DB
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db *database.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create persists a freshly issued token.
func (r *TokenRepository) Create(ctx context.Context, token *ConfirmationToken) error {
	query := `
		INSERT INTO confirmation_tokens
		    (party_id, request_id, token, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, issued_at
	`

	err := r.db.QueryRow(ctx, query,
		token.PartyID,
		token.RequestID,
		token.Token,
		token.ExpiresAt,
	).Scan(&token.ID, &token.IssuedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create confirmation token")
	}
	return nil
}

// GetByToken looks a token up by its opaque string.
func (r *TokenRepository) GetByToken(ctx context.Context, token string) (*ConfirmationToken, error) {
	query := `
		SELECT id, party_id, request_id, token,
		       issued_at, expires_at, consumed, consumed_at
		FROM confirmation_tokens
		WHERE token = $1
	`

	t := &ConfirmationToken{}
	err := r.db.QueryRow(ctx, query, token).Scan(
		&t.ID,
		&t.PartyID,
		&t.RequestID,
		&t.Token,
		&t.IssuedAt,
		&t.ExpiresAt,
		&t.Consumed,
		&t.ConsumedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, apperrors.New(apperrors.CodeNotFound, "confirmation not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get confirmation token")
	}
	return t, nil
}

// Consume flips consumed false → true in a single conditional update.
// Exactly one concurrent caller wins; the rest get a conflict.
func (r *TokenRepository) Consume(ctx context.Context, id string) error {
	query := `
		UPDATE confirmation_tokens
		SET consumed    = TRUE,
		    consumed_at = NOW()
		WHERE id = $1
		  AND consumed = FALSE
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.Conflict("this confirmation was already processed")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to consume confirmation token")
	}
	return nil
}
