package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
	"github.com/maktaba-platform/be-legal-deposit/internal/logger"
	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
)

// PartyInput names one collaborator whose approval a request needs.
type PartyInput struct {
	Role        repository.PartyRole `json:"role"`
	UserID      *string              `json:"user_id,omitempty"`
	Email       string               `json:"email"`
	IsInitiator bool                 `json:"is_initiator"`
}

// RegistryService is the party registry: it resolves which persons are
// attached to a request and their required approval role.
type RegistryService struct {
	parties  PartyStore
	requests RequestStore
	log      *logger.Logger
}

// NewRegistryService creates a RegistryService.
func NewRegistryService(parties PartyStore, requests RequestStore, log *logger.Logger) *RegistryService {
	return &RegistryService{parties: parties, requests: requests, log: log}
}

// AttachParties attaches the named collaborators to a request. Idempotent:
// re-attaching the same (role, email) pairs refreshes rather than
// duplicates. Validation happens before any write.
func (s *RegistryService) AttachParties(ctx context.Context, requestID string, inputs []PartyInput) ([]*repository.Party, error) {
	if len(inputs) == 0 {
		return nil, apperrors.InvalidInput("parties", "a request needs at least one party")
	}

	initiators := 0
	for _, in := range inputs {
		if !in.Role.Valid() {
			return nil, apperrors.InvalidInput("role",
				fmt.Sprintf("unknown role %q, expected editor, printer or producer", in.Role))
		}
		if strings.TrimSpace(in.Email) == "" {
			return nil, apperrors.InvalidInput("email", "party email is required")
		}
		if in.IsInitiator {
			initiators++
		}
	}
	if initiators > 1 {
		return nil, apperrors.Conflict("more than one party claims to be the initiator")
	}

	if _, err := s.requests.GetByID(ctx, requestID); err != nil {
		return nil, err
	}

	parties := make([]*repository.Party, 0, len(inputs))
	for _, in := range inputs {
		parties = append(parties, &repository.Party{
			RequestID:   requestID,
			UserID:      in.UserID,
			Email:       strings.ToLower(strings.TrimSpace(in.Email)),
			Role:        in.Role,
			IsInitiator: in.IsInitiator,
			Status:      repository.ApprovalPending,
		})
	}

	if err := s.parties.Upsert(ctx, parties); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", requestID).
		Int("parties", len(parties)).
		Msg("parties attached to request")

	return parties, nil
}

// ListParties returns all parties for a request ordered by creation.
func (s *RegistryService) ListParties(ctx context.Context, requestID string) ([]*repository.Party, error) {
	return s.parties.ListByRequest(ctx, requestID)
}

// GetPendingForUser returns the pending approvals across all requests where
// the user is a named party. Backs the pending-confirmations inbox.
func (s *RegistryService) GetPendingForUser(ctx context.Context, userID string) ([]*repository.Party, error) {
	return s.parties.GetPendingForUser(ctx, userID)
}
