package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
	"github.com/maktaba-platform/be-legal-deposit/internal/logger"
	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
)

// tokenBytes gives 256 bits of entropy per token.
const tokenBytes = 32

// RedeemResult is returned after a successful confirmation.
type RedeemResult struct {
	Party         *repository.Party
	Aggregate     *repository.AggregateApproval
	RequestStatus repository.RequestStatus
}

// TokenService issues and redeems the single-use confirmation tokens that
// let external parties decide on their portion of a request without an
// account. The token string is the only credential.
type TokenService struct {
	tokens   TokenStore
	parties  PartyStore
	approval *ApprovalService
	notifier *Notifier
	limiter  *redeemLimiter
	ttl      time.Duration
	baseURL  string
	log      *logger.Logger
}

// NewTokenService creates a TokenService. ttl is the token validity window;
// baseURL prefixes the confirmation links sent to parties.
func NewTokenService(
	tokens TokenStore,
	parties PartyStore,
	approval *ApprovalService,
	notifier *Notifier,
	ttl time.Duration,
	baseURL string,
	log *logger.Logger,
) *TokenService {
	return &TokenService{
		tokens:   tokens,
		parties:  parties,
		approval: approval,
		notifier: notifier,
		limiter:  newRedeemLimiter(5, time.Minute),
		ttl:      ttl,
		baseURL:  baseURL,
		log:      log,
	}
}

// Issue creates a confirmation token for a party and sends the invitation.
// Fails when the party already decided.
func (s *TokenService) Issue(ctx context.Context, partyID string) (*repository.ConfirmationToken, error) {
	party, err := s.parties.GetByID(ctx, partyID)
	if err != nil {
		return nil, err
	}
	if party.Status != repository.ApprovalPending {
		return nil, apperrors.Conflict("this party has already confirmed")
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to generate token")
	}

	token := &repository.ConfirmationToken{
		PartyID:   party.ID,
		RequestID: party.RequestID,
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		ExpiresAt: time.Now().Add(s.ttl),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, err
	}

	if err := s.parties.MarkNotified(ctx, party.ID); err != nil {
		s.log.Warn().Err(err).Str("party_id", party.ID).Msg("failed to stamp party notification time")
	}

	link := fmt.Sprintf("%s/confirmations/%s", s.baseURL, token.Token)
	recipientID := ""
	if party.UserID != nil {
		recipientID = *party.UserID
	}
	s.notifier.Notify(ctx, recipientID, party.Email, EventPartyInvited,
		"Confirmation demandée",
		fmt.Sprintf("Votre validation est requise en tant que %s.", party.Role),
		party.RequestID, &link)

	s.log.Info().
		Str("party_id", party.ID).
		Str("request_id", party.RequestID).
		Time("expires_at", token.ExpiresAt).
		Msg("confirmation token issued")

	return token, nil
}

// Redeem applies an external party's decision through their token. The
// token is consumed with a compare-and-swap, so concurrent redemptions of
// the same token apply exactly once; losers get a conflict. Expiry is
// checked on every attempt against the stored expires_at, never cached.
func (s *TokenService) Redeem(ctx context.Context, tokenStr string, decision repository.ApprovalStatus, comment *string) (*RedeemResult, error) {
	if !s.limiter.allow(tokenStr) {
		return nil, apperrors.New(apperrors.CodeRateLimited, "too many attempts, retry later")
	}
	if decision != repository.ApprovalApproved && decision != repository.ApprovalRejected {
		return nil, apperrors.InvalidInput("decision", "expected 'approved' or 'rejected'")
	}

	token, err := s.tokens.GetByToken(ctx, tokenStr)
	if err != nil {
		return nil, err
	}
	if time.Now().After(token.ExpiresAt) {
		return nil, apperrors.Expired("this confirmation has expired, ask for a new invitation")
	}
	if err := s.tokens.Consume(ctx, token.ID); err != nil {
		return nil, err
	}
	if err := s.parties.RecordDecision(ctx, token.PartyID, decision, comment); err != nil {
		return nil, err
	}

	party, err := s.parties.GetByID(ctx, token.PartyID)
	if err != nil {
		return nil, err
	}

	status, err := s.approval.OnPartyDecision(ctx, token.RequestID)
	if err != nil {
		return nil, err
	}
	agg, err := s.approval.ComputeAggregate(ctx, token.RequestID)
	if err != nil {
		return nil, err
	}

	eventType := EventPartyApproved
	if decision == repository.ApprovalRejected {
		eventType = EventPartyRejected
	}
	s.notifyInitiator(ctx, token.RequestID, party, eventType)

	s.log.Info().
		Str("party_id", party.ID).
		Str("request_id", token.RequestID).
		Str("decision", string(decision)).
		Str("request_status", string(status)).
		Msg("confirmation token redeemed")

	return &RedeemResult{Party: party, Aggregate: agg, RequestStatus: status}, nil
}

// notifyInitiator tells the initiating party (when one exists) about a
// co-party's decision.
func (s *TokenService) notifyInitiator(ctx context.Context, requestID string, decided *repository.Party, eventType string) {
	parties, err := s.parties.ListByRequest(ctx, requestID)
	if err != nil {
		s.log.Warn().Err(err).Str("request_id", requestID).Msg("failed to load parties for initiator notification")
		return
	}
	for _, p := range parties {
		if !p.IsInitiator || p.ID == decided.ID {
			continue
		}
		recipientID := ""
		if p.UserID != nil {
			recipientID = *p.UserID
		}
		verb := "validé"
		if eventType == EventPartyRejected {
			verb = "rejeté"
		}
		s.notifier.Notify(ctx, recipientID, p.Email, eventType,
			"Décision d'un intervenant",
			fmt.Sprintf("L'intervenant %s (%s) a %s la demande.", decided.Email, decided.Role, verb),
			requestID, nil)
	}
}

// ── per-token rate limiting ──────────────────────────────────────────────────

// redeemLimiter is a sliding-window attempt counter per token string, to
// blunt online guessing. In-process state only: with 256-bit tokens this is
// a nicety, not the security boundary.
type redeemLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	limit    int
	window   time.Duration
}

func newRedeemLimiter(limit int, window time.Duration) *redeemLimiter {
	return &redeemLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

func (l *redeemLimiter) allow(token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	kept := l.attempts[token][:0]
	for _, t := range l.attempts[token] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.limit {
		l.attempts[token] = kept
		return false
	}
	l.attempts[token] = append(kept, now)
	return true
}
