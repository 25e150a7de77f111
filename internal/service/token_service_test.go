package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
)

func TestIssueAndRedeem(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	req := env.seedRequest(repository.StatusAwaitingValidation, repository.WorkflowLegalDeposit)
	party := env.seedParty(req.ID, repository.RoleEditor, "editor@example.org", false)
	env.seedSteps(req.ID, []string{"verification_demande", "validation_intervenants"})

	token, err := env.token.Issue(ctx, party.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.True(t, token.ExpiresAt.After(time.Now()))

	invites := env.publisher.byType(EventPartyInvited)
	require.Len(t, invites, 1)
	assert.Equal(t, []string{"editor@example.org"}, invites[0].recipients)
	assert.Contains(t, invites[0].payload["link"], token.Token)

	result, err := env.token.Redeem(ctx, token.Token, repository.ApprovalApproved, nil)
	require.NoError(t, err)
	assert.Equal(t, repository.ApprovalApproved, result.Party.Status)
	assert.True(t, result.Aggregate.AllApproved)
	assert.Equal(t, repository.StatusInProgress, result.RequestStatus)
}

func TestRedeemIsSingleUse(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	req := env.seedRequest(repository.StatusAwaitingValidation, repository.WorkflowLegalDeposit)
	party := env.seedParty(req.ID, repository.RoleEditor, "editor@example.org", false)
	env.seedSteps(req.ID, []string{"verification_demande"})

	token, err := env.token.Issue(ctx, party.ID)
	require.NoError(t, err)

	_, err = env.token.Redeem(ctx, token.Token, repository.ApprovalApproved, nil)
	require.NoError(t, err)

	_, err = env.token.Redeem(ctx, token.Token, repository.ApprovalRejected, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))

	stored, err := env.parties.GetByID(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.ApprovalApproved, stored.Status)
}

func TestRedeemExpiredToken(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	req := env.seedRequest(repository.StatusAwaitingValidation, repository.WorkflowLegalDeposit)
	party := env.seedParty(req.ID, repository.RoleEditor, "editor@example.org", false)

	expired := &repository.ConfirmationToken{
		PartyID:   party.ID,
		RequestID: req.ID,
		Token:     "expired-token",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, env.tokens.Create(ctx, expired))

	for _, decision := range []repository.ApprovalStatus{
		repository.ApprovalApproved,
		repository.ApprovalRejected,
	} {
		_, err := env.token.Redeem(ctx, expired.Token, decision, nil)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeExpired, apperrors.CodeOf(err))
	}

	stored, err := env.parties.GetByID(ctx, party.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.ApprovalPending, stored.Status)
}

func TestRedeemUnknownToken(t *testing.T) {
	env := newTestEnv()

	_, err := env.token.Redeem(context.Background(), "no-such-token", repository.ApprovalApproved, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestRedeemRejectsUnknownDecision(t *testing.T) {
	env := newTestEnv()

	_, err := env.token.Redeem(context.Background(), "some-token", repository.ApprovalStatus("maybe"), nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestIssueForDecidedParty(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	req := env.seedRequest(repository.StatusAwaitingValidation, repository.WorkflowLegalDeposit)
	party := env.seedParty(req.ID, repository.RoleEditor, "editor@example.org", false)
	require.NoError(t, env.parties.RecordDecision(ctx, party.ID, repository.ApprovalApproved, nil))

	_, err := env.token.Issue(ctx, party.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))
}

func TestRedeemRateLimited(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.token.Redeem(ctx, "guessed-token", repository.ApprovalApproved, nil)
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	}

	_, err := env.token.Redeem(ctx, "guessed-token", repository.ApprovalApproved, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeRateLimited, apperrors.CodeOf(err))

	// Other tokens are unaffected.
	_, err = env.token.Redeem(ctx, "different-token", repository.ApprovalApproved, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestRedeemNotifiesInitiator(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	req := env.seedRequest(repository.StatusAwaitingValidation, repository.WorkflowLegalDeposit)
	initiator := env.seedParty(req.ID, repository.RoleEditor, "editor@example.org", true)
	printer := env.seedParty(req.ID, repository.RolePrinter, "printer@example.org", false)
	env.seedSteps(req.ID, []string{"verification_demande"})
	_ = initiator

	token, err := env.token.Issue(ctx, printer.ID)
	require.NoError(t, err)

	_, err = env.token.Redeem(ctx, token.Token, repository.ApprovalRejected, nil)
	require.NoError(t, err)

	events := env.publisher.byType(EventPartyRejected)
	require.NotEmpty(t, events)
	found := false
	for _, e := range events {
		for _, r := range e.recipients {
			if r == "editor@example.org" {
				found = true
			}
		}
	}
	assert.True(t, found, "initiator should be told about the rejection, got %v", events)
}

func TestRedeemLimiterWindowSlides(t *testing.T) {
	limiter := newRedeemLimiter(2, 50*time.Millisecond)

	assert.True(t, limiter.allow("tok"))
	assert.True(t, limiter.allow("tok"))
	assert.False(t, limiter.allow("tok"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, limiter.allow("tok"))
}

func TestIssuedTokensAreUnique(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	req := env.seedRequest(repository.StatusAwaitingValidation, repository.WorkflowLegalDeposit)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		party := env.seedParty(req.ID, repository.RolePrinter, fmt.Sprintf("printer%d@example.org", i), false)
		token, err := env.token.Issue(ctx, party.ID)
		require.NoError(t, err)
		assert.False(t, seen[token.Token], "token issued twice")
		seen[token.Token] = true
		assert.GreaterOrEqual(t, len(token.Token), 43)
	}
}
