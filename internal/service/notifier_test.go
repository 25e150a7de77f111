package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktaba-platform/be-legal-deposit/internal/apperrors"
)

func TestNotifyWritesInboxAndEvent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	link := "https://portal.example.org/requests/req-1"

	env.notifier.Notify(ctx, "user-1", "", EventRequestValidated,
		"Demande validée", "Tous les intervenants ont validé.", "req-1", &link)

	inbox, err := env.notifier.ListInbox(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, EventRequestValidated, inbox[0].Type)
	assert.False(t, inbox[0].Read)
	require.NotNil(t, inbox[0].RelatedLink)
	assert.Equal(t, link, *inbox[0].RelatedLink)

	events := env.publisher.byType(EventRequestValidated)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"user-1"}, events[0].recipients)
	assert.Equal(t, link, events[0].payload["link"])
}

func TestNotifyAccountlessPartySkipsInbox(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.notifier.Notify(ctx, "", "printer@example.org", EventPartyInvited,
		"Confirmation demandée", "Votre validation est requise.", "req-1", nil)

	inbox, err := env.notifier.ListInbox(ctx, "", false)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	events := env.publisher.byType(EventPartyInvited)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"printer@example.org"}, events[0].recipients)
}

func TestNotifyWithoutAnyRecipient(t *testing.T) {
	env := newTestEnv()

	env.notifier.Notify(context.Background(), "", "", EventPartyInvited,
		"titre", "message", "req-1", nil)

	assert.Empty(t, env.publisher.byType(EventPartyInvited))
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.notifier.Notify(ctx, "user-1", "", EventRequestValidated, "t", "m", "req-1", nil)
	inbox, err := env.notifier.ListInbox(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, inbox, 1)

	err = env.notifier.MarkRead(ctx, inbox[0].ID, "someone-else")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	require.NoError(t, env.notifier.MarkRead(ctx, inbox[0].ID, "user-1"))

	unread, err := env.notifier.ListInbox(ctx, "user-1", true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
