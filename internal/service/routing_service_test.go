package service

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktaba-platform/be-legal-deposit/internal/repository"
)

func newTestRouter(env *testEnv) *RoutingService {
	return NewRoutingService(env.requests, env.notifier, "BN",
		map[string]string{
			"AR": "https://archives.example.org/depot",
			"CM": "https://cinematheque.example.org/depot",
		},
		"https://portal.example.org/contact", testLogger())
}

func TestRouteSubmissionInternal(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)
	ctx := context.Background()

	tests := []struct {
		name     string
		metadata map[string]interface{}
	}{
		{name: "no institution recorded", metadata: nil},
		{name: "home institution", metadata: map[string]interface{}{"institution": "BN"}},
		{name: "home institution lowercase", metadata: map[string]interface{}{"institution": "bn"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := env.seedRequest(repository.StatusSubmitted, repository.WorkflowLegalDeposit)
			req.Metadata = tt.metadata
			require.NoError(t, env.requests.Create(ctx, req))

			route, err := router.RouteSubmission(ctx, req.ID)
			require.NoError(t, err)
			assert.True(t, route.CreatedInternalQueue)
			assert.Equal(t, "legal-deposit", route.TargetService)
			assert.Empty(t, route.RedirectURL)
		})
	}
}

func TestRouteSubmissionPartner(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)
	ctx := context.Background()

	req := env.seedRequest(repository.StatusSubmitted, repository.WorkflowLegalDeposit)
	req.Metadata = map[string]interface{}{"institution": "ar"}
	require.NoError(t, env.requests.Create(ctx, req))

	route, err := router.RouteSubmission(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, route.CreatedInternalQueue)
	assert.Equal(t, "partner:AR", route.TargetService)
	assert.Equal(t, "https://archives.example.org/depot", route.RedirectURL)

	// The owner is told where the request went.
	inbox, err := env.notifications.ListForRecipient(ctx, req.OwnerID, false)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.NotNil(t, inbox[0].RelatedLink)
	assert.Equal(t, route.RedirectURL, *inbox[0].RelatedLink)
}

func TestRouteSubmissionUnknownInstitution(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)
	ctx := context.Background()

	req := env.seedRequest(repository.StatusSubmitted, repository.WorkflowLegalDeposit)
	req.Metadata = map[string]interface{}{"institution": "XX"}
	require.NoError(t, env.requests.Create(ctx, req))

	route, err := router.RouteSubmission(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, route.CreatedInternalQueue)
	assert.Equal(t, "contact", route.TargetService)
	assert.Equal(t, "https://portal.example.org/contact", route.RedirectURL)
}

func TestRouteSubmissionIsDeterministic(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)
	ctx := context.Background()

	req := env.seedRequest(repository.StatusSubmitted, repository.WorkflowLegalDeposit)
	req.Metadata = map[string]interface{}{"institution": "CM"}
	require.NoError(t, env.requests.Create(ctx, req))

	first, err := router.RouteSubmission(ctx, req.ID)
	require.NoError(t, err)
	second, err := router.RouteSubmission(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRouteReproductionExternal(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)
	ctx := context.Background()

	route, err := router.RouteReproduction(ctx, ReproductionInput{
		ManuscriptID:      "ms-042",
		OwningInstitution: "AR",
		UserID:            "user-1",
	})
	require.NoError(t, err)
	assert.False(t, route.RequestCreated)
	assert.Empty(t, route.RequestID)
	assert.Equal(t, "partner:AR", route.TargetService)
	assert.Equal(t, "https://archives.example.org/depot", route.RedirectURL)

	// No internal record is written for partner-owned content.
	owned, err := env.requests.ListByOwner(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestRouteReproductionInternal(t *testing.T) {
	env := newTestEnv()
	router := newTestRouter(env)
	ctx := context.Background()

	route, err := router.RouteReproduction(ctx, ReproductionInput{
		ManuscriptID:      "ms-042",
		OwningInstitution: "BN",
		UserID:            "user-1",
		Title:             "Recueil de fables",
	})
	require.NoError(t, err)
	assert.True(t, route.RequestCreated)
	assert.Equal(t, "legal-deposit", route.TargetService)
	require.NotEmpty(t, route.RequestID)

	req, err := env.requests.GetByID(ctx, route.RequestID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDraft, req.Status)
	assert.Equal(t, repository.WorkflowReproduction, req.WorkflowType)
	assert.Equal(t, "Recueil de fables", req.Title)
	assert.Equal(t, "ms-042", req.Metadata["manuscript_id"])
	assert.True(t, regexp.MustCompile(`^RE-\d{4}-[0-9A-F]{8}$`).MatchString(req.RequestNumber))
}

func TestNewRequestNumberFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^DL-\d{4}-[0-9A-F]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		n := NewRequestNumber("DL")
		assert.True(t, pattern.MatchString(n), "unexpected request number %q", n)
		assert.False(t, seen[n], "request number %q repeated", n)
		seen[n] = true
	}
}
