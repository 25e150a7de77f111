package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/maktaba-platform/be-legal-deposit/internal/httpclient"
)

// IdentityClient is a client for the platform identity service.
type IdentityClient struct {
	client *httpclient.Client
}

// NewIdentityClient creates a new identity service client.
func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{client: httpclient.NewClient(baseURL)}
}

// GetCurrentUser resolves a bearer token to the authenticated user.
func (c *IdentityClient) GetCurrentUser(ctx context.Context, bearerToken string) (*User, error) {
	path := fmt.Sprintf("/api/v1/users/me?token=%s", url.QueryEscape(bearerToken))

	var user User
	if err := c.client.Get(ctx, path, &user); err != nil {
		return nil, fmt.Errorf("failed to resolve current user: %w", err)
	}
	return &user, nil
}

// GetUser looks a user up by id.
func (c *IdentityClient) GetUser(ctx context.Context, userID string) (*User, error) {
	path := fmt.Sprintf("/api/v1/users/get?id=%s", url.QueryEscape(userID))

	var user User
	if err := c.client.Get(ctx, path, &user); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// IsAdmin reports whether the user holds the back-office admin role.
func (c *IdentityClient) IsAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := c.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}
