package client

import "context"

// IdentityClientInterface defines the interface for the identity service client.
type IdentityClientInterface interface {
	// GetCurrentUser resolves the bearer token of a request to a user.
	GetCurrentUser(ctx context.Context, bearerToken string) (*User, error)
	// GetUser looks a user up by id.
	GetUser(ctx context.Context, userID string) (*User, error)
	// IsAdmin reports whether the user holds the back-office admin role.
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// StorageClientInterface defines the interface for the document storage service.
type StorageClientInterface interface {
	// ResolveURL converts an opaque storage path into a downloadable URL.
	// The engine never interprets file bytes, only passes URLs along.
	ResolveURL(ctx context.Context, path string) (string, error)
}
