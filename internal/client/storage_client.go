package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/maktaba-platform/be-legal-deposit/internal/httpclient"
)

// StorageClient is a client for the document storage service. The engine
// only stores and hands out URLs; bytes never pass through it.
type StorageClient struct {
	client *httpclient.Client
}

// NewStorageClient creates a new storage service client.
func NewStorageClient(baseURL string) *StorageClient {
	return &StorageClient{client: httpclient.NewClient(baseURL)}
}

// ResolveURL converts an opaque storage path into a downloadable URL.
func (c *StorageClient) ResolveURL(ctx context.Context, path string) (string, error) {
	var resp ResolveURLResponse
	if err := c.client.Get(ctx, fmt.Sprintf("/api/v1/documents/url?path=%s", url.QueryEscape(path)), &resp); err != nil {
		return "", fmt.Errorf("failed to resolve document URL: %w", err)
	}
	return resp.URL, nil
}
