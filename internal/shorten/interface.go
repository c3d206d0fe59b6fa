package shorten

import (
	"context"

	"shortener/internal/models"
)

// ServiceInterface defines the link operations exposed over HTTP
type ServiceInterface interface {
	// Shorten returns the link for rawURL, creating one if the URL was never
	// shortened before. created reports whether a new link was stored.
	Shorten(ctx context.Context, rawURL string) (link *models.Link, created bool, err error)

	// Resolve returns the link for code and counts the access.
	Resolve(ctx context.Context, code string) (*models.Link, error)

	// Preview returns the link for code without counting an access.
	Preview(ctx context.Context, code string) (*models.Link, error)
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
