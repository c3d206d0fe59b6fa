package storage

import (
	"context"
	"time"

	"shortener/internal/models"
)

// Storage defines the interface for link persistence and retrieval.
// Implementations must enforce uniqueness of link codes themselves: two
// concurrent inserts of the same code must never both succeed.
type Storage interface {
	// ExistsByCode reports whether a link with code exists.
	ExistsByCode(ctx context.Context, code string) (bool, error)

	// InsertLink stores a new link and sets its ID. It returns
	// ErrDuplicateCode if the code is already taken.
	InsertLink(ctx context.Context, link *models.Link) error

	// GetLinkByCode retrieves a link by its code.
	GetLinkByCode(ctx context.Context, code string) (*models.Link, error)

	// GetLinkByOriginalURL retrieves the earliest link created for url.
	GetLinkByOriginalURL(ctx context.Context, url string) (*models.Link, error)

	// RecordAccess increments the access count of the link and sets its last
	// access time, returning the updated link.
	RecordAccess(ctx context.Context, code string, at time.Time) (*models.Link, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the storage connection and cleans up resources
	Close() error
}
