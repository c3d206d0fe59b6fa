// Package shorten implements the link shortening business logic on top of
// link storage and the short code allocator.
package shorten

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"shortener/internal/models"
	"shortener/internal/shortcode"
	"shortener/internal/storage"
)

// Service handles link creation and resolution
type Service struct {
	storage   storage.Storage
	allocator *shortcode.Allocator
	now       func() time.Time
}

// NewService creates a new shorten service
func NewService(storage storage.Storage, allocator *shortcode.Allocator) *Service {
	return &Service{
		storage:   storage,
		allocator: allocator,
		now:       time.Now,
	}
}

// Shorten validates rawURL and returns its link. A URL that was shortened
// before keeps its original code.
func (s *Service) Shorten(ctx context.Context, rawURL string) (*models.Link, bool, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := models.ValidateURL(rawURL); err != nil {
		return nil, false, NewInvalidURLError(err)
	}

	existing, err := s.storage.GetLinkByOriginalURL(ctx, rawURL)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, false, NewInternalError("failed to look up URL", err)
	}

	var link *models.Link
	code, err := s.allocator.AllocateAndInsert(ctx, func(ctx context.Context, code string) error {
		link = models.NewLink(code, rawURL)
		return s.storage.InsertLink(ctx, link)
	})
	if err != nil {
		if errors.Is(err, shortcode.ErrAllocationExhausted) {
			return nil, false, NewAllocationError(err)
		}
		return nil, false, NewInternalError("failed to store link", err)
	}

	slog.Info("Link created",
		"code", code,
		"name", link.Name,
	)

	return link, true, nil
}

// Resolve returns the link for code and records the access.
func (s *Service) Resolve(ctx context.Context, code string) (*models.Link, error) {
	if err := models.ValidateCode(code); err != nil {
		return nil, NewLinkNotFoundError(code)
	}

	link, err := s.storage.RecordAccess(ctx, code, s.now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewLinkNotFoundError(code)
		}
		return nil, NewInternalError("failed to resolve link", err)
	}
	return link, nil
}

// Preview returns the link for code.
func (s *Service) Preview(ctx context.Context, code string) (*models.Link, error) {
	if err := models.ValidateCode(code); err != nil {
		return nil, NewLinkNotFoundError(code)
	}

	link, err := s.storage.GetLinkByCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewLinkNotFoundError(code)
		}
		return nil, NewInternalError("failed to get link", err)
	}
	return link, nil
}
