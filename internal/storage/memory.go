package storage

import (
	"context"
	"sync"
	"time"

	"shortener/internal/models"
)

// MemoryStorage implements the Storage interface using in-memory data structures.
// This provider is ideal for development and testing. Data is lost on restart.
type MemoryStorage struct {
	mu     sync.RWMutex
	nextID int64
	byCode map[string]*models.Link
	byURL  map[string]string // original URL -> code of the first link
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byCode: make(map[string]*models.Link),
		byURL:  make(map[string]string),
	}
}

// ExistsByCode reports whether a link with code exists.
func (m *MemoryStorage) ExistsByCode(ctx context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.byCode[code]
	return exists, nil
}

// InsertLink stores a copy of link.
func (m *MemoryStorage) InsertLink(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byCode[link.Code]; exists {
		return ErrDuplicateCode
	}

	m.nextID++
	link.ID = m.nextID

	linkCopy := *link
	m.byCode[link.Code] = &linkCopy
	if _, exists := m.byURL[link.OriginalURL]; !exists {
		m.byURL[link.OriginalURL] = link.Code
	}

	return nil
}

// GetLinkByCode retrieves a link by its code.
func (m *MemoryStorage) GetLinkByCode(ctx context.Context, code string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.byCode[code]
	if !exists {
		return nil, ErrNotFound
	}

	linkCopy := *link
	return &linkCopy, nil
}

// GetLinkByOriginalURL retrieves the first link created for url.
func (m *MemoryStorage) GetLinkByOriginalURL(ctx context.Context, url string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	code, exists := m.byURL[url]
	if !exists {
		return nil, ErrNotFound
	}

	linkCopy := *m.byCode[code]
	return &linkCopy, nil
}

// RecordAccess increments the access counter of the link.
func (m *MemoryStorage) RecordAccess(ctx context.Context, code string, at time.Time) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.byCode[code]
	if !exists {
		return nil, ErrNotFound
	}

	link.AccessCount++
	link.LastAccessAt = at

	linkCopy := *link
	return &linkCopy, nil
}

// Ping always succeeds.
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for memory storage
func (m *MemoryStorage) Close() error {
	return nil
}
