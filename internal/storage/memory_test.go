package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortener/internal/models"
)

func TestMemoryStorage(t *testing.T) {
	runStorageContract(t, func(t *testing.T) Storage {
		s := NewMemoryStorage()
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	link := models.NewLink("copy", "https://example.com")
	require.NoError(t, s.InsertLink(ctx, link))

	// Mutating the caller's value must not leak into storage.
	link.OriginalURL = "https://evil.example.com"

	got, err := s.GetLinkByCode(ctx, "copy")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.OriginalURL)

	got.AccessCount = 100
	again, err := s.GetLinkByCode(ctx, "copy")
	require.NoError(t, err)
	assert.Zero(t, again.AccessCount)
}

func TestMemoryStorage_IDsIncrease(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	a := models.NewLink("aaaa", "https://example.com/a")
	b := models.NewLink("bbbb", "https://example.com/b")
	require.NoError(t, s.InsertLink(ctx, a))
	require.NoError(t, s.InsertLink(ctx, b))

	assert.Greater(t, b.ID, a.ID)
}
