package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortener/internal/models"
)

// runStorageContract exercises the behaviour every Storage backend shares.
// newStorage must return an empty storage.
func runStorageContract(t *testing.T, newStorage func(t *testing.T) Storage) {
	t.Run("InsertAndGet", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		link := models.NewLink("aB3x", "https://www.example.com/page")
		link.Description = "landing page"
		require.NoError(t, s.InsertLink(ctx, link))
		assert.NotZero(t, link.ID)

		got, err := s.GetLinkByCode(ctx, "aB3x")
		require.NoError(t, err)
		assert.Equal(t, link.ID, got.ID)
		assert.Equal(t, "aB3x", got.Code)
		assert.Equal(t, "https://www.example.com/page", got.OriginalURL)
		assert.Equal(t, "example", got.Name)
		assert.Equal(t, "landing page", got.Description)
		assert.Zero(t, got.AccessCount)
		assert.WithinDuration(t, link.CreatedAt, got.CreatedAt, time.Millisecond)
	})

	t.Run("ExistsByCode", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		exists, err := s.ExistsByCode(ctx, "zzzz")
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, s.InsertLink(ctx, models.NewLink("zzzz", "https://example.org")))

		exists, err = s.ExistsByCode(ctx, "zzzz")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("CodesAreCaseSensitive", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		require.NoError(t, s.InsertLink(ctx, models.NewLink("abcd", "https://example.org/1")))
		require.NoError(t, s.InsertLink(ctx, models.NewLink("ABCD", "https://example.org/2")))

		got, err := s.GetLinkByCode(ctx, "ABCD")
		require.NoError(t, err)
		assert.Equal(t, "https://example.org/2", got.OriginalURL)
	})

	t.Run("DuplicateCode", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		require.NoError(t, s.InsertLink(ctx, models.NewLink("dup1", "https://example.org/a")))
		err := s.InsertLink(ctx, models.NewLink("dup1", "https://example.org/b"))
		assert.ErrorIs(t, err, ErrDuplicateCode)

		got, err := s.GetLinkByCode(ctx, "dup1")
		require.NoError(t, err)
		assert.Equal(t, "https://example.org/a", got.OriginalURL)
	})

	t.Run("ConcurrentDuplicateInsert", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		var (
			wg         sync.WaitGroup
			inserted   atomic.Int32
			duplicates atomic.Int32
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := s.InsertLink(ctx, models.NewLink("race", fmt.Sprintf("https://example.org/%d", i)))
				if err == nil {
					inserted.Add(1)
				} else if errors.Is(err, ErrDuplicateCode) {
					duplicates.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), inserted.Load())
		assert.Equal(t, int32(19), duplicates.Load())
	})

	t.Run("GetLinkByOriginalURL", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		_, err := s.GetLinkByOriginalURL(ctx, "https://example.net")
		assert.ErrorIs(t, err, ErrNotFound)

		first := models.NewLink("url1", "https://example.net")
		require.NoError(t, s.InsertLink(ctx, first))
		require.NoError(t, s.InsertLink(ctx, models.NewLink("url2", "https://example.net")))

		got, err := s.GetLinkByOriginalURL(ctx, "https://example.net")
		require.NoError(t, err)
		assert.Equal(t, "url1", got.Code)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		_, err := s.GetLinkByCode(ctx, "none")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.RecordAccess(ctx, "none", time.Now())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("RecordAccess", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		require.NoError(t, s.InsertLink(ctx, models.NewLink("hits", "https://example.com")))

		at := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
		got, err := s.RecordAccess(ctx, "hits", at)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.AccessCount)
		assert.True(t, at.Equal(got.LastAccessAt))

		got, err = s.RecordAccess(ctx, "hits", at)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.AccessCount)

		stored, err := s.GetLinkByCode(ctx, "hits")
		require.NoError(t, err)
		assert.Equal(t, int64(2), stored.AccessCount)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStorage(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
