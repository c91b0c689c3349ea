package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triplecheck/internal/validation/models"
	"triplecheck/pkg/platform/sentinel"
)

func newReport(id string) *models.Report {
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	r := models.NewReport(id, "lead", models.LevelStrict, start)
	end := start.Add(time.Second)
	r.EndTime = &end
	r.OverallStatus = models.StatusPassed
	r.OverallScore = 1
	return r
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("save and find", func(t *testing.T) {
		s := NewMemoryStore(0)
		require.NoError(t, s.Save(ctx, newReport("val_1")))

		got, err := s.FindByID(ctx, "val_1")
		require.NoError(t, err)
		assert.Equal(t, "val_1", got.ValidationID)
	})

	t.Run("missing report is not found", func(t *testing.T) {
		s := NewMemoryStore(0)
		_, err := s.FindByID(ctx, "val_missing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("recent is newest first and evicts beyond capacity", func(t *testing.T) {
		s := NewMemoryStore(3)
		for i := range 5 {
			require.NoError(t, s.Save(ctx, newReport(fmt.Sprintf("val_%d", i))))
		}

		recent, err := s.Recent(ctx, 10)
		require.NoError(t, err)
		ids := make([]string, 0, len(recent))
		for _, r := range recent {
			ids = append(ids, r.ValidationID)
		}
		assert.Equal(t, []string{"val_4", "val_3", "val_2"}, ids)

		_, err = s.FindByID(ctx, "val_0")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("resave does not duplicate", func(t *testing.T) {
		s := NewMemoryStore(0)
		require.NoError(t, s.Save(ctx, newReport("val_1")))
		require.NoError(t, s.Save(ctx, newReport("val_1")))

		recent, err := s.Recent(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, recent, 1)
	})
}

type failingBackend struct {
	*MemoryStore
	err error
}

func (f failingBackend) Save(context.Context, *models.Report) error { return f.err }

func (f failingBackend) FindByID(context.Context, string) (*models.Report, error) {
	return nil, f.err
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("reads fall through to later backends", func(t *testing.T) {
		cache, history := NewMemoryStore(0), NewMemoryStore(0)
		require.NoError(t, history.Save(ctx, newReport("val_old")))
		chain := NewChain(cache, history)

		got, err := chain.FindByID(ctx, "val_old")
		require.NoError(t, err)
		assert.Equal(t, "val_old", got.ValidationID)
	})

	t.Run("save reaches every backend and joins failures", func(t *testing.T) {
		boom := errors.New("cache down")
		history := NewMemoryStore(0)
		chain := NewChain(failingBackend{MemoryStore: NewMemoryStore(0), err: boom}, history)

		err := chain.Save(ctx, newReport("val_1"))
		assert.ErrorIs(t, err, boom)
		_, findErr := history.FindByID(ctx, "val_1")
		assert.NoError(t, findErr)
	})

	t.Run("backend failure is surfaced over not found", func(t *testing.T) {
		boom := errors.New("cache down")
		chain := NewChain(failingBackend{MemoryStore: NewMemoryStore(0), err: boom}, NewMemoryStore(0))

		_, err := chain.FindByID(ctx, "val_missing")
		assert.ErrorIs(t, err, boom)
	})
}

func TestRedisStoreKeys(t *testing.T) {
	def := NewRedisStore(nil)
	assert.Equal(t, "triplecheck:report:val_1", def.reportKey("val_1"))
	assert.Equal(t, "triplecheck:reports:recent", def.recentKey())

	scoped := NewRedisStore(nil, WithKeyPrefix("staging"), WithKeyPrefix(""))
	assert.Equal(t, "staging:report:val_1", scoped.reportKey("val_1"))
	assert.Equal(t, "staging:reports:recent", scoped.recentKey())
}
