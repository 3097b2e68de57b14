package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cvbuilder/api/internal/models"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestMemoryStoreAccumulatesTimeSpent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(Options{Now: clock.Now, IdleTimeout: 30 * time.Minute})
	ctx := context.Background()

	_, err := store.UpsertSession(ctx, "timed", models.SessionPatch{}, nil)
	require.NoError(t, err)

	clock.now = clock.now.Add(90 * time.Second)
	session, err := store.UpsertSession(ctx, "timed", models.SessionPatch{}, nil)
	require.NoError(t, err)
	require.Equal(t, 90, session.TotalTimeSpent)

	// gaps beyond the idle timeout are not counted
	clock.now = clock.now.Add(2 * time.Hour)
	session, err = store.UpsertSession(ctx, "timed", models.SessionPatch{}, nil)
	require.NoError(t, err)
	require.Equal(t, 90, session.TotalTimeSpent)
	require.Equal(t, clock.now, session.LastActivity)

	stats, err := store.GetDashboardStats(ctx)
	require.NoError(t, err)
	require.InDelta(t, 90.0, stats.AvgTimeSpent, 0.001)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(Options{})
	ctx := context.Background()

	session, err := store.UpsertSession(ctx, "copy", models.SessionPatch{FormData: map[string]any{"a": 1}}, nil)
	require.NoError(t, err)
	session.FormData["a"] = 2

	stored, err := store.GetSession(ctx, "copy")
	require.NoError(t, err)
	require.Equal(t, 1, stored.FormData["a"])
}

func TestMemoryStoreFilterByStartDate(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(Options{Now: clock.Now})
	ctx := context.Background()

	_, err := store.UpsertSession(ctx, "early", models.SessionPatch{}, nil)
	require.NoError(t, err)
	clock.now = clock.now.AddDate(0, 0, 5)
	_, err = store.UpsertSession(ctx, "late", models.SessionPatch{}, nil)
	require.NoError(t, err)

	from := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	got, err := store.GetSessions(ctx, models.SessionFilter{StartDate: &from}, 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "late", got[0].ID)
}
