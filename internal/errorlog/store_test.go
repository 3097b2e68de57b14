package errorlog

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"cvbuilder/api/pkg/analytics"
)

func ringVariants(t *testing.T, capacity int) map[string]Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Store{
		"memory": NewMemoryRing(capacity),
		"redis":  NewRedisRing(client, "test:errors", capacity),
	}
}

func TestRingNewestFirstAndNormalized(t *testing.T) {
	for name, store := range ringVariants(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx,
				analytics.ErrorLogEntry{Type: analytics.ErrorTypeFetch, StatusCode: 500, Message: "first"},
				analytics.ErrorLogEntry{ID: "err_client", Type: analytics.ErrorTypeRuntime, Message: "second"},
			))

			page, err := store.List(ctx, Filter{}, 50, 0)
			require.NoError(t, err)
			require.Len(t, page.Entries, 2)
			require.Equal(t, "second", page.Entries[0].Message)
			require.Equal(t, "err_client", page.Entries[0].ID)
			require.Equal(t, "first", page.Entries[1].Message)
			require.True(t, strings.HasPrefix(page.Entries[1].ID, "err_"))
			require.False(t, page.Entries[1].Timestamp.IsZero())
		})
	}
}

func TestRingCapDropsOldest(t *testing.T) {
	for name, store := range ringVariants(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				require.NoError(t, store.Append(ctx, analytics.ErrorLogEntry{Type: analytics.ErrorTypeRuntime, Message: fmt.Sprintf("e%d", i)}))
			}

			page, err := store.List(ctx, Filter{}, 50, 0)
			require.NoError(t, err)
			require.Equal(t, 3, page.Total)
			require.Equal(t, []string{"e4", "e3", "e2"}, messages(page.Entries))
		})
	}
}

func TestRingFilterPaginationAndStats(t *testing.T) {
	for name, store := range ringVariants(t, 50) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx,
				analytics.ErrorLogEntry{Type: analytics.ErrorTypeFetch, StatusCode: 404, SessionID: "s1", Message: "a"},
				analytics.ErrorLogEntry{Type: analytics.ErrorTypeFetch, StatusCode: 500, SessionID: "s2", Message: "b"},
				analytics.ErrorLogEntry{Type: analytics.ErrorTypeFetch, StatusCode: 500, SessionID: "s1", Message: "c"},
				analytics.ErrorLogEntry{Type: analytics.ErrorTypeUnhandled, SessionID: "s1", Message: "d"},
			))

			page, err := store.List(ctx, Filter{Type: analytics.ErrorTypeFetch}, 2, 0)
			require.NoError(t, err)
			require.Equal(t, 3, page.Total)
			require.Equal(t, 3, page.Stats.Total)
			require.Equal(t, []string{"c", "b"}, messages(page.Entries))

			page, err = store.List(ctx, Filter{Type: analytics.ErrorTypeFetch}, 2, 2)
			require.NoError(t, err)
			require.Equal(t, []string{"a"}, messages(page.Entries))

			page, err = store.List(ctx, Filter{StatusCode: 500, SessionID: "s1"}, 10, 0)
			require.NoError(t, err)
			require.Equal(t, []string{"c"}, messages(page.Entries))

			require.Equal(t, 3, page.Stats.ByType[analytics.ErrorTypeFetch])
			require.Equal(t, 0, page.Stats.ByType[analytics.ErrorTypeRuntime])
			require.Equal(t, 1, page.Stats.ByType[analytics.ErrorTypeUnhandled])
			require.Equal(t, map[string]int{"404": 1, "500": 2}, page.Stats.ByStatusCode)

			page, err = store.List(ctx, Filter{}, 10, 99)
			require.NoError(t, err)
			require.Empty(t, page.Entries)
			require.Equal(t, 4, page.Total)
		})
	}
}

func TestRingClear(t *testing.T) {
	for name, store := range ringVariants(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Append(ctx, analytics.ErrorLogEntry{Type: analytics.ErrorTypeRuntime, Message: "x"}))
			require.NoError(t, store.Clear(ctx))

			page, err := store.List(ctx, Filter{}, 10, 0)
			require.NoError(t, err)
			require.Zero(t, page.Total)
			require.Empty(t, page.Entries)
		})
	}
}

func messages(entries []analytics.ErrorLogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}
