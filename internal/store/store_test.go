package store_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connecta/ingest-service/internal/db"
	"connecta/ingest-service/internal/model"
	"connecta/ingest-service/internal/store"
)

// stores returns every Store implementation available in this environment.
// Postgres runs only when TEST_DATABASE_URL points at a disposable database.
func stores(t *testing.T) map[string]func(t *testing.T) store.Store {
	t.Helper()
	out := map[string]func(t *testing.T) store.Store{
		"memory": func(*testing.T) store.Store { return store.NewMemory() },
	}
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		out["postgres"] = func(t *testing.T) store.Store {
			pool, err := db.NewPostgresPool(context.Background(), dsn)
			require.NoError(t, err)
			t.Cleanup(pool.Close)

			pg := store.NewPostgres(pool)
			require.NoError(t, pg.EnsureSchema(context.Background()))
			_, err = pool.Exec(context.Background(), `TRUNCATE external_gigs`)
			require.NoError(t, err)
			return pg
		}
	}
	return out
}

func gig(source, id string, postedAt time.Time) *model.ExternalGig {
	return &model.ExternalGig{
		Source:        source,
		ExternalID:    id,
		Title:         "Go Engineer " + id,
		Description:   "Build ingestion pipelines in Go.",
		Company:       "Acme",
		Location:      "Remote",
		JobType:       "contract",
		Category:      "Technology & Programming",
		URL:           "https://example.com/" + id,
		Skills:        []string{"go", "postgres"},
		PostedAt:      postedAt,
		LastScrapedAt: postedAt,
	}
}

func eachStore(t *testing.T, fn func(t *testing.T, s store.Store)) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) { fn(t, open(t)) })
	}
}

func TestUpsert_IdempotentAndPreservesCreatedAt(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		now := time.Now().UTC().Truncate(time.Second)

		first := gig("wwr", "1", now)
		inserted, err := s.Upsert(ctx, first)
		require.NoError(t, err)
		assert.True(t, inserted)
		require.NotEmpty(t, first.ID)

		second := gig("wwr", "1", now)
		second.Title = "Senior Go Engineer"
		inserted, err = s.Upsert(ctx, second)
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.Equal(t, first.ID, second.ID)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "createdAt must not change")

		gigs, err := s.List(ctx, model.ListFilter{})
		require.NoError(t, err)
		require.Len(t, gigs, 1)
		assert.Equal(t, "Senior Go Engineer", gigs[0].Title, "last write wins")
		assert.True(t, gigs[0].IsExternal)
	})
}

func TestUpsert_ZeroPostedAtKeepsStoredValue(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		posted := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
		scraped := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

		first := gig("partner", "p-1", posted)
		first.LastScrapedAt = scraped
		_, err := s.Upsert(ctx, first)
		require.NoError(t, err)

		update := gig("partner", "p-1", time.Time{})
		update.LastScrapedAt = scraped.Add(time.Hour)
		inserted, err := s.Upsert(ctx, update)
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.True(t, update.PostedAt.Equal(posted), "update without postedAt got %v", update.PostedAt)

		fresh := gig("partner", "p-2", time.Time{})
		fresh.LastScrapedAt = scraped
		_, err = s.Upsert(ctx, fresh)
		require.NoError(t, err)
		assert.True(t, fresh.PostedAt.Equal(scraped), "insert without postedAt got %v", fresh.PostedAt)

		gigs, err := s.List(ctx, model.ListFilter{Source: "partner"})
		require.NoError(t, err)
		require.Len(t, gigs, 2)
		for _, g := range gigs {
			want := posted
			if g.ExternalID == "p-2" {
				want = scraped
			}
			assert.True(t, g.PostedAt.Equal(want), "%s postedAt = %v, want %v", g.ExternalID, g.PostedAt, want)
		}
	})
}

func TestUpsert_ConcurrentSameKeyKeepsOneRecord(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		now := time.Now().UTC()

		var wg sync.WaitGroup
		var mu sync.Mutex
		inserts := 0
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.Upsert(ctx, gig("wwr", "race", now))
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					inserts++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, inserts)
		gigs, err := s.List(ctx, model.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, gigs, 1)
	})
}

func TestDelete_MissingKeyIsNoop(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()

		deleted, err := s.Delete(ctx, model.Key{Source: "wwr", ExternalID: "nope"})
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = s.Upsert(ctx, gig("wwr", "1", time.Now().UTC()))
		require.NoError(t, err)

		deleted, err = s.Delete(ctx, model.Key{Source: "wwr", ExternalID: "1"})
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = s.Delete(ctx, model.Key{Source: "wwr", ExternalID: "1"})
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestList_FilterOrderLimit(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		base := time.Now().UTC().Truncate(time.Second)

		for i := 0; i < 5; i++ {
			_, err := s.Upsert(ctx, gig("wwr", fmt.Sprint(i), base.Add(time.Duration(i)*time.Hour)))
			require.NoError(t, err)
		}
		_, err := s.Upsert(ctx, gig("adzuna", "x", base))
		require.NoError(t, err)

		all, err := s.List(ctx, model.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 6)

		wwr, err := s.List(ctx, model.ListFilter{Source: "wwr", Limit: 2})
		require.NoError(t, err)
		require.Len(t, wwr, 2)
		assert.Equal(t, "4", wwr[0].ExternalID, "newest first")
		assert.Equal(t, "3", wwr[1].ExternalID)
	})
}

func TestDeleteExpired(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		now := time.Now().UTC()

		past := now.Add(-time.Hour)
		future := now.Add(time.Hour)

		expired := gig("wwr", "expired", now)
		expired.Deadline = &past
		live := gig("wwr", "live", now)
		live.Deadline = &future
		open := gig("wwr", "open", now)

		for _, g := range []*model.ExternalGig{expired, live, open} {
			_, err := s.Upsert(ctx, g)
			require.NoError(t, err)
		}

		n, err := s.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = s.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, n, "nothing left to expire")

		gigs, err := s.List(ctx, model.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, gigs, 2)
	})
}

func TestDeleteStaleAndStats(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		now := time.Now().UTC()

		fresh := gig("wwr", "fresh", now)
		older := gig("wwr", "older", now)
		older.LastScrapedAt = now.Add(-10 * 24 * time.Hour)
		stale := gig("wwr", "stale", now)
		stale.LastScrapedAt = now.Add(-20 * 24 * time.Hour)

		for _, g := range []*model.ExternalGig{fresh, older, stale} {
			_, err := s.Upsert(ctx, g)
			require.NoError(t, err)
		}

		stats, err := s.Stats(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, model.Stats{Total: 3, RecentlyActive: 1, Stale: 1}, stats)

		n, err := s.DeleteStale(ctx, now.Add(-14*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{0: 50, -1: 50, 10: 10, 10000: 10000, 20000: 10000}
	for in, want := range cases {
		assert.Equal(t, want, store.ClampLimit(in), "ClampLimit(%d)", in)
	}
}

func TestOpen_Memory(t *testing.T) {
	opened, err := store.Open(context.Background(), "memory", "")
	require.NoError(t, err)
	defer opened.Close()

	assert.Equal(t, "memory", opened.Check.Name)
	assert.NoError(t, opened.Check.Ping(context.Background()))
	_, ok := opened.Store.(*store.Memory)
	assert.True(t, ok)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), "mongo", "")
	assert.Error(t, err)
}
