package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"connecta/ingest-service/internal/model"
)

// Memory is an in-process Store used by tests and by STORE_DRIVER=memory.
// The mutex makes each operation atomic, like the single statements of
// the Postgres store.
type Memory struct {
	mu   sync.RWMutex
	gigs map[model.Key]model.ExternalGig
	now  func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{gigs: make(map[model.Key]model.ExternalGig), now: time.Now}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Upsert(_ context.Context, g *model.ExternalGig) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	k := g.Key()
	stored := clone(*g)
	stored.IsExternal = true
	stored.UpdatedAt = now

	prev, exists := m.gigs[k]
	if exists {
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
		if stored.PostedAt.IsZero() {
			stored.PostedAt = prev.PostedAt
		}
	} else {
		stored.ID = uuid.NewString()
		stored.CreatedAt = now
		if stored.PostedAt.IsZero() {
			stored.PostedAt = stored.LastScrapedAt
		}
	}
	m.gigs[k] = stored

	g.ID, g.CreatedAt, g.UpdatedAt, g.IsExternal = stored.ID, stored.CreatedAt, stored.UpdatedAt, true
	g.PostedAt = stored.PostedAt
	return !exists, nil
}

func (m *Memory) Delete(_ context.Context, k model.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.gigs[k]; !ok {
		return false, nil
	}
	delete(m.gigs, k)
	return true, nil
}

func (m *Memory) List(_ context.Context, f model.ListFilter) ([]model.ExternalGig, error) {
	m.mu.RLock()
	out := make([]model.ExternalGig, 0, len(m.gigs))
	for _, g := range m.gigs {
		if f.Source != "" && g.Source != f.Source {
			continue
		}
		out = append(out, clone(g))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PostedAt.Equal(out[j].PostedAt) {
			return out[i].PostedAt.After(out[j].PostedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit := ClampLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return m.deleteWhere(func(g model.ExternalGig) bool {
		return g.Deadline != nil && g.Deadline.Before(now)
	}), nil
}

func (m *Memory) DeleteStale(_ context.Context, cutoff time.Time) (int64, error) {
	return m.deleteWhere(func(g model.ExternalGig) bool {
		return g.LastScrapedAt.Before(cutoff)
	}), nil
}

func (m *Memory) Stats(_ context.Context, now time.Time) (model.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recent, stale := now.Add(-recentWindow), now.Add(-staleWindow)
	var s model.Stats
	for _, g := range m.gigs {
		s.Total++
		if !g.LastScrapedAt.Before(recent) {
			s.RecentlyActive++
		}
		if g.LastScrapedAt.Before(stale) {
			s.Stale++
		}
	}
	return s, nil
}

func (m *Memory) deleteWhere(match func(model.ExternalGig) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, g := range m.gigs {
		if match(g) {
			delete(m.gigs, k)
			n++
		}
	}
	return n
}

func clone(g model.ExternalGig) model.ExternalGig {
	g.Skills = slices.Clone(g.Skills)
	if g.Deadline != nil {
		d := *g.Deadline
		g.Deadline = &d
	}
	return g
}
