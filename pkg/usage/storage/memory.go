package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketscope/pkg/usage"
)

// MemoryStore implements Store using in-memory storage.
// All data is lost when the process exits. Intended for tests and ephemeral
// deployments where durability does not matter.
//
// MemoryStore is thread-safe and supports concurrent access using sync.RWMutex.
type MemoryStore struct {
	// events holds all recorded events in insertion order.
	events []*usage.Event

	// limits maps user_id to that user's limit row.
	limits map[string]*usage.UserLimits

	// nextID is the next event row identifier.
	nextID int64

	// mu protects events, limits and nextID.
	mu sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		limits: make(map[string]*usage.UserLimits),
		nextID: 1,
	}
}

// InsertEvent appends an immutable usage event.
func (m *MemoryStore) InsertEvent(ctx context.Context, ev *usage.Event) error {
	if ev == nil {
		return fmt.Errorf("event cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *ev
	if clone.Metadata != nil {
		clone.Metadata = make(map[string]string, len(ev.Metadata))
		for k, v := range ev.Metadata {
			clone.Metadata[k] = v
		}
	}
	clone.ID = m.nextID
	m.nextID++
	ev.ID = clone.ID

	m.events = append(m.events, &clone)
	return nil
}

// ServiceTotals aggregates a user's events at or after since, grouped by service.
func (m *MemoryStore) ServiceTotals(ctx context.Context, userID string, since time.Time) (map[string]usage.ServiceTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := make(map[string]usage.ServiceTotals)
	for _, ev := range m.events {
		if ev.UserID != userID || ev.Timestamp.Before(since) {
			continue
		}
		t := totals[ev.Service]
		t.Tokens += int64(ev.TokensUsed)
		t.Cost += ev.EstimatedCost
		t.Requests++
		totals[ev.Service] = t
	}

	return totals, nil
}

// CountEvents counts a user's events at or after since.
func (m *MemoryStore) CountEvents(ctx context.Context, userID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, ev := range m.events {
		if ev.UserID == userID && !ev.Timestamp.Before(since) {
			count++
		}
	}
	return count, nil
}

// GetLimits retrieves a user's limit row. Returns (nil, nil) when absent.
func (m *MemoryStore) GetLimits(ctx context.Context, userID string) (*usage.UserLimits, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.limits[userID]
	if !ok {
		return nil, nil
	}
	clone := *l
	return &clone, nil
}

// EnsureLimits inserts a limit row only if none exists for the user.
func (m *MemoryStore) EnsureLimits(ctx context.Context, limits *usage.UserLimits) error {
	if limits == nil {
		return fmt.Errorf("limits cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.limits[limits.UserID]; ok {
		return nil
	}
	clone := *limits
	m.limits[limits.UserID] = &clone
	return nil
}

// UpsertLimits inserts or replaces a user's limit row, preserving the stored
// created_at on update.
func (m *MemoryStore) UpsertLimits(ctx context.Context, limits *usage.UserLimits) error {
	if limits == nil {
		return fmt.Errorf("limits cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *limits
	if existing, ok := m.limits[limits.UserID]; ok {
		clone.CreatedAt = existing.CreatedAt
	}
	m.limits[limits.UserID] = &clone
	return nil
}

// Stats computes the global aggregate over all events at or after since.
func (m *MemoryStore) Stats(ctx context.Context, since time.Time) (*usage.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &usage.Stats{}
	users := make(map[string]struct{})
	for _, ev := range m.events {
		if ev.Timestamp.Before(since) {
			continue
		}
		users[ev.UserID] = struct{}{}
		st.TotalRequests++
		st.TotalCost += ev.EstimatedCost
	}
	st.UniqueUsers = int64(len(users))
	if st.TotalRequests > 0 {
		st.AvgCostPerRequest = st.TotalCost / float64(st.TotalRequests)
	}

	return st, nil
}

// TopUsers returns up to limit users ordered by total cost descending.
func (m *MemoryStore) TopUsers(ctx context.Context, since time.Time, limit int) ([]usage.UserSpend, error) {
	if limit <= 0 {
		limit = 10
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	byUser := make(map[string]float64)
	for _, ev := range m.events {
		if ev.Timestamp.Before(since) {
			continue
		}
		byUser[ev.UserID] += ev.EstimatedCost
	}

	top := make([]usage.UserSpend, 0, len(byUser))
	for id, cost := range byUser {
		top = append(top, usage.UserSpend{UserID: id, TotalCost: cost})
	}
	sort.Slice(top, func(i, j int) bool {
		return top[i].TotalCost > top[j].TotalCost
	})

	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

// ResetUser removes all events and the limit row for one user.
func (m *MemoryStore) ResetUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.events[:0]
	for _, ev := range m.events {
		if ev.UserID != userID {
			kept = append(kept, ev)
		}
	}
	m.events = kept
	delete(m.limits, userID)
	return nil
}

// ResetAll clears the entire ledger.
func (m *MemoryStore) ResetAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = nil
	m.limits = make(map[string]*usage.UserLimits)
	return nil
}

// Close releases any resources held by the store. No-op for memory.
func (m *MemoryStore) Close() error {
	return nil
}
