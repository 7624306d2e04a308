package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"marketscope/pkg/usage"
)

// storeFactories returns a constructor per backend so every Store
// implementation passes the same behavioral suite.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "usage.db")})
			if err != nil {
				t.Fatalf("NewSQLiteStore: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func insertAt(t *testing.T, s Store, userID, service string, cost float64, tokens int, at time.Time) {
	t.Helper()
	err := s.InsertEvent(context.Background(), &usage.Event{
		UserID:        userID,
		Timestamp:     at,
		Service:       service,
		TokensUsed:    tokens,
		EstimatedCost: cost,
		RequestType:   "market-analysis",
	})
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
}

func TestStoreServiceTotals(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			now := time.Now()

			insertAt(t, s, "u1", "llm", 0.50, 1000, now.Add(-time.Hour))
			insertAt(t, s, "u1", "llm", 0.25, 500, now.Add(-2*time.Hour))
			insertAt(t, s, "u1", "price-data", 0, 0, now.Add(-time.Hour))
			insertAt(t, s, "u2", "llm", 9.99, 100, now.Add(-time.Hour))
			insertAt(t, s, "u1", "llm", 0.75, 1500, now.Add(-48*time.Hour))

			totals, err := s.ServiceTotals(ctx, "u1", now.Add(-24*time.Hour))
			if err != nil {
				t.Fatalf("ServiceTotals: %v", err)
			}

			llm := totals["llm"]
			if llm.Cost != 0.75 || llm.Tokens != 1500 || llm.Requests != 2 {
				t.Errorf("llm totals = %+v", llm)
			}
			pd := totals["price-data"]
			if pd.Requests != 1 || pd.Cost != 0 {
				t.Errorf("price-data totals = %+v", pd)
			}
		})
	}
}

func TestStoreWindowBoundaryInclusive(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			boundary := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

			insertAt(t, s, "u1", "llm", 1.00, 10, boundary)
			insertAt(t, s, "u1", "llm", 1.00, 10, boundary.Add(-time.Nanosecond))

			count, err := s.CountEvents(ctx, "u1", boundary)
			if err != nil {
				t.Fatalf("CountEvents: %v", err)
			}
			if count != 1 {
				t.Errorf("count = %d, want 1 (boundary inclusive, older excluded)", count)
			}
		})
	}
}

func TestStoreCountEventsEmptyUser(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)

			count, err := s.CountEvents(context.Background(), "nobody", time.Now().Add(-time.Hour))
			if err != nil {
				t.Fatalf("CountEvents: %v", err)
			}
			if count != 0 {
				t.Errorf("count = %d, want 0", count)
			}

			totals, err := s.ServiceTotals(context.Background(), "nobody", time.Now().Add(-time.Hour))
			if err != nil {
				t.Fatalf("ServiceTotals: %v", err)
			}
			if len(totals) != 0 {
				t.Errorf("totals = %v, want empty", totals)
			}
		})
	}
}

func TestStoreLimitsLifecycle(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			got, err := s.GetLimits(ctx, "u1")
			if err != nil {
				t.Fatalf("GetLimits: %v", err)
			}
			if got != nil {
				t.Fatalf("expected nil row for unknown user, got %+v", got)
			}

			created := time.Now().Truncate(time.Millisecond)
			row := &usage.UserLimits{
				UserID: "u1", MonthlyLimit: 10, DailyLimit: 2, RequestsPerHour: 20,
				CreatedAt: created, UpdatedAt: created,
			}
			if err := s.EnsureLimits(ctx, row); err != nil {
				t.Fatalf("EnsureLimits: %v", err)
			}

			// A second ensure with different values must not overwrite.
			other := *row
			other.MonthlyLimit = 999
			if err := s.EnsureLimits(ctx, &other); err != nil {
				t.Fatalf("EnsureLimits second: %v", err)
			}

			got, err = s.GetLimits(ctx, "u1")
			if err != nil {
				t.Fatalf("GetLimits: %v", err)
			}
			if got == nil || got.MonthlyLimit != 10 {
				t.Fatalf("ensure overwrote existing row: %+v", got)
			}

			// Upsert updates values but preserves created_at.
			updated := *got
			updated.MonthlyLimit = 25
			updated.IsPremium = true
			updated.UpdatedAt = created.Add(time.Hour)
			if err := s.UpsertLimits(ctx, &updated); err != nil {
				t.Fatalf("UpsertLimits: %v", err)
			}

			got, err = s.GetLimits(ctx, "u1")
			if err != nil {
				t.Fatalf("GetLimits: %v", err)
			}
			if got.MonthlyLimit != 25 || !got.IsPremium {
				t.Errorf("upsert not applied: %+v", got)
			}
			if !got.CreatedAt.Equal(created) {
				t.Errorf("created_at = %v, want %v", got.CreatedAt, created)
			}
			if !got.UpdatedAt.Equal(created.Add(time.Hour)) {
				t.Errorf("updated_at = %v", got.UpdatedAt)
			}
		})
	}
}

func TestStoreStatsAndTopUsers(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			now := time.Now()

			insertAt(t, s, "u1", "llm", 3.00, 100, now.Add(-time.Hour))
			insertAt(t, s, "u1", "llm", 1.00, 100, now.Add(-time.Hour))
			insertAt(t, s, "u2", "llm", 5.00, 100, now.Add(-time.Hour))
			insertAt(t, s, "u3", "llm", 0.50, 100, now.Add(-40*24*time.Hour))

			since := now.Add(-30 * 24 * time.Hour)
			stats, err := s.Stats(ctx, since)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if stats.UniqueUsers != 2 || stats.TotalRequests != 3 {
				t.Errorf("stats = %+v", stats)
			}
			if stats.TotalCost != 9.00 {
				t.Errorf("total cost = %v, want 9.00", stats.TotalCost)
			}
			if stats.AvgCostPerRequest != 3.00 {
				t.Errorf("avg cost = %v, want 3.00", stats.AvgCostPerRequest)
			}

			top, err := s.TopUsers(ctx, since, 5)
			if err != nil {
				t.Fatalf("TopUsers: %v", err)
			}
			if len(top) != 2 {
				t.Fatalf("top = %+v, want 2 users", top)
			}
			if top[0].UserID != "u2" || top[0].TotalCost != 5.00 {
				t.Errorf("top[0] = %+v", top[0])
			}
			if top[1].UserID != "u1" || top[1].TotalCost != 4.00 {
				t.Errorf("top[1] = %+v", top[1])
			}
		})
	}
}

func TestStoreTopUsersLimit(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			now := time.Now()

			for i, user := range []string{"a", "b", "c", "d"} {
				insertAt(t, s, user, "llm", float64(i+1), 10, now.Add(-time.Hour))
			}

			top, err := s.TopUsers(context.Background(), now.Add(-24*time.Hour), 2)
			if err != nil {
				t.Fatalf("TopUsers: %v", err)
			}
			if len(top) != 2 {
				t.Fatalf("len = %d, want 2", len(top))
			}
			if top[0].UserID != "d" || top[1].UserID != "c" {
				t.Errorf("top = %+v", top)
			}
		})
	}
}

func TestStoreResetUser(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			now := time.Now()

			insertAt(t, s, "u1", "llm", 1.00, 10, now.Add(-time.Hour))
			insertAt(t, s, "u2", "llm", 2.00, 10, now.Add(-time.Hour))
			row := &usage.UserLimits{UserID: "u1", MonthlyLimit: 10, DailyLimit: 2, RequestsPerHour: 20, CreatedAt: now, UpdatedAt: now}
			if err := s.EnsureLimits(ctx, row); err != nil {
				t.Fatalf("EnsureLimits: %v", err)
			}

			if err := s.ResetUser(ctx, "u1"); err != nil {
				t.Fatalf("ResetUser: %v", err)
			}

			count, _ := s.CountEvents(ctx, "u1", now.Add(-24*time.Hour))
			if count != 0 {
				t.Errorf("u1 still has %d events", count)
			}
			limits, _ := s.GetLimits(ctx, "u1")
			if limits != nil {
				t.Errorf("u1 limit row survived reset: %+v", limits)
			}

			// Other users untouched.
			count, _ = s.CountEvents(ctx, "u2", now.Add(-24*time.Hour))
			if count != 1 {
				t.Errorf("u2 count = %d, want 1", count)
			}
		})
	}
}

func TestStoreResetAll(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			now := time.Now()

			insertAt(t, s, "u1", "llm", 1.00, 10, now.Add(-time.Hour))
			insertAt(t, s, "u2", "llm", 2.00, 10, now.Add(-time.Hour))

			if err := s.ResetAll(ctx); err != nil {
				t.Fatalf("ResetAll: %v", err)
			}

			stats, err := s.Stats(ctx, now.Add(-24*time.Hour))
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if stats.TotalRequests != 0 || stats.UniqueUsers != 0 {
				t.Errorf("stats after reset = %+v", stats)
			}
		})
	}
}

func TestStoreEventMetadataRoundtrip(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)

			ev := &usage.Event{
				UserID:        "u1",
				Timestamp:     time.Now(),
				Service:       "llm",
				TokensUsed:    100,
				EstimatedCost: 0.01,
				RequestType:   "market-analysis",
				Metadata:      map[string]string{"symbol": "AAPL"},
			}
			if err := s.InsertEvent(context.Background(), ev); err != nil {
				t.Fatalf("InsertEvent: %v", err)
			}
			if ev.ID == 0 {
				t.Error("event id not assigned")
			}
		})
	}
}
