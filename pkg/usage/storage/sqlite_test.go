package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"marketscope/pkg/usage"
)

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	ctx := context.Background()
	now := time.Now()

	s, err := NewSQLiteStore(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	insertAt(t, s, "u1", "llm", 0.50, 1000, now.Add(-time.Hour))
	row := &usage.UserLimits{UserID: "u1", MonthlyLimit: 10, DailyLimit: 2, RequestsPerHour: 20, CreatedAt: now, UpdatedAt: now}
	if err := s.EnsureLimits(ctx, row); err != nil {
		t.Fatalf("EnsureLimits: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteStore(SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	count, err := reopened.CountEvents(ctx, "u1", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 1 {
		t.Errorf("count after reopen = %d, want 1", count)
	}

	limits, err := reopened.GetLimits(ctx, "u1")
	if err != nil {
		t.Fatalf("GetLimits: %v", err)
	}
	if limits == nil || limits.MonthlyLimit != 10 {
		t.Errorf("limits after reopen = %+v", limits)
	}
}

func TestSQLiteStoreConcurrentEnsureLimits(t *testing.T) {
	s, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "usage.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(monthly float64) {
			defer wg.Done()
			row := &usage.UserLimits{
				UserID: "u1", MonthlyLimit: monthly, DailyLimit: 2, RequestsPerHour: 20,
				CreatedAt: now, UpdatedAt: now,
			}
			if err := s.EnsureLimits(ctx, row); err != nil {
				t.Errorf("EnsureLimits: %v", err)
			}
		}(float64(10 + i))
	}
	wg.Wait()

	limits, err := s.GetLimits(ctx, "u1")
	if err != nil {
		t.Fatalf("GetLimits: %v", err)
	}
	if limits == nil {
		t.Fatal("no limit row committed")
	}
	if limits.MonthlyLimit < 10 || limits.MonthlyLimit > 19 {
		t.Errorf("monthly = %v, want one of the racing values", limits.MonthlyLimit)
	}
}

func TestSQLiteStoreConcurrentInserts(t *testing.T) {
	s, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "usage.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ev := &usage.Event{
				UserID: "u1", Timestamp: now, Service: "llm",
				TokensUsed: 100, EstimatedCost: 0.01, RequestType: "market-analysis",
			}
			if err := s.InsertEvent(ctx, ev); err != nil {
				t.Errorf("InsertEvent: %v", err)
			}
		}()
	}
	wg.Wait()

	count, err := s.CountEvents(ctx, "u1", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if count != 20 {
		t.Errorf("count = %d, want 20", count)
	}
}

func TestSQLiteStoreCloseIdempotent(t *testing.T) {
	s, err := NewSQLiteStore(SQLiteConfig{Path: filepath.Join(t.TempDir(), "usage.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(SQLiteConfig{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}
