package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketscope/pkg/usage"
	"marketscope/pkg/usage/policy"
	"marketscope/pkg/usage/storage"
)

var testDefaults = usage.DefaultPolicy{
	Standard: usage.TierLimits{MonthlyLimit: 10.0, DailyLimit: 2.0, RequestsPerHour: 20},
	Premium:  usage.TierLimits{MonthlyLimit: 50.0, DailyLimit: 10.0, RequestsPerHour: 100},
}

func newTestLedger(t *testing.T, store storage.Store, now func() time.Time) (*Ledger, *policy.Policy) {
	t.Helper()
	p, err := policy.New(policy.Config{Store: store, Defaults: testDefaults, Now: now})
	if err != nil {
		t.Fatalf("policy.New: %v", err)
	}
	l, err := New(Config{Store: store, Policy: p, Now: now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, p
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestNewUserWithinLimits(t *testing.T) {
	store := storage.NewMemoryStore()
	l, _ := newTestLedger(t, store, nil)

	status, err := l.CheckUserLimits(context.Background(), "fresh-user")
	if err != nil {
		t.Fatalf("CheckUserLimits: %v", err)
	}
	if !status.WithinLimits {
		t.Error("a user with no usage must be within limits")
	}
	if status.MonthlyLimit != 10.0 || status.DailyLimit != 2.0 || status.HourlyLimit != 20 {
		t.Errorf("default limits not applied: %+v", status)
	}
	if status.MonthlyUsage != 0 || status.DailyUsage != 0 || status.HourlyRequests != 0 {
		t.Errorf("fresh user has usage: %+v", status)
	}
}

func TestDailyLimitExceeded(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	l, _ := newTestLedger(t, store, fixedClock(now))

	// Five 50-cent events spread over the trailing day: daily usage 2.50
	// against the 2.00 default, monthly 2.50 against 10.00.
	for i := 0; i < 5; i++ {
		err := store.InsertEvent(context.Background(), &usage.Event{
			UserID:        "u1",
			Timestamp:     now.Add(-time.Duration(i+2) * time.Hour),
			Service:       "llm",
			TokensUsed:    1000,
			EstimatedCost: 0.50,
			RequestType:   "market-analysis",
		})
		if err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	status, err := l.CheckUserLimits(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CheckUserLimits: %v", err)
	}
	if status.WithinLimits {
		t.Error("daily usage 2.50 over limit 2.00 must block")
	}
	if status.DailyUsage != 2.50 {
		t.Errorf("daily usage = %v, want 2.50", status.DailyUsage)
	}
	if status.MonthlyUsage != 2.50 {
		t.Errorf("monthly usage = %v, want 2.50", status.MonthlyUsage)
	}
	if status.MonthlyUsage > status.MonthlyLimit {
		t.Error("monthly should still be within its limit")
	}
}

func TestUsageAtExactLimitStillWithin(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	l, _ := newTestLedger(t, store, fixedClock(now))

	err := store.InsertEvent(context.Background(), &usage.Event{
		UserID: "u1", Timestamp: now.Add(-2 * time.Hour), Service: "llm",
		EstimatedCost: 2.00, RequestType: "market-analysis",
	})
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}

	status, err := l.CheckUserLimits(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CheckUserLimits: %v", err)
	}
	if !status.WithinLimits {
		t.Error("usage equal to the limit is within limits, blocking starts past it")
	}
}

func TestHourlyRequestCount(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	l, _ := newTestLedger(t, store, fixedClock(now))
	ctx := context.Background()

	// Three inside the hour (one exactly on the boundary), two outside.
	offsets := []time.Duration{-10 * time.Minute, -30 * time.Minute, -time.Hour, -61 * time.Minute, -2 * time.Hour}
	for _, off := range offsets {
		err := store.InsertEvent(ctx, &usage.Event{
			UserID: "u1", Timestamp: now.Add(off), Service: "llm", RequestType: "market-analysis",
		})
		if err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	count, err := l.GetHourlyRequestCount(ctx, "u1")
	if err != nil {
		t.Fatalf("GetHourlyRequestCount: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3 (hour-old event included)", count)
	}
}

func TestHourlyLimitExceeded(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	l, _ := newTestLedger(t, store, fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 21; i++ {
		err := store.InsertEvent(ctx, &usage.Event{
			UserID: "u1", Timestamp: now.Add(-time.Minute), Service: "price-data", RequestType: "crypto-price",
		})
		if err != nil {
			t.Fatalf("InsertEvent: %v", err)
		}
	}

	status, err := l.CheckUserLimits(ctx, "u1")
	if err != nil {
		t.Fatalf("CheckUserLimits: %v", err)
	}
	if status.WithinLimits {
		t.Error("21 requests in the hour over limit 20 must block")
	}
	if status.HourlyRequests != 21 {
		t.Errorf("hourly requests = %d, want 21", status.HourlyRequests)
	}
}

func TestRecordUsageValidation(t *testing.T) {
	store := storage.NewMemoryStore()
	l, _ := newTestLedger(t, store, nil)
	ctx := context.Background()

	cases := []struct {
		name    string
		userID  string
		service string
		tokens  int
		cost    float64
		wantErr error
	}{
		{"empty user", "", "llm", 0, 0, usage.ErrInvalidUser},
		{"blank user", "   ", "llm", 0, 0, usage.ErrInvalidUser},
		{"missing service", "u1", "", 0, 0, usage.ErrInvalidEvent},
		{"negative tokens", "u1", "llm", -1, 0, usage.ErrInvalidEvent},
		{"negative cost", "u1", "llm", 0, -0.01, usage.ErrInvalidEvent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := l.RecordUsage(ctx, tc.userID, tc.service, tc.tokens, tc.cost, "market-analysis", nil)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	count, _ := store.CountEvents(ctx, "u1", time.Now().Add(-time.Hour))
	if count != 0 {
		t.Errorf("invalid events reached the store: %d", count)
	}
}

func TestRecordUsageZeroCostAllowed(t *testing.T) {
	store := storage.NewMemoryStore()
	l, _ := newTestLedger(t, store, nil)

	err := l.RecordUsage(context.Background(), "u1", "price-data", 0, 0, "crypto-price", nil)
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	count, _ := store.CountEvents(context.Background(), "u1", time.Now().Add(-time.Hour))
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

// failingStore wraps a working store and fails selected operations.
type failingStore struct {
	storage.Store
	failTotals bool
	failCount  bool
	failInsert bool
	failLimits bool
}

func (f *failingStore) ServiceTotals(ctx context.Context, userID string, since time.Time) (map[string]usage.ServiceTotals, error) {
	if f.failTotals {
		return nil, usage.NewStorageError("test", "service_totals", errors.New("injected"))
	}
	return f.Store.ServiceTotals(ctx, userID, since)
}

func (f *failingStore) CountEvents(ctx context.Context, userID string, since time.Time) (int, error) {
	if f.failCount {
		return 0, usage.NewStorageError("test", "count_events", errors.New("injected"))
	}
	return f.Store.CountEvents(ctx, userID, since)
}

func (f *failingStore) InsertEvent(ctx context.Context, ev *usage.Event) error {
	if f.failInsert {
		return usage.NewStorageError("test", "insert_event", errors.New("injected"))
	}
	return f.Store.InsertEvent(ctx, ev)
}

func (f *failingStore) GetLimits(ctx context.Context, userID string) (*usage.UserLimits, error) {
	if f.failLimits {
		return nil, usage.NewStorageError("test", "get_limits", errors.New("injected"))
	}
	return f.Store.GetLimits(ctx, userID)
}

func TestCheckFailsClosedOnStoreFailure(t *testing.T) {
	cases := map[string]*failingStore{
		"totals failure": {Store: storage.NewMemoryStore(), failTotals: true},
		"count failure":  {Store: storage.NewMemoryStore(), failCount: true},
		"limits failure": {Store: storage.NewMemoryStore(), failLimits: true},
	}

	for name, store := range cases {
		t.Run(name, func(t *testing.T) {
			l, _ := newTestLedger(t, store, nil)

			status, err := l.CheckUserLimits(context.Background(), "u1")
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, usage.ErrStorageUnavailable) {
				t.Errorf("err = %v, want ErrStorageUnavailable", err)
			}
			if status == nil || status.WithinLimits {
				t.Error("check must fail closed with WithinLimits=false")
			}
		})
	}
}

func TestRecordUsageSurfacesInsertFailure(t *testing.T) {
	store := &failingStore{Store: storage.NewMemoryStore(), failInsert: true}
	l, _ := newTestLedger(t, store, nil)

	err := l.RecordUsage(context.Background(), "u1", "llm", 100, 0.01, "market-analysis", nil)
	if !errors.Is(err, usage.ErrStorageUnavailable) {
		t.Errorf("err = %v, want ErrStorageUnavailable", err)
	}
}

func TestGetUserUsageEmptyLedger(t *testing.T) {
	store := storage.NewMemoryStore()
	l, _ := newTestLedger(t, store, nil)

	totals, err := l.GetUserUsage(context.Background(), "u1", 30)
	if err != nil {
		t.Fatalf("GetUserUsage: %v", err)
	}
	if len(totals) != 0 {
		t.Errorf("totals = %v, want empty", totals)
	}
}

func TestCheckReflectsPremiumTier(t *testing.T) {
	store := storage.NewMemoryStore()
	l, p := newTestLedger(t, store, nil)
	ctx := context.Background()

	if _, err := p.GrantPremium(ctx, "u1"); err != nil {
		t.Fatalf("GrantPremium: %v", err)
	}

	status, err := l.CheckUserLimits(ctx, "u1")
	if err != nil {
		t.Fatalf("CheckUserLimits: %v", err)
	}
	if !status.IsPremium {
		t.Error("premium tier not reflected")
	}
	if status.MonthlyLimit != 50.0 || status.DailyLimit != 10.0 || status.HourlyLimit != 100 {
		t.Errorf("premium limits not applied: %+v", status)
	}
}
