package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"marketscope/pkg/usage"
)

// SQLiteStore implements Store using SQLite for persistence.
// It is the production backend: durable, single-file, suitable for a
// single-writer-per-process embedded ledger.
//
// The store runs in WAL mode with periodic checkpoints to balance write
// performance with durability.
type SQLiteStore struct {
	db                 *sql.DB
	dbPath             string
	checkpointInterval time.Duration
	logger             *slog.Logger
	done               chan struct{}
	closeOnce          sync.Once

	// Pre-compiled statements for the hot paths.
	insertEventStmt  *sql.Stmt
	totalsStmt       *sql.Stmt
	countStmt        *sql.Stmt
	getLimitsStmt    *sql.Stmt
	ensureLimitsStmt *sql.Stmt
	upsertLimitsStmt *sql.Stmt
	statsStmt        *sql.Stmt
	topUsersStmt     *sql.Stmt
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration
}

// NewSQLiteStore creates a new SQLite store and initializes the schema.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, usage.NewStorageError("sqlite", "open", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{
		db:                 db,
		dbPath:             cfg.Path,
		checkpointInterval: cfg.CheckpointInterval,
		logger:             slog.Default().With("component", "usage.storage.sqlite"),
		done:               make(chan struct{}),
	}

	if err := s.initialize(cfg.BusyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	go s.checkpointLoop()

	s.logger.Info("SQLite usage store initialized", "path", cfg.Path)

	return s, nil
}

// initialize enables WAL mode, sets the busy timeout, and creates the schema.
func (s *SQLiteStore) initialize(busyTimeout time.Duration) error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return usage.NewStorageError("sqlite", "enable_wal", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())); err != nil {
		return usage.NewStorageError("sqlite", "set_busy_timeout", err)
	}
	if _, err := s.db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		return usage.NewStorageError("sqlite", "set_synchronous", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS usage_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		service TEXT NOT NULL,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		estimated_cost REAL NOT NULL DEFAULT 0,
		request_type TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_usage_user_timestamp ON usage_records(user_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage_records(timestamp);

	CREATE TABLE IF NOT EXISTS user_limits (
		user_id TEXT PRIMARY KEY,
		monthly_limit REAL NOT NULL,
		daily_limit REAL NOT NULL,
		requests_per_hour INTEGER NOT NULL,
		is_premium INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return usage.NewStorageError("sqlite", "create_schema", err)
	}

	return nil
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteStore) prepareStatements() error {
	prepared := []struct {
		stmt **sql.Stmt
		name string
		sql  string
	}{
		{&s.insertEventStmt, "insert_event", `
			INSERT INTO usage_records (user_id, timestamp, service, tokens_used, estimated_cost, request_type, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`},
		{&s.totalsStmt, "service_totals", `
			SELECT service,
			       COALESCE(SUM(tokens_used), 0),
			       COALESCE(SUM(estimated_cost), 0),
			       COUNT(*)
			FROM usage_records
			WHERE user_id = ? AND timestamp >= ?
			GROUP BY service
		`},
		{&s.countStmt, "count_events", `
			SELECT COUNT(*) FROM usage_records
			WHERE user_id = ? AND timestamp >= ?
		`},
		{&s.getLimitsStmt, "get_limits", `
			SELECT user_id, monthly_limit, daily_limit, requests_per_hour, is_premium, created_at, updated_at
			FROM user_limits
			WHERE user_id = ?
		`},
		{&s.ensureLimitsStmt, "ensure_limits", `
			INSERT INTO user_limits (user_id, monthly_limit, daily_limit, requests_per_hour, is_premium, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id) DO NOTHING
		`},
		{&s.upsertLimitsStmt, "upsert_limits", `
			INSERT INTO user_limits (user_id, monthly_limit, daily_limit, requests_per_hour, is_premium, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				monthly_limit = excluded.monthly_limit,
				daily_limit = excluded.daily_limit,
				requests_per_hour = excluded.requests_per_hour,
				is_premium = excluded.is_premium,
				updated_at = excluded.updated_at
		`},
		{&s.statsStmt, "stats", `
			SELECT COUNT(DISTINCT user_id),
			       COUNT(*),
			       COALESCE(SUM(estimated_cost), 0),
			       COALESCE(AVG(estimated_cost), 0)
			FROM usage_records
			WHERE timestamp >= ?
		`},
		{&s.topUsersStmt, "top_users", `
			SELECT user_id, SUM(estimated_cost) AS total_cost
			FROM usage_records
			WHERE timestamp >= ?
			GROUP BY user_id
			ORDER BY total_cost DESC
			LIMIT ?
		`},
	}

	for _, p := range prepared {
		stmt, err := s.db.Prepare(p.sql)
		if err != nil {
			return usage.NewStorageError("sqlite", "prepare_"+p.name, err)
		}
		*p.stmt = stmt
	}

	return nil
}

// InsertEvent appends an immutable usage event.
func (s *SQLiteStore) InsertEvent(ctx context.Context, ev *usage.Event) error {
	if ev == nil {
		return fmt.Errorf("event cannot be nil")
	}

	metadata := "{}"
	if len(ev.Metadata) > 0 {
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		metadata = string(raw)
	}

	res, err := s.insertEventStmt.ExecContext(ctx,
		ev.UserID,
		ev.Timestamp.UnixNano(),
		ev.Service,
		ev.TokensUsed,
		ev.EstimatedCost,
		ev.RequestType,
		metadata,
	)
	if err != nil {
		return usage.NewStorageError("sqlite", "insert_event", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		ev.ID = id
	}

	return nil
}

// ServiceTotals aggregates a user's events at or after since, grouped by service.
func (s *SQLiteStore) ServiceTotals(ctx context.Context, userID string, since time.Time) (map[string]usage.ServiceTotals, error) {
	rows, err := s.totalsStmt.QueryContext(ctx, userID, since.UnixNano())
	if err != nil {
		return nil, usage.NewStorageError("sqlite", "service_totals", err)
	}
	defer rows.Close()

	totals := make(map[string]usage.ServiceTotals)
	for rows.Next() {
		var service string
		var t usage.ServiceTotals
		if err := rows.Scan(&service, &t.Tokens, &t.Cost, &t.Requests); err != nil {
			return nil, usage.NewStorageError("sqlite", "service_totals_scan", err)
		}
		totals[service] = t
	}
	if err := rows.Err(); err != nil {
		return nil, usage.NewStorageError("sqlite", "service_totals_rows", err)
	}

	return totals, nil
}

// CountEvents counts a user's events at or after since.
func (s *SQLiteStore) CountEvents(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.countStmt.QueryRowContext(ctx, userID, since.UnixNano()).Scan(&count)
	if err != nil {
		return 0, usage.NewStorageError("sqlite", "count_events", err)
	}
	return count, nil
}

// GetLimits retrieves a user's limit row. Returns (nil, nil) when absent.
func (s *SQLiteStore) GetLimits(ctx context.Context, userID string) (*usage.UserLimits, error) {
	var (
		l         usage.UserLimits
		isPremium int64
		createdAt int64
		updatedAt int64
	)

	err := s.getLimitsStmt.QueryRowContext(ctx, userID).Scan(
		&l.UserID,
		&l.MonthlyLimit,
		&l.DailyLimit,
		&l.RequestsPerHour,
		&isPremium,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, usage.NewStorageError("sqlite", "get_limits", err)
	}

	l.IsPremium = isPremium != 0
	l.CreatedAt = time.Unix(0, createdAt)
	l.UpdatedAt = time.Unix(0, updatedAt)

	return &l, nil
}

// EnsureLimits inserts a limit row only if none exists for the user.
func (s *SQLiteStore) EnsureLimits(ctx context.Context, limits *usage.UserLimits) error {
	if limits == nil {
		return fmt.Errorf("limits cannot be nil")
	}

	_, err := s.ensureLimitsStmt.ExecContext(ctx,
		limits.UserID,
		limits.MonthlyLimit,
		limits.DailyLimit,
		limits.RequestsPerHour,
		boolToInt(limits.IsPremium),
		limits.CreatedAt.UnixNano(),
		limits.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return usage.NewStorageError("sqlite", "ensure_limits", err)
	}

	return nil
}

// UpsertLimits inserts or replaces a user's limit row, preserving the stored
// created_at on update.
func (s *SQLiteStore) UpsertLimits(ctx context.Context, limits *usage.UserLimits) error {
	if limits == nil {
		return fmt.Errorf("limits cannot be nil")
	}

	_, err := s.upsertLimitsStmt.ExecContext(ctx,
		limits.UserID,
		limits.MonthlyLimit,
		limits.DailyLimit,
		limits.RequestsPerHour,
		boolToInt(limits.IsPremium),
		limits.CreatedAt.UnixNano(),
		limits.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return usage.NewStorageError("sqlite", "upsert_limits", err)
	}

	return nil
}

// Stats computes the global aggregate over all events at or after since.
func (s *SQLiteStore) Stats(ctx context.Context, since time.Time) (*usage.Stats, error) {
	var st usage.Stats
	err := s.statsStmt.QueryRowContext(ctx, since.UnixNano()).Scan(
		&st.UniqueUsers,
		&st.TotalRequests,
		&st.TotalCost,
		&st.AvgCostPerRequest,
	)
	if err != nil {
		return nil, usage.NewStorageError("sqlite", "stats", err)
	}
	return &st, nil
}

// TopUsers returns up to limit users ordered by total cost descending.
func (s *SQLiteStore) TopUsers(ctx context.Context, since time.Time, limit int) ([]usage.UserSpend, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.topUsersStmt.QueryContext(ctx, since.UnixNano(), limit)
	if err != nil {
		return nil, usage.NewStorageError("sqlite", "top_users", err)
	}
	defer rows.Close()

	var top []usage.UserSpend
	for rows.Next() {
		var u usage.UserSpend
		if err := rows.Scan(&u.UserID, &u.TotalCost); err != nil {
			return nil, usage.NewStorageError("sqlite", "top_users_scan", err)
		}
		top = append(top, u)
	}
	if err := rows.Err(); err != nil {
		return nil, usage.NewStorageError("sqlite", "top_users_rows", err)
	}

	return top, nil
}

// ResetUser removes all events and the limit row for one user.
func (s *SQLiteStore) ResetUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return usage.NewStorageError("sqlite", "reset_user_begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM usage_records WHERE user_id = ?", userID); err != nil {
		return usage.NewStorageError("sqlite", "reset_user_events", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_limits WHERE user_id = ?", userID); err != nil {
		return usage.NewStorageError("sqlite", "reset_user_limits", err)
	}

	if err := tx.Commit(); err != nil {
		return usage.NewStorageError("sqlite", "reset_user_commit", err)
	}

	s.logger.Warn("user ledger reset", "user_id", userID)
	return nil
}

// ResetAll clears the entire ledger.
func (s *SQLiteStore) ResetAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return usage.NewStorageError("sqlite", "reset_all_begin", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM usage_records"); err != nil {
		return usage.NewStorageError("sqlite", "reset_all_events", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM user_limits"); err != nil {
		return usage.NewStorageError("sqlite", "reset_all_limits", err)
	}

	if err := tx.Commit(); err != nil {
		return usage.NewStorageError("sqlite", "reset_all_commit", err)
	}

	s.logger.Warn("entire usage ledger reset")
	return nil
}

// Close releases any resources held by the store.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteStore) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{
			s.insertEventStmt, s.totalsStmt, s.countStmt, s.getLimitsStmt,
			s.ensureLimitsStmt, s.upsertLimitsStmt, s.statsStmt, s.topUsersStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if s.db != nil {
			// Run final checkpoint
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteStore) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
