package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists cookies in a SQLite database
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) the cookie database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = filepath.Clean(path)
	if path == "" || path == "." {
		return nil, fmt.Errorf("invalid session db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create session db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// One writer at a time
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS cookies (
	profile TEXT NOT NULL,
	name TEXT NOT NULL,
	domain TEXT NOT NULL,
	path TEXT NOT NULL,
	value TEXT NOT NULL,
	expires_unix_ms INTEGER NOT NULL,
	http_only INTEGER NOT NULL,
	secure INTEGER NOT NULL,
	same_site TEXT NOT NULL,
	updated_at_unix_ms INTEGER NOT NULL,
	PRIMARY KEY (profile, name, domain, path)
);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init cookies schema: %w", err)
	}
	return nil
}

// Load returns the unexpired cookies of profile and prunes expired ones
func (s *SQLiteStore) Load(ctx context.Context, profile string) ([]Cookie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	nowMS := s.now().UTC().UnixMilli()
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cookies WHERE profile = ? AND expires_unix_ms > 0 AND expires_unix_ms <= ?`,
		profile, nowMS); err != nil {
		return nil, fmt.Errorf("prune cookies: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT name, value, domain, path, expires_unix_ms, http_only, secure, same_site
FROM cookies WHERE profile = ?
ORDER BY domain, path, name`, profile)
	if err != nil {
		return nil, fmt.Errorf("query cookies: %w", err)
	}
	defer rows.Close()

	var out []Cookie
	for rows.Next() {
		var (
			c         Cookie
			expiresMS int64
			httpOnly  int
			secure    int
		)
		if err := rows.Scan(&c.Name, &c.Value, &c.Domain, &c.Path, &expiresMS, &httpOnly, &secure, &c.SameSite); err != nil {
			return nil, fmt.Errorf("scan cookie: %w", err)
		}
		c.Expires = unixMSToTime(expiresMS)
		c.HTTPOnly = httpOnly != 0
		c.Secure = secure != 0
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cookies: %w", err)
	}
	return out, nil
}

// Save upserts cookies into profile in a single transaction
func (s *SQLiteStore) Save(ctx context.Context, profile string, cookies []Cookie) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	if len(cookies) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cookie tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO cookies (profile, name, domain, path, value, expires_unix_ms, http_only, secure, same_site, updated_at_unix_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(profile, name, domain, path) DO UPDATE SET
	value = excluded.value,
	expires_unix_ms = excluded.expires_unix_ms,
	http_only = excluded.http_only,
	secure = excluded.secure,
	same_site = excluded.same_site,
	updated_at_unix_ms = excluded.updated_at_unix_ms`)
	if err != nil {
		return fmt.Errorf("prepare cookie upsert: %w", err)
	}
	defer stmt.Close()

	nowMS := s.now().UTC().UnixMilli()
	for _, c := range cookies {
		if _, err := stmt.ExecContext(ctx, profile, c.Name, c.Domain, c.Path, c.Value,
			timeToUnixMS(c.Expires), boolToInt(c.HTTPOnly), boolToInt(c.Secure), c.SameSite, nowMS); err != nil {
			return fmt.Errorf("upsert cookie %s: %w", c.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cookies: %w", err)
	}
	return nil
}

// Close releases the database
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func timeToUnixMS(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.UTC().UnixMilli()
}

func unixMSToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
