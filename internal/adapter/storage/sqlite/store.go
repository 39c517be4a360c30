package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"

	"github.com/bnema/reelsub/internal/domain"
	"github.com/bnema/reelsub/internal/port"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is the persistent transcript cache.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA cache_size = -8000", // 8MB
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

func NewStore(dataDir string) (*Store, error) {
	registerHook()

	db, err := sql.Open("sqlite", filepath.Join(dataDir, "reelsub.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for SQLite (WAL allows concurrent reads but only one writer)
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (*domain.TranscriptionRecord, error) {
	var (
		payload   string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM transcripts WHERE cache_key = ?`, key,
	).Scan(&payload, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	if expiresAt > 0 && expiresAt <= s.now().UnixMilli() {
		return nil, domain.ErrCacheMiss
	}

	var rec domain.TranscriptionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode transcript %s: %w", key, err)
	}
	return &rec, nil
}

// Put stores record under its cache key. The record's own ExpiresAt wins over
// ttl; a zero ttl without ExpiresAt never expires.
func (s *Store) Put(ctx context.Context, record *domain.TranscriptionRecord, ttl time.Duration) error {
	if record.CacheKey == "" {
		return fmt.Errorf("%w: transcript without cache key", domain.ErrInvalidRequest)
	}
	now := s.now()
	created := record.CreatedAt
	if created.IsZero() {
		created = now
	}
	expires := record.ExpiresAt
	if expires.IsZero() && ttl > 0 {
		expires = now.Add(ttl)
	}

	stored := *record
	stored.CacheHit = false
	payload, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	var expiresMillis int64
	if !expires.IsZero() {
		expiresMillis = expires.UnixMilli()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcripts (cache_key, language, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			language = excluded.language,
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		record.CacheKey, record.Language, string(payload), created.UnixMilli(), expiresMillis,
	)
	if err != nil {
		return fmt.Errorf("put transcript: %w", err)
	}
	return nil
}

// Purge deletes rows that expired at or before now.
func (s *Store) Purge(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transcripts WHERE expires_at > 0 AND expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge transcripts: %w", err)
	}
	return res.RowsAffected()
}

// Count reports the number of cached transcripts, expired ones included.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcripts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transcripts: %w", err)
	}
	return n, nil
}

var _ port.TranscriptCache = (*Store)(nil)
