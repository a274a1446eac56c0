package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "urlwatch/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps digest and content of a key in one row. Either column may
// be NULL until its first write; a NULL column reads as not found.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Location)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ReadDigest(ctx context.Context, key string) (string, bool, error) {
	var d sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT digest FROM state WHERE key = ?`, key).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !d.Valid {
		return "", false, nil
	}
	return d.String, true, nil
}

func (s *sqliteStore) WriteDigest(ctx context.Context, key, d string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state(key, digest, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET digest=excluded.digest, updated_at=excluded.updated_at`,
		key, d, now(),
	)
	return err
}

func (s *sqliteStore) ReadContent(ctx context.Context, key string) ([]byte, bool, error) {
	var b []byte
	var present bool
	err := s.db.QueryRowContext(ctx, `SELECT content IS NOT NULL, content FROM state WHERE key = ?`, key).Scan(&present, &b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !present {
		return nil, false, nil
	}
	if b == nil {
		b = []byte{}
	}
	return b, true, nil
}

func (s *sqliteStore) WriteContent(ctx context.Context, key string, content []byte) error {
	if content == nil {
		content = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state(key, content, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET content=excluded.content, updated_at=excluded.updated_at`,
		key, content, now(),
	)
	return err
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }
