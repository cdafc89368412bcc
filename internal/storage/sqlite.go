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

	logx "notifface/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
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

func (s *sqliteStore) PutPayload(ctx context.Context, rec PayloadRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	rec.Path = strings.TrimSpace(rec.Path)
	if rec.Path == "" {
		return errors.New("storage: empty path")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO payloads(path, hash, updated_at) VALUES(?,?,?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, updated_at = excluded.updated_at`,
		rec.Path, int64(rec.Hash), rec.UpdatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM payload_items WHERE path = ?`, rec.Path); err != nil {
		return err
	}
	for k, v := range rec.Data {
		if v == nil {
			v = []byte{}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO payload_items(path, key, value) VALUES(?,?,?)`, rec.Path, k, v); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) GetPayload(ctx context.Context, path string) (PayloadRecord, bool, error) {
	if s == nil || s.db == nil {
		return PayloadRecord{}, false, ErrDisabled
	}
	path = strings.TrimSpace(path)
	var (
		hash    int64
		updated string
	)
	err := s.db.QueryRowContext(ctx, `SELECT hash, updated_at FROM payloads WHERE path = ?`, path).Scan(&hash, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return PayloadRecord{}, false, nil
	}
	if err != nil {
		return PayloadRecord{}, false, err
	}
	rec := PayloadRecord{Path: path, Hash: uint64(hash), Data: map[string][]byte{}}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		rec.UpdatedAt = t
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM payload_items WHERE path = ?`, path)
	if err != nil {
		return PayloadRecord{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k string
			v []byte
		)
		if err := rows.Scan(&k, &v); err != nil {
			return PayloadRecord{}, false, err
		}
		rec.Data[k] = v
	}
	if err := rows.Err(); err != nil {
		return PayloadRecord{}, false, err
	}
	return rec, true, nil
}

func (s *sqliteStore) ListPaths(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM payloads ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
