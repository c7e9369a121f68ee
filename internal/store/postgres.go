package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
)

// PostgresBlobStore keeps blobs in a single bytea table.
type PostgresBlobStore struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*PostgresBlobStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &PostgresBlobStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresBlobStore) migrate(ctx context.Context) error {
	// Advisory lock keeps concurrently starting replicas from racing on DDL.
	const lockID = 727001

	var acquired bool
	err := s.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !acquired {
		// Another replica is migrating; wait briefly and skip
		time.Sleep(2 * time.Second)
		return nil
	}

	defer func() {
		_, _ = s.db.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockID)
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS blobs (
			key TEXT PRIMARY KEY,
			content_type TEXT NOT NULL DEFAULT '',
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS blobs_key_prefix_idx ON blobs (key text_pattern_ops);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresBlobStore) Put(ctx context.Context, key string, blob Blob) error {
	data := blob.Data
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs(key, content_type, data)
		VALUES($1,$2,$3)
		ON CONFLICT (key) DO UPDATE SET content_type=excluded.content_type, data=excluded.data`,
		key, blob.ContentType, data)
	return err
}

func (s *PostgresBlobStore) Get(ctx context.Context, key string) (Blob, error) {
	var b Blob
	row := s.db.QueryRowContext(ctx, `SELECT data, content_type FROM blobs WHERE key=$1`, key)
	if err := row.Scan(&b.Data, &b.ContentType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Blob{}, ErrNotFound
		}
		return Blob{}, fmt.Errorf("failed to get blob %s: %w", key, err)
	}
	return b, nil
}

func (s *PostgresBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM blobs WHERE starts_with(key, $1) ORDER BY key`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *PostgresBlobStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ANY($1)`, pq.Array(keys))
	return err
}

func (s *PostgresBlobStore) Close() error {
	return s.db.Close()
}
