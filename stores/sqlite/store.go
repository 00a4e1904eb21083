package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"polotno-studio/core"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}
	// A single connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	kvTableStmt := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		data BLOB,
		updated_at DATETIME
	);`
	if _, err = db.Exec(kvTableStmt); err != nil {
		log.Fatalf("failed to create kv table: %v", err)
	}

	return &sqliteStore{db}
}

func (s *sqliteStore) Read(ctx context.Context, key string) (core.Value, error) {
	log := logrus.WithField("key", key)

	var kind string
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT kind, data FROM kv WHERE key = ?", key).Scan(&kind, &data)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Debug("Key not found")
			return core.Value{}, fmt.Errorf("read %s: %w", key, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to read value")
		return core.Value{}, err
	}

	v, err := core.StoredValue(core.ParseValueKind(kind), data)
	if err != nil {
		return core.Value{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

func (s *sqliteStore) Write(ctx context.Context, key string, value core.Value) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	data, err := value.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, kind, data, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, data = excluded.data, updated_at = excluded.updated_at`,
		key, value.Kind.String(), data, time.Now())
	if err != nil {
		logrus.WithField("key", key).WithError(err).Error("Failed to write value")
		return err
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", key, core.ErrNotFound)
	}
	return nil
}

// Close releases the database handle.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}
