package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteConversationBlobs keeps conversation state in a local SQLite file so
// slot-filling survives a restart
type SQLiteConversationBlobs struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteConversationBlobs, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS conversations (
  conversation_key TEXT PRIMARY KEY,
  state BLOB NOT NULL,
  updated_at INTEGER NOT NULL
);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create conversations table: %w", err)
	}

	logger.Named("sqlite").Info("conversation store opened", zap.String("path", path))
	return &SQLiteConversationBlobs{db: db}, nil
}

// Close closes the database
func (s *SQLiteConversationBlobs) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadConversation returns the stored state for key
func (s *SQLiteConversationBlobs) LoadConversation(ctx context.Context, key string) ([]byte, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM conversations WHERE conversation_key = ?`, key).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", key, err)
	}
	return state, nil
}

// SaveConversation upserts the state for key
func (s *SQLiteConversationBlobs) SaveConversation(ctx context.Context, key string, state []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO conversations (conversation_key, state, updated_at) VALUES (?, ?, ?)
ON CONFLICT(conversation_key) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		key, state, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", key, err)
	}
	return nil
}

// DeleteConversation removes the state for key
func (s *SQLiteConversationBlobs) DeleteConversation(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", key, err)
	}
	return nil
}
