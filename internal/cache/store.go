// Package cache persists local snapshots of the conversation list and
// recently viewed threads. Snapshots are read once at startup to paint the
// UI before the first live refresh resolves; the backend remains the source
// of truth and every successful refresh overwrites the snapshot.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/habitere/hbmsg/internal/logging"
	"github.com/habitere/hbmsg/internal/messaging"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed snapshot store. It implements messaging.Cache.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (or creates) the snapshot database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	s := &Store{db: db, log: logging.Component("cache")}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Debug().Str("path", path).Msg("snapshot cache opened")
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			position INTEGER NOT NULL,
			counterparty_id TEXT NOT NULL PRIMARY KEY,
			counterparty_name TEXT NOT NULL,
			counterparty_picture TEXT NOT NULL DEFAULT '',
			last_message TEXT NOT NULL,
			last_message_time TEXT NOT NULL,
			unread_count INTEGER NOT NULL DEFAULT 0,
			is_last_sender INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS thread_messages (
			counterparty_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			is_read INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (counterparty_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS thread_messages_lookup_idx ON thread_messages(counterparty_id, position)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize cache schema: %w", err)
		}
	}
	return nil
}

// SaveConversations replaces the conversation list snapshot.
func (s *Store) SaveConversations(ctx context.Context, convos []messaging.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("failed to clear conversation snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversations (position, counterparty_id, counterparty_name, counterparty_picture, last_message, last_message_time, unread_count, is_last_sender)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare conversation insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range convos {
		_, err := stmt.ExecContext(ctx,
			i,
			c.CounterpartyID,
			c.CounterpartyName,
			c.CounterpartyPicture,
			c.LastMessage.Content,
			c.LastMessage.CreatedAt.UTC().Format(time.RFC3339Nano),
			c.UnreadCount,
			boolToInt(c.IsLastSender),
		)
		if err != nil {
			return fmt.Errorf("failed to insert conversation snapshot: %w", err)
		}
	}
	return tx.Commit()
}

// Conversations loads the conversation list snapshot in saved order.
func (s *Store) Conversations(ctx context.Context) ([]messaging.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT counterparty_id, counterparty_name, counterparty_picture, last_message, last_message_time, unread_count, is_last_sender
		FROM conversations
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation snapshot: %w", err)
	}
	defer rows.Close()

	var convos []messaging.Conversation
	for rows.Next() {
		var c messaging.Conversation
		var lastTime string
		var lastSender int
		if err := rows.Scan(&c.CounterpartyID, &c.CounterpartyName, &c.CounterpartyPicture, &c.LastMessage.Content, &lastTime, &c.UnreadCount, &lastSender); err != nil {
			return nil, fmt.Errorf("failed to scan conversation snapshot: %w", err)
		}
		c.LastMessage.CreatedAt = s.parseTime(lastTime)
		c.IsLastSender = lastSender != 0
		convos = append(convos, c)
	}
	return convos, rows.Err()
}

// SaveThread replaces the snapshot for one counterparty's thread.
func (s *Store) SaveThread(ctx context.Context, counterpartyID string, msgs []messaging.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM thread_messages WHERE counterparty_id = ?`, counterpartyID); err != nil {
		return fmt.Errorf("failed to clear thread snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO thread_messages (counterparty_id, position, id, sender_id, receiver_id, content, created_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare thread insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		_, err := stmt.ExecContext(ctx,
			counterpartyID,
			i,
			m.ID,
			m.SenderID,
			m.ReceiverID,
			m.Content,
			m.CreatedAt.UTC().Format(time.RFC3339Nano),
			boolToInt(m.Read),
		)
		if err != nil {
			return fmt.Errorf("failed to insert thread snapshot: %w", err)
		}
	}
	return tx.Commit()
}

// Thread loads the snapshot for one counterparty's thread in saved order.
func (s *Store) Thread(ctx context.Context, counterpartyID string) ([]messaging.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, content, created_at, is_read
		FROM thread_messages
		WHERE counterparty_id = ?
		ORDER BY position
	`, counterpartyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query thread snapshot: %w", err)
	}
	defer rows.Close()

	var msgs []messaging.Message
	for rows.Next() {
		var m messaging.Message
		var createdAt string
		var read int
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &createdAt, &read); err != nil {
			return nil, fmt.Errorf("failed to scan thread snapshot: %w", err)
		}
		m.CreatedAt = s.parseTime(createdAt)
		m.Read = read != 0
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseTime tolerates a corrupted timestamp cell rather than failing the
// whole snapshot read; the zero time sorts the row first and the next
// successful refresh overwrites it.
func (s *Store) parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		s.log.Warn().Str("value", value).Msg("malformed timestamp in snapshot row")
		return time.Time{}
	}
	return t
}
