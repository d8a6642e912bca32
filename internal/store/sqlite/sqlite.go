package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/edusphere/chatsync/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS summaries (
	counterpart_id    INTEGER PRIMARY KEY,
	last_message      TEXT NOT NULL,
	last_message_time TEXT NOT NULL,
	unread_count      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY,
	sender_id   INTEGER NOT NULL,
	receiver_id INTEGER NOT NULL,
	content     TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	is_read     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_pair
	ON messages (sender_id, receiver_id, created_at);
`

// Store implements store.Cache on a local SQLite file.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the cache database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSummary upserts one inbox row.
func (s *Store) SaveSummary(ctx context.Context, sum core.ConversationSummary) error {
	query := `
		INSERT OR REPLACE INTO summaries (counterpart_id, last_message, last_message_time, unread_count)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		sum.CounterpartID, sum.LastMessage, sum.LastMessageTime.UTC().Format(time.RFC3339Nano), sum.UnreadCount)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// Summaries returns every cached inbox row.
func (s *Store) Summaries(ctx context.Context) ([]core.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT counterpart_id, last_message, last_message_time, unread_count FROM summaries`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []core.ConversationSummary
	for rows.Next() {
		var sum core.ConversationSummary
		var ts string
		if err := rows.Scan(&sum.CounterpartID, &sum.LastMessage, &ts, &sum.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.LastMessageTime, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse summary time: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// SaveMessage inserts one message; known ids are ignored.
func (s *Store) SaveMessage(ctx context.Context, m core.Message) error {
	query := `
		INSERT OR IGNORE INTO messages (id, sender_id, receiver_id, content, created_at, is_read)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.SenderID, m.ReceiverID, m.Content, m.CreatedAt.UTC().Format(time.RFC3339Nano), m.IsRead)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit newest messages of one conversation in
// display order.
func (s *Store) RecentMessages(ctx context.Context, key core.ConversationKey, limit int) ([]core.Message, error) {
	query := `
		SELECT id, sender_id, receiver_id, content, created_at, is_read FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, key.Lo, key.Hi, key.Hi, key.Lo, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []core.Message
	for rows.Next() {
		var m core.Message
		var ts string
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &ts, &m.IsRead); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse message time: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first for the LIMIT; flip back to display order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
