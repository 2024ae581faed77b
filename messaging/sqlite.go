package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteStore is a Store backed by a single SQLite file per profile.
type SQLiteStore struct {
	conn *sql.DB
	path string

	mu     sync.Mutex
	closed bool
}

// dsn builds a file: URI for path so characters such as '?' and '#' in a
// profile name stay part of the file name.
func dsn(path string) string {
	u := url.URL{
		Scheme:   "file",
		Opaque:   (&url.URL{Path: path}).EscapedPath(),
		RawQuery: "_journal_mode=WAL&_busy_timeout=5000",
	}
	return u.String()
}

// OpenSQLite opens (creating if needed) the message database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open message store: %w", err)
	}
	// One writer; sqlite serializes anyway and this keeps WAL checkpoints simple.
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{conn: conn, path: path}
	if err := s.init(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize message store: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "OpenSQLite",
		"path":     path,
	}).Info("Message store opened")

	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS Messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			contact_pk VARCHAR(64) NOT NULL,
			message VARCHAR(1372) NOT NULL,
			owner_pk VARCHAR(64) NOT NULL,
			timestamp REAL NOT NULL,
			is_pending BOOLEAN DEFAULT 0 NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_contact ON Messages(contact_pk, id)`,
	}
	for _, query := range queries {
		if _, err := s.conn.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// AppendMessage implements Store. Timestamps are stored as fractional
// milliseconds since the Unix epoch.
func (s *SQLiteStore) AppendMessage(ctx context.Context, contactKey, text, senderKey string, ts time.Time) (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	res, err := s.conn.ExecContext(ctx,
		"INSERT INTO Messages (contact_pk, message, owner_pk, timestamp) VALUES (?, ?, ?, ?)",
		strings.ToLower(contactKey), text, strings.ToLower(senderKey), toMillis(ts),
	)
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	return res.LastInsertId()
}

// QueryRecentMessages implements Store.
func (s *SQLiteStore) QueryRecentMessages(ctx context.Context, contactKey string, limit int) ([]Message, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, contact_pk, message, owner_pk, timestamp, is_pending FROM (
			SELECT * FROM Messages WHERE contact_pk = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		strings.ToLower(contactKey), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m      Message
			millis float64
		)
		if err := rows.Scan(&m.ID, &m.ContactKey, &m.Text, &m.SenderKey, &millis, &m.Pending); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = fromMillis(millis)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Close implements Store. Closing twice is not an error.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SQLiteStore.Close",
		"path":     s.path,
	}).Info("Closing message store")
	return s.conn.Close()
}

func toMillis(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}

func fromMillis(ms float64) time.Time {
	return time.Unix(0, int64(ms*float64(time.Millisecond)))
}
