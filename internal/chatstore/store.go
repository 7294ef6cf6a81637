// Package chatstore is the SQLite-backed message-persistence layer for chat
// threads and messages.
//
// Notes:
//   - Data is scoped by user_id; thread ids are user-scoped sequential ids
//     allocated by the lifecycle manager, not by this store.
//   - WAL is enabled to support concurrent reads while writing.
//   - SaveMessage performs the server-side duplicate check: an identical
//     (thread_id, role, content) row is returned instead of re-inserted.
package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cadencehq/driveassist/internal/chat"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("missing db path")
	}
	p := filepath.Clean(strings.TrimSpace(path))
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveMessage inserts a message and updates thread metadata in the same
// transaction. If an identical (thread_id, role, content) row already
// exists, the most recent one is returned and nothing is written.
//
// It also sets a default title when the thread title is empty and this is a
// user message with non-empty content.
func (s *Store) SaveMessage(ctx context.Context, t chat.Turn) (chat.Turn, error) {
	if s == nil || s.db == nil {
		return chat.Turn{}, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	t.ThreadID = strings.TrimSpace(t.ThreadID)
	t.UserID = strings.TrimSpace(t.UserID)
	t.Content = strings.TrimSpace(t.Content)
	if t.ThreadID == "" || t.Content == "" {
		return chat.Turn{}, errors.New("invalid message")
	}
	switch t.Role {
	case chat.RoleUser, chat.RoleAssistant:
	default:
		return chat.Turn{}, fmt.Errorf("unsupported role: %s", string(t.Role))
	}

	if strings.TrimSpace(t.ID) == "" {
		t.ID = "m_" + uuid.NewString()
	}
	now := time.Now().UnixMilli()
	if t.CreatedAtUnixMs <= 0 {
		t.CreatedAtUnixMs = now
	}

	attachmentsJSON := ""
	if len(t.Attachments) > 0 {
		b, err := json.Marshal(t.Attachments)
		if err != nil {
			return chat.Turn{}, err
		}
		attachmentsJSON = string(b)
	}

	titleCandidate := ""
	if t.Role == chat.RoleUser {
		titleCandidate = buildTitleCandidate(t.Content)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Turn{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Ensure the thread exists before writing into it.
	var existingTitle string
	if err := tx.QueryRowContext(ctx, `
SELECT title
FROM chat_threads
WHERE thread_id = ?
`, t.ThreadID).Scan(&existingTitle); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Turn{}, fmt.Errorf("thread not found: %s", t.ThreadID)
		}
		return chat.Turn{}, err
	}

	// Duplicate check. Deliberately time-unbounded: the most recent matching
	// row wins regardless of age.
	var dup chat.Turn
	var dupAttachments string
	err = tx.QueryRowContext(ctx, `
SELECT message_id, thread_id, user_id, role, content, attachments_json, created_at_unix_ms
FROM chat_messages
WHERE thread_id = ? AND role = ? AND content = ?
ORDER BY id DESC
LIMIT 1
`, t.ThreadID, string(t.Role), t.Content).Scan(
		&dup.ID, &dup.ThreadID, &dup.UserID, (*string)(&dup.Role), &dup.Content, &dupAttachments, &dup.CreatedAtUnixMs,
	)
	if err == nil {
		if dupAttachments != "" {
			_ = json.Unmarshal([]byte(dupAttachments), &dup.Attachments)
		}
		return dup, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return chat.Turn{}, err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO chat_messages(message_id, thread_id, user_id, role, content, attachments_json, created_at_unix_ms)
VALUES(?, ?, ?, ?, ?, ?, ?)
`, t.ID, t.ThreadID, t.UserID, string(t.Role), t.Content, attachmentsJSON, t.CreatedAtUnixMs); err != nil {
		return chat.Turn{}, err
	}

	nextTitle := strings.TrimSpace(existingTitle)
	if nextTitle == "" && titleCandidate != "" {
		nextTitle = titleCandidate
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE chat_threads
SET title = ?,
    last_message_preview = ?,
    updated_at_unix_ms = ?,
    message_count = message_count + 1
WHERE thread_id = ?
`, nextTitle, truncateRunes(t.Content, 80), now, t.ThreadID); err != nil {
		return chat.Turn{}, err
	}

	if err := tx.Commit(); err != nil {
		return chat.Turn{}, err
	}
	return t, nil
}

// ListMessages returns all of a thread's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, threadID string) ([]chat.Turn, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, errors.New("missing thread_id")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT message_id, thread_id, user_id, role, content, attachments_json, created_at_unix_ms
FROM chat_messages
WHERE thread_id = ?
ORDER BY id ASC
`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTurns(rows)
}

// ListMessagesPage returns up to limit messages with internal id < beforeID
// (beforeID <= 0 means latest), ascending, plus whether older history
// remains.
func (s *Store) ListMessagesPage(ctx context.Context, threadID string, limit int, beforeID int64) ([]chat.Turn, int64, bool, error) {
	if s == nil || s.db == nil {
		return nil, 0, false, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, 0, false, errors.New("missing thread_id")
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	if beforeID <= 0 {
		beforeID = 1<<62 - 1
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, message_id, thread_id, user_id, role, content, attachments_json, created_at_unix_ms
FROM chat_messages
WHERE thread_id = ? AND id < ?
ORDER BY id DESC
LIMIT ?
`, threadID, beforeID, limit)
	if err != nil {
		return nil, 0, false, err
	}
	defer rows.Close()

	type row struct {
		internalID int64
		turn       chat.Turn
	}
	tmp := make([]row, 0, limit)
	for rows.Next() {
		var r row
		var attachments string
		if err := rows.Scan(
			&r.internalID, &r.turn.ID, &r.turn.ThreadID, &r.turn.UserID,
			(*string)(&r.turn.Role), &r.turn.Content, &attachments, &r.turn.CreatedAtUnixMs,
		); err != nil {
			return nil, 0, false, err
		}
		if attachments != "" {
			_ = json.Unmarshal([]byte(attachments), &r.turn.Attachments)
		}
		tmp = append(tmp, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, false, err
	}
	if len(tmp) == 0 {
		return nil, 0, false, nil
	}

	out := make([]chat.Turn, 0, len(tmp))
	for i := len(tmp) - 1; i >= 0; i-- {
		out = append(out, tmp[i].turn)
	}
	nextBeforeID := tmp[len(tmp)-1].internalID

	var more int
	if err := s.db.QueryRowContext(ctx, `
SELECT COUNT(1)
FROM chat_messages
WHERE thread_id = ? AND id < ?
`, threadID, nextBeforeID).Scan(&more); err != nil {
		more = 0
	}
	return out, nextBeforeID, more > 0, nil
}

func (s *Store) CreateThread(ctx context.Context, th chat.Thread) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	th.ThreadID = strings.TrimSpace(th.ThreadID)
	th.UserID = strings.TrimSpace(th.UserID)
	th.Title = strings.TrimSpace(th.Title)
	if th.ThreadID == "" || th.UserID == "" {
		return errors.New("invalid thread")
	}
	now := time.Now().UnixMilli()
	if th.CreatedAtUnixMs <= 0 {
		th.CreatedAtUnixMs = now
	}
	if th.UpdatedAtUnixMs <= 0 {
		th.UpdatedAtUnixMs = th.CreatedAtUnixMs
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO chat_threads(thread_id, user_id, title, created_at_unix_ms, updated_at_unix_ms, message_count)
VALUES(?, ?, ?, ?, ?, 0)
`, th.ThreadID, th.UserID, th.Title, th.CreatedAtUnixMs, th.UpdatedAtUnixMs)
	return err
}

// ListThreads returns a user's threads, most recently updated first.
func (s *Store) ListThreads(ctx context.Context, userID string) ([]chat.Thread, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("missing user_id")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT thread_id, user_id, title, last_message_preview, created_at_unix_ms, updated_at_unix_ms, message_count
FROM chat_threads
WHERE user_id = ?
ORDER BY updated_at_unix_ms DESC, thread_id DESC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]chat.Thread, 0, 16)
	for rows.Next() {
		var th chat.Thread
		if err := rows.Scan(&th.ThreadID, &th.UserID, &th.Title, &th.LastMessage, &th.CreatedAtUnixMs, &th.UpdatedAtUnixMs, &th.MessageCount); err != nil {
			return nil, err
		}
		out = append(out, th)
	}
	return out, rows.Err()
}

// DeleteThread removes a thread and cascades to its messages.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return errors.New("missing thread_id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE thread_id = ?`, threadID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chat_threads WHERE thread_id = ?`, threadID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

func (s *Store) UpdateThreadTitle(ctx context.Context, threadID string, title string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	title = strings.TrimSpace(title)
	if threadID == "" {
		return errors.New("missing thread_id")
	}
	if len(title) > 200 {
		return errors.New("title too long")
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE chat_threads
SET title = ?, updated_at_unix_ms = ?
WHERE thread_id = ?
`, title, time.Now().UnixMilli(), threadID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanTurns(rows *sql.Rows) ([]chat.Turn, error) {
	out := make([]chat.Turn, 0, 32)
	for rows.Next() {
		var t chat.Turn
		var attachments string
		if err := rows.Scan(
			&t.ID, &t.ThreadID, &t.UserID, (*string)(&t.Role), &t.Content, &attachments, &t.CreatedAtUnixMs,
		); err != nil {
			return nil, err
		}
		if attachments != "" {
			_ = json.Unmarshal([]byte(attachments), &t.Attachments)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	return migrateSchema(db)
}

func migrateSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	const targetVersion = 2

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= targetVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS chat_threads (
  thread_id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  created_at_unix_ms INTEGER NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL,
  message_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_chat_threads_user ON chat_threads(user_id, updated_at_unix_ms DESC, thread_id DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  message_id TEXT NOT NULL,
  thread_id TEXT NOT NULL,
  user_id TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  created_at_unix_ms INTEGER NOT NULL,
  UNIQUE(thread_id, message_id)
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_thread ON chat_messages(thread_id, id ASC);
`); err != nil {
		return err
	}

	// v2: attachments on user messages, last-message preview on threads.
	if has, err := columnExists(tx, "chat_messages", "attachments_json"); err != nil {
		return err
	} else if !has {
		if _, err := tx.Exec(`ALTER TABLE chat_messages ADD COLUMN attachments_json TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
	}
	if has, err := columnExists(tx, "chat_threads", "last_message_preview"); err != nil {
		return err
	} else if !has {
		if _, err := tx.Exec(`ALTER TABLE chat_threads ADD COLUMN last_message_preview TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, targetVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func columnExists(tx *sql.Tx, tableName string, colName string) (bool, error) {
	tableName = strings.TrimSpace(tableName)
	colName = strings.TrimSpace(colName)
	if tableName == "" || colName == "" {
		return false, errors.New("invalid table/column")
	}

	rows, err := tx.Query(`PRAGMA table_info(` + tableName + `)`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name string
		var ctype string
		var notNull int
		var defaultValue sql.NullString
		var primaryKey int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultValue, &primaryKey); err != nil {
			return false, err
		}
		if strings.EqualFold(strings.TrimSpace(name), colName) {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return false, nil
}

func buildTitleCandidate(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.TrimSpace(text)
	return truncateRunes(text, 48)
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n >= max {
			return strings.TrimSpace(s[:i])
		}
		n++
	}
	return strings.TrimSpace(s)
}
