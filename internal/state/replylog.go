package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ReplyLog is an append-only archive of posted replies, kept in
// sqlite so it survives state-file resets and can be queried with
// ordinary SQL. The bot never reads it on the hot path; doctor and
// operators do.
type ReplyLog struct {
	db *sql.DB
}

const replySchema = `
CREATE TABLE IF NOT EXISTS replies (
	id              TEXT PRIMARY KEY,
	mention_id      TEXT NOT NULL,
	conversation_id TEXT NOT NULL DEFAULT '',
	text            TEXT NOT NULL,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_replies_created_at ON replies(created_at);
`

// OpenReplyLog opens (creating if needed) the reply archive at path.
func OpenReplyLog(path string) (*ReplyLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open reply log: %w", err)
	}
	if _, err := db.Exec(replySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init reply log schema: %w", err)
	}
	return &ReplyLog{db: db}, nil
}

// Record appends one posted reply.
func (l *ReplyLog) Record(ctx context.Context, replyID, mentionID, conversationID, text string, at time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO replies (id, mention_id, conversation_id, text, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		replyID, mentionID, conversationID, text, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record reply: %w", err)
	}
	return nil
}

// Count returns the total number of archived replies.
func (l *ReplyLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM replies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count replies: %w", err)
	}
	return n, nil
}

// CountSince returns how many replies were posted at or after t.
func (l *ReplyLog) CountSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM replies WHERE created_at >= ?`,
		t.UTC().Format(time.RFC3339)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count replies since: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (l *ReplyLog) Close() error { return l.db.Close() }
