package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL stores.
// Queries are written with "?" placeholders and rebound for drivers that
// number them.
type sqlStore struct {
	db       *sql.DB
	numbered bool
}

func (s *sqlStore) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) migrate(stmts []string) error {
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// --- Dialogs ---

func (s *sqlStore) GetDialog(ctx context.Context, id int64) (*Dialog, error) {
	d := &Dialog{}
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT id, members, created_at FROM dialogs WHERE id = ?"), id,
	).Scan(&d.ID, &d.Members, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dialog %d: %w", id, err)
	}
	return d, nil
}

// PutDialog inserts or replaces the member list of d. The creation time of an
// existing row is kept.
func (s *sqlStore) PutDialog(ctx context.Context, d *Dialog) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO dialogs (id, members, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET members = excluded.members`),
		d.ID, d.Members, d.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("put dialog %d: %w", d.ID, err)
	}
	return nil
}

// --- Messages ---

// SaveMessage stores msg and one unread row per user in a single
// transaction. Delivered is derived from unread.
func (s *sqlStore) SaveMessage(ctx context.Context, msg *Message, unread []int64) error {
	msg.Delivered = len(unread) == 0
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO messages (id, dialog_id, sender_id, text, payload, delivered, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		msg.ID, msg.DialogID, msg.SenderID, msg.Text, msg.Payload, msg.Delivered, msg.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if len(unread) > 0 {
		stmt, err := tx.PrepareContext(ctx, s.rebind(
			"INSERT INTO message_unread (message_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING"))
		if err != nil {
			return fmt.Errorf("prepare unread: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, userID := range unread {
			if _, err := stmt.ExecContext(ctx, msg.ID, userID); err != nil {
				return fmt.Errorf("insert unread for user %d: %w", userID, err)
			}
		}
	}
	return tx.Commit()
}

// GetMessages returns up to limit messages of a dialog, newest first.
func (s *sqlStore) GetMessages(ctx context.Context, dialogID int64, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, dialog_id, sender_id, text, payload, delivered, created_at
		 FROM messages WHERE dialog_id = ? ORDER BY created_at DESC, id LIMIT ?`),
		dialogID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.DialogID, &m.SenderID, &m.Text, &m.Payload, &m.Delivered, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *sqlStore) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT COUNT(*) FROM message_unread WHERE user_id = ?"), userID,
	).Scan(&count)
	return count, err
}

// --- Data retention ---

// PurgeOldMessages deletes messages created before the cutoff. Their unread
// rows go with them through the foreign key.
func (s *sqlStore) PurgeOldMessages(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		s.rebind("DELETE FROM messages WHERE created_at < ?"), before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	return result.RowsAffected()
}
