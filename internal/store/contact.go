package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/keithlinneman/portfolio-api/internal/xerrors"
)

type ContactMessage struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Subject   string    `db:"subject" json:"subject"`
	Message   string    `db:"message" json:"message"`
	Read      bool      `db:"is_read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MessageList is the admin inbox view.
type MessageList struct {
	Items  []ContactMessage `json:"items"`
	Total  int              `json:"total"`
	Unread int              `json:"unread"`
}

const messageColumns = "id, name, email, subject, message, is_read, created_at"

func (s *Store) CreateMessage(ctx context.Context, m *ContactMessage) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO contact_messages (name, email, subject, message, is_read, created_at) VALUES (?, ?, ?, ?, 0, ?)",
		m.Name, m.Email, m.Subject, m.Message, now,
	)
	if err != nil {
		return xerrors.Wrap(err, "insert contact message")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return xerrors.Wrap(err, "contact message id")
	}
	m.ID, m.Read, m.CreatedAt = id, false, now
	return nil
}

// ListMessages returns every message, newest first, with inbox counts.
func (s *Store) ListMessages(ctx context.Context) (MessageList, error) {
	out := MessageList{Items: []ContactMessage{}}
	if err := s.db.SelectContext(ctx, &out.Items,
		"SELECT "+messageColumns+" FROM contact_messages ORDER BY created_at DESC, id DESC"); err != nil {
		return MessageList{}, xerrors.Wrap(err, "list contact messages")
	}
	var counts struct {
		Total  int `db:"total"`
		Unread int `db:"unread"`
	}
	if err := s.db.GetContext(ctx, &counts,
		"SELECT COUNT(1) AS total, COALESCE(SUM(CASE WHEN is_read = 0 THEN 1 ELSE 0 END), 0) AS unread FROM contact_messages"); err != nil {
		return MessageList{}, xerrors.Wrap(err, "count contact messages")
	}
	out.Total, out.Unread = counts.Total, counts.Unread
	return out, nil
}

func (s *Store) Message(ctx context.Context, id int64) (ContactMessage, error) {
	var m ContactMessage
	err := s.db.GetContext(ctx, &m, "SELECT "+messageColumns+" FROM contact_messages WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return ContactMessage{}, ErrNotFound
	}
	if err != nil {
		return ContactMessage{}, xerrors.Wrapf(err, "get contact message %d", id)
	}
	return m, nil
}

func (s *Store) MarkRead(ctx context.Context, id int64) (ContactMessage, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE contact_messages SET is_read = 1 WHERE id = ?", id)
	if err != nil {
		return ContactMessage{}, xerrors.Wrapf(err, "mark contact message %d read", id)
	}
	if err := requireAffected(res); err != nil {
		return ContactMessage{}, err
	}
	return s.Message(ctx, id)
}

func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM contact_messages WHERE id = ?", id)
	if err != nil {
		return xerrors.Wrapf(err, "delete contact message %d", id)
	}
	return requireAffected(res)
}
