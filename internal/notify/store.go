package notify

import (
	"context"
	"errors"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotificationNotFound = apperr.New(apperr.KindNotFound, "notification_not_found", "notification not found")
	ErrForbidden            = apperr.New(apperr.KindForbidden, "notification_forbidden", "notification belongs to another user")
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context, userID string, limit int) ([]Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	// MarkRead only touches a notification owned by userID.
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type PgStore struct{ DB *pgxpool.Pool }

var _ Store = (*PgStore)(nil)

func (s *PgStore) Create(ctx context.Context, n *Notification) error {
	return s.DB.QueryRow(ctx, `
		INSERT INTO notifications(id, user_id, kind, title, message, link)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		n.ID, n.UserID, n.Kind, n.Title, n.Message, n.Link,
	).Scan(&n.CreatedAt)
}

func (s *PgStore) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, user_id, kind, title, message, link, read, created_at
		FROM notifications WHERE user_id=$1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &n.Link, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PgStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND NOT read`, userID).Scan(&n)
	return n, err
}

func (s *PgStore) MarkRead(ctx context.Context, id, userID string) error {
	ct, err := s.DB.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var owner string
	err = s.DB.QueryRow(ctx, `SELECT user_id FROM notifications WHERE id=$1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotificationNotFound
	}
	if err != nil {
		return err
	}
	return ErrForbidden
}

func (s *PgStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ct, err := s.DB.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE user_id=$1 AND NOT read`, userID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
