package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/HTM0410/sale-account-sub001/internal/orders"
	"github.com/google/uuid"
)

const (
	KindOrderPaid = "order_paid"
	KindSystem    = "system"
)

// Service persists notifications and pushes them to the owner's open connections.
type Service struct {
	store   Store
	emitter Emitter
	logger  *slog.Logger
}

var _ orders.Notifier = (*Service)(nil)

func NewService(store Store, emitter Emitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, emitter: emitter, logger: logger}
}

// Notify stores a notification for userID and pushes it together with the new unread count.
// Push is best effort; only a storage failure is returned.
func (s *Service) Notify(ctx context.Context, userID, kind, title, message, link string) (*Notification, error) {
	n := &Notification{
		ID:      uuid.NewString(),
		UserID:  userID,
		Kind:    kind,
		Title:   title,
		Message: message,
		Link:    link,
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	s.emitter.EmitToUser(ctx, userID, NewEvent(EventNotification, n))
	s.pushUnread(ctx, userID)
	return n, nil
}

func (s *Service) NotifyOrderPaid(ctx context.Context, o *orders.Order) error {
	_, err := s.Notify(ctx, o.UserID, KindOrderPaid,
		"Thanh toán thành công",
		fmt.Sprintf("Đơn hàng #%s đã được thanh toán %s. Tài khoản sẽ được gửi trong giây lát.", shortID(o.ID), orders.FormatVND(o.Total)),
		"/dashboard/orders/"+o.ID,
	)
	return err
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	return s.store.List(ctx, userID, limit)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.store.MarkRead(ctx, id, userID); err != nil {
		return err
	}
	s.pushUnread(ctx, userID)
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.pushUnread(ctx, userID)
	}
	return n, nil
}

// Announce pushes a system message to every connected client. It is not persisted.
func (s *Service) Announce(ctx context.Context, a Announcement) {
	if a.Level == "" {
		a.Level = "info"
	}
	s.emitter.Broadcast(ctx, NewEvent(EventBroadcast, a))
	s.logger.Info("announcement broadcast", "title", a.Title, "level", a.Level)
}

// InitialEvents is what a freshly opened stream receives after `connected`.
func (s *Service) InitialEvents(ctx context.Context, userID string) []Event {
	n, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.Warn("unread count for new stream", "user_id", userID, "err", err)
		return nil
	}
	return []Event{NewEvent(EventUnreadCount, UnreadCount{Count: n})}
}

func (s *Service) pushUnread(ctx context.Context, userID string) {
	n, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		s.logger.Warn("unread count", "user_id", userID, "err", err)
		return
	}
	s.emitter.EmitToUser(ctx, userID, NewEvent(EventUnreadCount, UnreadCount{Count: n}))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
