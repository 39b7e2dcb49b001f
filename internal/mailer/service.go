// Package mailer sends order confirmation e-mails from order lifecycle events.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	kafkax "github.com/HTM0410/sale-account-sub001/internal/kafka"
	"github.com/HTM0410/sale-account-sub001/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
)

// Deduper is satisfied by redisx.Dedup.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type Service struct {
	Sender  Sender
	Dedup   Deduper
	BaseURL string
	Logger  *slog.Logger
}

// HandleOrderEvent is the consumer handler for the order.status.changed topic.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		// poison message: log and commit
		s.Logger.Error("drop undecodable event", "offset", m.Offset, "err", err)
		return nil
	}
	if env.EventType != orders.EventOrderStatusChanged {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
	if err != nil {
		s.Logger.Error("drop undecodable payload", "event_id", env.EventID, "err", err)
		return nil
	}
	if p.To != orders.StatusPaid {
		return nil
	}
	if p.Customer.Email == "" {
		s.Logger.Info("paid order without e-mail, skipping confirmation", "order_id", p.OrderID)
		return nil
	}

	first, err := s.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup claim: %w", err)
	}
	if !first {
		return nil
	}

	if err := s.Sender.Send(ctx, s.confirmation(p)); err != nil {
		if rerr := s.Dedup.Release(ctx, env.EventID); rerr != nil {
			s.Logger.Warn("dedup release", "event_id", env.EventID, "err", rerr)
		}
		return err
	}
	s.Logger.Info("order confirmation sent", "order_id", p.OrderID, "user_id", p.UserID)
	return nil
}

func (s *Service) confirmation(p orders.OrderStatusChangedPayload) Message {
	var b strings.Builder
	name := p.Customer.Name
	if name == "" {
		name = "quý khách"
	}
	fmt.Fprintf(&b, "Xin chào %s,\n\n", name)
	fmt.Fprintf(&b, "Đơn hàng %s đã được thanh toán thành công.\n\n", p.OrderID)
	for _, it := range p.Items {
		label := it.ProductName
		if it.PackageName != "" {
			label += " - " + it.PackageName
		}
		fmt.Fprintf(&b, "- %s x%d: %s\n", label, it.Quantity, orders.FormatVND(it.Subtotal()))
	}
	fmt.Fprintf(&b, "\nTổng cộng: %s\n", orders.FormatVND(p.Total))
	if s.BaseURL != "" {
		fmt.Fprintf(&b, "Xem chi tiết: %s/dashboard/orders/%s\n", s.BaseURL, p.OrderID)
	}
	b.WriteString("\nCảm ơn bạn đã mua hàng!\n")
	return Message{
		To:      p.Customer.Email,
		Subject: "Xác nhận thanh toán đơn hàng " + p.OrderID,
		Body:    b.String(),
	}
}
