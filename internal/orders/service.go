package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/access"
	"github.com/HTM0410/sale-account-sub001/internal/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notifier is told about orders that just became paid.
type Notifier interface {
	NotifyOrderPaid(ctx context.Context, o *Order) error
}

// EventSink publishes lifecycle envelopes (Kafka in production).
type EventSink interface {
	PublishEvent(ctx context.Context, key []byte, eventType string, value []byte) error
}

type CachedStatus struct {
	Status Status `json:"status"`
	UserID string `json:"user_id"`
}

type StatusCache interface {
	GetStatus(ctx context.Context, orderID string) (CachedStatus, bool)
	SetStatus(ctx context.Context, orderID string, st CachedStatus)
}

// Service owns order state; it is the only write path to orders.status.
type Service struct {
	repo     Repository
	notifier Notifier
	events   EventSink
	cache    StatusCache
	logger   *slog.Logger
	producer string
	now      func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithEvents(sink EventSink, producer string) Option {
	return func(s *Service) { s.events, s.producer = sink, producer }
}

func WithStatusCache(c StatusCache) Option { return func(s *Service) { s.cache = c } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, logger: logger, now: time.Now}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RoundTotal rounds to whole dong, half away from zero.
func RoundTotal(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// CreatePendingOrder stores a pending order with the submitted items snapshotted in metadata.
func (s *Service) CreatePendingOrder(ctx context.Context, userID string, items []LineItem, total decimal.Decimal, customer Customer) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	for i, it := range items {
		if it.Quantity <= 0 || it.UnitPrice < 0 || (it.PackageID == "" && it.ProductName == "") {
			return nil, fmt.Errorf("%w: item %d", ErrInvalidItem, i)
		}
	}
	rounded := RoundTotal(total)
	if rounded <= 0 {
		return nil, ErrInvalidTotal
	}

	now := s.now().UTC()
	o := &Order{
		ID:     uuid.NewString(),
		UserID: userID,
		Total:  rounded,
		Status: StatusPending,
		Metadata: Metadata{
			Items:    append([]LineItem(nil), items...),
			Customer: customer,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertPending(ctx, o); err != nil {
		return nil, fmt.Errorf("insert pending order: %w", err)
	}
	s.logger.Info("order created", "order_id", o.ID, "user_id", userID, "total", o.Total, "items", len(items))
	s.afterCreate(ctx, o)
	return o, nil
}

// CreateOrder is the full path: prices come from the catalog and items are stored as rows.
func (s *Service) CreateOrder(ctx context.Context, externalID, userID string, items []ItemInput, customer Customer) (*Order, bool, error) {
	if len(items) == 0 {
		return nil, false, ErrEmptyCart
	}
	o, existed, err := s.repo.CreateFromCatalog(ctx, externalID, userID, items, customer)
	if err != nil {
		return nil, false, err
	}
	if !existed {
		s.logger.Info("order created from catalog", "order_id", o.ID, "user_id", userID, "total", o.Total)
		s.afterCreate(ctx, o)
	}
	return o, existed, nil
}

// AttachPayment records which gateway the pending order was sent to.
func (s *Service) AttachPayment(ctx context.Context, orderID string, p payment.Provider) error {
	pm := NewPaymentMeta(p, s.now().UTC())
	if err := pm.Validate(); err != nil {
		return err
	}
	return s.repo.SetPayment(ctx, orderID, pm)
}

func (s *Service) MarkPaid(ctx context.Context, orderID string) error {
	_, _, err := s.transition(ctx, orderID, StatusPaid, nil, "")
	return err
}

func (s *Service) MarkFailed(ctx context.Context, orderID string) error {
	_, _, err := s.transition(ctx, orderID, StatusFailed, nil, "")
	return err
}

func (s *Service) MarkCancelled(ctx context.Context, orderID string) error {
	_, _, err := s.transition(ctx, orderID, StatusCancelled, nil, "")
	return err
}

type PaymentResult struct {
	Order *Order
	// Applied is false when the order was already terminal; the callback is then a no-op.
	Applied bool
}

// CompletePayment applies a verified gateway callback. Repeated callbacks for a
// terminal order succeed without touching it.
func (s *Service) CompletePayment(ctx context.Context, cb payment.Callback) (PaymentResult, error) {
	o, err := s.repo.Get(ctx, cb.OrderID)
	if err != nil {
		return PaymentResult{}, err
	}
	if o.Status.Terminal() {
		s.logger.Info("callback for settled order ignored", "order_id", o.ID, "status", o.Status, "provider", cb.Provider)
		return PaymentResult{Order: o}, nil
	}
	if cb.Outcome == payment.Success && cb.Amount != o.Total {
		s.logger.Warn("callback amount mismatch", "order_id", o.ID, "expected", o.Total, "got", cb.Amount, "provider", cb.Provider)
		return PaymentResult{Order: o}, ErrAmountMismatch
	}

	to := StatusFailed
	if cb.Outcome == payment.Success {
		to = StatusPaid
	}
	now := s.now().UTC()
	apply := func(cur *Order) *PaymentMeta {
		pm := NewPaymentMeta(cb.Provider, now)
		if cur.Metadata.Payment != nil && cur.Metadata.Payment.Provider == cb.Provider {
			cp := *cur.Metadata.Payment
			pm = &cp
		}
		pm.ApplyCallback(cb, now)
		return pm
	}

	updated, applied, err := s.transition(ctx, cb.OrderID, to, apply, "")
	if errors.Is(err, ErrInvalidTransition) {
		// lost a race against another terminal write
		return PaymentResult{Order: updated}, nil
	}
	if err != nil {
		return PaymentResult{}, err
	}
	return PaymentResult{Order: updated, Applied: applied}, nil
}

// UpdateStatus is the administrative path. The gate already checked the route; the role
// is checked again here.
func (s *Service) UpdateStatus(ctx context.Context, orderID, newStatus string, actor *access.Session) (*Order, error) {
	if actor == nil || !actor.Role.IsStaff() {
		return nil, ErrForbidden
	}
	st, err := ParseStatus(newStatus)
	if err != nil {
		return nil, err
	}
	o, _, err := s.transition(ctx, orderID, st, nil, actor.UserID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// transition moves an order to `to` with a conditional update. Same-state requests are a
// silent no-op; anything else out of a terminal state is ErrInvalidTransition.
func (s *Service) transition(ctx context.Context, orderID string, to Status, apply func(*Order) *PaymentMeta, actor string) (*Order, bool, error) {
	var last *Order
	for attempt := 0; attempt < 2; attempt++ {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return nil, false, err
		}
		last = o
		if o.Status == to {
			return o, false, nil
		}
		if !CanTransition(o.Status, to) {
			return o, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
		}

		pm := o.Metadata.Payment
		if apply != nil {
			pm = apply(o)
		}
		if err := pm.Validate(); err != nil {
			return nil, false, err
		}
		var paidAt *time.Time
		now := s.now().UTC()
		if to == StatusPaid {
			paidAt = &now
		}

		ok, err := s.repo.CompareAndSetStatus(ctx, orderID, o.Status, to, pm, paidAt)
		if err != nil {
			return nil, false, fmt.Errorf("update order status: %w", err)
		}
		if !ok {
			continue
		}

		from := o.Status
		o.Status = to
		o.UpdatedAt = now
		o.Metadata.Payment = pm
		if paidAt != nil {
			o.PaidAt = paidAt
		}
		s.logger.Info("order status changed", "order_id", o.ID, "from", from, "to", to, "actor", actor)
		s.afterTransition(ctx, o, from, actor)
		return o, true, nil
	}
	// the order as last read; callers that tolerate the lost race still get it back
	return last, false, fmt.Errorf("%w: concurrent update on %s", ErrInvalidTransition, orderID)
}

func (s *Service) afterCreate(ctx context.Context, o *Order) {
	s.cacheStatus(ctx, o)
	provider := ""
	if o.Metadata.Payment != nil {
		provider = string(o.Metadata.Payment.Provider)
	}
	s.publish(ctx, o.ID, EventOrderCreated, OrderCreatedPayload{
		OrderID:  o.ID,
		UserID:   o.UserID,
		Items:    o.LineItems(),
		Total:    o.Total,
		Provider: provider,
	})
}

// afterTransition runs side effects of a committed transition; failures are only logged.
func (s *Service) afterTransition(ctx context.Context, o *Order, from Status, actor string) {
	s.cacheStatus(ctx, o)

	p := OrderStatusChangedPayload{
		OrderID:  o.ID,
		UserID:   o.UserID,
		From:     from,
		To:       o.Status,
		Total:    o.Total,
		Actor:    actor,
		Customer: o.Metadata.Customer,
		Items:    o.LineItems(),
		PaidAt:   o.PaidAt,
	}
	if o.Metadata.Payment != nil {
		p.Provider = string(o.Metadata.Payment.Provider)
	}
	s.publish(ctx, o.ID, EventOrderStatusChanged, p)

	if o.Status == StatusPaid && s.notifier != nil {
		if err := s.notifier.NotifyOrderPaid(ctx, o); err != nil {
			s.logger.Error("notify order paid", "order_id", o.ID, "user_id", o.UserID, "err", err)
		}
	}
}

func (s *Service) cacheStatus(ctx context.Context, o *Order) {
	if s.cache != nil {
		s.cache.SetStatus(ctx, o.ID, CachedStatus{Status: o.Status, UserID: o.UserID})
	}
}

func (s *Service) publish(ctx context.Context, orderID, eventType string, payload any) {
	if s.events == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal event payload", "event_type", eventType, "order_id", orderID, "err", err)
		return
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now().UTC(),
		Producer:      s.producer,
		CorrelationID: orderID,
		Payload:       body,
	}
	value, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("marshal envelope", "event_type", eventType, "order_id", orderID, "err", err)
		return
	}
	if err := s.events.PublishEvent(ctx, PartitionKey(orderID), eventType, value); err != nil {
		s.logger.Error("publish event", "event_type", eventType, "order_id", orderID, "err", err)
	}
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.repo.Get(ctx, orderID)
}

// GetFor returns the order if sess owns it or is staff.
func (s *Service) GetFor(ctx context.Context, orderID string, sess *access.Session) (*Order, error) {
	if sess == nil {
		return nil, access.ErrUnauthorized
	}
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != sess.UserID && !sess.Role.IsStaff() {
		return nil, ErrForbidden
	}
	return o, nil
}

// StatusFor serves the cached status when possible, falling back to the database.
func (s *Service) StatusFor(ctx context.Context, orderID string, sess *access.Session) (Status, error) {
	if sess == nil {
		return "", access.ErrUnauthorized
	}
	if s.cache != nil {
		if cs, ok := s.cache.GetStatus(ctx, orderID); ok {
			if cs.UserID != sess.UserID && !sess.Role.IsStaff() {
				return "", ErrForbidden
			}
			return cs.Status, nil
		}
	}
	o, err := s.GetFor(ctx, orderID, sess)
	if err != nil {
		return "", err
	}
	s.cacheStatus(ctx, o)
	return o.Status, nil
}

// CancelFor lets a customer abandon their own pending order.
func (s *Service) CancelFor(ctx context.Context, orderID string, sess *access.Session) (*Order, error) {
	if _, err := s.GetFor(ctx, orderID, sess); err != nil {
		return nil, err
	}
	o, _, err := s.transition(ctx, orderID, StatusCancelled, nil, sess.UserID)
	return o, err
}

func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]Order, error) {
	return s.repo.List(ctx, ListFilter{UserID: userID, Limit: limit})
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.List(ctx, f)
}

func (s *Service) Catalog(ctx context.Context) ([]Package, error) {
	return s.repo.ListPackages(ctx)
}
