// Package testutil holds in-memory stand-ins for the Postgres, Redis and Kafka backed
// pieces so package tests run without infrastructure.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/orders"
	"github.com/google/uuid"
)

// MemOrders implements orders.Repository.
type MemOrders struct {
	mu       sync.Mutex
	orders   map[string]*orders.Order
	external map[string]string
	packages map[string]orders.Package

	// BeforeCAS runs inside CompareAndSetStatus before the status comparison; tests use it
	// to simulate a concurrent writer.
	BeforeCAS func(id string)
	CASCalls  int
}

var _ orders.Repository = (*MemOrders)(nil)

func NewMemOrders(pkgs ...orders.Package) *MemOrders {
	m := &MemOrders{
		orders:   map[string]*orders.Order{},
		external: map[string]string{},
		packages: map[string]orders.Package{},
	}
	for _, p := range pkgs {
		m.packages[p.ID] = p
	}
	return m
}

func clone(o *orders.Order) *orders.Order {
	cp := *o
	cp.Metadata.Items = append([]orders.LineItem(nil), o.Metadata.Items...)
	cp.Items = append([]orders.LineItem(nil), o.Items...)
	if o.Metadata.Payment != nil {
		pm := *o.Metadata.Payment
		if pm.Domestic != nil {
			d := *pm.Domestic
			pm.Domestic = &d
		}
		if pm.International != nil {
			i := *pm.International
			pm.International = &i
		}
		cp.Metadata.Payment = &pm
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	return &cp
}

func (m *MemOrders) InsertPending(_ context.Context, o *orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("duplicate order id %s", o.ID)
	}
	m.orders[o.ID] = clone(o)
	return nil
}

// Put seeds an order in any state.
func (m *MemOrders) Put(o *orders.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = clone(o)
}

func (m *MemOrders) CreateFromCatalog(_ context.Context, externalID, userID string, items []orders.ItemInput, customer orders.Customer) (*orders.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.external[externalID]; ok && externalID != "" {
		return clone(m.orders[id]), true, nil
	}

	now := time.Now().UTC()
	o := &orders.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    orders.StatusPending,
		Metadata:  orders.Metadata{Customer: customer},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, it := range items {
		p, ok := m.packages[it.PackageID]
		if !ok || !p.Active {
			return nil, false, fmt.Errorf("%w: %s", orders.ErrPackageNotFound, it.PackageID)
		}
		if it.Qty <= 0 {
			return nil, false, fmt.Errorf("%w: qty for %s", orders.ErrInvalidItem, it.PackageID)
		}
		li := orders.LineItem{
			PackageID:   p.ID,
			ProductName: p.ProductName,
			PackageName: p.Name,
			Description: p.Description,
			UnitPrice:   p.Price,
			Quantity:    it.Qty,
		}
		o.Items = append(o.Items, li)
		o.Total += li.Subtotal()
	}
	m.orders[o.ID] = clone(o)
	if externalID != "" {
		m.external[externalID] = o.ID
	}
	return o, false, nil
}

func (m *MemOrders) Get(_ context.Context, id string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return clone(o), nil
}

func (m *MemOrders) List(_ context.Context, f orders.ListFilter) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Order
	for _, o := range m.orders {
		if f.UserID != "" && o.UserID != f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *clone(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemOrders) SetPayment(_ context.Context, id string, pm *orders.PaymentMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return orders.ErrOrderNotFound
	}
	if o.Status != orders.StatusPending {
		return orders.ErrInvalidTransition
	}
	cp := *pm
	o.Metadata.Payment = &cp
	return nil
}

func (m *MemOrders) CompareAndSetStatus(_ context.Context, id string, from, to orders.Status, pm *orders.PaymentMeta, paidAt *time.Time) (bool, error) {
	if m.BeforeCAS != nil {
		m.BeforeCAS(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CASCalls++
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	if paidAt != nil {
		t := *paidAt
		o.PaidAt = &t
	}
	if pm != nil {
		cp := *pm
		o.Metadata.Payment = &cp
	}
	return true, nil
}

// SetStatus forces a status, bypassing the state machine.
func (m *MemOrders) SetStatus(id string, st orders.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.Status = st
	}
}

func (m *MemOrders) ListPackages(_ context.Context) ([]orders.Package, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Package
	for _, p := range m.packages {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductName != out[j].ProductName {
			return out[i].ProductName < out[j].ProductName
		}
		return out[i].Price < out[j].Price
	})
	return out, nil
}

// StatusCache implements orders.StatusCache in memory.
type StatusCache struct {
	mu sync.Mutex
	m  map[string]orders.CachedStatus
}

func NewStatusCache() *StatusCache { return &StatusCache{m: map[string]orders.CachedStatus{}} }

func (c *StatusCache) GetStatus(_ context.Context, id string) (orders.CachedStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.m[id]
	return cs, ok
}

func (c *StatusCache) SetStatus(_ context.Context, id string, cs orders.CachedStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = cs
}

type PublishedEvent struct {
	Key   string
	Type  string
	Value []byte
}

// EventSink records what would have gone to Kafka.
type EventSink struct {
	mu     sync.Mutex
	Events []PublishedEvent
	Err    error
}

func (s *EventSink) PublishEvent(_ context.Context, key []byte, eventType string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Events = append(s.Events, PublishedEvent{Key: string(key), Type: eventType, Value: value})
	return nil
}

func (s *EventSink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.Events))
	for _, e := range s.Events {
		out = append(out, e.Type)
	}
	return out
}

// PaidNotifier records orders passed to NotifyOrderPaid.
type PaidNotifier struct {
	mu   sync.Mutex
	Paid []string
	Err  error
}

func (n *PaidNotifier) NotifyOrderPaid(_ context.Context, o *orders.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Paid = append(n.Paid, o.ID)
	return n.Err
}

func (n *PaidNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Paid)
}
