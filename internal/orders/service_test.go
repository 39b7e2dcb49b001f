package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/HTM0410/sale-account-sub001/internal/access"
	"github.com/HTM0410/sale-account-sub001/internal/apperr"
	"github.com/HTM0410/sale-account-sub001/internal/orders"
	"github.com/HTM0410/sale-account-sub001/internal/payment"
	"github.com/HTM0410/sale-account-sub001/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	repo     *testutil.MemOrders
	cache    *testutil.StatusCache
	sink     *testutil.EventSink
	notifier *testutil.PaidNotifier
	svc      *orders.Service
}

func newFixture(pkgs ...orders.Package) *fixture {
	f := &fixture{
		repo:     testutil.NewMemOrders(pkgs...),
		cache:    testutil.NewStatusCache(),
		sink:     &testutil.EventSink{},
		notifier: &testutil.PaidNotifier{},
	}
	f.svc = orders.NewService(f.repo, testutil.Logger(),
		orders.WithNotifier(f.notifier),
		orders.WithEvents(f.sink, "api"),
		orders.WithStatusCache(f.cache),
		orders.WithClock(func() time.Time { return fixedNow }),
	)
	return f
}

func netflix() []orders.LineItem {
	return []orders.LineItem{{PackageID: "pkg-nf-1m", ProductName: "Netflix Premium", UnitPrice: 79000, Quantity: 1}}
}

func (f *fixture) pending(t *testing.T) *orders.Order {
	t.Helper()
	o, err := f.svc.CreatePendingOrder(context.Background(), "u1", netflix(), decimal.NewFromInt(79000), orders.Customer{Email: "a@example.com"})
	require.NoError(t, err)
	return o
}

func TestRoundTotal(t *testing.T) {
	cases := map[string]int64{
		"79000":    79000,
		"79000.4":  79000,
		"79000.5":  79001,
		"79000.99": 79001,
		"0.4":      0,
	}
	for in, want := range cases {
		assert.Equal(t, want, orders.RoundTotal(decimal.RequireFromString(in)), in)
	}
}

func TestCreatePendingOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	o, err := f.svc.CreatePendingOrder(ctx, "u1", netflix(), decimal.RequireFromString("79000.6"), orders.Customer{Name: "An"})
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, int64(79001), o.Total)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, netflix(), o.Metadata.Items)

	stored, err := f.repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, stored.Status)
	assert.Equal(t, "Netflix Premium", stored.LineItems()[0].ProductName)

	cs, ok := f.cache.GetStatus(ctx, o.ID)
	require.True(t, ok)
	assert.Equal(t, orders.StatusPending, cs.Status)
	assert.Equal(t, []string{orders.EventOrderCreated}, f.sink.Types())
}

func TestCreatePendingOrderRejectsBadInput(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreatePendingOrder(ctx, "u1", nil, decimal.NewFromInt(1000), orders.Customer{})
	assert.ErrorIs(t, err, orders.ErrEmptyCart)
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))

	_, err = f.svc.CreatePendingOrder(ctx, "u1", netflix(), decimal.RequireFromString("0.3"), orders.Customer{})
	assert.ErrorIs(t, err, orders.ErrInvalidTotal)

	bad := []orders.LineItem{{PackageID: "x", UnitPrice: 1000, Quantity: 0}}
	_, err = f.svc.CreatePendingOrder(ctx, "u1", bad, decimal.NewFromInt(1000), orders.Customer{})
	assert.ErrorIs(t, err, orders.ErrInvalidItem)
}

func TestMarkTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("paid is idempotent and notifies once", func(t *testing.T) {
		f := newFixture()
		o := f.pending(t)
		require.NoError(t, f.svc.MarkPaid(ctx, o.ID))
		require.NoError(t, f.svc.MarkPaid(ctx, o.ID))

		got, err := f.svc.Get(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusPaid, got.Status)
		require.NotNil(t, got.PaidAt)
		assert.True(t, got.PaidAt.Equal(fixedNow))
		assert.Equal(t, 1, f.notifier.Count())
		assert.Equal(t, []string{orders.EventOrderCreated, orders.EventOrderStatusChanged}, f.sink.Types())
	})

	t.Run("paid after failed is rejected", func(t *testing.T) {
		f := newFixture()
		o := f.pending(t)
		require.NoError(t, f.svc.MarkFailed(ctx, o.ID))
		err := f.svc.MarkPaid(ctx, o.ID)
		assert.ErrorIs(t, err, orders.ErrInvalidTransition)

		got, _ := f.svc.Get(ctx, o.ID)
		assert.Equal(t, orders.StatusFailed, got.Status)
		assert.Zero(t, f.notifier.Count())
	})

	t.Run("cancel after paid is rejected", func(t *testing.T) {
		f := newFixture()
		o := f.pending(t)
		require.NoError(t, f.svc.MarkPaid(ctx, o.ID))
		assert.ErrorIs(t, f.svc.MarkCancelled(ctx, o.ID), orders.ErrInvalidTransition)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture()
		err := f.svc.MarkPaid(ctx, "missing")
		assert.ErrorIs(t, err, orders.ErrOrderNotFound)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestTransitionRetriesOnceAfterLostRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o := f.pending(t)

	raced := false
	f.repo.BeforeCAS = func(id string) {
		if !raced {
			raced = true
			f.repo.SetStatus(id, orders.StatusCancelled)
		}
	}
	err := f.svc.MarkPaid(ctx, o.ID)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	assert.Equal(t, 1, f.repo.CASCalls)
	assert.Zero(t, f.notifier.Count())
}

// losingRepo never wins the conditional update, as if another writer always got there first.
type losingRepo struct{ *testutil.MemOrders }

func (losingRepo) CompareAndSetStatus(context.Context, string, orders.Status, orders.Status, *orders.PaymentMeta, *time.Time) (bool, error) {
	return false, nil
}

func TestCompletePaymentLosingEveryRaceReturnsOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o := f.pending(t)
	svc := orders.NewService(losingRepo{f.repo}, testutil.Logger())

	res, err := svc.CompletePayment(ctx, payment.Callback{
		Provider: payment.ProviderVNPay, OrderID: o.ID, Amount: o.Total, Outcome: payment.Success, ResponseCode: "00",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.False(t, res.Applied)
	assert.Equal(t, orders.StatusPending, res.Order.Status)
}

func TestSideEffectFailuresAreNotReturned(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o := f.pending(t)
	f.sink.Err = errors.New("broker down")
	f.notifier.Err = errors.New("hub gone")

	require.NoError(t, f.svc.MarkPaid(ctx, o.ID))
	got, _ := f.svc.Get(ctx, o.ID)
	assert.Equal(t, orders.StatusPaid, got.Status)
}

func TestStatusChangedEnvelope(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o := f.pending(t)
	require.NoError(t, f.svc.MarkPaid(ctx, o.ID))

	last := f.sink.Events[len(f.sink.Events)-1]
	assert.Equal(t, o.ID, last.Key)

	var env orders.Envelope
	require.NoError(t, json.Unmarshal(last.Value, &env))
	assert.Equal(t, orders.EventOrderStatusChanged, env.EventType)
	assert.Equal(t, "api", env.Producer)
	assert.Equal(t, o.ID, env.CorrelationID)

	var p orders.OrderStatusChangedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, orders.StatusPending, p.From)
	assert.Equal(t, orders.StatusPaid, p.To)
	assert.Equal(t, "a@example.com", p.Customer.Email)
	assert.Equal(t, int64(79000), p.Total)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	admin := &access.Session{UserID: "admin-1", Role: access.RoleAdmin}

	t.Run("admin marks paid", func(t *testing.T) {
		f := newFixture()
		o := f.pending(t)
		got, err := f.svc.UpdateStatus(ctx, o.ID, "paid", admin)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusPaid, got.Status)
		assert.Equal(t, 1, f.notifier.Count())
	})

	t.Run("invalid status", func(t *testing.T) {
		f := newFixture()
		o := f.pending(t)
		for _, s := range []string{"PAID", "shipped", "", "refunded"} {
			_, err := f.svc.UpdateStatus(ctx, o.ID, s, admin)
			assert.ErrorIs(t, err, orders.ErrInvalidStatus, s)
		}
	})

	t.Run("not found", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.UpdateStatus(ctx, "nope", "paid", admin)
		assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	})

	t.Run("plain user is forbidden", func(t *testing.T) {
		f := newFixture()
		o := f.pending(t)
		_, err := f.svc.UpdateStatus(ctx, o.ID, "paid", &access.Session{UserID: "u1", Role: access.RoleUser})
		assert.ErrorIs(t, err, orders.ErrForbidden)
		_, err = f.svc.UpdateStatus(ctx, o.ID, "paid", nil)
		assert.ErrorIs(t, err, orders.ErrForbidden)
	})
}

func TestCompletePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("success records domestic payment", func(t *testing.T) {
		f := newFixture()
		o := f.pending(t)
		require.NoError(t, f.svc.AttachPayment(ctx, o.ID, payment.ProviderVNPay))

		res, err := f.svc.CompletePayment(ctx, payment.Callback{
			Provider: payment.ProviderVNPay, OrderID: o.ID, Amount: 79000,
			ResponseCode: "00", TransactionNo: "14123456", BankCode: "NCB", Outcome: payment.Success,
		})
		require.NoError(t, err)
		assert.True(t, res.Applied)
		assert.Equal(t, orders.StatusPaid, res.Order.Status)

		got, _ := f.svc.Get(ctx, o.ID)
		require.NotNil(t, got.Metadata.Payment)
		require.NotNil(t, got.Metadata.Payment.Domestic)
		assert.Nil(t, got.Metadata.Payment.International)
		assert.Equal(t, "14123456", got.Metadata.Payment.Domestic.TransactionNo)
		assert.Equal(t, "NCB", got.Metadata.Payment.Domestic.BankCode)
		assert.NotNil(t, got.Metadata.Payment.InitiatedAt)
	})

	t.Run("failure outcome marks failed", func(t *testing.T) {
		f := newFixture()
		o := f.pending(t)
		res, err := f.svc.CompletePayment(ctx, payment.Callback{
			Provider: payment.ProviderHosted, OrderID: o.ID, Amount: 79000, ResponseCode: "declined", Outcome: payment.Failure,
		})
		require.NoError(t, err)
		assert.Equal(t, orders.StatusFailed, res.Order.Status)
		require.NotNil(t, res.Order.Metadata.Payment.International)
		assert.Equal(t, "declined", res.Order.Metadata.Payment.International.Status)
		assert.Zero(t, f.notifier.Count())
	})

	t.Run("repeat callback is a no-op", func(t *testing.T) {
		f := newFixture()
		o := f.pending(t)
		cb := payment.Callback{Provider: payment.ProviderVNPay, OrderID: o.ID, Amount: 79000, ResponseCode: "00", Outcome: payment.Success}
		_, err := f.svc.CompletePayment(ctx, cb)
		require.NoError(t, err)

		cb.Outcome = payment.Failure
		res, err := f.svc.CompletePayment(ctx, cb)
		require.NoError(t, err)
		assert.False(t, res.Applied)
		assert.Equal(t, orders.StatusPaid, res.Order.Status)
		assert.Equal(t, 1, f.notifier.Count())
	})

	t.Run("amount mismatch", func(t *testing.T) {
		f := newFixture()
		o := f.pending(t)
		_, err := f.svc.CompletePayment(ctx, payment.Callback{Provider: payment.ProviderVNPay, OrderID: o.ID, Amount: 1000, Outcome: payment.Success})
		assert.ErrorIs(t, err, orders.ErrAmountMismatch)
		got, _ := f.svc.Get(ctx, o.ID)
		assert.Equal(t, orders.StatusPending, got.Status)
	})
}

func TestOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	o := f.pending(t)

	owner := &access.Session{UserID: "u1", Role: access.RoleUser}
	other := &access.Session{UserID: "u2", Role: access.RoleUser}
	staff := &access.Session{UserID: "s1", Role: access.RoleStaff}

	_, err := f.svc.GetFor(ctx, o.ID, owner)
	assert.NoError(t, err)
	_, err = f.svc.GetFor(ctx, o.ID, staff)
	assert.NoError(t, err)
	_, err = f.svc.GetFor(ctx, o.ID, other)
	assert.ErrorIs(t, err, orders.ErrForbidden)
	_, err = f.svc.GetFor(ctx, o.ID, nil)
	assert.ErrorIs(t, err, access.ErrUnauthorized)

	st, err := f.svc.StatusFor(ctx, o.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, st)
	_, err = f.svc.StatusFor(ctx, o.ID, other)
	assert.ErrorIs(t, err, orders.ErrForbidden)

	_, err = f.svc.CancelFor(ctx, o.ID, other)
	assert.ErrorIs(t, err, orders.ErrForbidden)
	got, err := f.svc.CancelFor(ctx, o.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
}

func TestCreateOrderFromCatalog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		orders.Package{ID: "yt-12", ProductName: "YouTube Premium", Name: "12 tháng", Price: 390000, Active: true},
		orders.Package{ID: "old", ProductName: "Spotify", Name: "1 tháng", Price: 59000},
	)

	o, existed, err := f.svc.CreateOrder(ctx, "ext-1", "u1", []orders.ItemInput{{PackageID: "yt-12", Qty: 2}}, orders.Customer{})
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, int64(780000), o.Total)
	assert.Equal(t, "12 tháng", o.Items[0].PackageName)

	again, existed, err := f.svc.CreateOrder(ctx, "ext-1", "u1", []orders.ItemInput{{PackageID: "yt-12", Qty: 2}}, orders.Customer{})
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, o.ID, again.ID)
	assert.Len(t, f.sink.Events, 1)

	_, _, err = f.svc.CreateOrder(ctx, "ext-2", "u1", []orders.ItemInput{{PackageID: "old", Qty: 1}}, orders.Customer{})
	assert.ErrorIs(t, err, orders.ErrPackageNotFound)

	_, _, err = f.svc.CreateOrder(ctx, "ext-3", "u1", nil, orders.Customer{})
	assert.ErrorIs(t, err, orders.ErrEmptyCart)

	pkgs, err := f.svc.Catalog(ctx)
	require.NoError(t, err)
	assert.Len(t, pkgs, 1)
}

func TestListFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	a := f.pending(t)
	f.pending(t)
	require.NoError(t, f.svc.MarkPaid(ctx, a.ID))

	paid, err := f.svc.List(ctx, orders.ListFilter{Status: orders.StatusPaid})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, a.ID, paid[0].ID)

	_, err = f.svc.List(ctx, orders.ListFilter{Status: "shipped"})
	assert.ErrorIs(t, err, orders.ErrInvalidStatus)

	mine, err := f.svc.ListForUser(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
