package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/imrishuroy/go-esewa-storefront/internal/dynamotest"
	"github.com/imrishuroy/go-esewa-storefront/internal/txn"
)

const ordersTable = "orders-table"

func newTestStore() (*Store, *dynamotest.Fake) {
	fake := dynamotest.New()
	fake.CreateTable(ordersTable, "order_id")
	s := NewStore(fake, ordersTable)
	s.nowFunc = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return s, fake
}

func putOrder(t *testing.T, s *Store, fake *dynamotest.Fake, o Order) {
	t.Helper()
	item, err := s.TransactPut(&o)
	if err != nil {
		t.Fatalf("TransactPut error: %v", err)
	}
	var b txn.Batch
	b.Add("order", item)
	if err := b.Commit(context.Background(), fake); err != nil {
		t.Fatalf("commit order %s: %v", o.OrderID, err)
	}
}

func sampleOrder(id, user string) Order {
	return Order{
		OrderID:        id,
		OrderRef:       "ref-" + id,
		UserID:         user,
		Username:       "sita",
		Products:       []LineItem{{ProductID: "p1", Name: "Tea", Quantity: 2}},
		Price:          500,
		PaymentMethod:  DefaultPaymentMethod,
		Status:         StatusPending,
		DeliveryStatus: DeliveryInProgress,
	}
}

func TestPutAndGet(t *testing.T) {
	s, fake := newTestStore()
	ctx := context.Background()
	putOrder(t, s, fake, sampleOrder("o1", "u1"))

	got, err := s.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got == nil {
		t.Fatalf("expected order, got nil")
	}
	if got.OrderRef != "ref-o1" || got.Price != 500 || len(got.Products) != 1 || got.Products[0].Quantity != 2 {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}

	missing, err := s.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", missing, err)
	}
}

func TestTransactPutRejectsExistingID(t *testing.T) {
	s, fake := newTestStore()
	putOrder(t, s, fake, sampleOrder("o1", "u1"))

	o := sampleOrder("o1", "u2")
	item, _ := s.TransactPut(&o)
	var b txn.Batch
	b.Add("order", item)
	var canceled *txn.CanceledError
	if err := b.Commit(context.Background(), fake); !errors.As(err, &canceled) {
		t.Fatalf("expected CanceledError, got %v", err)
	}
}

func TestListAndListByUser(t *testing.T) {
	s, fake := newTestStore()
	ctx := context.Background()
	putOrder(t, s, fake, sampleOrder("o1", "u1"))
	putOrder(t, s, fake, sampleOrder("o2", "u2"))
	putOrder(t, s, fake, sampleOrder("o3", "u1"))

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(all))
	}

	mine, err := s.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(mine) != 2 || mine[0].OrderID != "o1" || mine[1].OrderID != "o3" {
		t.Fatalf("unexpected user orders: %+v", mine)
	}

	none, err := s.ListByUser(ctx, "u9")
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", none)
	}
}

func TestUpdate(t *testing.T) {
	s, fake := newTestStore()
	ctx := context.Background()
	putOrder(t, s, fake, sampleOrder("o1", "u1"))

	delivered := DeliveryCompleted
	o, err := s.Update(ctx, "o1", nil, &delivered)
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if o.DeliveryStatus != DeliveryCompleted || o.Status != StatusPending {
		t.Fatalf("unexpected order after update: %+v", o)
	}

	refunded := StatusRefunded
	o, err = s.Update(ctx, "o1", &refunded, nil)
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if o.Status != StatusRefunded || o.DeliveryStatus != DeliveryCompleted {
		t.Fatalf("unexpected order after update: %+v", o)
	}

	if _, err := s.Update(ctx, "missing", &refunded, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if fake.Len(ordersTable) != 1 {
		t.Fatalf("update of missing order must not create one")
	}
}

func TestTransactMarkCompletedAndDelete(t *testing.T) {
	s, fake := newTestStore()
	ctx := context.Background()
	putOrder(t, s, fake, sampleOrder("o1", "u1"))

	var b txn.Batch
	b.Add("order", s.TransactMarkCompleted("o1"))
	if err := b.Commit(ctx, fake); err != nil {
		t.Fatalf("commit: %v", err)
	}
	o, _ := s.Get(ctx, "o1")
	if o.Status != StatusCompleted || o.DeliveryStatus != DeliveryInProgress {
		t.Fatalf("unexpected order: %+v", o)
	}

	var del txn.Batch
	del.Add("order", s.TransactDelete("o1"))
	if err := del.Commit(ctx, fake); err != nil {
		t.Fatalf("commit delete: %v", err)
	}
	if o, _ := s.Get(ctx, "o1"); o != nil {
		t.Fatalf("expected order to be deleted")
	}

	var again txn.Batch
	again.Add("order", s.TransactDelete("o1"))
	var canceled *txn.CanceledError
	if err := again.Commit(ctx, fake); !errors.As(err, &canceled) {
		t.Fatalf("expected CanceledError deleting a missing order, got %v", err)
	}
}

func TestQuantitiesAggregatesPerProduct(t *testing.T) {
	o := Order{Products: []LineItem{
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 3},
	}}
	ids, qty := o.Quantities()
	if len(ids) != 2 || ids[0] != "p2" || ids[1] != "p1" {
		t.Fatalf("unexpected order of ids: %v", ids)
	}
	if qty["p2"] != 4 || qty["p1"] != 2 {
		t.Fatalf("unexpected quantities: %v", qty)
	}
}

func TestEnumValidators(t *testing.T) {
	for _, m := range []string{"esewa", "khalti", "Cash in hand"} {
		if !ValidPaymentMethod(m) {
			t.Fatalf("expected %q to be valid", m)
		}
	}
	if ValidPaymentMethod("paypal") || ValidPaymentMethod("") {
		t.Fatalf("unexpected valid payment method")
	}
	if !ValidStatus("refunded") || ValidStatus("PENDING") {
		t.Fatalf("status validation wrong")
	}
	if !ValidDeliveryStatus("in progress") || ValidDeliveryStatus("shipped") {
		t.Fatalf("delivery validation wrong")
	}
}
