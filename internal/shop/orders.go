package shop

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-esewa-storefront/internal/events"
	"github.com/imrishuroy/go-esewa-storefront/internal/idempotency"
	"github.com/imrishuroy/go-esewa-storefront/internal/logging"
	"github.com/imrishuroy/go-esewa-storefront/internal/orders"
	"github.com/imrishuroy/go-esewa-storefront/internal/txn"
)

// PlaceOrderInput is a checkout request.
type PlaceOrderInput struct {
	OrderRef      string
	UserID        string
	Username      string
	PhoneNumber   string
	Email         string
	Address       string
	Products      []orders.LineItem
	Price         float64
	PaymentMethod string
}

// PlaceOrder validates and persists a new pending order.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (o *orders.Order, err error) {
	ctx, span := s.startSpan(ctx, "PlaceOrder")
	defer func() { endSpan(span, err) }()

	method := in.PaymentMethod
	if method == "" {
		method = orders.DefaultPaymentMethod
	}
	if !orders.ValidPaymentMethod(method) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, in.PaymentMethod)
	}
	if err := checkLineItems(in.Products); err != nil {
		return nil, err
	}
	if in.Price < 0 {
		return nil, fmt.Errorf("%w: negative price", ErrInvalidOrder)
	}

	now := s.nowFunc().UTC()
	o = &orders.Order{
		OrderID:        s.newID(),
		OrderRef:       in.OrderRef,
		UserID:         in.UserID,
		Username:       in.Username,
		PhoneNumber:    in.PhoneNumber,
		Email:          in.Email,
		Address:        in.Address,
		Products:       in.Products,
		Price:          in.Price,
		PaymentMethod:  method,
		Status:         orders.StatusPending,
		DeliveryStatus: orders.DeliveryInProgress,
		PurchaseDate:   now,
	}
	if o.OrderRef == "" {
		o.OrderRef = o.OrderID
	}
	span.SetAttributes(attribute.String("order.id", o.OrderID), attribute.Int("order.items", len(o.Products)))

	ids, qty := o.Quantities()
	if s.opts.VerifyTotals {
		if err := s.verifyTotal(ctx, o, ids, qty); err != nil {
			return nil, err
		}
	}

	var b txn.Batch
	put, err := s.orders.TransactPut(o)
	if err != nil {
		return nil, err
	}
	b.Add("order", put)
	claim, err := s.claims.TransactClaim(idempotency.OrderRefKey(o.OrderRef), o.OrderID)
	if err != nil {
		return nil, err
	}
	b.Add("order-ref", claim)
	if s.opts.ReserveStock {
		for _, id := range ids {
			b.Add("stock:"+id, s.catalog.TransactAdjustStock(id, -qty[id]))
		}
	}

	if err := b.Commit(ctx, s.dynamo); err != nil {
		var canceled *txn.CanceledError
		if errors.As(err, &canceled) {
			if _, ok := canceled.FailedCondition("order-ref"); ok {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateOrderRef, o.OrderRef)
			}
			if f, ok := canceled.FailedCondition("stock:"); ok {
				return nil, fmt.Errorf("%w: product %s", ErrInsufficientStock, f.Label[len("stock:"):])
			}
		}
		return nil, fmt.Errorf("place order: %w", err)
	}
	if s.opts.ReserveStock {
		s.catalog.Invalidate(ctx, ids...)
	}

	logging.FromContext(ctx).Info("order placed",
		zap.String("order_id", o.OrderID),
		zap.String("order_ref", o.OrderRef),
		zap.String("payment_method", o.PaymentMethod))
	s.publish(ctx, events.TypeOrderPlaced, orderPayload(o))
	return o, nil
}

func checkLineItems(items []orders.LineItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no products", ErrInvalidOrder)
	}
	if len(items) > orders.MaxLineItems {
		return fmt.Errorf("%w: more than %d products", ErrInvalidOrder, orders.MaxLineItems)
	}
	for _, li := range items {
		if li.ProductID == "" {
			return fmt.Errorf("%w: product id required", ErrInvalidOrder)
		}
		if li.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for %s must be positive", ErrInvalidOrder, li.ProductID)
		}
	}
	return nil
}

// verifyTotal compares the submitted price with catalog prices times quantities.
func (s *Service) verifyTotal(ctx context.Context, o *orders.Order, ids []string, qty map[string]int) error {
	total := decimal.Zero
	for _, id := range ids {
		p, err := s.catalog.Get(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: %s", ErrProductMissing, id)
		}
		total = total.Add(decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(int64(qty[id]))))
	}
	if !total.Equal(decimal.NewFromFloat(o.Price)) {
		return fmt.Errorf("%w: submitted %v, catalog %s", ErrTotalMismatch, o.Price, total)
	}
	return nil
}

// CancelOrder deletes an order and returns its quantities to stock, all or nothing.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (err error) {
	ctx, span := s.startSpan(ctx, "CancelOrder")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order.id", orderID))

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	ids, qty := o.Quantities()
	for _, id := range ids {
		p, err := s.catalog.Get(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("%w: %s", ErrProductMissing, id)
		}
	}

	var b txn.Batch
	for _, id := range ids {
		b.Add("stock:"+id, s.catalog.TransactAdjustStock(id, qty[id]))
	}
	b.Add("order", s.orders.TransactDelete(o.OrderID))
	b.Add("order-ref", s.claims.TransactRelease(idempotency.OrderRefKey(o.OrderRef)))

	if err := b.Commit(ctx, s.dynamo); err != nil {
		var canceled *txn.CanceledError
		if errors.As(err, &canceled) {
			if f, ok := canceled.FailedCondition("stock:"); ok {
				return fmt.Errorf("%w: %s", ErrProductMissing, f.Label[len("stock:"):])
			}
			if !canceled.Conflict() {
				return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
			}
		}
		return fmt.Errorf("cancel order: %w", err)
	}
	s.catalog.Invalidate(ctx, ids...)

	logging.FromContext(ctx).Info("order cancelled",
		zap.String("order_id", o.OrderID),
		zap.Int("products_restocked", len(ids)))
	s.publish(ctx, events.TypeOrderCancelled, orderPayload(o))
	return nil
}

func orderPayload(o *orders.Order) events.OrderPayload {
	return events.OrderPayload{
		OrderID:  o.OrderID,
		OrderRef: o.OrderRef,
		UserID:   o.UserID,
		Price:    o.Price,
		Items:    len(o.Products),
	}
}
