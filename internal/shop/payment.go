package shop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-esewa-storefront/internal/events"
	"github.com/imrishuroy/go-esewa-storefront/internal/idempotency"
	"github.com/imrishuroy/go-esewa-storefront/internal/logging"
	"github.com/imrishuroy/go-esewa-storefront/internal/payments"
	"github.com/imrishuroy/go-esewa-storefront/internal/txn"
)

// OrderSnapshot is the order summary returned with a payment initiation.
type OrderSnapshot struct {
	ID            string    `json:"_id"`
	PaymentMethod string    `json:"paymentMethod"`
	Price         float64   `json:"price"`
	Status        string    `json:"status"`
	PurchaseDate  time.Time `json:"purchaseDate"`
}

// PaymentInitiation is the gateway hand-off plus the order it pays for.
type PaymentInitiation struct {
	Payment *payments.Initiation `json:"payment"`
	Order   OrderSnapshot        `json:"purchasedItemData"`
}

// InitiatePayment checks that totalPrice matches the stored order price and
// asks the gateway for signed payment parameters.
func (s *Service) InitiatePayment(ctx context.Context, orderID string, totalPrice decimal.Decimal) (out *PaymentInitiation, err error) {
	ctx, span := s.startSpan(ctx, "InitiatePayment")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("order.id", orderID))

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil || !decimal.NewFromFloat(o.Price).Equal(totalPrice) {
		return nil, ErrPriceMismatch
	}

	handoff, err := s.gateway.Initiate(ctx, totalPrice, o.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return &PaymentInitiation{
		Payment: handoff,
		Order: OrderSnapshot{
			ID:            o.OrderID,
			PaymentMethod: s.gateway.Name(),
			Price:         o.Price,
			Status:        o.Status,
			PurchaseDate:  o.PurchaseDate,
		},
	}, nil
}

// verificationRecord is what gets stored as the payment's verification payload.
type verificationRecord struct {
	DecodedData json.RawMessage `json:"decodedData"`
	Response    json.RawMessage `json:"response"`
}

// CompletePayment reconciles a gateway callback: it records exactly one Payment
// per gateway transaction and marks the order completed.
func (s *Service) CompletePayment(ctx context.Context, data string, query url.Values) (p *payments.Payment, err error) {
	ctx, span := s.startSpan(ctx, "CompletePayment")
	defer func() { endSpan(span, err) }()
	logger := logging.FromContext(ctx)

	v, err := s.gateway.Verify(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	span.SetAttributes(
		attribute.String("order.id", v.TransactionUUID),
		attribute.String("payment.transaction_code", v.TransactionCode))

	key := idempotency.CallbackKey(s.gateway.Name(), v.TransactionCode)
	created, err := s.claims.CreateIfNotExists(ctx, key, v.TransactionUUID)
	if err != nil {
		return nil, err
	}
	if !created {
		rec, err := s.claims.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.Status == idempotency.StatusDone {
			return nil, ErrAlreadyReconciled
		}
		return nil, ErrReconciliationInProgress
	}

	p, err = s.reconcile(ctx, v, query)
	if err != nil {
		if errors.Is(err, ErrAlreadyReconciled) {
			if markErr := s.claims.MarkDone(ctx, key, payments.ID(s.gateway.Name(), v.TransactionCode), 200); markErr != nil {
				logger.Warn("mark callback done failed", zap.String("key", key), zap.Error(markErr))
			}
			return nil, err
		}
		if markErr := s.claims.MarkFailed(ctx, key, err.Error()); markErr != nil {
			logger.Warn("mark callback failed failed", zap.String("key", key), zap.Error(markErr))
		}
		return nil, err
	}

	if err := s.claims.MarkDone(ctx, key, p.PaymentID, 200); err != nil {
		logger.Warn("mark callback done failed", zap.String("key", key), zap.Error(err))
	}
	logger.Info("payment reconciled",
		zap.String("payment_id", p.PaymentID),
		zap.String("order_id", p.OrderID),
		zap.Float64("amount", p.Amount))
	s.publish(ctx, events.TypePaymentCompleted, events.PaymentPayload{
		PaymentID: p.PaymentID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Gateway:   p.PaymentGateway,
	})
	return p, nil
}

func (s *Service) reconcile(ctx context.Context, v *payments.Verification, query url.Values) (*payments.Payment, error) {
	o, err := s.orders.Get(ctx, v.TransactionUUID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, v.TransactionUUID)
	}
	if !v.TotalAmount.Equal(decimal.NewFromFloat(o.Price)) {
		logging.FromContext(ctx).Warn("gateway amount differs from order price",
			zap.String("order_id", o.OrderID),
			zap.String("gateway_amount", v.TotalAmount.String()),
			zap.Float64("order_price", o.Price))
	}

	verification, err := json.Marshal(verificationRecord{DecodedData: v.Decoded, Response: v.Response})
	if err != nil {
		return nil, fmt.Errorf("marshal verification: %w", err)
	}
	rawQuery, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	p := &payments.Payment{
		PaymentID:               payments.ID(s.gateway.Name(), v.TransactionCode),
		Pidx:                    v.TransactionCode,
		TransactionID:           v.TransactionCode,
		OrderID:                 o.OrderID,
		Amount:                  o.Price,
		DataFromVerificationReq: verification,
		APIQueryFromUser:        rawQuery,
		PaymentGateway:          s.gateway.Name(),
		Status:                  payments.StatusSuccess,
		PaymentDate:             s.nowFunc().UTC(),
	}
	put, err := s.payments.TransactPut(p)
	if err != nil {
		return nil, err
	}

	var b txn.Batch
	b.Add("payment", put)
	b.Add("order", s.orders.TransactMarkCompleted(o.OrderID))
	if err := b.Commit(ctx, s.dynamo); err != nil {
		var canceled *txn.CanceledError
		if errors.As(err, &canceled) {
			if _, ok := canceled.FailedCondition("payment"); ok {
				return nil, ErrAlreadyReconciled
			}
			if !canceled.Conflict() {
				return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, o.OrderID)
			}
		}
		return nil, fmt.Errorf("record payment: %w", err)
	}
	return p, nil
}
