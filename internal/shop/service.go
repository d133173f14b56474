// Package shop holds the order lifecycle: placement, cancellation with stock
// restoration, and payment initiation and reconciliation. Every multi-item
// mutation commits as one DynamoDB transaction.
package shop

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-esewa-storefront/internal/aws"
	"github.com/imrishuroy/go-esewa-storefront/internal/catalog"
	"github.com/imrishuroy/go-esewa-storefront/internal/events"
	"github.com/imrishuroy/go-esewa-storefront/internal/idempotency"
	"github.com/imrishuroy/go-esewa-storefront/internal/logging"
	"github.com/imrishuroy/go-esewa-storefront/internal/orders"
	"github.com/imrishuroy/go-esewa-storefront/internal/payments"
)

const tracerName = "github.com/imrishuroy/go-esewa-storefront/internal/shop"

// Options toggles behavior beyond the baseline order flow.
type Options struct {
	// ReserveStock decrements stock when an order is placed.
	ReserveStock bool
	// VerifyTotals recomputes the order total from catalog prices.
	VerifyTotals bool
}

// Config wires a Service.
type Config struct {
	Dynamo    aws.DynamoDBAPI
	Catalog   *catalog.Store
	Orders    *orders.Store
	Payments  *payments.Store
	Claims    *idempotency.Store
	Gateway   payments.Gateway
	Publisher events.Publisher
	Producer  string
	Options   Options
}

// Service is the order service.
type Service struct {
	dynamo    aws.DynamoDBAPI
	catalog   *catalog.Store
	orders    *orders.Store
	payments  *payments.Store
	claims    *idempotency.Store
	gateway   payments.Gateway
	publisher events.Publisher
	producer  string
	opts      Options
	tracer    trace.Tracer
	nowFunc   func() time.Time
	newID     func() string
}

func NewService(cfg Config) *Service {
	if cfg.Publisher == nil {
		cfg.Publisher = events.Discard{}
	}
	return &Service{
		dynamo:    cfg.Dynamo,
		catalog:   cfg.Catalog,
		orders:    cfg.Orders,
		payments:  cfg.Payments,
		claims:    cfg.Claims,
		gateway:   cfg.Gateway,
		publisher: cfg.Publisher,
		producer:  cfg.Producer,
		opts:      cfg.Options,
		tracer:    otel.Tracer(tracerName),
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "shop."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// publish sends an event after a commit. Failures are logged, never returned:
// the write they describe has already happened.
func (s *Service) publish(ctx context.Context, eventType string, payload any) {
	logger := logging.FromContext(ctx)
	env, err := events.New(eventType, s.producer, logging.RequestID(ctx), payload)
	if err == nil {
		err = s.publisher.Publish(ctx, env)
	}
	if err != nil {
		logger.Error("publish event failed", zap.String("event_type", eventType), zap.Error(err))
	}
}
