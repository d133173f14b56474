package main

import (
	"context"
	"encoding/json"
	"fmt"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-esewa-storefront/internal/events"
	"github.com/imrishuroy/go-esewa-storefront/internal/idempotency"
	"github.com/imrishuroy/go-esewa-storefront/internal/logging"
	"github.com/imrishuroy/go-esewa-storefront/internal/mail"
)

// Counter records business metrics. *aws.MetricsEmitter satisfies it.
type Counter interface {
	Count(ctx context.Context, name string, value float64, dims map[string]string) error
}

// Processor consumes storefront events from SQS: account emails go out
// through the mail sender, order and payment events become metrics.
type Processor struct {
	claims  *idempotency.Store
	mailer  mail.Sender
	metrics Counter
	logger  *zap.Logger
}

func NewProcessor(claims *idempotency.Store, mailer mail.Sender, metrics Counter, logger *zap.Logger) *Processor {
	return &Processor{claims: claims, mailer: mailer, metrics: metrics, logger: logger}
}

// Handle processes an SQS batch. Failed records are reported individually so
// only they are redelivered.
func (p *Processor) Handle(ctx context.Context, ev lambdaevents.SQSEvent) (lambdaevents.SQSEventResponse, error) {
	var resp lambdaevents.SQSEventResponse
	p.logger.Info("received batch", zap.Int("records", len(ev.Records)))
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, lambdaevents.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec lambdaevents.SQSMessage) error {
	var env events.Envelope
	if err := json.Unmarshal([]byte(rec.Body), &env); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if env.EventID == "" {
		return fmt.Errorf("message %s has no event id", rec.MessageId)
	}

	logger := p.logger.With(
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.String("request_id", env.CorrelationID))
	ctx = logging.ContextWithLogger(ctx, logger)

	key := idempotency.EventKey(env.EventID)
	created, err := p.claims.CreateIfNotExists(ctx, key, env.EventID)
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !created {
		claim, err := p.claims.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("read event claim: %w", err)
		}
		if claim != nil && claim.Status == idempotency.StatusDone {
			logger.Info("duplicate delivery skipped")
			return nil
		}
		return fmt.Errorf("event %s is being processed elsewhere", env.EventID)
	}

	if err := p.dispatch(ctx, env); err != nil {
		if markErr := p.claims.MarkFailed(ctx, key, err.Error()); markErr != nil {
			logger.Warn("failed to mark event claim failed", zap.Error(markErr))
		}
		return err
	}
	if err := p.claims.MarkDone(ctx, key, "", 0); err != nil {
		logger.Warn("failed to mark event claim done", zap.Error(err))
	}
	logger.Info("event processed")
	return nil
}

func (p *Processor) dispatch(ctx context.Context, env events.Envelope) error {
	switch env.EventType {
	case events.TypeAccountActivation, events.TypePasswordReset:
		msg, err := events.Decode[events.EmailPayload](env)
		if err != nil {
			return err
		}
		return p.mailer.Send(ctx, msg)

	case events.TypeOrderPlaced, events.TypeOrderCancelled:
		o, err := events.Decode[events.OrderPayload](env)
		if err != nil {
			return err
		}
		name := "OrdersPlaced"
		if env.EventType == events.TypeOrderCancelled {
			name = "OrdersCancelled"
		}
		if err := p.metrics.Count(ctx, name, 1, map[string]string{"Producer": env.Producer}); err != nil {
			return err
		}
		return p.metrics.Count(ctx, name+"Items", float64(o.Items), nil)

	case events.TypePaymentCompleted:
		pay, err := events.Decode[events.PaymentPayload](env)
		if err != nil {
			return err
		}
		return p.metrics.Count(ctx, "PaymentsCompleted", 1, map[string]string{"Gateway": pay.Gateway})

	default:
		logging.FromContext(ctx).Warn("ignoring unknown event type")
		return nil
	}
}
