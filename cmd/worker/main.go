package main

import (
	"context"
	"encoding/json"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-esewa-storefront/internal/aws"
	"github.com/imrishuroy/go-esewa-storefront/internal/config"
	"github.com/imrishuroy/go-esewa-storefront/internal/events"
	"github.com/imrishuroy/go-esewa-storefront/internal/idempotency"
	"github.com/imrishuroy/go-esewa-storefront/internal/logging"
	"github.com/imrishuroy/go-esewa-storefront/internal/mail"
)

func main() {
	_ = config.LoadDotEnv()
	cfg := config.Load()

	logger := logging.MustNewLogger("storefront-worker", cfg.Env)
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	ctx := context.Background()
	clients, err := aws.NewClients(ctx, aws.ClientOptions{
		DynamoEndpoint: cfg.DynamoEndpoint,
		MaxAttempts:    cfg.AWSMaxAttempts,
	})
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	var mailer mail.Sender = mail.LogSender{Logger: logger}
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}

	p := NewProcessor(
		idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		mailer,
		aws.NewMetricsEmitter(clients.CloudWatch, cfg.MetricsNamespace),
		logger,
	)

	// RUN_LOCAL=true processes a single event from LOCAL_SQS_BODY and exits.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			env, err := events.New(events.TypeOrderPlaced, "local", "", events.OrderPayload{OrderID: "local-order-1", Items: 1})
			if err != nil {
				logger.Fatal("build local event", zap.Error(err))
			}
			raw, _ := json.Marshal(env)
			body = string(raw)
		}
		resp, err := p.Handle(ctx, lambdaevents.SQSEvent{
			Records: []lambdaevents.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if err != nil || len(resp.BatchItemFailures) > 0 {
			logger.Fatal("local handler error", zap.Error(err), zap.Int("failures", len(resp.BatchItemFailures)))
		}
		return
	}

	lambda.Start(p.Handle)
}
