package main

import (
	"context"
	"net/http"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-esewa-storefront/internal/aws"
	"github.com/imrishuroy/go-esewa-storefront/internal/catalog"
	"github.com/imrishuroy/go-esewa-storefront/internal/config"
	"github.com/imrishuroy/go-esewa-storefront/internal/esewa"
	"github.com/imrishuroy/go-esewa-storefront/internal/events"
	"github.com/imrishuroy/go-esewa-storefront/internal/handlers"
	"github.com/imrishuroy/go-esewa-storefront/internal/idempotency"
	"github.com/imrishuroy/go-esewa-storefront/internal/logging"
	"github.com/imrishuroy/go-esewa-storefront/internal/metrics"
	"github.com/imrishuroy/go-esewa-storefront/internal/orders"
	"github.com/imrishuroy/go-esewa-storefront/internal/payments"
	"github.com/imrishuroy/go-esewa-storefront/internal/shop"
	"github.com/imrishuroy/go-esewa-storefront/internal/tracing"
	"github.com/imrishuroy/go-esewa-storefront/internal/users"
	"github.com/imrishuroy/go-esewa-storefront/internal/validation"
)

func setupRouter(cfg config.Config, clients *aws.Clients, logger *zap.Logger) *gin.Engine {
	var cache catalog.Cache = catalog.NopCache{}
	if cfg.RedisAddr != "" {
		cache = catalog.NewRedisCache(catalog.NewRedisClient(cfg.RedisAddr), cfg.CacheTTL, logger)
		logger.Info("product cache enabled", zap.String("redis_addr", cfg.RedisAddr))
	}

	var publisher events.Publisher = events.Discard{}
	if cfg.EventsQueueURL != "" {
		publisher = aws.NewPublisher(clients.SQS, cfg.EventsQueueURL)
	} else {
		logger.Warn("EVENTS_QUEUE_URL not set, events are discarded")
	}

	products := catalog.NewStore(clients.DynamoDB, cfg.ProductsTable, cache)
	ordersStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable)
	claims := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	gateway := esewa.New(cfg.Esewa, &http.Client{Timeout: cfg.Esewa.Timeout}, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return handlers.NewRouter(handlers.Deps{
		Products:   products,
		Categories: catalog.NewCategoryStore(clients.DynamoDB, cfg.CategoriesTable),
		Orders:     ordersStore,
		Shop: shop.NewService(shop.Config{
			Dynamo:    clients.DynamoDB,
			Catalog:   products,
			Orders:    ordersStore,
			Payments:  payments.NewStore(clients.DynamoDB, cfg.PaymentsTable),
			Claims:    claims,
			Gateway:   gateway,
			Publisher: publisher,
			Producer:  cfg.ServiceName,
			Options: shop.Options{
				ReserveStock: cfg.ReserveStock,
				VerifyTotals: cfg.VerifyTotals,
			},
		}),
		Users: users.NewService(users.Config{
			Dynamo:      clients.DynamoDB,
			Store:       users.NewStore(clients.DynamoDB, cfg.UsersTable),
			Claims:      claims,
			Publisher:   publisher,
			FrontendURL: cfg.FrontendURL,
			TokenTTL:    cfg.TokenTTL,
			Producer:    cfg.ServiceName,
		}),
		Validator:      validation.New(),
		Logger:         logger,
		Metrics:        metrics.NewHTTP(reg, cfg.MetricsNamespace),
		MetricsHandler: metrics.Handler(reg),
		FrontendURL:    cfg.FrontendURL,
		AdminAPIKey:    cfg.AdminAPIKey,
	})
}

func main() {
	_ = config.LoadDotEnv()
	cfg := config.Load()

	logger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)
	shutdownTracing := tracing.Setup(cfg.ServiceName, cfg.Env)
	defer shutdownTracing(context.Background()) //nolint:errcheck
	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	clients, err := aws.NewClients(ctx, aws.ClientOptions{
		DynamoEndpoint: cfg.DynamoEndpoint,
		MaxAttempts:    cfg.AWSMaxAttempts,
	})
	cancel()
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	r := setupRouter(cfg, clients, logger)

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.RunLocal {
		logger.Info("running local server", zap.String("addr", cfg.HTTPAddr))
		if err := r.Run(cfg.HTTPAddr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req lambdaevents.APIGatewayProxyRequest) (lambdaevents.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
