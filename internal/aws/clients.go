package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Clients holds the storefront's AWS service clients: DynamoDB for the
// catalog, orders, payments, users and idempotency tables, SQS for the
// events queue and CloudWatch for worker metrics.
type Clients struct {
	DynamoDB   DynamoDBAPI
	SQS        SQSAPI
	CloudWatch CloudWatchAPI
}

// ClientOptions tunes individual clients on top of the shared AWS config.
type ClientOptions struct {
	// DynamoEndpoint overrides the DynamoDB endpoint only, e.g. DynamoDB Local
	// on :8000 while SQS stays on LocalStack.
	DynamoEndpoint string
	// MaxAttempts caps SDK retries for DynamoDB and SQS. Zero keeps the SDK default.
	MaxAttempts int
}

// NewClients loads the AWS config and builds the service clients.
func NewClients(ctx context.Context, opts ClientOptions) (*Clients, error) {
	cfg, err := LoadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return newClients(cfg, opts), nil
}

func newClients(cfg sdkaws.Config, opts ClientOptions) *Clients {
	return &Clients{
		DynamoDB: dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			if opts.DynamoEndpoint != "" {
				o.BaseEndpoint = sdkaws.String(opts.DynamoEndpoint)
			}
			if opts.MaxAttempts > 0 {
				o.RetryMaxAttempts = opts.MaxAttempts
			}
		}),
		SQS: sqs.NewFromConfig(cfg, func(o *sqs.Options) {
			if opts.MaxAttempts > 0 {
				o.RetryMaxAttempts = opts.MaxAttempts
			}
		}),
		CloudWatch: cloudwatch.NewFromConfig(cfg),
	}
}
