package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-esewa-storefront/internal/aws"
)

// Store encapsulates operations on the payments table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// TransactPut returns an insert-only put. A second put with the same id cancels
// the enclosing transaction.
func (s *Store) TransactPut(p *Payment) (types.TransactWriteItem, error) {
	if p.PaymentDate.IsZero() {
		p.PaymentDate = s.nowFunc().UTC()
	}
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal payment: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(payment_id)"),
		},
	}, nil
}

// Get fetches a payment by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, paymentID string) (*Payment, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"payment_id": &types.AttributeValueMemberS{Value: paymentID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Payment
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payment: %w", err)
	}
	return &p, nil
}

// ListByOrder returns every payment recorded against orderID.
func (s *Store) ListByOrder(ctx context.Context, orderID string) ([]Payment, error) {
	res, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(OrderIndex),
		KeyConditionExpression: awsString("order_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query payments by order: %w", err)
	}
	var out []Payment
	if err := attributevalue.UnmarshalListOfMaps(res.Items, &out); err != nil {
		return nil, fmt.Errorf("unmarshal payments: %w", err)
	}
	if out == nil {
		out = []Payment{}
	}
	return out, nil
}

func awsString(s string) *string { return &s }
