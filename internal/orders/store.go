package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-esewa-storefront/internal/aws"
)

// UserIndex is the GSI on user_id.
const UserIndex = "user_id-index"

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// TransactPut returns a conditional put of a new order for use in a transaction.
// CreatedAt/UpdatedAt are filled in when empty.
func (s *Store) TransactPut(o *Order) (types.TransactWriteItem, error) {
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal order item: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(order_id)"),
		},
	}, nil
}

// TransactDelete returns a delete that fails if the order is already gone.
func (s *Store) TransactDelete(orderID string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Delete: &types.Delete{
			TableName:           &s.tableName,
			Key:                 orderKey(orderID),
			ConditionExpression: awsString("attribute_exists(order_id)"),
		},
	}
}

// TransactMarkCompleted sets status to completed. Delivery status is left alone.
func (s *Store) TransactMarkCompleted(orderID string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:                &s.tableName,
			Key:                      orderKey(orderID),
			UpdateExpression:         awsString("SET #s = :s, updated_at = :ua"),
			ConditionExpression:      awsString("attribute_exists(order_id)"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":s":  &types.AttributeValueMemberS{Value: StatusCompleted},
				":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
			},
		},
	}
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// List returns all orders.
func (s *Store) List(ctx context.Context) ([]Order, error) {
	out := []Order{}
	var start map[string]types.AttributeValue
	for {
		res, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		var page []Order
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, page...)
		if len(res.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = res.LastEvaluatedKey
	}
}

// ListByUser returns the orders placed by userID.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	out := []Order{}
	var start map[string]types.AttributeValue
	for {
		res, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString(UserIndex),
			KeyConditionExpression: awsString("user_id = :u"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":u": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("query orders by user: %w", err)
		}
		var page []Order
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, page...)
		if len(res.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = res.LastEvaluatedKey
	}
}

// Update overrides status and/or delivery status. Nil values are left alone.
// Callers validate values against ValidStatus / ValidDeliveryStatus.
func (s *Store) Update(ctx context.Context, orderID string, status, deliveryStatus *string) (*Order, error) {
	sets := []string{"updated_at = :ua"}
	names := map[string]string{}
	values := map[string]types.AttributeValue{
		":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
	}
	if status != nil {
		sets = append(sets, "#s = :s")
		names["#s"] = "status"
		values[":s"] = &types.AttributeValueMemberS{Value: *status}
	}
	if deliveryStatus != nil {
		sets = append(sets, "delivery_status = :d")
		values[":d"] = &types.AttributeValueMemberS{Value: *deliveryStatus}
	}
	if len(names) == 0 {
		names = nil
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderID),
		UpdateExpression:          awsString("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       awsString("attribute_exists(order_id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

func orderKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: id},
	}
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
