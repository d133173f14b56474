package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-esewa-storefront/internal/aws"
)

// CategoryStore encapsulates operations on the categories table.
type CategoryStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewCategoryStore(client aws.DynamoDBAPI, tableName string) *CategoryStore {
	return &CategoryStore{client: client, tableName: tableName, nowFunc: time.Now}
}

// Create stores a category under a fresh id.
func (s *CategoryStore) Create(ctx context.Context, name string) (*Category, error) {
	c := Category{
		CategoryID: uuid.NewString(),
		Name:       name,
		CreatedAt:  s.nowFunc().UTC(),
	}
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return nil, fmt.Errorf("marshal category: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(category_id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("put category: %w", err)
	}
	return &c, nil
}

func (s *CategoryStore) List(ctx context.Context) ([]Category, error) {
	out := []Category{}
	var start map[string]types.AttributeValue
	for {
		res, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan categories: %w", err)
		}
		var page []Category
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal categories: %w", err)
		}
		out = append(out, page...)
		if len(res.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = res.LastEvaluatedKey
	}
}

// Delete removes a category. Products keep their free-text category value.
func (s *CategoryStore) Delete(ctx context.Context, categoryID string) (*Category, error) {
	out, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"category_id": &types.AttributeValueMemberS{Value: categoryID},
		},
		ConditionExpression: awsString("attribute_exists(category_id)"),
		ReturnValues:        types.ReturnValueAllOld,
	})
	if err != nil {
		if isConditionalFailure(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete category: %w", err)
	}
	var c Category
	if err := attributevalue.UnmarshalMap(out.Attributes, &c); err != nil {
		return nil, fmt.Errorf("unmarshal category: %w", err)
	}
	return &c, nil
}
