package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/imrishuroy/go-esewa-storefront/internal/aws"
)

// Store encapsulates operations on the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	cache     Cache
	group     singleflight.Group
	nowFunc   func() time.Time
}

// NewStore creates a products Store. A nil cache disables read caching.
func NewStore(client aws.DynamoDBAPI, tableName string, cache Cache) *Store {
	if cache == nil {
		cache = NopCache{}
	}
	return &Store{
		client:    client,
		tableName: tableName,
		cache:     cache,
		nowFunc:   time.Now,
	}
}

// Create stores a new product. An empty ProductID gets a fresh UUID.
func (s *Store) Create(ctx context.Context, p Product) (*Product, error) {
	if p.ProductID == "" {
		p.ProductID = uuid.NewString()
	}
	now := s.nowFunc().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return nil, fmt.Errorf("marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(product_id)"),
	})
	if err != nil {
		return nil, fmt.Errorf("put product: %w", err)
	}
	return &p, nil
}

// Get fetches a product by id. Returns (nil, nil) if not found.
// Concurrent misses for the same id share one DynamoDB read.
func (s *Store) Get(ctx context.Context, productID string) (*Product, error) {
	if p, ok := s.cache.GetProduct(ctx, productID); ok {
		return p, nil
	}

	v, err, _ := s.group.Do(productID, func() (interface{}, error) {
		p, err := s.getItem(ctx, productID)
		if err != nil || p == nil {
			return p, err
		}
		s.cache.SetProduct(ctx, *p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p, _ := v.(*Product)
	if p == nil {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *Store) getItem(ctx context.Context, productID string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       productKey(productID),
	})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// List returns every product.
func (s *Store) List(ctx context.Context) ([]Product, error) {
	out := []Product{}
	var start map[string]types.AttributeValue
	for {
		res, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan products: %w", err)
		}
		var page []Product
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal products: %w", err)
		}
		out = append(out, page...)
		if len(res.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = res.LastEvaluatedKey
	}
}

// Update applies a partial update and returns the new product.
func (s *Store) Update(ctx context.Context, productID string, u ProductUpdate) (*Product, error) {
	if u.Empty() {
		p, err := s.Get(ctx, productID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, ErrNotFound
		}
		return p, nil
	}

	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	sets := []string{}
	set := func(attr string, v types.AttributeValue) {
		n := fmt.Sprintf("#f%d", len(sets))
		val := fmt.Sprintf(":v%d", len(sets))
		names[n] = attr
		values[val] = v
		sets = append(sets, n+" = "+val)
	}
	if u.Title != nil {
		set("title", &types.AttributeValueMemberS{Value: *u.Title})
	}
	if u.Image != nil {
		set("image", &types.AttributeValueMemberS{Value: *u.Image})
	}
	if u.Description != nil {
		set("desc", &types.AttributeValueMemberS{Value: *u.Description})
	}
	if u.Category != nil {
		set("category", &types.AttributeValueMemberS{Value: *u.Category})
	}
	if u.Price != nil {
		set("price", &types.AttributeValueMemberN{Value: strconv.FormatFloat(*u.Price, 'f', -1, 64)})
	}
	if u.Stock != nil {
		set("stock", &types.AttributeValueMemberN{Value: strconv.Itoa(*u.Stock)})
	}
	set("updated_at", timeValue(s.nowFunc()))

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       productKey(productID),
		UpdateExpression:          awsString("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       awsString("attribute_exists(product_id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionalFailure(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update product: %w", err)
	}
	s.cache.Invalidate(ctx, productID)

	var p Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// Delete removes a product and returns what was deleted. Orders that reference it are untouched.
func (s *Store) Delete(ctx context.Context, productID string) (*Product, error) {
	out, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 productKey(productID),
		ConditionExpression: awsString("attribute_exists(product_id)"),
		ReturnValues:        types.ReturnValueAllOld,
	})
	if err != nil {
		if isConditionalFailure(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete product: %w", err)
	}
	s.cache.Invalidate(ctx, productID)

	var p Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// AdjustStock adds delta (which may be negative) to a product's stock and returns
// the new value. The write is conditional, so concurrent adjustments never lose
// an update and stock never goes below zero.
func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) (int, error) {
	p, err := s.getItem(ctx, productID)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, ErrNotFound
	}
	if p.Stock+delta < 0 {
		return 0, fmt.Errorf("%w: product %s has %d, change %d", ErrInsufficientStock, productID, p.Stock, delta)
	}

	update := s.stockUpdate(productID, delta)
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 update.TableName,
		Key:                       update.Key,
		UpdateExpression:          update.UpdateExpression,
		ConditionExpression:       update.ConditionExpression,
		ExpressionAttributeNames:  update.ExpressionAttributeNames,
		ExpressionAttributeValues: update.ExpressionAttributeValues,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionalFailure(err) {
			// lost the race: either the product vanished or stock dropped under us
			current, getErr := s.getItem(ctx, productID)
			if getErr == nil && current == nil {
				return 0, ErrNotFound
			}
			return 0, fmt.Errorf("%w: product %s", ErrInsufficientStock, productID)
		}
		return 0, fmt.Errorf("adjust stock: %w", err)
	}
	s.cache.Invalidate(ctx, productID)

	var updated Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return 0, fmt.Errorf("unmarshal product: %w", err)
	}
	return updated.Stock, nil
}

// TransactAdjustStock returns the stock change as a transactional update. The
// operation fails if the product no longer exists, or if a decrement would take
// stock below zero.
func (s *Store) TransactAdjustStock(productID string, delta int) types.TransactWriteItem {
	return types.TransactWriteItem{Update: s.stockUpdate(productID, delta)}
}

func (s *Store) stockUpdate(productID string, delta int) *types.Update {
	values := map[string]types.AttributeValue{
		":d":  &types.AttributeValueMemberN{Value: strconv.Itoa(delta)},
		":ua": timeValue(s.nowFunc()),
	}
	cond := "attribute_exists(product_id)"
	if delta < 0 {
		cond += " AND stock >= :need"
		values[":need"] = &types.AttributeValueMemberN{Value: strconv.Itoa(-delta)}
	}
	return &types.Update{
		TableName:                 &s.tableName,
		Key:                       productKey(productID),
		UpdateExpression:          awsString("SET updated_at = :ua ADD stock :d"),
		ConditionExpression:       awsString(cond),
		ExpressionAttributeValues: values,
	}
}

// Invalidate drops cached copies of the given products. Callers that change
// stock through a transaction use it after commit.
func (s *Store) Invalidate(ctx context.Context, productIDs ...string) {
	s.cache.Invalidate(ctx, productIDs...)
}

func productKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: id},
	}
}

func timeValue(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func awsString(s string) *string { return &s }
