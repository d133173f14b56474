package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-esewa-storefront/internal/aws"
)

// Store encapsulates operations on the users table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// TransactPut returns a put of a new user for use in a transaction.
func (s *Store) TransactPut(u *User) (types.TransactWriteItem, error) {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal user: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(user_id)"),
		},
	}, nil
}

// TransactDelete returns a delete that fails if the user is already gone.
func (s *Store) TransactDelete(userID string) types.TransactWriteItem {
	return types.TransactWriteItem{
		Delete: &types.Delete{
			TableName:           &s.tableName,
			Key:                 userKey(userID),
			ConditionExpression: awsString("attribute_exists(user_id)"),
		},
	}
}

// Get fetches a user by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, userID string) (*User, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       userKey(userID),
	})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var u User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findOne(ctx, UsernameIndex, "username", username)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, EmailIndex, "email", email)
}

func (s *Store) FindByPhone(ctx context.Context, phone string) (*User, error) {
	return s.findOne(ctx, PhoneIndex, "phone_number", phone)
}

func (s *Store) FindByActivationToken(ctx context.Context, token string) (*User, error) {
	return s.findOne(ctx, ActivationTokenIndex, "activation_token", token)
}

func (s *Store) FindByResetToken(ctx context.Context, token string) (*User, error) {
	return s.findOne(ctx, ResetTokenIndex, "reset_token", token)
}

// findOne queries a GSI and returns the first match, or (nil, nil).
func (s *Store) findOne(ctx context.Context, index, attr, value string) (*User, error) {
	if value == "" {
		return nil, nil
	}
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:                &s.tableName,
		IndexName:                awsString(index),
		KeyConditionExpression:   awsString("#k = :v"),
		ExpressionAttributeNames: map[string]string{"#k": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", index, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	// GSI projections may be keys-only; read the full item from the base table
	var keyed struct {
		UserID string `dynamodbav:"user_id"`
	}
	if err := attributevalue.UnmarshalMap(out.Items[0], &keyed); err != nil {
		return nil, fmt.Errorf("unmarshal user key: %w", err)
	}
	return s.Get(ctx, keyed.UserID)
}

// Activate flips is_active and drops the activation token, provided the
// account still holds token.
func (s *Store) Activate(ctx context.Context, userID, token string) error {
	return s.update(ctx, "activate user", &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 userKey(userID),
		UpdateExpression:    awsString("SET is_active = :true REMOVE activation_token, activation_token_expiry"),
		ConditionExpression: awsString("attribute_exists(user_id) AND activation_token = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":t":    &types.AttributeValueMemberS{Value: token},
		},
	})
}

// SetResetToken stores a password reset token and its expiry.
func (s *Store) SetResetToken(ctx context.Context, userID, token string, expiry time.Time) error {
	exp, err := attributevalue.Marshal(expiry)
	if err != nil {
		return fmt.Errorf("marshal reset expiry: %w", err)
	}
	return s.update(ctx, "set reset token", &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 userKey(userID),
		UpdateExpression:    awsString("SET reset_token = :t, reset_token_expiry = :e"),
		ConditionExpression: awsString("attribute_exists(user_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: token},
			":e": exp,
		},
	})
}

// ResetPassword replaces the password hash and consumes the reset token.
// It fails with ErrNotFound if the token was already used or replaced.
func (s *Store) ResetPassword(ctx context.Context, userID, token, hash string) error {
	return s.update(ctx, "reset password", &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 userKey(userID),
		UpdateExpression:    awsString("SET password_hash = :h REMOVE reset_token, reset_token_expiry"),
		ConditionExpression: awsString("attribute_exists(user_id) AND reset_token = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":h": &types.AttributeValueMemberS{Value: hash},
			":t": &types.AttributeValueMemberS{Value: token},
		},
	})
}

func (s *Store) update(ctx context.Context, op string, in *dyn.UpdateItemInput) error {
	if _, err := s.client.UpdateItem(ctx, in); err != nil {
		if isConditionalFailure(err) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateRole sets the role and returns the updated user.
func (s *Store) UpdateRole(ctx context.Context, userID, role string) (*User, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      userKey(userID),
		UpdateExpression:         awsString("SET #r = :r"),
		ConditionExpression:      awsString("attribute_exists(user_id)"),
		ExpressionAttributeNames: map[string]string{"#r": "role"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":r": &types.AttributeValueMemberS{Value: role},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionalFailure(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}
	var u User
	if err := attributevalue.UnmarshalMap(out.Attributes, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// ListByRole returns users whose role equals role, or differs from it when exclude is set.
func (s *Store) ListByRole(ctx context.Context, role string, exclude bool) ([]User, error) {
	filter := "#r = :r"
	if exclude {
		filter = "#r <> :r"
	}
	out := []User{}
	var start map[string]types.AttributeValue
	for {
		res, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:                &s.tableName,
			FilterExpression:         awsString(filter),
			ExpressionAttributeNames: map[string]string{"#r": "role"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":r": &types.AttributeValueMemberS{Value: role},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("scan users: %w", err)
		}
		var page []User
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal users: %w", err)
		}
		out = append(out, page...)
		if len(res.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = res.LastEvaluatedKey
	}
}

func userKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberS{Value: id},
	}
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func awsString(s string) *string { return &s }
