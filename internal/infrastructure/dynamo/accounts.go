package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/otp-auth-api/internal/domain"
)

// accountsAPI is the subset of *dynamodb.Client the account repo calls.
type accountsAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// AccountRepo stores accounts in a table keyed by email, with a GSI on
// account_id for lookups from token subjects.
type AccountRepo struct {
	client    accountsAPI
	tableName string
	now       func() time.Time
}

func NewAccountRepo(client accountsAPI, tableName string) *AccountRepo {
	return &AccountRepo{client: client, tableName: tableName, now: time.Now}
}

func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldEmail, email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeErr(err)
	}
	if out.Item == nil {
		return nil, domain.ErrNotFound
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, storeErr(fmt.Errorf("unmarshal account: %w", err))
	}
	return &a, nil
}

func (r *AccountRepo) FindByID(ctx context.Context, accountID string) (*domain.Account, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(accountIDIndex),
		KeyConditionExpression: aws.String("#k = :v"),
		ExpressionAttributeNames: map[string]string{
			"#k": fieldAccountID,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: accountID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, storeErr(err)
	}
	if len(out.Items) == 0 {
		return nil, domain.ErrNotFound
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Items[0], &a); err != nil {
		return nil, storeErr(fmt.Errorf("unmarshal account: %w", err))
	}
	return &a, nil
}

// Create inserts a new account. The put is conditional on the email not
// existing, so concurrent registrations of the same address yield exactly
// one winner and domain.ErrDuplicate for the rest.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return storeErr(fmt.Errorf("marshal account: %w", err))
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldEmail},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.ErrDuplicate
		}
		return storeErr(err)
	}
	return nil
}

// UpdatePassword replaces the stored hash. Returns domain.ErrNotFound when
// no account exists for email.
func (r *AccountRepo) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldPasswordHash: passwordHash,
		fieldUpdatedAt:    r.now().UTC(),
	})
	if err != nil {
		return storeErr(err)
	}
	ue.Names["#pk"] = fieldEmail
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldEmail, email),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.ErrNotFound
		}
		return storeErr(err)
	}
	return nil
}

// Ping reports whether the accounts table is reachable.
func (r *AccountRepo) Ping(ctx context.Context) error {
	_, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(r.tableName),
	})
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func storeErr(err error) error {
	return domain.Infrastructure(domain.ReasonAccountStore, "account store unavailable", err)
}
