package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

type dynamoItem struct {
	PK           string `dynamodbav:"PK"`
	Subscription string `dynamodbav:"subscription"`
	CreatedAt    int64  `dynamodbav:"created_at"`
}

// DynamoStore keeps one item per subscription, keyed by descriptor key.
type DynamoStore struct {
	table string
	cli   DynamoAPI
}

// NewDynamoStore creates the table if it does not exist yet.
func NewDynamoStore(ctx context.Context, table string, cli DynamoAPI) *DynamoStore {
	createTableIfNotExists(ctx, cli, table)
	return &DynamoStore{table: table, cli: cli}
}

func (s *DynamoStore) Create(ctx context.Context, sub Subscription) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		PK:           pk(sub),
		Subscription: string(sub.Canonical()),
		CreatedAt:    time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = s.cli.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.table,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *ddbTypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put subscription: %w", err)
	}
	return nil
}

func (s *DynamoStore) List(ctx context.Context) ([]Subscription, error) {
	var out []Subscription
	p := dynamodb.NewScanPaginator(s.cli, &dynamodb.ScanInput{TableName: &s.table})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan subscriptions: %w", err)
		}
		for _, raw := range page.Items {
			var item dynamoItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("unmarshal item: %w", err)
			}
			var sub Subscription
			if err := json.Unmarshal([]byte(item.Subscription), &sub); err != nil {
				return nil, fmt.Errorf("decode subscription: %w", err)
			}
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *DynamoStore) Delete(ctx context.Context, sub Subscription) (int, error) {
	res, err := s.cli.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.table,
		Key: map[string]ddbTypes.AttributeValue{
			"PK": &ddbTypes.AttributeValueMemberS{Value: pk(sub)},
		},
		ReturnValues: ddbTypes.ReturnValueAllOld,
	})
	if err != nil {
		return 0, fmt.Errorf("delete subscription: %w", err)
	}
	if len(res.Attributes) == 0 {
		return 0, nil
	}
	return 1, nil
}

func (s *DynamoStore) Close() error { return nil }

func pk(sub Subscription) string {
	return "SUB#" + sub.Key()
}

// createTableIfNotExists ignores "already exists" failures.
func createTableIfNotExists(ctx context.Context, cli DynamoAPI, table string) {
	_, err := cli.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &table,
		AttributeDefinitions: []ddbTypes.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: ddbTypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbTypes.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: ddbTypes.KeyTypeHash},
		},
		BillingMode: ddbTypes.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *ddbTypes.ResourceInUseException
		if !errors.As(err, &inUse) {
			log.WithError(err).WithField("table", table).Warn("create table failed")
		}
	}
}
