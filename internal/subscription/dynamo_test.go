package subscription

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
)

// fakeDynamo is an in-memory table keyed on the PK string attribute.
type fakeDynamo struct {
	mu      sync.Mutex
	created int
	order   []string
	items   map[string]map[string]ddbTypes.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]ddbTypes.AttributeValue)}
}

func pkOf(item map[string]ddbTypes.AttributeValue) string {
	return item["PK"].(*ddbTypes.AttributeValueMemberS).Value
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pkOf(in.Item)
	if _, ok := f.items[key]; ok && in.ConditionExpression != nil {
		return nil, &ddbTypes.ConditionalCheckFailedException{Message: aws.String("exists")}
	}
	if _, ok := f.items[key]; !ok {
		f.order = append(f.order, key)
	}
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pkOf(in.Key)
	old, ok := f.items[key]
	if !ok {
		return &dynamodb.DeleteItemOutput{}, nil
	}
	delete(f.items, key)
	for i, k := range f.order {
		if k == key {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return &dynamodb.DeleteItemOutput{Attributes: old}, nil
}

func (f *fakeDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &dynamodb.ScanOutput{}
	for _, k := range f.order {
		out.Items = append(out.Items, f.items[k])
	}
	return out, nil
}

func (f *fakeDynamo) CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	if f.created > 1 {
		return nil, &ddbTypes.ResourceInUseException{Message: aws.String("table exists")}
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func TestDynamoStore(t *testing.T) {
	storeContract(t, NewDynamoStore(context.Background(), "subs", newFakeDynamo()))
}

func TestDynamoStoreToleratesExistingTable(t *testing.T) {
	f := newFakeDynamo()
	NewDynamoStore(context.Background(), "subs", f)
	NewDynamoStore(context.Background(), "subs", f)
	assert.Equal(t, 2, f.created)
}
