package usage

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoCounter keeps the monthly counter in a DynamoDB table with a
// month_year partition key and a numeric count attribute.
type DynamoCounter struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoCounter creates a counter over the given table using the
// default AWS credential chain.
func NewDynamoCounter(ctx context.Context, table string) (*DynamoCounter, error) {
	if table == "" {
		return nil, fmt.Errorf("dynamo counter: missing table name")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("dynamo counter: loading AWS config: %w", err)
	}
	return &DynamoCounter{
		client: dynamodb.NewFromConfig(cfg),
		table:  table,
	}, nil
}

// Count reads the current value for period, 0 when the month has no
// row yet.
func (c *DynamoCounter) Count(ctx context.Context, period string) (int, error) {
	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &c.table,
		Key: map[string]types.AttributeValue{
			"month_year": &types.AttributeValueMemberS{Value: period},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("dynamo counter: reading count: %w", err)
	}
	if out.Item == nil {
		return 0, nil
	}
	var n int
	if err := attributevalue.Unmarshal(out.Item["count"], &n); err != nil {
		return 0, fmt.Errorf("dynamo counter: decoding count: %w", err)
	}
	return n, nil
}

// Increment atomically adds one and returns the new value.
func (c *DynamoCounter) Increment(ctx context.Context, period string) (int, error) {
	expr := "ADD #c :v"
	out, err := c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &c.table,
		Key: map[string]types.AttributeValue{
			"month_year": &types.AttributeValueMemberS{Value: period},
		},
		UpdateExpression:         &expr,
		ExpressionAttributeNames: map[string]string{"#c": "count"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("dynamo counter: incrementing: %w", err)
	}
	var n int
	if err := attributevalue.Unmarshal(out.Attributes["count"], &n); err != nil {
		return 0, fmt.Errorf("dynamo counter: decoding new count: %w", err)
	}
	return n, nil
}
