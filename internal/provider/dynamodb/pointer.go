package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/snapline-io/snapline/pkg/types"
)

// GetCurrentPointer returns the current-snapshot pointer, or nil before the
// first publish.
func (p *DynamoDBProvider) GetCurrentPointer(ctx context.Context) (*types.CurrentPointer, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &p.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: pkPointer},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skCurrent},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}

	snapshotID, err := attributeStr(out.Item, "snapshotId")
	if err != nil {
		return nil, err
	}
	updatedAt, err := attributeStr(out.Item, "updatedAt")
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing pointer updatedAt: %w", err)
	}
	return &types.CurrentPointer{SnapshotID: snapshotID, UpdatedAt: ts}, nil
}

// SetCurrentPointer advances the pointer with a conditional put: the write
// succeeds only while the stored snapshot ID still matches expectedPrev, with
// "" meaning the pointer has never been set.
func (p *DynamoDBProvider) SetCurrentPointer(ctx context.Context, expectedPrev string, ptr types.CurrentPointer) error {
	input := &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":         &ddbtypes.AttributeValueMemberS{Value: pkPointer},
			"SK":         &ddbtypes.AttributeValueMemberS{Value: skCurrent},
			"snapshotId": &ddbtypes.AttributeValueMemberS{Value: ptr.SnapshotID},
			"updatedAt":  &ddbtypes.AttributeValueMemberS{Value: ptr.UpdatedAt.UTC().Format(time.RFC3339Nano)},
		},
	}
	if expectedPrev == "" {
		input.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		input.ConditionExpression = aws.String("snapshotId = :prev")
		input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
			":prev": &ddbtypes.AttributeValueMemberS{Value: expectedPrev},
		}
	}

	_, err := p.client.PutItem(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("advancing pointer to %q: %w", ptr.SnapshotID, types.ErrPointerConflict)
		}
		return err
	}
	return nil
}
