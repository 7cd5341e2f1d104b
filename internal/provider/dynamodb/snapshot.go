package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/snapline-io/snapline/pkg/types"
)

// PutSnapshot stores a new snapshot record. Snapshot IDs are write-once: a
// conditional put rejects any attempt to overwrite an existing record.
func (p *DynamoDBProvider) PutSnapshot(ctx context.Context, snap types.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":     &ddbtypes.AttributeValueMemberS{Value: snapshotPK(snap.SnapshotID)},
			"SK":     &ddbtypes.AttributeValueMemberS{Value: skMeta},
			"GSI1PK": &ddbtypes.AttributeValueMemberS{Value: gsiSnapshotList},
			"GSI1SK": &ddbtypes.AttributeValueMemberS{Value: snapshotListSK(snap.CreatedAt, snap.SnapshotID)},
			"data":   &ddbtypes.AttributeValueMemberS{Value: string(data)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("snapshot %q already exists", snap.SnapshotID)
		}
		return err
	}
	return nil
}

// GetSnapshot retrieves a snapshot record by ID.
func (p *DynamoDBProvider) GetSnapshot(ctx context.Context, snapshotID string) (*types.Snapshot, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &p.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: snapshotPK(snapshotID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: skMeta},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("snapshot %q: %w", snapshotID, types.ErrSnapshotNotFound)
	}

	data, err := attributeStr(out.Item, "data")
	if err != nil {
		return nil, err
	}
	var snap types.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListSnapshots returns snapshots newest-first via the list index.
func (p *DynamoDBProvider) ListSnapshots(ctx context.Context, limit int) ([]types.Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: gsiSnapshotList},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, err
	}

	snaps := make([]types.Snapshot, 0, len(out.Items))
	for _, item := range out.Items {
		data, err := attributeStr(item, "data")
		if err != nil {
			p.logger.Warn("skipping corrupt snapshot record", "error", err)
			continue
		}
		var snap types.Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			p.logger.Warn("skipping corrupt snapshot record", "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// UpdateSnapshotStatus advances a snapshot's lifecycle status. PublishedAt is
// stamped on the transition to PUBLISHED.
func (p *DynamoDBProvider) UpdateSnapshotStatus(ctx context.Context, snapshotID string, status types.SnapshotStatus, summaryStatus types.SummaryStatus) error {
	snap, err := p.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}

	snap.Status = status
	snap.SummaryStatus = summaryStatus
	if status == types.SnapshotPublished && snap.PublishedAt == nil {
		now := time.Now().UTC()
		snap.PublishedAt = &now
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":     &ddbtypes.AttributeValueMemberS{Value: snapshotPK(snapshotID)},
			"SK":     &ddbtypes.AttributeValueMemberS{Value: skMeta},
			"GSI1PK": &ddbtypes.AttributeValueMemberS{Value: gsiSnapshotList},
			"GSI1SK": &ddbtypes.AttributeValueMemberS{Value: snapshotListSK(snap.CreatedAt, snap.SnapshotID)},
			"data":   &ddbtypes.AttributeValueMemberS{Value: string(data)},
		},
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return fmt.Errorf("snapshot %q: %w", snapshotID, types.ErrSnapshotNotFound)
		}
		return err
	}
	return nil
}

// AppendSnapshotLines writes snapshot lines. Lines of a published snapshot
// are immutable; each line item is itself write-once.
func (p *DynamoDBProvider) AppendSnapshotLines(ctx context.Context, lines []types.SnapshotLine) error {
	if len(lines) == 0 {
		return nil
	}

	snap, err := p.GetSnapshot(ctx, lines[0].SnapshotID)
	if err != nil {
		return err
	}
	if snap.Status == types.SnapshotPublished {
		return fmt.Errorf("snapshot %q is published; lines are immutable", snap.SnapshotID)
	}

	for _, line := range lines {
		data, err := json.Marshal(line)
		if err != nil {
			return err
		}
		_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: &p.tableName,
			Item: map[string]ddbtypes.AttributeValue{
				"PK":   &ddbtypes.AttributeValueMemberS{Value: snapshotPK(line.SnapshotID)},
				"SK":   &ddbtypes.AttributeValueMemberS{Value: lineSK(line.ScopePackageID, line.FlocID)},
				"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
			},
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		})
		if err != nil {
			if isConditionalCheckFailed(err) {
				return fmt.Errorf("line %s/%s already written for snapshot %q", line.ScopePackageID, line.FlocID, line.SnapshotID)
			}
			return fmt.Errorf("writing snapshot line: %w", err)
		}
	}
	return nil
}

// ListSnapshotLines returns all lines of one snapshot.
func (p *DynamoDBProvider) ListSnapshotLines(ctx context.Context, snapshotID string) ([]types.SnapshotLine, error) {
	return listSnapshotRows[types.SnapshotLine](ctx, p, snapshotID, prefixLine)
}

// AppendSnapshotSummaries writes per-package summary rows. Unlike lines,
// summaries may be written after publish: a deferred summary is regenerated
// against the already-published snapshot.
func (p *DynamoDBProvider) AppendSnapshotSummaries(ctx context.Context, summaries []types.SnapshotSummary) error {
	for _, sum := range summaries {
		data, err := json.Marshal(sum)
		if err != nil {
			return err
		}
		_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: &p.tableName,
			Item: map[string]ddbtypes.AttributeValue{
				"PK":   &ddbtypes.AttributeValueMemberS{Value: snapshotPK(sum.SnapshotID)},
				"SK":   &ddbtypes.AttributeValueMemberS{Value: summarySK(sum.ScopePackageID)},
				"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
			},
		})
		if err != nil {
			return fmt.Errorf("writing snapshot summary: %w", err)
		}
	}
	return nil
}

// ListSnapshotSummaries returns the per-package summaries of one snapshot.
func (p *DynamoDBProvider) ListSnapshotSummaries(ctx context.Context, snapshotID string) ([]types.SnapshotSummary, error) {
	return listSnapshotRows[types.SnapshotSummary](ctx, p, snapshotID, prefixSummary)
}

// listSnapshotRows pages through one snapshot partition's rows under an SK
// prefix and decodes each data attribute.
func listSnapshotRows[T any](ctx context.Context, p *DynamoDBProvider, snapshotID, skPrefix string) ([]T, error) {
	var (
		rows    []T
		lastKey map[string]ddbtypes.AttributeValue
	)
	for {
		out, err := p.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &p.tableName,
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk":     &ddbtypes.AttributeValueMemberS{Value: snapshotPK(snapshotID)},
				":prefix": &ddbtypes.AttributeValueMemberS{Value: skPrefix},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			data, err := attributeStr(item, "data")
			if err != nil {
				p.logger.Warn("skipping corrupt snapshot row", "snapshotId", snapshotID, "error", err)
				continue
			}
			var row T
			if err := json.Unmarshal([]byte(data), &row); err != nil {
				p.logger.Warn("skipping corrupt snapshot row", "snapshotId", snapshotID, "error", err)
				continue
			}
			rows = append(rows, row)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		lastKey = out.LastEvaluatedKey
	}
	return rows, nil
}
