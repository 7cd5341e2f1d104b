package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/snapline-io/snapline/pkg/types"
)

// ListPackageLines returns the conformed awarded-scope relation.
func (p *DynamoDBProvider) ListPackageLines(ctx context.Context) ([]types.PackageLine, error) {
	return listPartition[types.PackageLine](ctx, p, pkPackageLines)
}

// ListAssignmentIntervals returns the FLOC-to-package assignment history.
func (p *DynamoDBProvider) ListAssignmentIntervals(ctx context.Context) ([]types.AssignmentInterval, error) {
	return listPartition[types.AssignmentInterval](ctx, p, pkAssignments)
}

// ListEvidence returns conformed evidence aggregates of one type.
func (p *DynamoDBProvider) ListEvidence(ctx context.Context, evidenceType types.EvidenceType) ([]types.EvidenceAggregate, error) {
	return listPartition[types.EvidenceAggregate](ctx, p, evidencePK(evidenceType))
}

// ListInvoiceLines returns the vendor invoice line facts.
func (p *DynamoDBProvider) ListInvoiceLines(ctx context.Context) ([]types.InvoiceLineFact, error) {
	return listPartition[types.InvoiceLineFact](ctx, p, pkInvoiceLines)
}

// ListInvoiceReversals returns the invoice reversal facts.
func (p *DynamoDBProvider) ListInvoiceReversals(ctx context.Context) ([]types.InvoiceReversal, error) {
	return listPartition[types.InvoiceReversal](ctx, p, pkInvoiceReversals)
}

// listPartition reads every item in a partition, following pagination, and
// decodes each item's data attribute. Input relations can exceed a single
// query page.
func listPartition[T any](ctx context.Context, p *DynamoDBProvider, pk string) ([]T, error) {
	var (
		rows    []T
		lastKey map[string]ddbtypes.AttributeValue
	)
	for {
		out, err := p.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &p.tableName,
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk": &ddbtypes.AttributeValueMemberS{Value: pk},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range out.Items {
			data, err := attributeStr(item, "data")
			if err != nil {
				p.logger.Warn("skipping corrupt input row", "partition", pk, "error", err)
				continue
			}
			var row T
			if err := json.Unmarshal([]byte(data), &row); err != nil {
				p.logger.Warn("skipping corrupt input row", "partition", pk, "error", err)
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

// attributeStr extracts a string attribute from a DynamoDB item.
func attributeStr(item map[string]ddbtypes.AttributeValue, key string) (string, error) {
	av, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	var s string
	if err := attributevalue.Unmarshal(av, &s); err != nil {
		return "", fmt.Errorf("unmarshaling %q: %w", key, err)
	}
	return s, nil
}

// attributeTTL extracts the "ttl" integer attribute from a DynamoDB item.
func attributeTTL(item map[string]ddbtypes.AttributeValue) int64 {
	av, ok := item["ttl"]
	if !ok {
		return 0
	}
	var n int64
	if err := attributevalue.Unmarshal(av, &n); err != nil {
		return 0
	}
	return n
}
