package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapline-io/snapline/pkg/types"
)

// mockDDB is a minimal mock of the DDBAPI interface for unit testing.
type mockDDB struct {
	putItemFn       func(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	getItemFn       func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	queryFn         func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	deleteItemFn    func(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	describeTableFn func(ctx context.Context, input *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

func (m *mockDDB) PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putItemFn != nil {
		return m.putItemFn(ctx, input, opts...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDB) GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getItemFn != nil {
		return m.getItemFn(ctx, input, opts...)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDDB) Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, input, opts...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDDB) DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.deleteItemFn != nil {
		return m.deleteItemFn(ctx, input, opts...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDDB) DescribeTable(ctx context.Context, input *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.describeTableFn != nil {
		return m.describeTableFn(ctx, input, opts...)
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (m *mockDDB) CreateTable(context.Context, *dynamodb.CreateTableInput, ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	return &dynamodb.CreateTableOutput{}, nil
}

func (m *mockDDB) UpdateTimeToLive(context.Context, *dynamodb.UpdateTimeToLiveInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

func newTestProvider(mock *mockDDB) *DynamoDBProvider {
	p, _ := New(&Config{TableName: "snapline-test", Region: "us-east-1", Endpoint: "http://localhost:8000"})
	p.client = mock
	return p
}

func snapshotItem(snap types.Snapshot) map[string]ddbtypes.AttributeValue {
	data, _ := json.Marshal(snap)
	return map[string]ddbtypes.AttributeValue{
		"PK":   &ddbtypes.AttributeValueMemberS{Value: snapshotPK(snap.SnapshotID)},
		"SK":   &ddbtypes.AttributeValueMemberS{Value: skMeta},
		"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
	}
}

func TestAcquireLease_HeldMeansFalseNotError(t *testing.T) {
	mock := &mockDDB{
		putItemFn: func(_ context.Context, _ *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			return nil, &ddbtypes.ConditionalCheckFailedException{}
		},
	}
	p := newTestProvider(mock)

	ok, err := p.AcquireLease(context.Background(), "publish#2026-08-01T00:00:00Z", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquireLease_ConditionAllowsExpiredTakeover(t *testing.T) {
	var cond string
	mock := &mockDDB{
		putItemFn: func(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			cond = *input.ConditionExpression
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	p := newTestProvider(mock)

	ok, err := p.AcquireLease(context.Background(), "publish#w", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, cond, "attribute_not_exists(PK)")
	assert.Contains(t, cond, "#ttl < :now")
}

func TestAcquireLease_TransportErrorPropagates(t *testing.T) {
	mock := &mockDDB{
		putItemFn: func(_ context.Context, _ *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			return nil, fmt.Errorf("throttled")
		},
	}
	p := newTestProvider(mock)

	_, err := p.AcquireLease(context.Background(), "publish#w", time.Minute)
	require.Error(t, err)
}

func TestSetCurrentPointer_FirstSetRequiresAbsence(t *testing.T) {
	var input *dynamodb.PutItemInput
	mock := &mockDDB{
		putItemFn: func(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			input = in
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	p := newTestProvider(mock)

	err := p.SetCurrentPointer(context.Background(), "", types.CurrentPointer{SnapshotID: "snap-1", UpdatedAt: time.Now().UTC()})
	require.NoError(t, err)
	assert.Equal(t, "attribute_not_exists(PK)", *input.ConditionExpression)
}

func TestSetCurrentPointer_SwapConditionsOnPrev(t *testing.T) {
	var input *dynamodb.PutItemInput
	mock := &mockDDB{
		putItemFn: func(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			input = in
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	p := newTestProvider(mock)

	err := p.SetCurrentPointer(context.Background(), "snap-1", types.CurrentPointer{SnapshotID: "snap-2", UpdatedAt: time.Now().UTC()})
	require.NoError(t, err)
	assert.Equal(t, "snapshotId = :prev", *input.ConditionExpression)
	prev := input.ExpressionAttributeValues[":prev"].(*ddbtypes.AttributeValueMemberS)
	assert.Equal(t, "snap-1", prev.Value)
}

func TestSetCurrentPointer_ConflictMapsToSentinel(t *testing.T) {
	mock := &mockDDB{
		putItemFn: func(_ context.Context, _ *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			return nil, &ddbtypes.ConditionalCheckFailedException{}
		},
	}
	p := newTestProvider(mock)

	err := p.SetCurrentPointer(context.Background(), "stale", types.CurrentPointer{SnapshotID: "snap-3", UpdatedAt: time.Now().UTC()})
	require.ErrorIs(t, err, types.ErrPointerConflict)
}

func TestGetSnapshot_Missing(t *testing.T) {
	p := newTestProvider(&mockDDB{})

	_, err := p.GetSnapshot(context.Background(), "nope")
	require.ErrorIs(t, err, types.ErrSnapshotNotFound)
}

func TestPutSnapshot_DuplicateIDRejected(t *testing.T) {
	mock := &mockDDB{
		putItemFn: func(_ context.Context, _ *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			return nil, &ddbtypes.ConditionalCheckFailedException{}
		},
	}
	p := newTestProvider(mock)

	err := p.PutSnapshot(context.Background(), types.Snapshot{SnapshotID: "dup", CreatedAt: time.Now().UTC()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestAppendSnapshotLines_PublishedSnapshotRejected(t *testing.T) {
	snap := types.Snapshot{SnapshotID: "pub-1", Status: types.SnapshotPublished, CreatedAt: time.Now().UTC()}
	mock := &mockDDB{
		getItemFn: func(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: snapshotItem(snap)}, nil
		},
	}
	p := newTestProvider(mock)

	err := p.AppendSnapshotLines(context.Background(), []types.SnapshotLine{
		{SnapshotID: "pub-1", ScopePackageID: "P1", FlocID: "F1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")
}

func TestListEvents_SkipsExpiredItems(t *testing.T) {
	live, _ := json.Marshal(types.Event{Kind: types.EventSnapshotPublished, SnapshotID: "s1", Timestamp: time.Now().UTC()})
	stale, _ := json.Marshal(types.Event{Kind: types.EventCycleStarted, SnapshotID: "s1", Timestamp: time.Now().UTC()})
	mock := &mockDDB{
		queryFn: func(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			return &dynamodb.QueryOutput{Items: []map[string]ddbtypes.AttributeValue{
				{
					"data": &ddbtypes.AttributeValueMemberS{Value: string(live)},
					"ttl":  &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", time.Now().Add(time.Hour).Unix())},
				},
				{
					"data": &ddbtypes.AttributeValueMemberS{Value: string(stale)},
					"ttl":  &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", time.Now().Add(-time.Hour).Unix())},
				},
			}}, nil
		},
	}
	p := newTestProvider(mock)

	events, err := p.ListEvents(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventSnapshotPublished, events[0].Kind)
}

func TestKeys(t *testing.T) {
	t.Run("snapshot list SK orders by creation time", func(t *testing.T) {
		earlier := snapshotListSK(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), "a")
		later := snapshotListSK(time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC), "b")
		assert.Less(t, earlier, later)
	})

	t.Run("events partition falls back for cycle-level events", func(t *testing.T) {
		assert.Equal(t, "EVENTS#-", eventsPK(""))
		assert.Equal(t, "EVENTS#snap-1", eventsPK("snap-1"))
	})

	t.Run("event SK embeds millis and a nonce", func(t *testing.T) {
		sk := eventSK(time.Now())
		assert.True(t, strings.HasPrefix(sk, prefixEvent))
		assert.NotEqual(t, sk, eventSK(time.Now()))
	})
}
