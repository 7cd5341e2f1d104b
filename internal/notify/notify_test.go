package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapline-io/snapline/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() types.Alert {
	return types.Alert{
		Level:      types.AlertLevelWarning,
		SnapshotID: "01TESTSNAP",
		Kind:       "orphan_invoice_line",
		Message:    "1 orphan invoice line in cycle",
		Timestamp:  time.Now().UTC(),
	}
}

type stubSink struct {
	sent atomic.Int64
	err  error
}

func (s *stubSink) Send(context.Context, types.Alert) error {
	s.sent.Add(1)
	return s.err
}
func (s *stubSink) Name() string { return "stub" }

func TestDispatcher_FanOutContinuesPastFailure(t *testing.T) {
	bad := &stubSink{err: fmt.Errorf("sink down")}
	good := &stubSink{}
	d := &Dispatcher{sinks: []Sink{bad, good}, logger: discardLogger()}

	d.Dispatch(context.Background(), testAlert())

	assert.Equal(t, int64(1), bad.sent.Load())
	assert.Equal(t, int64(1), good.sent.Load())
}

func TestNewDispatcher_UnknownType(t *testing.T) {
	_, err := NewDispatcher([]types.AlertConfig{{Type: "carrier-pigeon"}}, nil)
	require.Error(t, err)
}

func TestFileSink_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	sink, err := NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), testAlert()))
	require.NoError(t, sink.Send(context.Background(), testAlert()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var count int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var alert types.Alert
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &alert))
		assert.Equal(t, "01TESTSNAP", alert.SnapshotID)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestWebhookSink_PostsJSON(t *testing.T) {
	var got types.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	require.NoError(t, sink.Send(context.Background(), testAlert()))
	assert.Equal(t, "orphan_invoice_line", got.Kind)
}

func TestWebhookSink_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	for i := 0; i < 10; i++ {
		require.Error(t, sink.Send(context.Background(), testAlert()))
	}
	assert.LessOrEqual(t, hits.Load(), int64(5), "breaker must stop hammering a down endpoint")
}

type fakeSQS struct {
	bodies []string
}

func (f *fakeSQS) SendMessage(_ context.Context, input *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.bodies = append(f.bodies, *input.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSSink_SendsMessage(t *testing.T) {
	fake := &fakeSQS{}
	sink, err := NewSQSSink("https://sqs.test/queue", "us-east-1", WithSQSClient(fake))
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), testAlert()))
	require.Len(t, fake.bodies, 1)

	var alert types.Alert
	require.NoError(t, json.Unmarshal([]byte(fake.bodies[0]), &alert))
	assert.Equal(t, types.AlertLevelWarning, alert.Level)
}

type fakeEventBridge struct {
	entries int
	failed  int32
}

func (f *fakeEventBridge) PutEvents(_ context.Context, input *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.entries += len(input.Entries)
	return &eventbridge.PutEventsOutput{FailedEntryCount: f.failed}, nil
}

func TestEventBridgeSink_PutsEvent(t *testing.T) {
	fake := &fakeEventBridge{}
	sink, err := NewEventBridgeSink("snapline-bus", "us-east-1", WithEventBridgeClient(fake))
	require.NoError(t, err)

	require.NoError(t, sink.Send(context.Background(), testAlert()))
	assert.Equal(t, 1, fake.entries)
}

func TestEventBridgeSink_FailedEntriesSurface(t *testing.T) {
	fake := &fakeEventBridge{failed: 1}
	sink, err := NewEventBridgeSink("snapline-bus", "", WithEventBridgeClient(fake))
	require.NoError(t, err)

	require.Error(t, sink.Send(context.Background(), testAlert()))
}
