package conversation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueRoundTrip(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, `{"id":"a"}`))
	require.NoError(t, q.Send(ctx, `{"id":"b"}`))

	messages, err := q.Receive(ctx, 10, 1)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, `{"id":"a"}`, messages[0].Body)
	assert.Equal(t, `{"id":"b"}`, messages[1].Body)
	assert.NotEmpty(t, messages[0].ReceiptHandle)
}

func TestMemoryQueueReceiveTimesOut(t *testing.T) {
	q := NewMemoryQueue(1)
	start := time.Now()
	messages, err := q.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestMemoryQueueReceiveRespectsBatchSize(t *testing.T) {
	q := NewMemoryQueue(8)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Send(ctx, "body"))
	}

	messages, err := q.Receive(ctx, 3, 1)
	require.NoError(t, err)
	assert.Len(t, messages, 3)
}

func TestPublisherEncodesPayload(t *testing.T) {
	q := NewMemoryQueue(1)
	p := NewPublisher(q, nil)

	require.NoError(t, p.Enqueue(context.Background(), InboundMessage{
		Phone:     "5511999990001",
		MessageID: "msg-1",
		Text:      "oi",
	}))

	messages, err := q.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	var payload queuePayload
	require.NoError(t, json.Unmarshal([]byte(messages[0].Body), &payload))
	assert.NotEmpty(t, payload.ID)
	assert.Equal(t, "5511999990001", payload.Message.Phone)
	assert.Equal(t, "msg-1", payload.Message.MessageID)
	assert.Equal(t, "oi", payload.Message.Text)
}

func TestNewPublisherRequiresQueue(t *testing.T) {
	assert.Panics(t, func() { NewPublisher(nil, nil) })
}

func TestWorkerProcessesQueuedMessages(t *testing.T) {
	f := newProcessorFixture(t)
	queue := NewMemoryQueue(8)
	publisher := NewPublisher(queue, nil)
	worker := NewWorker(f.processor, queue, nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	require.NoError(t, publisher.Enqueue(ctx, InboundMessage{Phone: testPhone, MessageID: "msg-1", Text: "oi"}))

	require.Eventually(t, func() bool { return f.sender.count() == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, f.sender.last(t).Message, "Sou Cora")

	cancel()
	worker.Wait()
}

func TestWorkerDropsMalformedPayload(t *testing.T) {
	f := newProcessorFixture(t)
	queue := NewMemoryQueue(8)
	worker := NewWorker(f.processor, queue, nil, WithWorkerCount(1), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	require.NoError(t, queue.Send(ctx, "{malformed"))
	require.NoError(t, NewPublisher(queue, nil).Enqueue(ctx, InboundMessage{Phone: testPhone, MessageID: "msg-2", Text: "oi"}))

	// The good message behind the bad one still gets processed.
	require.Eventually(t, func() bool { return f.sender.count() == 1 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	worker.Wait()
}

func TestWorkerOptionBounds(t *testing.T) {
	f := newProcessorFixture(t)
	queue := NewMemoryQueue(1)
	worker := NewWorker(f.processor, queue, nil,
		WithWorkerCount(3),
		WithReceiveWaitSeconds(99),
		WithReceiveBatchSize(50),
	)
	assert.Equal(t, 3, worker.cfg.workers)
	assert.Equal(t, maxWaitSeconds, worker.cfg.receiveWaitSecs)
	assert.Equal(t, maxReceiveBatchSize, worker.cfg.receiveBatchSize)
}
