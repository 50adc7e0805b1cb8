package conversation

import (
	"context"
	"fmt"

	"github.com/postclinics/clinic-agent/pkg/logging"
)

// Publisher enqueues accepted inbound messages for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// Enqueue publishes one inbound message.
func (p *Publisher) Enqueue(ctx context.Context, msg InboundMessage) error {
	if ctx == nil {
		ctx = context.Background()
	}

	payload, body, err := encodePayload(queuePayload{Message: msg})
	if err != nil {
		return err
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue message: %w", err)
	}

	p.logger.Debug("inbound message enqueued", "job_id", payload.ID, "phone", msg.Phone, "message_id", msg.MessageID)
	return nil
}
