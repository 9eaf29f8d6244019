// Package queue consumes story job references from a durable work queue and
// turns pipeline outcomes into acknowledgement decisions. Transports live in
// the amqpqueue and pgqueue subpackages.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"storyteller/internal/domain"
)

// Envelope is the wire shape of a queued job reference.
type Envelope struct {
	StoryID string `json:"storyId"`
}

// DecodeEnvelope parses a message body. A body without a story id is a
// permanent error.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", domain.ErrInvalidEnvelope, err)
	}
	env.StoryID = strings.TrimSpace(env.StoryID)
	if env.StoryID == "" {
		return Envelope{}, fmt.Errorf("%w: storyId is missing", domain.ErrInvalidEnvelope)
	}
	return env, nil
}

// EncodeEnvelope renders the wire shape for publishers.
func EncodeEnvelope(storyID string) ([]byte, error) {
	storyID = strings.TrimSpace(storyID)
	if storyID == "" {
		return nil, fmt.Errorf("%w: storyId is missing", domain.ErrInvalidEnvelope)
	}
	return json.Marshal(Envelope{StoryID: storyID})
}

// Delivery is one unacknowledged message. Exactly one of Ack or Reject is
// called per delivery; Reject drops the message without redelivery.
type Delivery interface {
	Body() []byte
	MessageID() string
	Ack() error
	Reject() error
}

// Source yields deliveries until ctx is cancelled or the transport closes the
// channel. A source never has more than its prefetch bound unacknowledged.
type Source interface {
	Deliveries(ctx context.Context) (<-chan Delivery, error)
	Close() error
}

// Publisher enqueues job references.
type Publisher interface {
	Publish(ctx context.Context, storyID string) error
}

// Processor runs one job to completion.
type Processor interface {
	Process(ctx context.Context, storyID string) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, storyID string) error

func (f ProcessorFunc) Process(ctx context.Context, storyID string) error {
	return f(ctx, storyID)
}
