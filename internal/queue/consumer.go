package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storyteller/internal/infra"
)

// ErrDeliveriesClosed is returned by Run when the source stops delivering
// while the consumer is still expected to run.
var ErrDeliveriesClosed = errors.New("queue: delivery channel closed")

// DefaultPrefetch is the number of jobs a consumer keeps in flight.
const DefaultPrefetch = 2

// Consumer drains a Source, running each delivery concurrently up to the
// prefetch bound.
type Consumer struct {
	source    Source
	processor Processor
	prefetch  int
	logger    infra.Logger
}

func NewConsumer(source Source, processor Processor, prefetch int, logger infra.Logger) (*Consumer, error) {
	if source == nil {
		return nil, errors.New("queue: source is required")
	}
	if processor == nil {
		return nil, errors.New("queue: processor is required")
	}
	if prefetch <= 0 {
		prefetch = DefaultPrefetch
	}
	return &Consumer{
		source:    source,
		processor: processor,
		prefetch:  prefetch,
		logger:    infra.Component(logger, "queue"),
	}, nil
}

// Run blocks until ctx is cancelled or the source closes, then waits for the
// jobs already in flight. A source that closes on its own yields
// ErrDeliveriesClosed. Jobs run on a context detached from ctx so that
// shutdown never interrupts a stage.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.source.Deliveries(ctx)
	if err != nil {
		return err
	}

	jobCtx := context.WithoutCancel(ctx)
	slots := make(chan struct{}, c.prefetch)
	var wg sync.WaitGroup
	defer wg.Wait()

	c.logger.Info().Int("prefetch", c.prefetch).Msg("queue: consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("queue: consumer stopping")
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				c.logger.Error().Msg("queue: delivery channel closed")
				return ErrDeliveriesClosed
			}
			slots <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-slots }()
				c.handle(jobCtx, d)
			}()
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d Delivery) {
	logger := c.logger.With().Str("message_id", d.MessageID()).Logger()

	env, err := DecodeEnvelope(d.Body())
	if err != nil {
		logger.Error().Err(err).Msg("queue: malformed envelope, dropping")
		c.reject(d, logger)
		return
	}
	logger = logger.With().Str("story_id", env.StoryID).Logger()
	logger.Info().Msg("queue: job started")

	if err := c.process(ctx, env.StoryID); err != nil {
		logger.Error().Err(err).Msg("queue: job failed, dropping")
		c.reject(d, logger)
		return
	}

	if err := d.Ack(); err != nil {
		logger.Error().Err(err).Msg("queue: ack failed")
		return
	}
	logger.Info().Msg("queue: job succeeded")
}

// process converts a panicking job into a failure so the delivery is still
// settled.
func (c *Consumer) process(ctx context.Context, storyID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errPanic{value: r}
		}
	}()
	return c.processor.Process(ctx, storyID)
}

func (c *Consumer) reject(d Delivery, logger infra.Logger) {
	if err := d.Reject(); err != nil {
		logger.Error().Err(err).Msg("queue: reject failed")
	}
}

type errPanic struct {
	value any
}

func (e errPanic) Error() string {
	return fmt.Sprintf("queue: job panicked: %v", e.value)
}
