// Package transport opens the queue driver selected in configuration and
// exposes it through the queue contracts.
package transport

import (
	"context"
	"errors"
	"fmt"

	"storyteller/internal/infra"
	"storyteller/internal/queue"
	"storyteller/internal/queue/amqpqueue"
	"storyteller/internal/queue/pgqueue"
)

const (
	DriverAMQP     = "amqp"
	DriverPostgres = "postgres"
)

// Transport is one open queue connection.
type Transport struct {
	Driver    string
	Publisher queue.Publisher

	source func() (queue.Source, error)
	close  func() error
}

// Open connects to the configured driver. sql is used by the postgres driver
// for claims and publishing.
func Open(ctx context.Context, cfg *infra.Config, sql infra.SQLExecutor, logger infra.Logger) (*Transport, error) {
	if cfg == nil {
		return nil, errors.New("transport: config is required")
	}
	switch cfg.QueueDriver {
	case DriverAMQP:
		broker, err := amqpqueue.Dial(cfg.AMQPURL, cfg.QueueName, logger)
		if err != nil {
			return nil, err
		}
		return &Transport{
			Driver:    DriverAMQP,
			Publisher: broker.Publisher(),
			source: func() (queue.Source, error) {
				return broker.Source(cfg.QueuePrefetch), nil
			},
			close: broker.Close,
		}, nil
	case DriverPostgres:
		if sql == nil {
			return nil, errors.New("transport: postgres driver needs a sql executor")
		}
		return &Transport{
			Driver:    DriverPostgres,
			Publisher: pgqueue.NewPublisher(sql),
			source: func() (queue.Source, error) {
				listener, err := pgqueue.NewListener(cfg.DatabaseURL, logger)
				if err != nil {
					logger.Warn().Err(err).Msg("transport: listen failed, falling back to polling")
				}
				opts := pgqueue.Options{
					SQL:      sql,
					Prefetch: cfg.QueuePrefetch,
					Lease:    cfg.QueueLease,
					Poll:     cfg.QueuePoll,
					Logger:   logger,
				}
				if listener != nil {
					opts.Listener = listener
				}
				return pgqueue.NewSource(opts)
			},
			close: func() error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("transport: unknown queue driver %q", cfg.QueueDriver)
	}
}

// Source returns the consumer side of the transport.
func (t *Transport) Source() (queue.Source, error) {
	return t.source()
}

func (t *Transport) Close() error {
	return t.close()
}
