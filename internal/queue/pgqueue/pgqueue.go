// Package pgqueue implements the job queue on a Postgres table. Messages are
// leased with skip locked claims, deleted on ack and dead-lettered on reject.
// A lapsed lease makes a message claimable again, which gives at-least-once
// delivery when a worker dies mid-job.
package pgqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"storyteller/internal/infra"
	"storyteller/internal/queue"
	"storyteller/internal/sqlinline"
)

// NotifyChannel is the LISTEN/NOTIFY channel raised by every enqueue.
const NotifyChannel = "story_jobs"

const (
	defaultLease = 15 * time.Minute
	defaultPoll  = 2 * time.Second
)

// Listener is the subset of *pq.Listener used for wakeups.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

// NewListener opens a dedicated notification connection and subscribes to
// NotifyChannel.
func NewListener(dsn string, logger infra.Logger) (*pq.Listener, error) {
	log := infra.Component(logger, "pgqueue")
	l := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Int("event", int(ev)).Msg("pgqueue: listener event")
		}
	})
	if err := l.Listen(NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("pgqueue: listen: %w", err)
	}
	return l, nil
}

type Options struct {
	SQL      infra.SQLExecutor
	Listener Listener // optional; without it the source only polls
	Prefetch int
	Lease    time.Duration
	Poll     time.Duration
	Logger   infra.Logger
}

// Source claims messages while fewer than Prefetch are unsettled.
type Source struct {
	sql      infra.SQLExecutor
	listener Listener
	prefetch int
	lease    time.Duration
	poll     time.Duration
	logger   infra.Logger
	slots    chan struct{}
}

func NewSource(opts Options) (*Source, error) {
	if opts.SQL == nil {
		return nil, errors.New("pgqueue: sql executor is required")
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = queue.DefaultPrefetch
	}
	if opts.Lease <= 0 {
		opts.Lease = defaultLease
	}
	if opts.Poll <= 0 {
		opts.Poll = defaultPoll
	}
	return &Source{
		sql:      opts.SQL,
		listener: opts.Listener,
		prefetch: opts.Prefetch,
		lease:    opts.Lease,
		poll:     opts.Poll,
		logger:   infra.Component(opts.Logger, "pgqueue"),
		slots:    make(chan struct{}, opts.Prefetch),
	}, nil
}

func (s *Source) Deliveries(ctx context.Context) (<-chan queue.Delivery, error) {
	out := make(chan queue.Delivery)
	go s.loop(ctx, out)
	return out, nil
}

func (s *Source) loop(ctx context.Context, out chan<- queue.Delivery) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case s.slots <- struct{}{}:
		}

		d, err := s.claim(ctx)
		if err != nil || d == nil {
			<-s.slots
			if err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("pgqueue: claim failed")
			}
			if !s.wait(ctx) {
				return
			}
			continue
		}

		select {
		case out <- d:
		case <-ctx.Done():
			// The lease runs out and another worker picks the message up.
			d.release()
			return
		}
	}
}

// wait blocks until a notification, the poll interval or cancellation.
func (s *Source) wait(ctx context.Context) bool {
	var notify <-chan *pq.Notification
	if s.listener != nil {
		notify = s.listener.NotificationChannel()
	}
	timer := time.NewTimer(s.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-notify:
	case <-timer.C:
	}
	return true
}

func (s *Source) claim(ctx context.Context) (*delivery, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QClaimQueueMessage, s.lease.Seconds())
	d := &delivery{source: s}
	if err := row.Scan(&d.id, &d.messageID, &d.body, &d.leaseToken); err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func (s *Source) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

type delivery struct {
	source     *Source
	id         int64
	messageID  string
	body       []byte
	leaseToken string
	once       sync.Once
}

func (d *delivery) Body() []byte      { return d.body }
func (d *delivery) MessageID() string { return d.messageID }

// Ack deletes the message.
func (d *delivery) Ack() error {
	return d.settle(sqlinline.QAckQueueMessage)
}

// Reject moves the message to the dead state; it is never claimed again.
func (d *delivery) Reject() error {
	return d.settle(sqlinline.QRejectQueueMessage)
}

func (d *delivery) settle(query string) error {
	defer d.release()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tag, err := d.source.sql.Exec(ctx, query, d.id, d.leaseToken)
	if err != nil {
		return fmt.Errorf("pgqueue: settle message %d: %w", d.id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pgqueue: lease on message %d expired", d.id)
	}
	return nil
}

func (d *delivery) release() {
	d.once.Do(func() { <-d.source.slots })
}

// Publisher inserts envelopes and raises NotifyChannel in the same statement.
type Publisher struct {
	sql infra.SQLExecutor
}

func NewPublisher(sql infra.SQLExecutor) *Publisher {
	return &Publisher{sql: sql}
}

func (p *Publisher) Publish(ctx context.Context, storyID string) error {
	body, err := queue.EncodeEnvelope(storyID)
	if err != nil {
		return err
	}
	if _, err := p.sql.Exec(ctx, sqlinline.QEnqueueStory, uuid.NewString(), storyID, body); err != nil {
		return fmt.Errorf("pgqueue: enqueue %s: %w", storyID, err)
	}
	return nil
}
