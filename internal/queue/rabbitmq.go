package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	// BoundaryQueueName holds every pending period boundary job
	BoundaryQueueName = "questlog.boundaries"
	// DeadLetterQueueName holds boundary jobs that failed permanently
	DeadLetterQueueName = "questlog.boundaries.dead"
	// ExchangeName routes boundary jobs by period
	ExchangeName = "questlog.jobs"
	// DelayedExchangeName holds jobs until their boundary (requires the delayed message plugin)
	DelayedExchangeName = "questlog.jobs.delayed"

	// boundaryKeyPattern matches the routing key of every boundary period
	boundaryKeyPattern = "boundary.*"
	deadLetterKey      = "boundary.dead"
	consumerTag        = "questlog-boundary-worker"

	// maxPurgeBatch bounds one DLQ purge pass
	maxPurgeBatch = 1000
)

// RoutingKey is the key a job is published with, e.g. boundary.weekly
func RoutingKey(t JobType) string {
	return "boundary." + t.Period()
}

// RabbitMQQueue implements JobQueue using RabbitMQ
type RabbitMQQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	// delayed is false when the broker has no delayed message plugin; early jobs
	// are then requeued by the consumer until they are due
	delayed bool
	logger  *zap.Logger
}

var (
	_ JobQueue  = (*RabbitMQQueue)(nil)
	_ DLQPurger = (*RabbitMQQueue)(nil)
)

// NewRabbitMQQueue connects to the broker and declares the boundary topology
func NewRabbitMQQueue(amqpURL string, logger *zap.Logger) (*RabbitMQQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &RabbitMQQueue{conn: conn, channel: ch, logger: logger}
	if err := q.setup(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup queues: %w", err)
	}
	return q, nil
}

type queueBinding struct {
	queue    string
	key      string
	exchange string
}

// setup declares the exchanges, the boundary queue and its dead letter queue
func (q *RabbitMQQueue) setup() error {
	q.delayed = q.declareDelayedExchange()

	if err := q.channel.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := q.channel.QueueDeclare(DeadLetterQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}
	_, err := q.channel.QueueDeclare(BoundaryQueueName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    ExchangeName,
		"x-dead-letter-routing-key": deadLetterKey,
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	bindings := []queueBinding{
		{queue: DeadLetterQueueName, key: deadLetterKey, exchange: ExchangeName},
		{queue: BoundaryQueueName, key: boundaryKeyPattern, exchange: ExchangeName},
	}
	if q.delayed {
		bindings = append(bindings, queueBinding{queue: BoundaryQueueName, key: boundaryKeyPattern, exchange: DelayedExchangeName})
	}
	for _, b := range bindings {
		if err := q.channel.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// declareDelayedExchange reports whether the delayed exchange could be declared.
// A failed declaration closes the channel, so it is reopened before returning.
func (q *RabbitMQQueue) declareDelayedExchange() bool {
	err := q.channel.ExchangeDeclare(DelayedExchangeName, "x-delayed-message", true, false, false, false,
		amqp.Table{"x-delayed-type": "topic"})
	if err == nil {
		return true
	}
	q.logger.Warn("delayed_exchange_unavailable", zap.Error(err))
	if q.channel.IsClosed() {
		ch, openErr := q.conn.Channel()
		if openErr != nil {
			q.logger.Error("failed_to_reopen_channel", zap.Error(openErr))
			return false
		}
		q.channel = ch
	}
	return false
}

// publishing builds the AMQP message for a job and picks the exchange it goes to
func (q *RabbitMQQueue) publishing(job *Job, now time.Time) (amqp.Publishing, string, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, "", fmt.Errorf("failed to marshal job: %w", err)
	}

	p := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Timestamp:    job.CreatedAt,
		Type:         string(job.Type),
	}

	// The broker drops the message once the grace window has passed
	if job.NotAfter != nil {
		if ttl := job.NotAfter.Sub(now); ttl > 0 {
			p.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
		}
	}

	exchange := ExchangeName
	if job.NotBefore != nil && q.delayed {
		if delay := job.NotBefore.Sub(now); delay > 0 {
			exchange = DelayedExchangeName
			p.Headers = amqp.Table{"x-delay": delay.Milliseconds()}
			// Expiration counts from publish, so it must cover the delay as well
			if job.NotAfter != nil {
				p.Expiration = strconv.FormatInt(job.NotAfter.Sub(now).Milliseconds(), 10)
			}
		}
	}
	return p, exchange, nil
}

// Enqueue publishes a job routed by its boundary period
func (q *RabbitMQQueue) Enqueue(ctx context.Context, job *Job) error {
	p, exchange, err := q.publishing(job, time.Now())
	if err != nil {
		return err
	}
	if err := q.channel.PublishWithContext(ctx, exchange, RoutingKey(job.Type), false, false, p); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// Consume delivers due boundary jobs. Expired jobs are dead-lettered and early
// jobs are requeued. Up to prefetchCount jobs are held unacknowledged at once.
func (q *RabbitMQQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error) {
	consumeCh, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}
	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := consumeCh.Consume(BoundaryQueueName, consumerTag, false, false, false, false, nil)
	if err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	msgChan := make(chan *Message, prefetchCount)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)
		defer func() {
			_ = consumeCh.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					errChan <- errors.New("delivery channel closed")
					return
				}
				msg, err := q.accept(delivery, consumeCh)
				if err != nil {
					select {
					case errChan <- err:
					default:
						q.logger.Warn("dropped_consumer_error", zap.Error(err))
					}
					continue
				}
				if msg == nil {
					continue
				}
				select {
				case <-ctx.Done():
					_ = delivery.Nack(false, true)
					return
				case msgChan <- msg:
				}
			}
		}
	}()

	return msgChan, errChan, nil
}

// accept decodes a delivery and returns the message to process, or nil when the
// delivery was settled here
func (q *RabbitMQQueue) accept(delivery amqp.Delivery, ch *amqp.Channel) (*Message, error) {
	var job Job
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		_ = delivery.Nack(false, false)
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	// A boundary job past its window is superseded by the next one
	if job.IsExpired() {
		q.logger.Warn("job_expired",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
			zap.Time("boundary", job.Boundary))
		_ = delivery.Nack(false, false)
		return nil, nil
	}
	if !job.ShouldProcess() {
		_ = delivery.Nack(false, true)
		return nil, nil
	}

	return &Message{Job: &job, DeliveryTag: delivery.DeliveryTag, Channel: ch}, nil
}

// HealthCheck verifies the broker connection is still open
func (q *RabbitMQQueue) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.conn == nil || q.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	if q.channel == nil || q.channel.IsClosed() {
		return errors.New("rabbitmq channel is closed")
	}
	return nil
}

// PurgeOlderThan drops dead-lettered jobs published before now-retention.
// The DLQ is read in publish order, so the first young message ends the pass.
func (q *RabbitMQQueue) PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	purged := 0
	for purged < maxPurgeBatch {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		msg, ok, err := q.channel.Get(DeadLetterQueueName, false)
		if err != nil {
			return purged, fmt.Errorf("failed to read DLQ: %w", err)
		}
		if !ok {
			return purged, nil
		}
		if !msg.Timestamp.IsZero() && msg.Timestamp.After(cutoff) {
			if err := msg.Nack(false, true); err != nil {
				return purged, fmt.Errorf("failed to requeue DLQ message: %w", err)
			}
			return purged, nil
		}
		if err := msg.Ack(false); err != nil {
			return purged, fmt.Errorf("failed to drop DLQ message: %w", err)
		}
		purged++
	}
	return purged, nil
}

// Close closes the channel and the connection
func (q *RabbitMQQueue) Close() error {
	var errs []error
	if q.channel != nil {
		errs = append(errs, q.channel.Close())
	}
	if q.conn != nil {
		errs = append(errs, q.conn.Close())
	}
	return errors.Join(errs...)
}
