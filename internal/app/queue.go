package app

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/questlog/internal/queue"
	"go.uber.org/zap"
)

const (
	queueConnectAttempts = 10
	queueInitialDelay    = 2 * time.Second
	queueMaxDelay        = 30 * time.Second
)

// ConnectQueue dials RabbitMQ, retrying with exponential backoff to ride out broker startup delays
func ConnectQueue(ctx context.Context, url string, logger *zap.Logger) (*queue.RabbitMQQueue, error) {
	var lastErr error
	for attempt := 0; attempt < queueConnectAttempts; attempt++ {
		jobQueue, err := queue.NewRabbitMQQueue(url, logger)
		if err == nil {
			logger.Info("connected_to_rabbitmq")
			return jobQueue, nil
		}
		lastErr = err

		delay := queueInitialDelay * time.Duration(1<<uint(attempt))
		if delay > queueMaxDelay {
			delay = queueMaxDelay
		}
		logger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", queueConnectAttempts),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", queueConnectAttempts, lastErr)
}
