package usecases

import (
	"context"
	"time"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// RepositoryPusher runs one background push cycle for a repository.
type RepositoryPusher interface {
	PushRepository(ctx context.Context, host domain.DocumentHost, repo domain.RepositoryHandle) error
}

// WorkQueue is the consumer's view of the push queue.
type WorkQueue interface {
	TryDequeue() (domain.RepositoryHandle, bool)
	Ready() <-chan struct{}
}

// Consumer drains the push queue on a single goroutine. Each entry is processed
// exactly once; failures are logged and notified but never re-queued, since the
// next save of that repository queues it again.
type Consumer struct {
	queue    WorkQueue
	pusher   RepositoryPusher
	host     domain.DocumentHost
	notifier domain.Notifier
	logger   Logger
	interval time.Duration
}

// NewConsumer creates a Consumer. A non-positive interval selects
// domain.DefaultPollInterval.
func NewConsumer(
	queue WorkQueue,
	pusher RepositoryPusher,
	host domain.DocumentHost,
	notifier domain.Notifier,
	log Logger,
	interval time.Duration,
) *Consumer {
	if interval <= 0 {
		interval = domain.DefaultPollInterval
	}
	return &Consumer{
		queue:    queue,
		pusher:   pusher,
		host:     host,
		notifier: notifier,
		logger:   log,
		interval: interval,
	}
}

// Run processes entries until ctx is cancelled. When the queue is empty it waits
// for the poll interval or a ready signal, whichever comes first.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info(ctx, "start push consumer", map[string]interface{}{
		"poll_interval": c.interval.String(),
	})

	timer := time.NewTimer(c.interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			c.logger.Info(ctx, "stop push consumer", nil)
			return ctx.Err()
		}

		if repo, ok := c.queue.TryDequeue(); ok {
			c.process(ctx, repo)
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.interval)

		select {
		case <-ctx.Done():
		case <-c.queue.Ready():
		case <-timer.C:
		}
	}
}

// Drain processes every pending entry and returns the number processed.
func (c *Consumer) Drain(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		repo, ok := c.queue.TryDequeue()
		if !ok {
			break
		}
		c.process(ctx, repo)
		n++
	}
	return n
}

func (c *Consumer) process(ctx context.Context, repo domain.RepositoryHandle) {
	fields := map[string]interface{}{"repository": repo.Path}
	c.logger.Info(ctx, "new item in push queue", fields)

	_ = Guard(ctx, c.logger, c.notifier, "push", fields, func() error {
		return c.pusher.PushRepository(ctx, c.host, repo)
	})
}
