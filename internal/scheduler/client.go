package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"outreach_backend/internal/outreach"
	"outreach_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// defaultUniqueTTL bounds how long a queued cycle blocks another enqueue.
const defaultUniqueTTL = 15 * time.Minute

type Client struct {
	client    *asynq.Client
	queue     string
	uniqueTTL time.Duration
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client:    asynq.NewClient(opt),
		queue:     queueName(cfg),
		uniqueTTL: uniqueTTL(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueCycle queues one outreach cycle. A cycle that is already queued
// yields outreach.ErrCycleInProgress.
func (c *Client) EnqueueCycle(ctx context.Context, trigger string) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("scheduler client not configured")
	}

	task, err := NewCycleTask(CyclePayload{Trigger: trigger, RequestedAt: time.Now().UTC()})
	if err != nil {
		return "", err
	}

	info, err := c.client.EnqueueContext(ctx, task, cycleTaskOptions(c.queue, c.uniqueTTL)...)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return "", outreach.ErrCycleInProgress
	}
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func cycleTaskOptions(queue string, ttl time.Duration) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(queue),
		asynq.Unique(ttl),
		asynq.MaxRetry(0),
		asynq.Timeout(ttl),
	}
}

func queueName(cfg config.SchedulerConfig) string {
	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	return queue
}

func uniqueTTL(cfg config.SchedulerConfig) time.Duration {
	if ttl := cfg.GetCycleLockTTL(); ttl > 0 {
		return ttl
	}
	return defaultUniqueTTL
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redisOptions(redisURL, tlsInsecure)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

func redisOptions(redisURL string, tlsInsecure bool) (*redis.Options, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		opt.TLSConfig = clone
	} else if tlsInsecure {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return opt, nil
}
