// Package queue schedules wallet refreshes through Redis. Workers pop
// addresses ordered by priority score; crashed workers leave an in-flight
// marker that a janitor pass requeues after a timeout.
package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/wnt/copytrail/internal/logger"
	"github.com/wnt/copytrail/internal/metrics"
)

const (
	refreshQueueKey = "copytrail:refresh_queue"
	inflightKey     = "copytrail:inflight"
	forceSetKey     = "copytrail:force_refresh"
)

// Client wraps the Redis operations behind the wallet refresh queue.
type Client struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewClient connects to Redis and verifies the connection.
func NewClient(redisURL string, baseLogger zerolog.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	baseLogger.Info().Msg("Connected to Redis successfully")

	return &Client{
		client: client,
		logger: logger.WithComponent(baseLogger, "queue"),
	}, nil
}

// PushWallet schedules a wallet refresh with the given priority (lower score
// pops first). forceRefresh makes the eventual sync ignore the stored cursor.
func (c *Client) PushWallet(ctx context.Context, addr string, priority float64, forceRefresh bool) error {
	if err := c.client.ZAdd(ctx, refreshQueueKey, redis.Z{
		Score:  priority,
		Member: addr,
	}).Err(); err != nil {
		return fmt.Errorf("failed to push wallet to queue: %w", err)
	}
	if forceRefresh {
		if err := c.client.SAdd(ctx, forceSetKey, addr).Err(); err != nil {
			return fmt.Errorf("failed to mark wallet for forced refresh: %w", err)
		}
	}

	c.logger.Debug().
		Str("wallet", addr).
		Float64("priority", priority).
		Bool("force", forceRefresh).
		Msg("Pushed wallet to refresh queue")
	return nil
}

// PopWallet removes and returns the highest-priority wallet, along with its
// forced-refresh flag. Returns an empty address when the queue is empty.
func (c *Client) PopWallet(ctx context.Context) (string, bool, error) {
	result, err := c.client.ZPopMin(ctx, refreshQueueKey, 1).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to pop wallet from queue: %w", err)
	}
	if len(result) == 0 {
		return "", false, nil
	}

	addr := result[0].Member.(string)
	force, err := c.client.SRem(ctx, forceSetKey, addr).Result()
	if err != nil && err != redis.Nil {
		return "", false, fmt.Errorf("failed to consume forced-refresh flag: %w", err)
	}

	c.logger.Debug().Str("wallet", addr).Msg("Popped wallet from refresh queue")
	return addr, force > 0, nil
}

// SetInFlight marks a wallet as being refreshed by a worker.
func (c *Client) SetInFlight(ctx context.Context, addr, worker string) error {
	value := fmt.Sprintf("%s,%d", worker, time.Now().Unix())
	if err := c.client.HSet(ctx, inflightKey, addr, value).Err(); err != nil {
		return fmt.Errorf("failed to set wallet in-flight: %w", err)
	}
	return nil
}

// RemoveInFlight clears the in-flight marker for a wallet.
func (c *Client) RemoveInFlight(ctx context.Context, addr string) error {
	if err := c.client.HDel(ctx, inflightKey, addr).Err(); err != nil {
		return fmt.Errorf("failed to remove wallet from in-flight: %w", err)
	}
	return nil
}

// QueueLength returns how many wallets are waiting and updates the gauge.
func (c *Client) QueueLength(ctx context.Context) (int64, error) {
	length, err := c.client.ZCard(ctx, refreshQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	metrics.WalletQueueLength.Set(float64(length))
	return length, nil
}

// InFlightWallets returns all wallets currently being refreshed, keyed by
// address with "worker,startUnix" values.
func (c *Client) InFlightWallets(ctx context.Context) (map[string]string, error) {
	result, err := c.client.HGetAll(ctx, inflightKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get in-flight wallets: %w", err)
	}
	return result, nil
}

// RequeueStuckWallets moves wallets whose refresh started more than timeout
// ago back onto the queue at top priority.
func (c *Client) RequeueStuckWallets(ctx context.Context, timeout time.Duration) error {
	inflight, err := c.InFlightWallets(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-timeout).Unix()
	requeued := 0

	for addr, value := range inflight {
		worker, startedAt, ok := parseInFlight(value)
		if !ok {
			c.logger.Warn().Str("wallet", addr).Str("value", value).Msg("Invalid in-flight value format")
			continue
		}
		if startedAt >= cutoff {
			continue
		}

		if err := c.PushWallet(ctx, addr, 0, false); err != nil {
			c.logger.Error().Err(err).Str("wallet", addr).Msg("Failed to requeue stuck wallet")
			continue
		}
		if err := c.RemoveInFlight(ctx, addr); err != nil {
			c.logger.Error().Err(err).Str("wallet", addr).Msg("Failed to clear stuck in-flight marker")
		}

		requeued++
		c.logger.Info().
			Str("wallet", addr).
			Str("worker", worker).
			Int64("stuck_seconds", time.Now().Unix()-startedAt).
			Msg("Requeued stuck wallet")
	}

	if requeued > 0 {
		c.logger.Info().Int("count", requeued).Msg("Requeued stuck wallets")
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// parseInFlight splits the "worker,startUnix" marker value.
func parseInFlight(value string) (worker string, startedAt int64, ok bool) {
	worker, raw, found := strings.Cut(value, ",")
	if !found {
		return "", 0, false
	}
	startedAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, false
	}
	return worker, startedAt, true
}
