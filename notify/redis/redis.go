// Package redis implements a notify.Notifier that publishes the completion
// event as JSON to a Redis pub/sub channel, retrying connection failures
// with exponential backoff.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/netlog/notify"
	"github.com/pithecene-io/netlog/notify/backoff"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "netlog:run_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis pub/sub notifier.
type Config struct {
	// URL is the Redis connection URL (required). Format:
	// redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default DefaultChannel).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 3).
	Retries int
	// BackoffBase is the delay ceiling before the first retry (default
	// backoff.DefaultBase).
	BackoffBase time.Duration
	// BackoffMax caps the delay ceiling regardless of attempt count
	// (default backoff.DefaultMax).
	BackoffMax time.Duration
}

// Notifier publishes completion events via Redis PUBLISH.
type Notifier struct {
	config  Config
	client  *goredis.Client
	backoff backoff.Policy
}

// New creates a Redis pub/sub notifier from the given config.
func New(cfg Config) (*Notifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis notifier requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis notifier: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	return &Notifier{
		config:  cfg,
		client:  goredis.NewClient(opts),
		backoff: backoff.New(cfg.BackoffBase, cfg.BackoffMax),
	}, nil
}

// isNonRetriableAuthError reports whether err is a Redis auth/permission
// failure: retrying PUBLISH with the same credentials against the same
// ACL would fail identically every time, so these skip the retry loop
// rather than burning the full attempt budget on a guaranteed failure.
func isNonRetriableAuthError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "NOAUTH") ||
		strings.Contains(msg, "WRONGPASS") ||
		strings.Contains(msg, "NOPERM")
}

// Notify publishes event as JSON to the configured channel, retrying with
// exponential backoff on failure.
func (n *Notifier) Notify(ctx context.Context, event *notify.CompletionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	var lastErr error
	attempts := 1 + n.config.Retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: context canceled: %w", err)
		}

		if i > 0 {
			if err := n.backoff.Wait(ctx, i); err != nil {
				return fmt.Errorf("redis: context canceled during backoff: %w", err)
			}
		}

		publishCtx, cancel := context.WithTimeout(ctx, n.config.Timeout)
		lastErr = n.client.Publish(publishCtx, n.config.Channel, body).Err()
		cancel()

		if lastErr == nil {
			return nil
		}
		if isNonRetriableAuthError(lastErr) {
			return fmt.Errorf("redis: non-retriable error: %w", lastErr)
		}
	}

	return fmt.Errorf("redis: failed after %d attempts: %w", attempts, lastErr)
}

// Close releases notifier resources.
func (n *Notifier) Close() error {
	return n.client.Close()
}

var _ notify.Notifier = (*Notifier)(nil)
