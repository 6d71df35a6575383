// Package main provides the netlogd daemon entrypoint.
//
// netlogd hosts a long-lived Observer attached to an event bus, serves its
// stats and Prometheus metrics over HTTP, and fires a best-effort
// completion notification to configured sinks when the run stops.
//
// Usage:
//
//	netlogd -config netlog.yaml [options]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/netlog/cli/config"
	"github.com/pithecene-io/netlog/eventbus"
	"github.com/pithecene-io/netlog/jsonenc"
	"github.com/pithecene-io/netlog/log"
	"github.com/pithecene-io/netlog/metrics"
	"github.com/pithecene-io/netlog/notify"
	"github.com/pithecene-io/netlog/notify/redis"
	"github.com/pithecene-io/netlog/notify/s3"
	"github.com/pithecene-io/netlog/notify/webhook"
	"github.com/pithecene-io/netlog/observer"
	"github.com/pithecene-io/netlog/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

// pollInterval is how often the daemon samples Observer.Stats to update
// its Prometheus collector.
const pollInterval = 2 * time.Second

func main() {
	app := &cli.App{
		Name:    "netlogd",
		Usage:   "Event-log observer daemon",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to netlog.yaml", Value: "netlog.yaml"},
			&cli.StringFlag{Name: "final-log-path", Usage: "Overrides final_log_path from config"},
			&cli.Int64Flag{Name: "max-total-size", Usage: "Overrides max_total_size from config"},
			&cli.IntFlag{Name: "chunk-count", Usage: "Overrides chunk_count from config"},
			&cli.IntFlag{Name: "flush-threshold", Usage: "Overrides flush_threshold from config"},
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address for /stats and /metrics", Value: ":9090"},
		},
		Action: runDaemon,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "netlogd: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(c *cli.Context) error {
	logger := log.NewLogger("netlogd")

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(c, cfg)

	maxTotalSize := observer.Unbounded
	if cfg.MaxTotalSize > 0 {
		maxTotalSize = cfg.MaxTotalSize
	}

	bus := eventbus.New()
	obs := observer.New(observer.Config{
		FinalLogPath:   cfg.FinalLogPath,
		MaxTotalSize:   maxTotalSize,
		ChunkCount:     cfg.ChunkCount,
		FlushThreshold: cfg.FlushThreshold,
		Encoder:        jsonenc.Encoder,
		Logger:         logger,
	})

	if err := obs.StartObserving(bus, types.CaptureModeDefault); err != nil {
		return fmt.Errorf("start observing: %w", err)
	}

	fanout, err := buildFanout(c.Context, cfg.Notify)
	if err != nil {
		obs.Close()
		return fmt.Errorf("build notifiers: %w", err)
	}

	collector := metrics.NewCollector(runID())
	srv := newStatsServer(c.String("addr"), obs, collector)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("stats server failed", map[string]any{"err": err.Error()})
		}
	}()

	stopPolling := pollMetrics(obs, collector)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down", nil)
	close(stopPolling)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = srv.Shutdown(shutdownCtx)
	cancel()

	obs.StopObserving(nil, func() {})
	obs.Close()
	finalStats := obs.Stats()

	notifyCompletion(fanout, cfg.FinalLogPath, finalStats, logger)
	_ = fanout.Close()

	return nil
}

func applyFlagOverrides(c *cli.Context, cfg *config.Config) {
	if v := c.String("final-log-path"); v != "" {
		cfg.FinalLogPath = v
	}
	if v := c.Int64("max-total-size"); v != 0 {
		cfg.MaxTotalSize = v
	}
	if v := c.Int("chunk-count"); v != 0 {
		cfg.ChunkCount = v
	}
	if v := c.Int("flush-threshold"); v != 0 {
		cfg.FlushThreshold = v
	}
}

func buildFanout(ctx context.Context, cfg config.NotifyConfig) (notify.Fanout, error) {
	var fanout notify.Fanout

	if cfg.Webhook.URL != "" {
		n, err := webhook.New(webhook.Config{
			URL:     cfg.Webhook.URL,
			Headers: cfg.Webhook.Headers,
			Timeout: cfg.Webhook.Timeout.Duration,
			Retries: retriesOrDefault(cfg.Webhook.Retries, webhook.DefaultRetries),
		})
		if err != nil {
			return nil, fmt.Errorf("webhook notifier: %w", err)
		}
		fanout = append(fanout, n)
	}

	if cfg.Redis.URL != "" {
		n, err := redis.New(redis.Config{
			URL:     cfg.Redis.URL,
			Channel: cfg.Redis.Channel,
			Timeout: cfg.Redis.Timeout.Duration,
			Retries: retriesOrDefault(cfg.Redis.Retries, redis.DefaultRetries),
		})
		if err != nil {
			return nil, fmt.Errorf("redis notifier: %w", err)
		}
		fanout = append(fanout, n)
	}

	if cfg.S3.Bucket != "" {
		n, err := s3.New(ctx, s3.Config{
			Bucket:       cfg.S3.Bucket,
			Prefix:       cfg.S3.Prefix,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
			Gzip:         cfg.S3.Gzip,
			Timeout:      cfg.S3.Timeout.Duration,
			Retries:      retriesOrDefault(cfg.S3.Retries, s3.DefaultRetries),
		})
		if err != nil {
			return nil, fmt.Errorf("s3 notifier: %w", err)
		}
		fanout = append(fanout, n)
	}

	return fanout, nil
}

func retriesOrDefault(retries *int, def int) int {
	if retries == nil {
		return def
	}
	return *retries
}

func newStatsServer(addr string, obs *observer.Observer, collector *metrics.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(obs.Stats())
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func pollMetrics(obs *observer.Observer, collector *metrics.Collector) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		var prev observer.Stats
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s := obs.Stats()
				collector.Observe(metrics.Stats(s), metrics.Stats(prev))
				prev = s
			}
		}
	}()
	return stop
}

func notifyCompletion(fanout notify.Fanout, finalLogPath string, stats observer.Stats, logger *log.Logger) {
	if len(fanout) == 0 {
		return
	}

	event := &notify.CompletionEvent{
		FinalLogPath: finalLogPath,
		Bytes:        stats.BytesWritten,
		EventCount:   stats.EventsWritten,
		DroppedCount: stats.QueueDropped,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := fanout.Notify(ctx, event); err != nil {
		logger.Warn("completion notify failed", map[string]any{"err": err.Error()})
	}
}

func runID() string {
	if id := os.Getenv("NETLOG_RUN_ID"); id != "" {
		return id
	}
	return uuid.NewString()
}
