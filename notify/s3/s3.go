// Package s3 implements a notify.Notifier that uploads the finished log
// file to an S3-compatible bucket, optionally gzip-compressed, once a run
// completes.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/klauspost/compress/gzip"

	"github.com/pithecene-io/netlog/notify"
	"github.com/pithecene-io/netlog/notify/backoff"
)

// DefaultTimeout is the default per-upload timeout.
const DefaultTimeout = 30 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 2

// Config configures the S3 completion notifier.
type Config struct {
	// Bucket is the destination S3 bucket (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses the default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing, required by most
	// S3-compatible providers.
	UsePathStyle bool
	// Gzip compresses the uploaded object when true.
	Gzip bool
	// Timeout is the per-upload timeout (default 30s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure (default 2).
	Retries int
	// BackoffBase is the delay ceiling before the first retry (default
	// backoff.DefaultBase).
	BackoffBase time.Duration
	// BackoffMax caps the delay ceiling regardless of attempt count
	// (default backoff.DefaultMax).
	BackoffMax time.Duration
}

// Validate checks that required S3 configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 notifier: bucket is required")
	}
	return nil
}

// Notifier uploads the finished log file named by a CompletionEvent's
// FinalLogPath to S3.
type Notifier struct {
	config Config
	client *s3.Client
}

// New creates an S3 notifier from the given config, loading AWS credentials
// from the default chain (env vars, shared config, IAM role).
func New(ctx context.Context, cfg Config) (*Notifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 notifier: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	return &Notifier{
		config: cfg,
		client: s3.NewFromConfig(awsConfig, s3Opts...),
	}, nil
}

// Notify uploads the file at event.FinalLogPath to the configured bucket,
// retrying transient failures with exponential backoff.
func (n *Notifier) Notify(ctx context.Context, event *notify.CompletionEvent) error {
	body, contentType, err := n.readBody(event.FinalLogPath)
	if err != nil {
		return fmt.Errorf("s3 notifier: read log file: %w", err)
	}

	key := n.objectKey(event.FinalLogPath)

	var lastErr error
	attempts := 1 + n.config.Retries
	policy := backoff.New(n.config.BackoffBase, n.config.BackoffMax)

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("s3 notifier: context canceled: %w", err)
		}

		if i > 0 {
			if err := policy.Wait(ctx, i); err != nil {
				return fmt.Errorf("s3 notifier: context canceled during backoff: %w", err)
			}
		}

		uploadCtx, cancel := context.WithTimeout(ctx, n.config.Timeout)
		_, lastErr = n.client.PutObject(uploadCtx, &s3.PutObjectInput{
			Bucket:      aws.String(n.config.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
		})
		cancel()

		if lastErr == nil {
			return nil
		}
		if !retriable(lastErr) {
			return fmt.Errorf("s3 notifier: non-retriable error: %w", lastErr)
		}
	}

	return fmt.Errorf("s3 notifier: upload failed after %d attempts: %w", attempts, lastErr)
}

// retriable reports whether err is worth another attempt. A response error
// carrying an HTTP status is retried only on 429/5xx, matching the
// webhook notifier's 4xx-is-terminal rule; a client-side API error (bad
// bucket name, access denied) is never retriable regardless of transport
// status. Anything else (network errors, timeouts) is retried.
func retriable(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return false
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		return code == http.StatusTooManyRequests || code >= 500
	}

	return true
}

func (n *Notifier) readBody(logPath string) (body []byte, contentType string, err error) {
	raw, err := os.ReadFile(logPath)
	if err != nil {
		return nil, "", err
	}

	if !n.config.Gzip {
		return raw, "application/json", nil
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, "", fmt.Errorf("gzip: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, "", fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), "application/gzip", nil
}

func (n *Notifier) objectKey(logPath string) string {
	name := path.Base(logPath)
	if n.config.Gzip && !strings.HasSuffix(name, ".gz") {
		name += ".gz"
	}
	if n.config.Prefix == "" {
		return name
	}
	return path.Join(n.config.Prefix, name)
}

// Close releases notifier resources. The S3 client holds no long-lived
// connections that require explicit cleanup.
func (n *Notifier) Close() error {
	return nil
}

var _ notify.Notifier = (*Notifier)(nil)
