package catchup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/quartzite-io/quartzite-go/internal/core/domain"
	"github.com/quartzite-io/quartzite-go/internal/telemetry/logger"
	"github.com/quartzite-io/quartzite-go/internal/telemetry/metric"
	"github.com/quartzite-io/quartzite-go/internal/transport"
)

const (
	// DefaultChunkSize is the per-read transfer unit.
	DefaultChunkSize int32 = 64 << 10

	// DefaultMaxAttempts bounds the pull attempts per file.
	DefaultMaxAttempts = 5

	// DefaultRetryBackoff is the wait between failed attempts.
	DefaultRetryBackoff = 5 * time.Second
)

// FileFetcher pulls one remote file (and its modification file, when
// declared) into local temp storage and returns the local path of the data
// file. The modification file, if any, sits beside it with the usual suffix.
type FileFetcher interface {
	Fetch(ctx context.Context, res *domain.FileResource) (localPath string, err error)
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// TempDir is the root of the pull staging area. Files land under
	// "<TempDir>/<sourceNode>/<storageGroup>/<partition>/<fileName>" so
	// concurrent pulls from different owners cannot collide.
	TempDir string

	// Reader is the remote read-file capability.
	Reader transport.FileReader

	// ChunkSize is the per-read transfer unit (default 64 KiB).
	ChunkSize int32

	// MaxAttempts bounds the pull attempts per file (default 5).
	MaxAttempts int

	// RetryBackoff is the wait between failed attempts (default 5s).
	RetryBackoff time.Duration

	// BytesPerSecond caps the aggregate pull bandwidth. Zero means no cap.
	BytesPerSecond int

	// Metrics receives pull counters; nil creates a private registry.
	Metrics *metric.Registry

	// Logger is the structured logger.
	Logger *slog.Logger
}

// Fetcher downloads remote files in fixed-size chunks with bounded retries.
// Cancellation during a transfer or a retry backoff aborts immediately and
// surfaces as the context error, never as a FetchError.
type Fetcher struct {
	cfg     FetcherConfig
	limiter *rate.Limiter
	metrics *metric.Registry
	logger  *slog.Logger
}

// NewFetcher creates a fetcher over the given remote read capability.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metric.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.BytesPerSecond > 0 {
		burst := cfg.BytesPerSecond
		if burst < int(cfg.ChunkSize) {
			burst = int(cfg.ChunkSize)
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSecond), burst)
	}
	return &Fetcher{
		cfg:     cfg,
		limiter: limiter,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

// Fetch implements FileFetcher. The data file and its modification file are
// one unit: a failed modification pull discards the data file too, because
// the data without its deletions would be incorrect.
func (f *Fetcher) Fetch(ctx context.Context, res *domain.FileResource) (string, error) {
	storageGroup, partition, fileName, err := res.SplitPath()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(f.cfg.TempDir, res.SourceNode, storageGroup,
		strconv.FormatInt(partition, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("catchup: create temp dir: %w", err)
	}
	localPath := filepath.Join(dir, fileName)

	start := time.Now()
	if err := f.pull(ctx, res.SourceNode, res.Path, localPath); err != nil {
		return "", err
	}
	if res.WithModification {
		if err := f.pull(ctx, res.SourceNode, res.ModPath(), localPath+domain.ModFileSuffix); err != nil {
			os.Remove(localPath)
			return "", err
		}
	}

	f.metrics.FilesPulled.Inc()
	f.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	logger.L(ctx).Debug("remote file pulled",
		"path", res.Path,
		"node", res.SourceNode,
		"duration", time.Since(start))
	return localPath, nil
}

// pull retries pullOnce up to the attempt bound, removing the partial file
// after each failure. A canceled context aborts without further attempts.
func (f *Fetcher) pull(ctx context.Context, node, remotePath, localPath string) error {
	for attempt := 1; ; attempt++ {
		err := f.pullOnce(ctx, node, remotePath, localPath)
		if err == nil {
			return nil
		}
		os.Remove(localPath)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt >= f.cfg.MaxAttempts {
			f.metrics.PullFailures.Inc()
			return &FetchError{Path: remotePath, Node: node, Attempts: attempt, Err: err}
		}

		f.metrics.PullRetries.Inc()
		logger.L(ctx).Warn("pull attempt failed",
			"path", remotePath,
			"node", node,
			"attempt", attempt,
			"error", err)

		timer := time.NewTimer(f.cfg.RetryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// pullOnce downloads the whole file from offset 0. EOF is a zero-length
// read. The file is closed exactly once on every path; on the EOF path the
// close error is the result, since a failed close loses buffered data.
func (f *Fetcher) pullOnce(ctx context.Context, node, remotePath, localPath string) error {
	out, err := os.OpenFile(localPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("catchup: create temp file: %w", err)
	}

	offset := int64(0)
	for {
		data, err := f.cfg.Reader.ReadFile(ctx, node, remotePath, offset, f.cfg.ChunkSize)
		if err != nil {
			out.Close()
			return err
		}
		if len(data) == 0 {
			return out.Close()
		}
		if _, err := out.Write(data); err != nil {
			out.Close()
			return fmt.Errorf("catchup: write temp file: %w", err)
		}
		offset += int64(len(data))
		f.metrics.BytesPulled.Add(float64(len(data)))

		if f.limiter != nil {
			if err := f.limiter.WaitN(ctx, len(data)); err != nil {
				out.Close()
				return err
			}
		}
	}
}
