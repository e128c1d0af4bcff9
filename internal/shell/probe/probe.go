// Package probe decides when a freshly started node is ready to serve:
// redis nodes must answer PING, HTTP products must answer any request.
package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Targets
// =============================================================================

// Kind selects the protocol used to probe a target.
type Kind string

const (
	KindRedis Kind = "redis"
	KindHTTP  Kind = "http"
	KindHTTPS Kind = "https"
)

// Target is one endpoint to probe.
type Target struct {
	Name     string // container name, for logs and errors
	Kind     Kind
	Host     string
	Port     int
	Password string // redis only
}

// Addr returns host:port.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// =============================================================================
// Checker
// =============================================================================

// Config controls probe timing.
type Config struct {
	// ReadyTimeout bounds WaitForReady for one target.
	ReadyTimeout time.Duration
	// Interval is the pause between attempts.
	Interval time.Duration
	// AttemptTimeout bounds a single attempt.
	AttemptTimeout time.Duration
}

// DefaultConfig returns the stock probe timing.
func DefaultConfig() Config {
	return Config{
		ReadyTimeout:   60 * time.Second,
		Interval:       500 * time.Millisecond,
		AttemptTimeout: 2 * time.Second,
	}
}

// Checker runs readiness probes.
type Checker struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewChecker creates a checker. Zero config fields take their defaults.
func NewChecker(cfg Config, logger *slog.Logger) *Checker {
	def := DefaultConfig()
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = def.ReadyTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.AttemptTimeout,
			Transport: &http.Transport{
				// Enterprise nodes serve a self-signed certificate.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
			},
		},
		logger: logger,
	}
}

// Check performs a single probe attempt.
func (c *Checker) Check(ctx context.Context, t Target) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	switch t.Kind {
	case KindRedis:
		return c.checkRedis(ctx, t)
	case KindHTTP, KindHTTPS:
		return c.checkHTTP(ctx, t)
	}
	return fmt.Errorf("unknown probe kind %q", t.Kind)
}

func (c *Checker) checkRedis(ctx context.Context, t Target) error {
	client := redis.NewClient(&redis.Options{
		Addr:         t.Addr(),
		Password:     t.Password,
		DialTimeout:  c.cfg.AttemptTimeout,
		ReadTimeout:  c.cfg.AttemptTimeout,
		WriteTimeout: c.cfg.AttemptTimeout,
		MaxRetries:   -1,
		PoolSize:     1,
	})
	defer client.Close()

	return client.Ping(ctx).Err()
}

func (c *Checker) checkHTTP(ctx context.Context, t Target) error {
	url := fmt.Sprintf("%s://%s/", t.Kind, t.Addr())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s returned %s", url, resp.Status)
	}
	return nil
}

// WaitForReady retries Check at a constant interval until it succeeds,
// ReadyTimeout elapses or ctx is done. The returned error carries the last
// probe failure.
func (c *Checker) WaitForReady(ctx context.Context, t Target) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadyTimeout)
	defer cancel()

	var (
		attempts int
		lastErr  error
	)
	op := func() error {
		attempts++
		err := c.Check(ctx, t)
		if err != nil {
			lastErr = err
			c.logger.Debug("node not ready yet", "container", t.Name, "addr", t.Addr(), "attempt", attempts, "error", err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(c.cfg.Interval), ctx))
	if err == nil {
		c.logger.Debug("node ready", "container", t.Name, "addr", t.Addr(), "attempts", attempts)
		return nil
	}
	if lastErr == nil {
		lastErr = err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(lastErr, ctxErr) {
		return fmt.Errorf("%s not ready after %d attempts: %w (last error: %v)", t.Addr(), attempts, ctxErr, lastErr)
	}
	return fmt.Errorf("%s not ready after %d attempts: %w", t.Addr(), attempts, lastErr)
}
