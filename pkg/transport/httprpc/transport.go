// Package httprpc is the request/response transport: one HTTP POST per
// JSON-RPC call, no retries.
package httprpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"roochkit/go-sdk/internal/metrics"
	"roochkit/go-sdk/internal/platform/ratelimiter"
	"roochkit/go-sdk/pkg/sdkerr"
	"roochkit/go-sdk/pkg/transport"
)

const (
	transportLabel         = "http"
	maxResponseBytes int64 = 16 << 20 // 16 MiB
)

var ErrInvalidURL = errors.New("invalid rpc url")

type Config struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`
	// RateLimitRPS throttles each method client-side; zero disables it.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

func DefaultConfig() Config {
	return Config{Timeout: 30 * time.Second}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 1
	}
	return cfg
}

type Option func(*Transport)

// WithHTTPClient replaces the default client; its Timeout is left as is.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		if c != nil {
			t.client = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.log = l
		}
	}
}

func WithMetrics(m *metrics.Transport) Option {
	return func(t *Transport) { t.metrics = m }
}

type Transport struct {
	cfg     Config
	client  *http.Client
	ids     transport.IDs
	limiter *ratelimiter.MapLimiter
	log     *slog.Logger
	metrics *metrics.Transport
}

var _ transport.Caller = (*Transport)(nil)

func New(cfg Config, opts ...Option) (*Transport, error) {
	cfg = normalizeConfig(cfg)
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, cfg.URL)
	}
	t := &Transport{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimiter.New(cfg.RateLimitRPS, cfg.RateLimitBurst, 0),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Transport) URL() string { return t.cfg.URL }

// Call posts one request and returns the result field. A non-2xx status is
// a *sdkerr.TransportStatusError; an error object is a *sdkerr.RPCError.
func (t *Transport) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	started := time.Now()
	result, err := t.call(ctx, method, params)
	t.metrics.ObserveRequest(transportLabel, method, err, time.Since(started))
	if err != nil {
		t.log.Debug("rpc call failed", "transport", transportLabel, "method", method, "error", err)
	}
	return result, err
}

func (t *Transport) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if err := t.limiter.Wait(ctx, method); err != nil {
		return nil, err
	}
	body, err := json.Marshal(transport.NewRequest(t.ids.Next(), method, params))
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &sdkerr.TransportStatusError{Status: resp.StatusCode, Reason: statusReason(resp)}
	}

	var out transport.Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if err := out.Err(); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func statusReason(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}
