// Package sse is the server-push subscription transport. Every subscription
// owns one Server-Sent Events stream; nothing is multiplexed.
package sse

import (
	"bufio"
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
	"sync"
	"time"

	"roochkit/go-sdk/internal/metrics"
	"roochkit/go-sdk/pkg/sdkerr"
	"roochkit/go-sdk/pkg/transport"
)

const (
	transportLabel       = "sse"
	subscribeMethodStem  = "rooch_subscribe"
	maxEventBytes        = 4 << 20 // 4 MiB
	initialScanBufferLen = 64 << 10
)

var (
	ErrInvalidURL          = errors.New("invalid subscription url")
	ErrUnknownSubscription = errors.New("unknown subscription")
	ErrListenerRequired    = errors.New("listener needs an OnEvent callback")
)

type Config struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	// MaxReconnectAttempts bounds disconnects per subscription. Zero means
	// the default; negative disables reconnecting.
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	// ResetBudgetOnEvent restores the reconnect budget whenever an event is
	// delivered. Off by default: disconnects count for the subscription's
	// whole life.
	ResetBudgetOnEvent bool `yaml:"reset_budget_on_event"`
}

func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: 5,
		ReconnectDelay:       time.Second,
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	switch {
	case cfg.MaxReconnectAttempts == 0:
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	case cfg.MaxReconnectAttempts < 0:
		cfg.MaxReconnectAttempts = 0
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	return cfg
}

type Option func(*Transport)

// WithHTTPClient replaces the stream client. It must not set a Timeout,
// which would cut long-lived streams.
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
	base    *url.URL
	client  *http.Client
	log     *slog.Logger
	metrics *metrics.Transport
	ids     transport.IDs

	wg     sync.WaitGroup
	mu     sync.Mutex
	subs   map[uint64]*subscription
	closed bool
}

var _ transport.Subscriber = (*Transport)(nil)

type subscription struct {
	id     uint64
	method string
	url    string
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	listeners   []transport.Listener
	disconnects int
	lastEventID string
}

func New(cfg Config, opts ...Option) (*Transport, error) {
	cfg = normalizeConfig(cfg)
	base, err := url.Parse(cfg.URL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, cfg.URL)
	}
	t := &Transport{
		cfg:    cfg,
		base:   base,
		client: &http.Client{},
		log:    slog.Default(),
		subs:   make(map[uint64]*subscription),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// StreamKind maps a subscribe method to its path segment:
// rooch_subscribeEvents -> events.
func StreamKind(method string) string {
	kind := strings.TrimPrefix(method, subscribeMethodStem)
	if kind == method {
		if i := strings.LastIndex(method, "_"); i >= 0 {
			kind = method[i+1:]
		}
	}
	return strings.ToLower(kind)
}

// StreamURL builds /subscribe/sse/<kind>?filter=<json params>.
func (t *Transport) StreamURL(method string, params any) (string, error) {
	kind := StreamKind(method)
	if kind == "" {
		return "", fmt.Errorf("subscribe method %q has no stream kind", method)
	}
	u := t.base.JoinPath("subscribe", "sse", kind)
	if params != nil {
		filter, err := json.Marshal(params)
		if err != nil {
			return "", fmt.Errorf("encode %s filter: %w", method, err)
		}
		q := u.Query()
		q.Set("filter", string(filter))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Subscribe opens a dedicated stream for method and binds listener to it.
// The returned id is unique within this transport.
func (t *Transport) Subscribe(ctx context.Context, method string, params any, listener transport.Listener) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if listener.OnEvent == nil {
		return 0, ErrListenerRequired
	}
	streamURL, err := t.StreamURL(method, params)
	if err != nil {
		return 0, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:        t.ids.Next(),
		method:    method,
		url:       streamURL,
		ctx:       subCtx,
		cancel:    cancel,
		listeners: []transport.Listener{listener},
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		return 0, sdkerr.ErrTransportClosed
	}
	t.subs[sub.id] = sub
	t.metrics.SetSubscriptions(transportLabel, len(t.subs))
	t.wg.Add(1)
	t.mu.Unlock()

	go t.run(sub)
	t.log.Debug("subscription opened", "id", sub.id, "method", method)
	return sub.id, nil
}

// AddListener binds another listener to an open subscription.
func (t *Transport) AddListener(id uint64, listener transport.Listener) error {
	if listener.OnEvent == nil {
		return ErrListenerRequired
	}
	t.mu.Lock()
	sub, ok := t.subs[id]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSubscription, id)
	}
	sub.mu.Lock()
	sub.listeners = append(sub.listeners, listener)
	sub.mu.Unlock()
	return nil
}

// Unsubscribe tears down one subscription. Unknown or already removed ids
// are ignored.
func (t *Transport) Unsubscribe(id uint64) {
	if sub := t.drop(id); sub != nil {
		sub.cancel()
		t.log.Debug("subscription closed", "id", id, "method", sub.method)
	}
}

func (t *Transport) drop(id uint64) *subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	sub, ok := t.subs[id]
	if !ok {
		return nil
	}
	delete(t.subs, id)
	t.metrics.SetSubscriptions(transportLabel, len(t.subs))
	return sub
}

// Active reports the number of open subscriptions.
func (t *Transport) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Close cancels every subscription and waits for their streams to stop.
// Listeners are not notified.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := t.subs
	t.subs = make(map[uint64]*subscription)
	t.metrics.SetSubscriptions(transportLabel, 0)
	t.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	t.wg.Wait()
	return nil
}

// run replays the subscription request after every disconnect until the
// per-subscription budget is spent.
func (t *Transport) run(sub *subscription) {
	defer t.wg.Done()
	for {
		err := t.consume(sub)
		if sub.ctx.Err() != nil {
			return
		}
		t.metrics.Disconnect(transportLabel)

		sub.mu.Lock()
		sub.disconnects++
		disconnects := sub.disconnects
		sub.mu.Unlock()

		if disconnects > t.cfg.MaxReconnectAttempts {
			t.log.Error("subscription reconnect budget exhausted", "id", sub.id, "method", sub.method, "attempts", disconnects-1, "error", err)
			if t.drop(sub.id) != nil {
				sub.notifyError(t.log, &sdkerr.ConnectionError{Transport: transportLabel, Attempts: disconnects - 1, Err: err})
			}
			sub.cancel()
			return
		}
		t.log.Warn("subscription stream lost", "id", sub.id, "method", sub.method, "attempt", disconnects, "error", err)
		t.metrics.Reconnect(transportLabel)

		timer := time.NewTimer(t.cfg.ReconnectDelay)
		select {
		case <-sub.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// consume opens the stream and dispatches events until it ends. It always
// returns a non-nil error describing why the stream stopped.
func (t *Transport) consume(sub *subscription) error {
	req, err := http.NewRequestWithContext(sub.ctx, http.MethodGet, sub.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}
	sub.mu.Lock()
	if sub.lastEventID != "" {
		req.Header.Set("Last-Event-ID", sub.lastEventID)
	}
	sub.mu.Unlock()

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &sdkerr.TransportStatusError{Status: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, initialScanBufferLen), maxEventBytes)
	var (
		data    bytes.Buffer
		eventID string
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				t.dispatch(sub, eventID, data.Bytes())
			}
			data.Reset()
			eventID = ""
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, "id:"):
			eventID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

func (t *Transport) dispatch(sub *subscription, eventID string, data []byte) {
	if !json.Valid(data) {
		t.log.Warn("dropping malformed subscription event", "id", sub.id, "method", sub.method, "bytes", len(data))
		return
	}
	event := json.RawMessage(append([]byte(nil), data...))

	sub.mu.Lock()
	if eventID != "" {
		sub.lastEventID = eventID
	}
	if t.cfg.ResetBudgetOnEvent {
		sub.disconnects = 0
	}
	listeners := append([]transport.Listener(nil), sub.listeners...)
	sub.mu.Unlock()

	for _, l := range listeners {
		if sub.ctx.Err() != nil {
			return
		}
		deliver(t.log, sub.id, func() { l.OnEvent(event) })
	}
}

func (sub *subscription) notifyError(log *slog.Logger, err error) {
	sub.mu.Lock()
	listeners := append([]transport.Listener(nil), sub.listeners...)
	sub.mu.Unlock()
	for _, l := range listeners {
		if l.OnError == nil {
			continue
		}
		deliver(log, sub.id, func() { l.OnError(err) })
	}
}

func deliver(log *slog.Logger, id uint64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("subscription listener panicked", "id", id, "panic", r)
		}
	}()
	fn()
}
