// Package wsrpc is the persistent socket transport: JSON-RPC over one
// WebSocket connection, responses matched to requests by id.
package wsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roochkit/go-sdk/internal/metrics"
	"roochkit/go-sdk/pkg/sdkerr"
	"roochkit/go-sdk/pkg/transport"
)

const (
	transportLabel          = "ws"
	maxReconnectAttemptsCap = 10
)

var ErrInvalidURL = errors.New("invalid websocket url")

type Config struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	// MaxReconnectAttempts bounds consecutive failed reconnects, capped at
	// 10. Zero means the default; negative disables reconnecting.
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	ReconnectBackoffMax  time.Duration `yaml:"reconnect_backoff_max"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	ReadyTimeout         time.Duration `yaml:"ready_timeout"`
	// HeartbeatInterval sends pings while connected; negative disables.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// HeartbeatTimeout is how long past a ping the connection may stay
	// silent. A connection that misses it is closed and redialed.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
}

func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: 5,
		ReconnectDelay:       time.Second,
		ReconnectBackoffMax:  30 * time.Second,
		RequestTimeout:       30 * time.Second,
		ReadyTimeout:         5 * time.Second,
		HeartbeatInterval:    20 * time.Second,
		HeartbeatTimeout:     10 * time.Second,
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	cfg.URL = strings.TrimSpace(cfg.URL)
	switch {
	case cfg.MaxReconnectAttempts == 0:
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	case cfg.MaxReconnectAttempts < 0:
		cfg.MaxReconnectAttempts = 0
	case cfg.MaxReconnectAttempts > maxReconnectAttemptsCap:
		cfg.MaxReconnectAttempts = maxReconnectAttemptsCap
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.ReconnectBackoffMax <= 0 {
		cfg.ReconnectBackoffMax = def.ReconnectBackoffMax
	}
	if cfg.ReconnectBackoffMax < cfg.ReconnectDelay {
		cfg.ReconnectBackoffMax = cfg.ReconnectDelay
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = def.ReadyTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	return cfg
}

// Conn is the slice of *websocket.Conn the transport uses.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

type gorillaDialer struct {
	dialer *websocket.Dialer
}

func (d gorillaDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// NotificationHandler receives server frames that carry a method and no id.
type NotificationHandler func(method string, params json.RawMessage)

type Option func(*Transport)

func WithDialer(d Dialer) Option {
	return func(t *Transport) {
		if d != nil {
			t.dialer = d
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

func WithNotificationHandler(h NotificationHandler) Option {
	return func(t *Transport) { t.onNotify = h }
}

type result struct {
	value json.RawMessage
	err   error
}

type pendingCall struct {
	method string
	done   chan result
}

// Transport owns one connection and its pending-request table. The
// connection is dialed on construction and redialed after every close
// until the reconnect budget runs out; after that the transport stays down.
type Transport struct {
	cfg      Config
	header   http.Header
	dialer   Dialer
	log      *slog.Logger
	metrics  *metrics.Transport
	onNotify NotificationHandler
	ids      transport.IDs

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeMu sync.Mutex

	mu      sync.Mutex
	conn    Conn
	ready   chan struct{}
	pending map[uint64]*pendingCall
	down    chan struct{}
	downErr error
	closed  bool
}

var _ transport.Caller = (*Transport)(nil)

func New(cfg Config, opts ...Option) (*Transport, error) {
	cfg = normalizeConfig(cfg)
	if !strings.HasPrefix(cfg.URL, "ws://") && !strings.HasPrefix(cfg.URL, "wss://") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, cfg.URL)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		cfg:     cfg,
		header:  http.Header{},
		dialer:  gorillaDialer{dialer: websocket.DefaultDialer},
		log:     slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
		pending: make(map[uint64]*pendingCall),
		down:    make(chan struct{}),
	}
	for k, v := range cfg.Headers {
		t.header.Set(k, v)
	}
	for _, opt := range opts {
		opt(t)
	}
	t.wg.Add(1)
	go t.run()
	return t, nil
}

// Call sends one request and waits for the matching response, the request
// timeout, ctx, or the transport giving up.
func (t *Transport) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	started := time.Now()
	value, err := t.call(ctx, method, params)
	t.metrics.ObserveRequest(transportLabel, method, err, time.Since(started))
	if err != nil {
		t.log.Debug("rpc call failed", "transport", transportLabel, "method", method, "error", err)
	}
	return value, err
}

func (t *Transport) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	id := t.ids.Next()
	frame, err := json.Marshal(transport.NewRequest(id, method, params))
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}
	p := &pendingCall{method: method, done: make(chan result, 1)}
	if err := t.register(id, p); err != nil {
		return nil, err
	}
	defer t.remove(id)

	timeout := time.NewTimer(t.cfg.RequestTimeout)
	defer timeout.Stop()

	conn, err := t.waitReady(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := t.write(conn, websocket.TextMessage, frame); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case r := <-p.done:
		return r.value, r.err
	case <-timeout.C:
		return nil, fmt.Errorf("%s: %w", method, sdkerr.ErrRequestTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) register(id uint64, p *pendingCall) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return sdkerr.ErrTransportClosed
	}
	if t.downErr != nil {
		return t.downErr
	}
	t.pending[id] = p
	t.metrics.SetPending(transportLabel, len(t.pending))
	return nil
}

func (t *Transport) remove(id uint64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.metrics.SetPending(transportLabel, len(t.pending))
	t.mu.Unlock()
}

// Pending reports the number of unsettled calls.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Transport) waitReady(ctx context.Context, p *pendingCall) (Conn, error) {
	readyTimeout := time.NewTimer(t.cfg.ReadyTimeout)
	defer readyTimeout.Stop()
	for {
		t.mu.Lock()
		conn, ready := t.conn, t.ready
		t.mu.Unlock()
		if conn != nil {
			return conn, nil
		}
		select {
		case <-ready:
		case <-t.down:
			return nil, t.downErr
		case r := <-p.done:
			return nil, r.err
		case <-readyTimeout.C:
			return nil, fmt.Errorf("%s: connection not ready: %w", p.method, sdkerr.ErrRequestTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (t *Transport) write(conn Conn, messageType int, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteMessage(messageType, data)
}

// run dials, serves the connection until it closes and redials with a
// growing delay. Consecutive failures beyond the budget end the loop.
func (t *Transport) run() {
	defer t.wg.Done()
	failures := 0
	for {
		ctx, cancel := context.WithTimeout(t.ctx, t.cfg.ReadyTimeout)
		conn, err := t.dialer.Dial(ctx, t.cfg.URL, t.header)
		cancel()
		if t.ctx.Err() != nil {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}
		if err == nil {
			failures = 0
			t.log.Info("websocket connected", "url", t.cfg.URL)
			t.serve(conn)
			if t.ctx.Err() != nil {
				return
			}
			t.log.Warn("websocket disconnected", "url", t.cfg.URL)
		} else {
			t.log.Warn("websocket dial failed", "url", t.cfg.URL, "error", err)
		}

		failures++
		if failures > t.cfg.MaxReconnectAttempts {
			t.giveUp(failures-1, err)
			return
		}
		t.metrics.Reconnect(transportLabel)
		if !t.sleep(t.backoff(failures)) {
			return
		}
	}
}

func (t *Transport) backoff(attempt int) time.Duration {
	d := t.cfg.ReconnectDelay * time.Duration(attempt)
	if d > t.cfg.ReconnectBackoffMax {
		return t.cfg.ReconnectBackoffMax
	}
	return d
}

func (t *Transport) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.ctx.Done():
		return false
	}
}

// serve publishes conn, reads until it fails and withdraws it.
func (t *Transport) serve(conn Conn) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.conn = conn
	close(t.ready)
	t.mu.Unlock()

	stop := make(chan struct{})
	heartbeat := t.cfg.HeartbeatInterval > 0
	grace := t.cfg.HeartbeatInterval + t.cfg.HeartbeatTimeout
	if heartbeat {
		_ = conn.SetReadDeadline(time.Now().Add(grace))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(grace))
		})
		t.wg.Add(1)
		go t.heartbeat(conn, stop)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				t.log.Warn("websocket heartbeat timed out", "url", t.cfg.URL, "timeout", grace)
			}
			break
		}
		if heartbeat {
			_ = conn.SetReadDeadline(time.Now().Add(grace))
		}
		t.dispatch(data)
	}
	close(stop)
	_ = conn.Close()

	t.mu.Lock()
	t.conn = nil
	t.ready = make(chan struct{})
	t.mu.Unlock()
}

func (t *Transport) heartbeat(conn Conn, stop <-chan struct{}) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := t.write(conn, websocket.PingMessage, nil); err != nil {
				t.log.Debug("websocket ping failed", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func (t *Transport) dispatch(data []byte) {
	var msg transport.Response
	if err := json.Unmarshal(data, &msg); err != nil {
		t.log.Warn("dropping malformed websocket frame", "error", err)
		return
	}
	if msg.IsNotification() {
		t.notify(msg.Method, msg.Params)
		return
	}
	id, ok := msg.RequestID()
	if !ok {
		t.log.Debug("dropping websocket frame without id")
		return
	}
	t.mu.Lock()
	p, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
		t.metrics.SetPending(transportLabel, len(t.pending))
	}
	t.mu.Unlock()
	if !ok {
		t.log.Debug("dropping unmatched websocket response", "id", id)
		return
	}
	if err := msg.Err(); err != nil {
		p.done <- result{err: err}
		return
	}
	p.done <- result{value: msg.Result}
}

func (t *Transport) notify(method string, params json.RawMessage) {
	if t.onNotify == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("notification handler panicked", "method", method, "panic", r)
		}
	}()
	t.onNotify(method, params)
}

// giveUp rejects every pending call and keeps the transport down.
func (t *Transport) giveUp(attempts int, cause error) {
	err := &sdkerr.ConnectionError{Transport: transportLabel, Attempts: attempts, Err: cause}
	t.log.Error("websocket reconnect budget exhausted", "url", t.cfg.URL, "attempts", attempts)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.downErr = err
	close(t.down)
	t.failAllLocked(err)
}

func (t *Transport) failAllLocked(err error) {
	for id, p := range t.pending {
		p.done <- result{err: err}
		delete(t.pending, id)
	}
	t.metrics.SetPending(transportLabel, 0)
}

// Down is closed once the reconnect budget is exhausted.
func (t *Transport) Down() <-chan struct{} { return t.down }

// Close drops the connection, rejects pending calls with
// sdkerr.ErrTransportClosed and stops reconnecting.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	t.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	t.mu.Lock()
	t.failAllLocked(sdkerr.ErrTransportClosed)
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}
