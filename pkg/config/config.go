// Package config loads client settings from yaml with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
	"gopkg.in/yaml.v3"

	"roochkit/go-sdk/pkg/auth"
	"roochkit/go-sdk/pkg/transport/httprpc"
	"roochkit/go-sdk/pkg/transport/sse"
	"roochkit/go-sdk/pkg/transport/wsrpc"
)

const (
	EnvRPCURL           = "LEDGER_RPC_URL"
	EnvWebSocketURL     = "LEDGER_WS_URL"
	EnvSubscriptionURL  = "LEDGER_SSE_URL"
	EnvMaxMessageLength = "LEDGER_MAX_MESSAGE_LENGTH"

	DefaultRPCURL = "http://localhost:6767"
	DefaultWSURL  = "ws://localhost:6767"
)

var ErrInvalidEndpoint = errors.New("invalid endpoint")

type Config struct {
	RPC          httprpc.Config `yaml:"rpc"`
	WebSocket    wsrpc.Config   `yaml:"websocket"`
	Subscription sse.Config     `yaml:"subscription"`
	Signing      SigningConfig  `yaml:"signing"`
}

type SigningConfig struct {
	MaxMessageLength int `yaml:"max_message_length"`
}

// AuthOptions turns the signing settings into authenticator options.
func (s SigningConfig) AuthOptions() []auth.Option {
	if s.MaxMessageLength <= 0 {
		return nil
	}
	return []auth.Option{auth.WithMaxMessageLength(s.MaxMessageLength)}
}

type fileConfig struct {
	Ledger Config `yaml:"ledger"`
}

func DefaultConfig() Config {
	rpc := httprpc.DefaultConfig()
	rpc.URL = DefaultRPCURL
	ws := wsrpc.DefaultConfig()
	ws.URL = DefaultWSURL
	sub := sse.DefaultConfig()
	sub.URL = DefaultRPCURL
	return Config{
		RPC:          rpc,
		WebSocket:    ws,
		Subscription: sub,
		Signing:      SigningConfig{MaxMessageLength: auth.DefaultMaxMessageLength},
	}
}

// LoadFromPath reads the first readable candidate. Unreadable or malformed
// files fall through to the defaults.
func LoadFromPath(configPath string) Config {
	cfg := DefaultConfig()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"configs/ledger.yaml",
			"ledger.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}

		merged := cfg
		Merge(&merged, parsed.Ledger)
		ApplyEnvOverrides(&merged)
		return merged
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

// Merge copies every non-zero field of src onto dst.
func Merge(dst *Config, src Config) {
	if src.RPC.URL != "" {
		dst.RPC.URL = src.RPC.URL
	}
	if src.RPC.Headers != nil {
		dst.RPC.Headers = src.RPC.Headers
	}
	if src.RPC.Timeout != 0 {
		dst.RPC.Timeout = src.RPC.Timeout
	}
	if src.RPC.RateLimitRPS != 0 {
		dst.RPC.RateLimitRPS = src.RPC.RateLimitRPS
	}
	if src.RPC.RateLimitBurst != 0 {
		dst.RPC.RateLimitBurst = src.RPC.RateLimitBurst
	}

	if src.WebSocket.URL != "" {
		dst.WebSocket.URL = src.WebSocket.URL
	}
	if src.WebSocket.Headers != nil {
		dst.WebSocket.Headers = src.WebSocket.Headers
	}
	if src.WebSocket.MaxReconnectAttempts != 0 {
		dst.WebSocket.MaxReconnectAttempts = src.WebSocket.MaxReconnectAttempts
	}
	if src.WebSocket.ReconnectDelay != 0 {
		dst.WebSocket.ReconnectDelay = src.WebSocket.ReconnectDelay
	}
	if src.WebSocket.ReconnectBackoffMax != 0 {
		dst.WebSocket.ReconnectBackoffMax = src.WebSocket.ReconnectBackoffMax
	}
	if src.WebSocket.RequestTimeout != 0 {
		dst.WebSocket.RequestTimeout = src.WebSocket.RequestTimeout
	}
	if src.WebSocket.ReadyTimeout != 0 {
		dst.WebSocket.ReadyTimeout = src.WebSocket.ReadyTimeout
	}
	if src.WebSocket.HeartbeatInterval != 0 {
		dst.WebSocket.HeartbeatInterval = src.WebSocket.HeartbeatInterval
	}
	if src.WebSocket.HeartbeatTimeout != 0 {
		dst.WebSocket.HeartbeatTimeout = src.WebSocket.HeartbeatTimeout
	}

	if src.Subscription.URL != "" {
		dst.Subscription.URL = src.Subscription.URL
	}
	if src.Subscription.Headers != nil {
		dst.Subscription.Headers = src.Subscription.Headers
	}
	if src.Subscription.MaxReconnectAttempts != 0 {
		dst.Subscription.MaxReconnectAttempts = src.Subscription.MaxReconnectAttempts
	}
	if src.Subscription.ReconnectDelay != 0 {
		dst.Subscription.ReconnectDelay = src.Subscription.ReconnectDelay
	}
	if src.Subscription.ResetBudgetOnEvent {
		dst.Subscription.ResetBudgetOnEvent = true
	}

	if src.Signing.MaxMessageLength != 0 {
		dst.Signing.MaxMessageLength = src.Signing.MaxMessageLength
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvRPCURL)); v != "" {
		cfg.RPC.URL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWebSocketURL)); v != "" {
		cfg.WebSocket.URL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvSubscriptionURL)); v != "" {
		cfg.Subscription.URL = v
	}

	raw := strings.TrimSpace(os.Getenv(EnvMaxMessageLength))
	if raw == "" {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return
	}
	cfg.Signing.MaxMessageLength = n
}

// Resolve returns a copy with every multiaddr endpoint rewritten as a URL.
func (c Config) Resolve() (Config, error) {
	var err error
	if c.RPC.URL, err = ResolveEndpoint(c.RPC.URL, "http"); err != nil {
		return Config{}, fmt.Errorf("rpc: %w", err)
	}
	if c.WebSocket.URL, err = ResolveEndpoint(c.WebSocket.URL, "ws"); err != nil {
		return Config{}, fmt.Errorf("websocket: %w", err)
	}
	if c.Subscription.URL, err = ResolveEndpoint(c.Subscription.URL, "http"); err != nil {
		return Config{}, fmt.Errorf("subscription: %w", err)
	}
	return c, nil
}

// ResolveEndpoint accepts a URL, returned unchanged, or a multiaddr such as
// /dns4/rpc.example/tcp/443/https. A multiaddr without an application
// protocol takes defaultScheme.
func ResolveEndpoint(endpoint, defaultScheme string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.HasPrefix(endpoint, "/") {
		return endpoint, nil
	}
	addr, err := ma.NewMultiaddr(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, endpoint, err)
	}

	var host, port string
	scheme := defaultScheme
	tls := false
	for _, p := range addr.Protocols() {
		switch p.Code {
		case ma.P_DNS, ma.P_DNS4, ma.P_DNS6, ma.P_IP4, ma.P_IP6:
			host, err = addr.ValueForProtocol(p.Code)
		case ma.P_TCP:
			port, err = addr.ValueForProtocol(p.Code)
		case ma.P_TLS:
			tls = true
		case ma.P_HTTP:
			scheme = "http"
		case ma.P_HTTPS:
			scheme = "https"
		case ma.P_WS:
			scheme = "ws"
		case ma.P_WSS:
			scheme = "wss"
		default:
			return "", fmt.Errorf("%w: unsupported protocol %s in %q", ErrInvalidEndpoint, p.Name, endpoint)
		}
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidEndpoint, endpoint, err)
		}
	}
	if host == "" || port == "" {
		return "", fmt.Errorf("%w: %q needs a host and a tcp port", ErrInvalidEndpoint, endpoint)
	}
	if tls {
		switch scheme {
		case "http":
			scheme = "https"
		case "ws":
			scheme = "wss"
		}
	}
	return scheme + "://" + net.JoinHostPort(host, port), nil
}
