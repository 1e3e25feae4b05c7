// Package metrics holds the prometheus collectors shared by the transports.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"roochkit/go-sdk/pkg/sdkerr"
)

const namespace = "ledger_client"

// Outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeRPCError    = "rpc_error"
	OutcomeStatusError = "status_error"
	OutcomeTimeout     = "timeout"
	OutcomeConnection  = "connection_error"
	OutcomeCanceled    = "canceled"
	OutcomeError       = "error"
)

// Transport records request, reconnect and subscription activity. A nil
// *Transport discards everything.
type Transport struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	pending       *prometheus.GaugeVec
	reconnects    *prometheus.CounterVec
	disconnects   *prometheus.CounterVec
	subscriptions *prometheus.GaugeVec
}

// NewTransport builds the collectors and registers them with reg. A nil reg
// leaves them unregistered. Registering twice with the same registry reuses
// the collectors already there.
func NewTransport(reg prometheus.Registerer) *Transport {
	t := &Transport{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "RPC requests by transport, method and outcome.",
		}, []string{"transport", "method", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "RPC round-trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport", "method"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "pending_requests",
			Help:      "Requests awaiting a response.",
		}, []string{"transport"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts by streaming transports.",
		}, []string{"transport"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "disconnects_total",
			Help:      "Stream disconnects observed by streaming transports.",
		}, []string{"transport"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_subscriptions",
			Help:      "Open server-push subscriptions.",
		}, []string{"transport"}),
	}
	if reg != nil {
		t.requests = register(reg, t.requests)
		t.latency = register(reg, t.latency)
		t.pending = register(reg, t.pending)
		t.reconnects = register(reg, t.reconnects)
		t.disconnects = register(reg, t.disconnects)
		t.subscriptions = register(reg, t.subscriptions)
	}
	return t
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// ObserveRequest counts one finished request and its latency.
func (t *Transport) ObserveRequest(transport, method string, err error, elapsed time.Duration) {
	if t == nil {
		return
	}
	t.requests.WithLabelValues(transport, method, Outcome(err)).Inc()
	t.latency.WithLabelValues(transport, method).Observe(elapsed.Seconds())
}

func (t *Transport) SetPending(transport string, n int) {
	if t == nil {
		return
	}
	t.pending.WithLabelValues(transport).Set(float64(n))
}

func (t *Transport) Reconnect(transport string) {
	if t == nil {
		return
	}
	t.reconnects.WithLabelValues(transport).Inc()
}

func (t *Transport) Disconnect(transport string) {
	if t == nil {
		return
	}
	t.disconnects.WithLabelValues(transport).Inc()
}

func (t *Transport) SetSubscriptions(transport string, n int) {
	if t == nil {
		return
	}
	t.subscriptions.WithLabelValues(transport).Set(float64(n))
}

// Outcome maps a request error to its label.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var (
		rpcErr    *sdkerr.RPCError
		statusErr *sdkerr.TransportStatusError
		connErr   *sdkerr.ConnectionError
	)
	switch {
	case errors.As(err, &rpcErr):
		return OutcomeRPCError
	case errors.As(err, &statusErr):
		return OutcomeStatusError
	case errors.As(err, &connErr):
		return OutcomeConnection
	case errors.Is(err, sdkerr.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
