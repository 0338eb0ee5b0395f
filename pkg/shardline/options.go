package shardline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/shardline/pkg/cluster"
	"github.com/bft-labs/shardline/pkg/log"
	"github.com/bft-labs/shardline/pkg/queue"
	"github.com/bft-labs/shardline/pkg/rest"
	"github.com/bft-labs/shardline/pkg/transport"
)

// Option configures optional behavior of Shardline.
type Option func(*options)

// options holds the optional configuration for a Shardline instance.
type options struct {
	httpClient   rest.HTTPClient
	logger       log.Logger
	dialer       transport.Dialer
	gateway      cluster.GatewayFetcher
	queue        queue.Queue
	eventHandler EventHandler
	plugins      []Plugin
	registerer   prometheus.Registerer
}

// WithHTTPClient sets the HTTP client used for the gateway/bot request.
// If not provided, a client with the configured timeout is used.
func WithHTTPClient(client rest.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDialer sets the transport dialer for every shard.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithGateway replaces the gateway/bot lookup.
func WithGateway(g cluster.GatewayFetcher) Option {
	return func(o *options) {
		o.gateway = g
	}
}

// WithQueue replaces the local identify queue.
func WithQueue(q queue.Queue) Option {
	return func(o *options) {
		o.queue = q
	}
}

// WithEventHandler sets a handler for lifecycle and shard events.
// Events are called synchronously. If not provided, no events are emitted.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when Shardline starts.
// Plugins are initialized in registration order and shutdown in reverse order.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithRegisterer enables Prometheus metrics on the given registerer.
// Without it no metrics are recorded.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}
