package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bft-labs/shardline/pkg/lifecycle"
	"github.com/bft-labs/shardline/pkg/protocol"
)

// Config configures the Prometheus recorder.
type Config struct {
	// Namespace is the metrics namespace (default: "shardline").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus recorder.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = registry }
}

// Prometheus is a Recorder backed by Prometheus collectors.
type Prometheus struct {
	frames           *prometheus.CounterVec
	dispatches       *prometheus.CounterVec
	phase            *prometheus.GaugeVec
	phaseChanges     *prometheus.CounterVec
	reconnects       *prometheus.CounterVec
	heartbeatLatency *prometheus.HistogramVec
	commandsSent     *prometheus.CounterVec
	commandsRejected *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
	restarts         *prometheus.CounterVec
}

// NewPrometheus registers the gateway collectors.
func NewPrometheus(opts ...Option) *Prometheus {
	cfg := Config{Namespace: "shardline", Registry: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		}, labels)
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		}, []string{"shard"})
	}

	return &Prometheus{
		frames:       counter("frames_received_total", "Frames received by opcode", "shard", "op"),
		dispatches:   counter("dispatch_events_total", "Dispatch events received by name", "shard", "event"),
		phase:        gauge("shard_phase", "Current connection phase of each shard"),
		phaseChanges: counter("phase_transitions_total", "Connection phase transitions", "shard", "phase"),
		reconnects:   counter("reconnects_total", "Reconnects by reason", "shard", "reason"),
		heartbeatLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "heartbeat_latency_seconds",
			Help:        "Round trip between heartbeat and ack",
			ConstLabels: cfg.ConstLabels,
			Buckets:     []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"shard"}),
		commandsSent:     counter("commands_sent_total", "Commands passed by the command gate", "shard"),
		commandsRejected: counter("commands_rejected_total", "Commands rejected by the command gate", "shard", "reason"),
		queueDepth:       gauge("command_queue_depth", "Commands waiting for the next budget window"),
		restarts:         counter("shard_restarts_total", "Shards restarted after closing unexpectedly", "shard"),
	}
}

func label(shard uint64) string {
	return strconv.FormatUint(shard, 10)
}

func (p *Prometheus) FrameReceived(shard uint64, op protocol.Opcode) {
	p.frames.WithLabelValues(label(shard), op.String()).Inc()
}

func (p *Prometheus) DispatchReceived(shard uint64, event string) {
	p.dispatches.WithLabelValues(label(shard), event).Inc()
}

func (p *Prometheus) PhaseChanged(shard uint64, phase lifecycle.Phase) {
	p.phase.WithLabelValues(label(shard)).Set(float64(phase))
	p.phaseChanges.WithLabelValues(label(shard), phase.String()).Inc()
}

func (p *Prometheus) Reconnect(shard uint64, reason string) {
	p.reconnects.WithLabelValues(label(shard), reason).Inc()
}

func (p *Prometheus) HeartbeatLatency(shard uint64, d time.Duration) {
	p.heartbeatLatency.WithLabelValues(label(shard)).Observe(d.Seconds())
}

func (p *Prometheus) CommandSent(shard uint64) {
	p.commandsSent.WithLabelValues(label(shard)).Inc()
}

func (p *Prometheus) CommandRejected(shard uint64, reason string) {
	p.commandsRejected.WithLabelValues(label(shard), reason).Inc()
}

func (p *Prometheus) QueueDepth(shard uint64, depth int) {
	p.queueDepth.WithLabelValues(label(shard)).Set(float64(depth))
}

func (p *Prometheus) ShardRestarted(shard uint64) {
	p.restarts.WithLabelValues(label(shard)).Inc()
}
