package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/shardline/pkg/lifecycle"
	"github.com/bft-labs/shardline/pkg/protocol"
)

// sum adds up every sample of the named family.
func sum(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return total
}

func TestPrometheus_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(WithRegistry(reg), WithNamespace("test"))

	p.FrameReceived(0, protocol.OpDispatch)
	p.FrameReceived(1, protocol.OpHeartbeatAck)
	p.DispatchReceived(0, "READY")
	p.PhaseChanged(0, lifecycle.PhaseReady)
	p.Reconnect(0, "transport")
	p.HeartbeatLatency(0, 40*time.Millisecond)
	p.CommandSent(0)
	p.CommandRejected(0, "backpressure")
	p.QueueDepth(0, 3)
	p.ShardRestarted(1)

	assert.Equal(t, 2.0, sum(t, reg, "test_frames_received_total"))
	assert.Equal(t, 1.0, sum(t, reg, "test_dispatch_events_total"))
	assert.Equal(t, float64(lifecycle.PhaseReady), sum(t, reg, "test_shard_phase"))
	assert.Equal(t, 1.0, sum(t, reg, "test_phase_transitions_total"))
	assert.Equal(t, 1.0, sum(t, reg, "test_reconnects_total"))
	assert.Equal(t, 1.0, sum(t, reg, "test_heartbeat_latency_seconds"))
	assert.Equal(t, 1.0, sum(t, reg, "test_commands_sent_total"))
	assert.Equal(t, 1.0, sum(t, reg, "test_commands_rejected_total"))
	assert.Equal(t, 3.0, sum(t, reg, "test_command_queue_depth"))
	assert.Equal(t, 1.0, sum(t, reg, "test_shard_restarts_total"))
}

func TestNoop_SatisfiesRecorder(t *testing.T) {
	var r Recorder = Noop{}
	r.FrameReceived(0, protocol.Opcode(99))
	r.PhaseChanged(0, lifecycle.PhaseClosed)
}
