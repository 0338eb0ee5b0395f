package shardline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/shardline/pkg/lifecycle"
	"github.com/bft-labs/shardline/pkg/protocol"
	"github.com/bft-labs/shardline/pkg/queue"
	"github.com/bft-labs/shardline/pkg/rest"
	"github.com/bft-labs/shardline/pkg/transport/transporttest"
)

const wait = 2 * time.Second

type fakeGateway struct {
	gb  rest.GatewayBot
	err error
}

func (f fakeGateway) GatewayBot(context.Context) (rest.GatewayBot, error) {
	return f.gb, f.err
}

type recordingHandler struct {
	BaseEventHandler

	mu     sync.Mutex
	states []State
	phases []lifecycle.Phase
}

func (h *recordingHandler) OnStateChange(e StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, e.Current)
}

func (h *recordingHandler) OnShardStatus(e ShardStatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phases = append(h.phases, e.Phase)
}

func (h *recordingHandler) snapshot() ([]State, []lifecycle.Phase) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...), append([]lifecycle.Phase(nil), h.phases...)
}

type recordingPlugin struct {
	name  string
	log   *[]string
	mu    *sync.Mutex
	fail  error
	gotCf PluginConfig
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) Initialize(_ context.Context, cfg PluginConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotCf = cfg
	*p.log = append(*p.log, "init:"+p.name)
	return p.fail
}

func (p *recordingPlugin) Shutdown(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	*p.log = append(*p.log, "shutdown:"+p.name)
	return nil
}

func testGateway() fakeGateway {
	return fakeGateway{gb: rest.GatewayBot{
		URL:               "wss://gateway.test",
		Shards:            1,
		SessionStartLimit: rest.SessionStartLimit{Total: 1000, Remaining: 1000, MaxConcurrency: 1},
	}}
}

func newTestShardline(t *testing.T, cfg Config, opts ...Option) (*Shardline, *transporttest.Dialer) {
	t.Helper()
	d := transporttest.NewDialer()
	base := []Option{WithDialer(d), WithGateway(testGateway()), WithQueue(queue.NoOp{})}
	s, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return s, d
}

func connectReady(t *testing.T, d *transporttest.Dialer) *transporttest.Conn {
	t.Helper()
	conn, err := d.Accept(wait)
	require.NoError(t, err)
	require.NoError(t, conn.Hello(time.Minute))
	_, err = conn.RecvOp(protocol.OpIdentify, wait)
	require.NoError(t, err)
	require.NoError(t, conn.Dispatch(1, protocol.EventReady, map[string]string{"session_id": "abc"}))
	return conn
}

func TestShardline_StartStop(t *testing.T) {
	handler := &recordingHandler{}
	s, d := newTestShardline(t, Config{Token: "t"}, WithEventHandler(handler))
	assert.Equal(t, StateStopped, s.Status())
	assert.Nil(t, s.Events())

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	conn := connectReady(t, d)
	select {
	case <-s.Cluster().Ready():
	case <-time.After(wait):
		t.Fatal("shards never ready")
	}
	assert.Equal(t, StateRunning, s.Status())
	info := s.Info()
	require.Len(t, info, 1)
	assert.Equal(t, "abc", info[0].SessionID)

	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.Status())
	code, err := conn.WaitClosed(wait)
	require.NoError(t, err)
	assert.Equal(t, int(protocol.CloseNormal), code)

	states, phases := handler.snapshot()
	assert.Equal(t, []State{StateStarting, StateRunning, StateStopping, StateStopped}, states)
	assert.Contains(t, phases, lifecycle.PhaseReady)

	assert.ErrorIs(t, s.Stop(), ErrNotRunning)
}

func TestShardline_StopResumable(t *testing.T) {
	s, d := newTestShardline(t, Config{Token: "t"})
	require.NoError(t, s.Start(context.Background()))
	connectReady(t, d)
	<-s.Cluster().Ready()

	sessions, err := s.StopResumable()
	require.NoError(t, err)
	require.Contains(t, sessions, uint64(0))
	assert.Equal(t, "abc", sessions[0].ID)
}

func TestShardline_StartFailureCrashes(t *testing.T) {
	s, err := New(Config{Token: "t"}, WithGateway(fakeGateway{err: rest.ErrUnauthorized}))
	require.NoError(t, err)

	err = s.Start(context.Background())
	assert.ErrorIs(t, err, rest.ErrUnauthorized)
	assert.Equal(t, StateCrashed, s.Status())
}

func TestShardline_Plugins(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []string
	)
	a := &recordingPlugin{name: "a", log: &calls, mu: &mu}
	b := &recordingPlugin{name: "b", log: &calls, mu: &mu}
	s, d := newTestShardline(t, Config{Token: "t"}, WithPlugin(a), WithPlugin(b))

	require.NoError(t, s.Start(context.Background()))
	d.Accept(wait)
	require.NoError(t, s.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"init:a", "init:b", "shutdown:b", "shutdown:a"}, calls)
	assert.NotNil(t, a.gotCf.Commands)
	assert.NotNil(t, a.gotCf.Ready)
}

func TestShardline_PluginInitFailure(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	boom := errors.New("boom")
	p := &recordingPlugin{name: "bad", log: &calls, mu: &mu, fail: boom}
	s, _ := newTestShardline(t, Config{Token: "t"}, WithPlugin(p))

	assert.ErrorIs(t, s.Start(context.Background()), boom)
	assert.Equal(t, StateCrashed, s.Status())
}

func TestShardline_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, d := newTestShardline(t, Config{Token: "t"}, WithRegisterer(reg))
	require.NoError(t, s.Start(context.Background()))
	connectReady(t, d)
	<-s.Cluster().Ready()
	require.NoError(t, s.Stop())

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["shardline_frames_received_total"])
	assert.True(t, names["shardline_phase_transitions_total"])
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Token: "t"}, false},
		{"missing token", Config{}, true},
		{"large threshold", Config{Token: "t", LargeThreshold: 300}, true},
		{"backoff cap below floor", Config{Token: "t", BackoffFloor: time.Second, BackoffCap: time.Millisecond}, true},
		{"negative budget", Config{Token: "t", CommandBudget: -1}, true},
		{"shard range", Config{Token: "t", ShardCount: 2, ShardFrom: 2}, true},
		{"shard to below from", Config{Token: "t", ShardFrom: 2, ShardTo: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestIsVersionCompatible(t *testing.T) {
	tests := []struct {
		version, min string
		want         bool
	}{
		{"1.0.0", "1.0.0", true},
		{"1.2.0", "1.1.9", true},
		{"1.0.1", "1.0.2", false},
		{"2.0.0", "1.9.9", true},
		{"1.9.9", "2.0.0", false},
	}
	for _, tt := range tests {
		if got := isVersionCompatible(tt.version, tt.min); got != tt.want {
			t.Errorf("isVersionCompatible(%q, %q) = %v, want %v", tt.version, tt.min, got, tt.want)
		}
	}
	if err := validateModuleVersions(); err != nil {
		t.Fatalf("validateModuleVersions() = %v", err)
	}
}
