package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/shardline/pkg/lifecycle"
	"github.com/bft-labs/shardline/pkg/log"
	"github.com/bft-labs/shardline/pkg/metrics"
	"github.com/bft-labs/shardline/pkg/protocol"
	"github.com/bft-labs/shardline/pkg/queue"
	"github.com/bft-labs/shardline/pkg/rest"
	"github.com/bft-labs/shardline/pkg/session"
	"github.com/bft-labs/shardline/pkg/shard"
	"github.com/bft-labs/shardline/pkg/transport"
)

var (
	// ErrShardNotFound is returned for an index this cluster does not run.
	ErrShardNotFound = errors.New("shard not found")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("cluster already running")
)

// GatewayFetcher fetches the gateway/bot endpoint. *rest.Client implements it.
type GatewayFetcher interface {
	GatewayBot(ctx context.Context) (rest.GatewayBot, error)
}

// Option configures a Cluster.
type Option func(*Cluster)

// WithGateway sets the gateway/bot source. Default: rest.NewClient(token).
func WithGateway(g GatewayFetcher) Option {
	return func(c *Cluster) { c.gateway = g }
}

// WithDialer sets the dialer used by every shard.
func WithDialer(d transport.Dialer) Option {
	return func(c *Cluster) { c.dialer = d }
}

// WithQueue replaces the local identify queue, for example with one shared
// between processes.
func WithQueue(q queue.Queue) Option {
	return func(c *Cluster) { c.queue = q }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Cluster) { c.base = l }
}

// WithRecorder sets the metrics recorder shared by all shards.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Cluster) { c.recorder = r }
}

// WithClock sets the clock for shards, the identify queue and restarts.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cluster) { c.clock = clock }
}

// WithShardOptions appends options passed to every shard.
func WithShardOptions(opts ...shard.Option) Option {
	return func(c *Cluster) { c.shardOpts = append(c.shardOpts, opts...) }
}

// WithStatusHandler observes every shard phase change.
func WithStatusHandler(fn func(shard.Status)) Option {
	return func(c *Cluster) { c.onStatus = fn }
}

// WithErrorHandler observes fatal shard errors.
func WithErrorHandler(fn func(protocol.ShardID, error)) Option {
	return func(c *Cluster) { c.onError = fn }
}

// entry is the coordinator's view of one shard. Entries are only written
// by the coordinator.
type entry struct {
	shard    *shard.Shard
	restarts int
	ready    bool
	fatal    bool
	err      error
}

// Cluster supervises the shards run by this process.
type Cluster struct {
	cfg         Config
	total       uint64
	concurrency uint64
	gatewayURL  string
	indexes     []uint64

	gateway   GatewayFetcher
	dialer    transport.Dialer
	queue     queue.Queue
	base      log.Logger
	logger    log.Logger
	recorder  metrics.Recorder
	clock     clockwork.Clock
	shardOpts []shard.Option
	onStatus  func(shard.Status)
	onError   func(protocol.ShardID, error)

	events   chan shard.Event
	perShard map[uint64]chan shard.Event
	status   chan shard.Status
	errs     chan error
	ready    chan struct{}
	done     chan struct{}

	mu         sync.RWMutex
	shards     map[uint64]*entry
	readyCount int
	started    bool
	stopping   bool
	cancel     context.CancelFunc
}

// New resolves the shard layout and prepares the shards. The gateway/bot
// endpoint is queried once, unless ShardCount, Concurrency and GatewayURL
// are all set.
func New(ctx context.Context, cfg Config, opts ...Option) (*Cluster, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Cluster{
		cfg:      cfg,
		base:     log.NoopLogger{},
		recorder: metrics.Noop{},
		clock:    clockwork.NewRealClock(),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		shards:   make(map[uint64]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.With(c.base, log.String("component", "cluster"))

	c.total, c.concurrency, c.gatewayURL = cfg.ShardCount, cfg.Concurrency, cfg.GatewayURL
	var limit *rest.SessionStartLimit
	if cfg.needsGateway() {
		if c.gateway == nil {
			c.gateway = rest.NewClient(cfg.Token, rest.WithLogger(c.base))
		}
		gb, err := c.gateway.GatewayBot(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch gateway: %w", err)
		}
		if c.total == 0 {
			c.total = gb.Shards
		}
		if c.concurrency == 0 && gb.SessionStartLimit.MaxConcurrency > 0 {
			c.concurrency = uint64(gb.SessionStartLimit.MaxConcurrency)
		}
		if c.gatewayURL == "" {
			c.gatewayURL = gb.URL
		}
		limit = &gb.SessionStartLimit
	}
	if c.total == 0 {
		c.total = 1
	}
	if c.concurrency == 0 {
		c.concurrency = 1
	}
	if c.gatewayURL == "" {
		return nil, fmt.Errorf("%w: no gateway url", ErrInvalidConfig)
	}

	indexes, err := cfg.indexes(c.total)
	if err != nil {
		return nil, err
	}
	c.indexes = indexes
	if limit != nil && limit.Remaining < len(indexes) {
		return nil, fmt.Errorf("%w: %d remaining, %d shards to start, resets in %s",
			ErrSessionStartLimit, limit.Remaining, len(indexes), limit.ResetIn())
	}

	tmpl := c.shardConfig(protocol.ShardID{Index: indexes[0], Total: c.total}, nil)
	tmpl.SetDefaults()
	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if c.queue == nil {
		c.queue = queue.NewLocalQueue(c.concurrency, cfg.IdentifyInterval, queue.WithClock(c.clock))
	}

	c.events = make(chan shard.Event, cfg.EventBuffer)
	if cfg.PerShardEvents {
		c.perShard = make(map[uint64]chan shard.Event, len(indexes))
	}
	for _, idx := range indexes {
		c.shards[idx] = &entry{}
		if cfg.PerShardEvents {
			c.perShard[idx] = make(chan shard.Event, cfg.EventBuffer)
		}
	}
	c.status = make(chan shard.Status, 4*len(indexes))
	c.errs = make(chan error, len(indexes))

	c.logger.Info("cluster configured",
		log.Uint64("total", c.total),
		log.Int("shards", len(indexes)),
		log.Uint64("concurrency", c.concurrency),
		log.String("gateway_url", c.gatewayURL),
	)
	return c, nil
}

// Run starts every shard and blocks until ctx is done or Down is called.
// Event channels are closed when Run returns.
func (c *Cluster) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.started = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	if c.stopping {
		cancel()
	}
	c.mu.Unlock()
	defer close(c.done)
	defer cancel()

	watched := make(chan struct{})
	go func() {
		defer close(watched)
		for st := range c.status {
			c.observe(st)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, idx := range c.indexes {
		g.Go(func() error {
			c.supervise(gctx, idx)
			return nil
		})
	}
	err := g.Wait()

	// No shard is running, so nothing sends anymore.
	close(c.status)
	<-watched
	close(c.events)
	for _, ch := range c.perShard {
		close(ch)
	}
	c.logger.Info("cluster stopped")
	return err
}

// supervise runs the shard at idx and replaces it when it stops
// unexpectedly.
func (c *Cluster) supervise(ctx context.Context, idx uint64) {
	id := protocol.ShardID{Index: idx, Total: c.total}
	logger := log.With(c.logger, log.String("shard", id.String()))
	restart := lifecycle.NewBackoff(c.cfg.RestartFloor, c.cfg.RestartCap, lifecycle.WithBackoffClock(c.clock))

	var sess *session.Session
	if saved, ok := c.cfg.ResumeSessions[idx]; ok && saved.Resumable() {
		sess = &saved
	}

	for {
		sh, err := shard.New(c.shardConfig(id, sess), c.shardOptions(idx)...)
		if err != nil {
			c.fail(id, err)
			return
		}
		if !c.install(idx, sh) {
			return
		}

		started := c.clock.Now()
		err = sh.Run(ctx)
		if ctx.Err() != nil || c.isStopping() {
			return
		}
		if shard.KindOf(err).Fatal() {
			c.fail(id, err)
			return
		}

		prev := sh.Session()
		sess = nil
		if prev.Resumable() {
			sess = &prev
		}
		restart.ResetIfStable(c.clock.Since(started))

		c.mu.Lock()
		e := c.shards[idx]
		e.restarts++
		e.err = err
		restarts := e.restarts
		c.mu.Unlock()
		c.recorder.ShardRestarted(idx)
		logger.Warn("shard stopped, restarting",
			log.Err(err),
			log.Int("restarts", restarts),
			log.Bool("resume", sess != nil),
		)

		if err := restart.Wait(ctx); err != nil {
			return
		}
	}
}

func (c *Cluster) shardConfig(id protocol.ShardID, sess *session.Session) shard.Config {
	sc := c.cfg.Shard
	sc.Token = c.cfg.Token
	sc.ID = id
	sc.GatewayURL = c.gatewayURL
	sc.Session = sess
	return sc
}

func (c *Cluster) shardOptions(idx uint64) []shard.Option {
	opts := []shard.Option{
		shard.WithQueue(c.queue),
		shard.WithLogger(c.base),
		shard.WithRecorder(c.recorder),
		shard.WithClock(c.clock),
		shard.WithEvents(c.eventsFor(idx)),
		shard.WithStatus(c.status),
	}
	if c.dialer != nil {
		opts = append(opts, shard.WithDialer(c.dialer))
	}
	return append(opts, c.shardOpts...)
}

func (c *Cluster) eventsFor(idx uint64) chan shard.Event {
	if ch, ok := c.perShard[idx]; ok {
		return ch
	}
	return c.events
}

// install records sh as the current shard at idx. It returns false once
// the cluster is going down.
func (c *Cluster) install(idx uint64, sh *shard.Shard) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		return false
	}
	c.shards[idx].shard = sh
	return true
}

func (c *Cluster) isStopping() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopping
}

func (c *Cluster) observe(st shard.Status) {
	c.mu.Lock()
	e := c.shards[st.Shard.Index]
	if st.Err != nil {
		e.err = st.Err
	}
	if st.Phase == lifecycle.PhaseReady && !e.ready {
		e.ready = true
		c.readyCount++
		if c.readyCount == len(c.indexes) {
			close(c.ready)
			c.logger.Info("all shards ready", log.Int("shards", c.readyCount))
		}
	}
	c.mu.Unlock()

	if c.onStatus != nil {
		c.onStatus(st)
	}
}

func (c *Cluster) fail(id protocol.ShardID, err error) {
	c.mu.Lock()
	e := c.shards[id.Index]
	e.fatal = true
	e.err = err
	c.mu.Unlock()

	c.logger.Error("shard down", log.String("shard", id.String()), log.Err(err))
	select {
	case c.errs <- err:
	default:
	}
	if c.onError != nil {
		c.onError(id, err)
	}
}

// Events returns the merged event stream of all shards. It is unused when
// PerShardEvents is set.
func (c *Cluster) Events() <-chan shard.Event {
	return c.events
}

// ShardEvents returns the event stream of one shard when PerShardEvents is
// set.
func (c *Cluster) ShardEvents(index uint64) (<-chan shard.Event, bool) {
	ch, ok := c.perShard[index]
	return ch, ok
}

// Errors reports fatal shard errors. A shard that failed stays down.
func (c *Cluster) Errors() <-chan error {
	return c.errs
}

// Ready is closed once every shard has been Ready at least once.
func (c *Cluster) Ready() <-chan struct{} {
	return c.ready
}

// Done is closed when Run returns.
func (c *Cluster) Done() <-chan struct{} {
	return c.done
}

// Total returns the total shard count.
func (c *Cluster) Total() uint64 { return c.total }

// Concurrency returns the identify concurrency.
func (c *Cluster) Concurrency() uint64 { return c.concurrency }

// GatewayURL returns the url shards connect to.
func (c *Cluster) GatewayURL() string { return c.gatewayURL }

// Indexes returns the shard indexes run by this cluster in ascending order.
func (c *Cluster) Indexes() []uint64 {
	return append([]uint64(nil), c.indexes...)
}

// Shard returns the current shard at index.
func (c *Cluster) Shard(index uint64) (*shard.Shard, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.shards[index]
	if !ok || e.shard == nil {
		return nil, fmt.Errorf("%w: %d", ErrShardNotFound, index)
	}
	return e.shard, nil
}

// Restarts returns how often the shard at index was replaced.
func (c *Cluster) Restarts(index uint64) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.shards[index]; ok {
		return e.restarts
	}
	return 0
}

// Command sends cmd on the shard at index.
func (c *Cluster) Command(ctx context.Context, index uint64, cmd protocol.Command) error {
	sh, err := c.Shard(index)
	if err != nil {
		return err
	}
	return sh.Command(ctx, cmd)
}

// Send sends a pre-encoded frame on the shard at index.
func (c *Cluster) Send(ctx context.Context, index uint64, payload []byte) error {
	sh, err := c.Shard(index)
	if err != nil {
		return err
	}
	return sh.Send(ctx, payload)
}

// Broadcast sends cmd on every shard and joins the per-shard errors.
func (c *Cluster) Broadcast(ctx context.Context, cmd protocol.Command) error {
	var errs []error
	for _, idx := range c.indexes {
		if err := c.Command(ctx, idx, cmd); err != nil {
			errs = append(errs, fmt.Errorf("shard %d: %w", idx, err))
		}
	}
	return errors.Join(errs...)
}

// Info returns a snapshot of every running shard in index order.
func (c *Cluster) Info() []shard.Info {
	c.mu.RLock()
	shards := make([]*shard.Shard, 0, len(c.indexes))
	for _, idx := range c.indexes {
		if sh := c.shards[idx].shard; sh != nil {
			shards = append(shards, sh)
		}
	}
	c.mu.RUnlock()

	out := make([]shard.Info, 0, len(shards))
	for _, sh := range shards {
		out = append(out, sh.Info())
	}
	return out
}

// Down closes every shard, discarding the sessions, and waits for Run to
// return.
func (c *Cluster) Down() {
	c.mu.Lock()
	c.stopping = true
	cancel, started := c.cancel, c.started
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-c.done
	}
}

// DownResumable closes every shard so the server keeps the sessions and
// returns the resumable ones by shard index. Pass them as
// Config.ResumeSessions to a new cluster to resume.
func (c *Cluster) DownResumable() map[uint64]session.Session {
	c.mu.Lock()
	c.stopping = true
	shards := make(map[uint64]*shard.Shard, len(c.shards))
	for idx, e := range c.shards {
		if e.shard != nil {
			shards[idx] = e.shard
		}
	}
	c.mu.Unlock()

	var (
		g   errgroup.Group
		mu  sync.Mutex
		out = make(map[uint64]session.Session, len(shards))
	)
	for idx, sh := range shards {
		g.Go(func() error {
			if sess, ok := sh.ShutdownResumable(); ok {
				mu.Lock()
				out[idx] = sess
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	c.Down()
	return out
}
