package stats

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval = 3 * time.Second
	sinkTimeout     = 2 * time.Second
)

var ErrRunning = errors.New("aggregator already running")

// Enumerator lists live rooms. The room registry implements it.
type Enumerator interface {
	Enumerate(ctx context.Context) ([]core.RoomInfo, error)
}

// Sink receives every fresh snapshot, e.g. to export it out of process.
type Sink interface {
	Publish(ctx context.Context, snap Snapshot) error
}

type Config struct {
	Interval     time.Duration
	KnownBuckets []string
	Now          func() time.Time
}

// Aggregator periodically turns a registry enumeration into a per-bucket
// occupancy snapshot and fans it out to subscribers and sinks.
type Aggregator struct {
	source Enumerator
	cfg    Config
	sinks  []Sink
	logger zerolog.Logger

	current atomic.Pointer[Snapshot]

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func New(source Enumerator, cfg Config, sinks ...Sink) *Aggregator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.KnownBuckets == nil {
		cfg.KnownBuckets = DefaultKnownBuckets
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	a := &Aggregator{
		source: source,
		cfg:    cfg,
		sinks:  sinks,
		logger: log.With().Str("module", "app.stats").Logger(),
		subs:   make(map[*Subscription]struct{}),
	}
	empty := Build(nil, cfg.KnownBuckets, cfg.Now())
	a.current.Store(&empty)
	return a
}

// Start refreshes once and then every interval until Stop or ctx is done.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		a.run(ctx)
	}(a.done)
	a.logger.Info().Dur("interval", a.cfg.Interval).Msg("aggregator started")
	return nil
}

// Stop halts polling and waits for an in-flight refresh to finish.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	a.logger.Info().Msg("aggregator stopped")
}

// Run is the blocking form of Start, for use under an errgroup.
func (a *Aggregator) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.Stop()
	return nil
}

func (a *Aggregator) run(ctx context.Context) {
	t := time.NewTicker(a.cfg.Interval)
	defer t.Stop()
	_ = a.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = a.Refresh(ctx)
		}
	}
}

// Refresh runs one aggregation cycle. On enumeration failure the previous
// snapshot is kept and the error returned.
func (a *Aggregator) Refresh(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		metrics.StatsRefreshDuration.Observe(time.Since(start).Seconds())
		if p := recover(); p != nil {
			metrics.StatsRefreshFailures.Inc()
			a.logger.Error().Interface("panic", p).Msg("refresh panic recovered")
			err = errors.New("stats refresh panicked")
		}
	}()

	rooms, err := a.source.Enumerate(ctx)
	if err != nil {
		metrics.StatsRefreshFailures.Inc()
		a.logger.Warn().Err(err).Msg("enumerate failed, keeping previous snapshot")
		return err
	}
	snap := Build(rooms, a.cfg.KnownBuckets, a.cfg.Now())
	a.current.Store(&snap)
	for id, s := range snap {
		metrics.BucketUsers.WithLabelValues(id).Set(float64(s.UserCount))
	}
	a.logger.Debug().Int("rooms", len(rooms)).Int("users", snap.Total()).Msg("snapshot refreshed")

	a.notify(snap)
	a.export(ctx, snap)
	return nil
}

func (a *Aggregator) export(ctx context.Context, snap Snapshot) {
	for _, s := range a.sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		if err := s.Publish(sctx, snap.clone()); err != nil {
			a.logger.Warn().Err(err).Msg("sink publish failed")
		}
		cancel()
	}
}

// Snapshot returns a copy of the latest snapshot.
func (a *Aggregator) Snapshot() Snapshot {
	return a.current.Load().clone()
}

// Subscription delivers snapshots on C. Only the latest undelivered snapshot
// is kept, so a slow reader skips intermediate ones.
type Subscription struct {
	C <-chan Snapshot

	ch  chan Snapshot
	agg *Aggregator
}

// Subscribe returns a subscription that already holds the current snapshot.
func (a *Aggregator) Subscribe() *Subscription {
	ch := make(chan Snapshot, 1)
	sub := &Subscription{C: ch, ch: ch, agg: a}
	a.mu.Lock()
	defer a.mu.Unlock()
	ch <- a.current.Load().clone()
	a.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe stops delivery and closes C. It is safe to call twice.
func (s *Subscription) Unsubscribe() {
	a := s.agg
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.subs[s]; !ok {
		return
	}
	delete(a.subs, s)
	close(s.ch)
}

func (a *Aggregator) notify(snap Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for sub := range a.subs {
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- snap.clone()
	}
}
