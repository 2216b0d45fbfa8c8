package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// behavior is the per-kind state shape plus its message handlers.
// Every method runs under Room.mu.
type behavior interface {
	state() any
	userCount() int
	join(r *Room, s *Session, opts JoinOptions, now time.Time) []any
	leave(r *Room, id domain.UserID, now time.Time)
	handle(r *Room, s *Session, msg Message, now time.Time)
	tick(r *Room, now time.Time)
}

// Room is an authoritative in-memory state container.
// Handlers, ticks and membership changes are serialized by mu;
// Info reads atomics only so enumeration never waits on a busy room.
// It never closes adapter-owned resources.
type Room struct {
	meta   domain.Room
	cfg    RoomConfig
	logger zerolog.Logger

	mu        sync.Mutex
	state     behavior
	sessions  map[SessionID]*Session
	version   uint64
	pending   []Op
	result    PublishResult
	joins     int
	grace     *time.Timer
	graceGen  uint64
	stopTick  context.CancelFunc
	disposed  bool
	onDispose func(*Room)
	onDropped func(*Room, PublishResult)

	lifecycle atomic.Int32
	clients   atomic.Int32
}

// NewRoom allocates the state for meta.Kind and starts the maintenance ticker.
// The ticker stops when ctx is cancelled or the room is disposed.
func NewRoom(ctx context.Context, meta domain.Room, opts CreateOptions, cfg RoomConfig) (*Room, error) {
	r := &Room{
		meta:     meta,
		cfg:      cfg.withDefaults(meta.Kind),
		sessions: make(map[SessionID]*Session),
		logger: log.With().
			Str("module", "core.room").
			Str("room", string(meta.ID)).
			Str("name", string(meta.Name)).
			Logger(),
	}
	r.lifecycle.Store(int32(LifecycleCreated))
	if err := r.onCreate(ctx, opts); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Room) onCreate(ctx context.Context, opts CreateOptions) error {
	now := r.cfg.Now()
	switch r.meta.Kind {
	case domain.KindLobby:
		r.state = newLobby(opts, now)
	case domain.KindPage:
		if opts.ContentID == "" {
			return fmt.Errorf("page room: %w", ErrMissingContent)
		}
		r.state = newPage(opts, now)
	case domain.KindPost:
		if opts.ContentID == "" {
			return fmt.Errorf("post room: %w", ErrMissingContent)
		}
		r.state = newPost(opts, now)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownKind, r.meta.Kind)
	}

	tickCtx, cancel := context.WithCancel(ctx)
	r.stopTick = cancel

	r.mu.Lock()
	r.lifecycle.Store(int32(LifecycleInitialized))
	r.armGrace()
	r.mu.Unlock()

	go r.runTicker(tickCtx)
	r.logger.Info().Str("kind", string(r.meta.Kind)).Dur("tick", r.cfg.TickInterval).Msg("room created")
	return nil
}

func (r *Room) runTicker(ctx context.Context) {
	t := time.NewTicker(r.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			res := r.Tick()
			r.mu.Lock()
			fn := r.onDropped
			r.mu.Unlock()
			if fn != nil && len(res.Dropped) > 0 {
				fn(r, res)
			}
		}
	}
}

func (r *Room) ID() domain.RoomID     { return r.meta.ID }
func (r *Room) Name() domain.RoomName { return r.meta.Name }
func (r *Room) Kind() domain.RoomKind { return r.meta.Kind }
func (r *Room) Room() domain.Room     { return r.meta }

func (r *Room) Lifecycle() Lifecycle { return Lifecycle(r.lifecycle.Load()) }

// MemberCount is the number of attached sessions.
func (r *Room) MemberCount() int { return int(r.clients.Load()) }

func (r *Room) Info() RoomInfo {
	return RoomInfo{
		ID:        r.meta.ID,
		Name:      r.meta.Name,
		Kind:      r.meta.Kind,
		Clients:   r.MemberCount(),
		Lifecycle: r.Lifecycle().String(),
	}
}

// OnDispose registers fn to run once, after the room is disposed.
func (r *Room) OnDispose(fn func(*Room)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDispose = fn
}

// OnDropped registers fn to receive deliveries the maintenance ticker
// could not make. Other operations return their PublishResult to the caller.
func (r *Room) OnDropped(fn func(*Room, PublishResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDropped = fn
}

// UserCount is the number of presence records, which the sweep may shrink
// below MemberCount.
func (r *Room) UserCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return 0
	}
	return r.state.userCount()
}

// Inspect runs fn with the room state (*LobbyState, *PageState or *PostState)
// under the room lock. fn must not retain the pointer.
func (r *Room) Inspect(fn func(state any)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	fn(r.state.state())
}

// Join attaches a session, sends it the full state and the room welcome,
// and broadcasts the resulting patch to everyone else.
func (r *Room) Join(sid SessionID, conn SignalConnection, opts JoinOptions) (*Session, PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return nil, PublishResult{}, ErrRoomDisposed
	}
	if _, ok := r.sessions[sid]; ok {
		return nil, PublishResult{}, ErrSessionExists
	}
	if len(r.sessions) >= r.cfg.MaxClients {
		return nil, PublishResult{}, fmt.Errorf("%w: %d/%d", ErrRoomFull, len(r.sessions), r.cfg.MaxClients)
	}

	now := r.cfg.Now()
	s := newSession(sid, conn, now, r.cfg)
	r.sessions[sid] = s
	r.clients.Store(int32(len(r.sessions)))
	r.cancelGrace()
	r.lifecycle.Store(int32(LifecycleActive))
	r.joins++

	var welcome []any
	r.safely("join", sid, func() {
		welcome = r.state.join(r, s, opts, now)
	})
	r.flush(sid)
	r.sendTo(s, StateFrame{Type: "state", Version: r.version, State: r.state.state()})
	for _, w := range welcome {
		r.sendTo(s, w)
	}

	metrics.SessionsJoined.WithLabelValues(string(r.meta.Kind)).Inc()
	r.logger.Info().Str("sid", string(sid)).Int("clients", len(r.sessions)).Msg("member added")
	return s, r.takeResult(), nil
}

// Leave detaches a session. Consented and abrupt leaves run the same cleanup;
// leaving twice is a no-op. ok reports whether the session was attached.
func (r *Room) Leave(sid SessionID, consented bool) (res PublishResult, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return PublishResult{}, false
	}
	if _, ok := r.sessions[sid]; !ok {
		return PublishResult{}, false
	}
	delete(r.sessions, sid)
	r.clients.Store(int32(len(r.sessions)))

	r.safely("leave", sid, func() {
		r.state.leave(r, domain.UserID(sid), r.cfg.Now())
	})
	r.flush("")

	if len(r.sessions) == 0 {
		r.lifecycle.Store(int32(LifecycleIdle))
		r.armGrace()
	}
	r.logger.Info().Str("sid", string(sid)).Bool("consented", consented).Int("clients", len(r.sessions)).Msg("member removed")
	return r.takeResult(), true
}

// Handle decodes env against this room's message set and dispatches it.
// Unknown or malformed messages are logged and ignored.
func (r *Room) Handle(sid SessionID, env Envelope) PublishResult {
	msg, err := DecodeMessage(r.meta.Kind, env)
	if err != nil {
		reason := "unknown"
		if errors.Is(err, ErrBadPayload) {
			reason = "bad_payload"
		}
		metrics.MessagesIgnored.WithLabelValues(string(r.meta.Kind), reason).Inc()
		r.logger.Warn().Err(err).Str("sid", string(sid)).Str("type", env.Type).Msg("message ignored")
		return PublishResult{}
	}
	return r.Dispatch(sid, msg)
}

// Dispatch runs the handler for msg on behalf of sid. Messages for a disposed
// room or from a detached session are dropped.
func (r *Room) Dispatch(sid SessionID, msg Message) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := string(r.meta.Kind)
	if r.disposed {
		metrics.MessagesIgnored.WithLabelValues(kind, "disposed").Inc()
		return PublishResult{}
	}
	s, ok := r.sessions[sid]
	if !ok {
		return PublishResult{}
	}
	now := r.cfg.Now()
	if _, ok := msg.(throttled); ok && !s.allow(now) {
		metrics.MessagesIgnored.WithLabelValues(kind, "throttled").Inc()
		return PublishResult{}
	}

	typ := msg.MessageType()
	r.safely(typ, sid, func() {
		r.state.handle(r, s, msg, now)
	})
	metrics.MessagesHandled.WithLabelValues(kind, typ).Inc()
	r.flush("")
	return r.takeResult()
}

// Tick runs the presence sweep and any per-kind periodic work.
func (r *Room) Tick() PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return PublishResult{}
	}
	r.safely("tick", "", func() {
		r.state.tick(r, r.cfg.Now())
	})
	r.flush("")
	return r.takeResult()
}

// UpdateSummaries replaces the known-room summaries of a lobby room.
// Other kinds ignore it.
func (r *Room) UpdateSummaries(rooms map[string]domain.RoomSnapshot) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return PublishResult{}
	}
	l, ok := r.state.(*lobby)
	if !ok {
		return PublishResult{}
	}
	l.setRooms(r, rooms)
	r.flush("")
	return r.takeResult()
}

// Dispose cancels the ticker and grace timer and releases state.
func (r *Room) Dispose() { r.dispose(false, 0) }

// disposeIfIdle is the grace timer callback for arm gen. A callback that
// lost the race for mu to a later cancel or re-arm does nothing.
func (r *Room) disposeIfIdle(gen uint64) { r.dispose(true, gen) }

func (r *Room) dispose(onlyIfIdle bool, gen uint64) {
	r.mu.Lock()
	if r.disposed || (onlyIfIdle && (len(r.sessions) > 0 || gen != r.graceGen)) {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	r.lifecycle.Store(int32(LifecycleDisposed))
	if r.stopTick != nil {
		r.stopTick()
	}
	r.cancelGrace()
	r.sessions = make(map[SessionID]*Session)
	r.clients.Store(0)
	r.pending = nil
	r.state = nil
	fn := r.onDispose
	r.mu.Unlock()

	r.logger.Info().Bool("idle", onlyIfIdle).Msg("room disposed")
	if fn != nil {
		fn(r)
	}
}

func (r *Room) armGrace() {
	r.cancelGrace()
	gen := r.graceGen
	r.grace = time.AfterFunc(r.cfg.GracePeriod, func() { r.disposeIfIdle(gen) })
}

func (r *Room) cancelGrace() {
	r.graceGen++
	if r.grace != nil {
		r.grace.Stop()
		r.grace = nil
	}
}

// takeResult hands over the delivery report of the current operation.
func (r *Room) takeResult() PublishResult {
	res := r.result
	r.result = PublishResult{}
	return res
}

func (r *Room) safely(what string, sid SessionID, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			metrics.MessagesIgnored.WithLabelValues(string(r.meta.Kind), "panic").Inc()
			r.logger.Error().Interface("panic", p).Str("sid", string(sid)).Str("type", what).Msg("handler panic recovered")
		}
	}()
	fn()
}

// op records a state change for the next patch.
func (r *Room) op(kind OpKind, path string, value any) {
	r.pending = append(r.pending, Op{Op: kind, Path: path, Value: value})
}

func (r *Room) flush(except SessionID) {
	if len(r.pending) == 0 {
		return
	}
	r.version++
	frame := PatchFrame{Type: "patch", Version: r.version, Ops: r.pending}
	r.pending = nil
	r.broadcast(frame, except)
}

// broadcast is fire-and-forget fan-out to every attached session but except.
func (r *Room) broadcast(v any, except SessionID) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error().Err(err).Msg("broadcast marshal")
		return
	}
	for sid, s := range r.sessions {
		if sid == except {
			continue
		}
		r.deliver(s, data)
	}
}

func (r *Room) sendTo(s *Session, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error().Err(err).Msg("send marshal")
		return
	}
	r.deliver(s, data)
}

func (r *Room) deliver(s *Session, data Frame) {
	if s.conn == nil {
		return
	}
	if err := s.conn.TrySend(data); err != nil {
		metrics.FramesDropped.Inc()
		if !slices.Contains(r.result.Dropped, s.ID) {
			r.result.Dropped = append(r.result.Dropped, s.ID)
		}
		return
	}
	r.result.SendTo++
}
