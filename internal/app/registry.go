package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// joinAttempts bounds retries when a routed room is disposed under a join.
const joinAttempts = 3

// Registry creates rooms, routes joins to them and enumerates them.
// It holds only room handles; room state stays behind each room's own lock.
type Registry struct {
	ctx     context.Context
	cancel  context.CancelFunc
	configs map[domain.RoomKind]core.RoomConfig
	content ContentService

	mu     sync.RWMutex
	rooms  map[domain.RoomID]*core.Room
	routes map[string]domain.RoomID
	keys   map[domain.RoomID]string

	onDropped func(*core.Room, core.PublishResult)
}

// NewRegistry builds a registry whose rooms live until parent is cancelled or
// Close is called. content may be nil when post titles come from join options.
func NewRegistry(parent context.Context, configs map[domain.RoomKind]core.RoomConfig, content ContentService) *Registry {
	ctx, cancel := context.WithCancel(parent)
	if configs == nil {
		configs = make(map[domain.RoomKind]core.RoomConfig)
	}
	return &Registry{
		ctx:     ctx,
		cancel:  cancel,
		configs: configs,
		content: content,
		rooms:   make(map[domain.RoomID]*core.Room),
		routes:  make(map[string]domain.RoomID),
		keys:    make(map[domain.RoomID]string),
	}
}

// SetDropHandler registers fn to receive every delivery a room reports as
// dropped, whether from a join, a summary push or the room's own ticker.
func (r *Registry) SetDropHandler(fn func(*core.Room, core.PublishResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDropped = fn
}

func (r *Registry) dropped(room *core.Room, res core.PublishResult) {
	if len(res.Dropped) == 0 {
		return
	}
	r.mu.RLock()
	fn := r.onDropped
	r.mu.RUnlock()
	if fn != nil {
		fn(room, res)
	}
}

// RoomName is the registered name of a room; the stats aggregator classifies on it.
func RoomName(kind domain.RoomKind, opts core.CreateOptions) domain.RoomName {
	switch kind {
	case domain.KindPage:
		return domain.RoomName(domain.PagePrefix + opts.ContentID)
	case domain.KindPost:
		return domain.RoomName(domain.KindPost)
	}
	return domain.RoomName(domain.KindLobby)
}

// routeKey identifies the room that serves joins for kind and opts.
func routeKey(kind domain.RoomKind, opts core.CreateOptions) string {
	if kind == domain.KindLobby {
		return string(kind)
	}
	return string(kind) + ":" + opts.ContentID
}

// Create always allocates a new room. It becomes the join target for its
// route only if no other room serves that route.
func (r *Registry) Create(ctx context.Context, kind domain.RoomKind, opts core.CreateOptions) (*core.Room, error) {
	opts, err := r.resolve(ctx, kind, opts)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	room, err := r.newRoomLocked(kind, opts)
	if err != nil {
		return nil, err
	}
	key := routeKey(kind, opts)
	if _, ok := r.routes[key]; !ok {
		r.routes[key] = room.ID()
	}
	return room, nil
}

// JoinOrCreate attaches sid to the room serving kind/opts, creating it on
// first demand. A full room rejects the join with core.ErrRoomFull.
func (r *Registry) JoinOrCreate(
	ctx context.Context,
	kind domain.RoomKind,
	opts core.CreateOptions,
	sid core.SessionID,
	conn core.SignalConnection,
	jopts core.JoinOptions,
) (*core.Room, *core.Session, error) {
	for range joinAttempts {
		room, err := r.GetOrCreate(ctx, kind, opts)
		if err != nil {
			metrics.JoinsRejected.WithLabelValues("create").Inc()
			return nil, nil, err
		}
		sess, res, err := room.Join(sid, conn, jopts)
		switch {
		case err == nil:
			r.dropped(room, res)
			return room, sess, nil
		case errors.Is(err, core.ErrRoomDisposed):
			r.forget(room)
			continue
		case errors.Is(err, core.ErrRoomFull):
			metrics.JoinsRejected.WithLabelValues("full").Inc()
			log.Warn().Str("module", "app.registry").Str("room", string(room.ID())).Str("sid", string(sid)).Msg("room full")
			return nil, nil, err
		default:
			metrics.JoinsRejected.WithLabelValues("join").Inc()
			return nil, nil, err
		}
	}
	return nil, nil, fmt.Errorf("join %s: %w", kind, core.ErrRoomDisposed)
}

// GetOrCreate returns the room currently serving kind/opts.
func (r *Registry) GetOrCreate(ctx context.Context, kind domain.RoomKind, opts core.CreateOptions) (*core.Room, error) {
	if _, err := domain.ParseKind(string(kind)); err != nil {
		return nil, err
	}
	key := routeKey(kind, opts)
	if room, ok := r.routed(key); ok {
		return room, nil
	}

	// Content lookups may do I/O; keep them outside the lock.
	opts, err := r.resolve(ctx, kind, opts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.routes[key]; ok {
		if room, ok := r.rooms[id]; ok {
			return room, nil
		}
	}
	room, err := r.newRoomLocked(kind, opts)
	if err != nil {
		return nil, err
	}
	r.routes[key] = room.ID()
	return room, nil
}

func (r *Registry) routed(key string) (*core.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.routes[key]
	if !ok {
		return nil, false
	}
	room, ok := r.rooms[id]
	return room, ok
}

func (r *Registry) newRoomLocked(kind domain.RoomKind, opts core.CreateOptions) (*core.Room, error) {
	meta := domain.Room{
		ID:   domain.RoomID(uuid.NewString()),
		Name: RoomName(kind, opts),
		Kind: kind,
	}
	room, err := core.NewRoom(r.ctx, meta, opts, r.configs[kind])
	if err != nil {
		return nil, fmt.Errorf("create %s room: %w", kind, err)
	}
	room.OnDispose(r.forget)
	room.OnDropped(r.dropped)
	r.rooms[meta.ID] = room
	r.keys[meta.ID] = routeKey(kind, opts)
	metrics.RoomsLive.WithLabelValues(string(kind)).Inc()
	log.Info().Str("module", "app.registry").Str("room", string(meta.ID)).Str("name", string(meta.Name)).Msg("room registered")
	return room, nil
}

// resolve fills post titles from the content service.
func (r *Registry) resolve(ctx context.Context, kind domain.RoomKind, opts core.CreateOptions) (core.CreateOptions, error) {
	if kind == domain.KindLobby {
		return opts, nil
	}
	if opts.ContentID == "" {
		return opts, fmt.Errorf("%s room: %w", kind, core.ErrMissingContent)
	}
	if kind != domain.KindPost || r.content == nil {
		return opts, nil
	}
	c, err := r.content.Lookup(ctx, opts.ContentID)
	switch {
	case err == nil:
		opts.Title = c.Title
	case errors.Is(err, ErrContentNotFound) && opts.Title != "":
	default:
		return opts, fmt.Errorf("lookup post %q: %w", opts.ContentID, err)
	}
	return opts, nil
}

func (r *Registry) forget(room *core.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := room.ID()
	if _, ok := r.rooms[id]; !ok {
		return
	}
	delete(r.rooms, id)
	if key := r.keys[id]; r.routes[key] == id {
		delete(r.routes, key)
	}
	delete(r.keys, id)
	metrics.RoomsLive.WithLabelValues(string(room.Kind())).Dec()
	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room unregistered")
}

// Get returns a live room by id.
func (r *Registry) Get(id domain.RoomID) (*core.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// Enumerate lists every live room with its session count. It reads only
// per-room atomics, so a busy room never delays it.
func (r *Registry) Enumerate(ctx context.Context) ([]core.RoomInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	rooms := slices.Collect(maps.Values(r.rooms))
	r.mu.RUnlock()

	out := make([]core.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Info())
	}
	slices.SortFunc(out, func(a, b core.RoomInfo) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// Rooms returns the live rooms of one kind.
func (r *Registry) Rooms(kind domain.RoomKind) []*core.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*core.Room
	for _, room := range r.rooms {
		if room.Kind() == kind {
			out = append(out, room)
		}
	}
	return out
}

// PublishSummaries hands the latest occupancy summary to every lobby room.
func (r *Registry) PublishSummaries(rooms map[string]domain.RoomSnapshot) {
	for _, room := range r.Rooms(domain.KindLobby) {
		r.dropped(room, room.UpdateSummaries(rooms))
	}
}

// Close disposes every room and stops their tickers.
func (r *Registry) Close() {
	r.cancel()
	r.mu.RLock()
	rooms := slices.Collect(maps.Values(r.rooms))
	r.mu.RUnlock()
	for _, room := range rooms {
		room.Dispose()
	}
}
