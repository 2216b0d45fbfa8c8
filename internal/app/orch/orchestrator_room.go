package orch

import (
	"context"

	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join attaches sid to the room serving kind/opts. A session already in a
// room is detached from it first.
func (o *Orchestrator) Join(
	ctx context.Context,
	sid core.SessionID,
	conn core.SignalConnection,
	kind domain.RoomKind,
	opts core.CreateOptions,
	jopts core.JoinOptions,
) (*core.Room, error) {
	if from, ok := o.RoomOf(sid); ok {
		o.Leave(sid, true)
		log.Info().Str("sid", string(sid)).Str("from_room", string(from.ID())).Msg("left previous room")
	}

	room, _, err := o.Registry.JoinOrCreate(ctx, kind, opts, sid, conn, jopts)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.bound[sid] = binding{room: room, conn: conn}
	o.mu.Unlock()
	log.Info().Str("sid", string(sid)).Str("room", string(room.ID())).Str("name", string(room.Name())).Msg("added to room")
	return room, nil
}

// Leave detaches sid. Consented and transport-initiated leaves clean up the same way.
func (o *Orchestrator) Leave(sid core.SessionID, consented bool) bool {
	o.mu.Lock()
	b, ok := o.bound[sid]
	delete(o.bound, sid)
	o.mu.Unlock()
	if !ok {
		return false
	}
	res, _ := b.room.Leave(sid, consented)
	o.applyPolicy(b.room, res)
	return true
}

// OnDisconnect is called by the transport once the connection is gone.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.Leave(sid, false)
}

// KickBySID detaches sid and closes its connection.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.mu.RLock()
	b, ok := o.bound[sid]
	o.mu.RUnlock()
	if !ok {
		return
	}
	o.Leave(sid, false)
	b.conn.Close()
}

// EvictRoom kicks every session in room and disposes it. It reports
// whether the room was live.
func (o *Orchestrator) EvictRoom(id domain.RoomID) bool {
	room, ok := o.Registry.Get(id)
	if !ok {
		return false
	}
	var sids []core.SessionID
	o.mu.RLock()
	for sid, b := range o.bound {
		if b.room.ID() == id {
			sids = append(sids, sid)
		}
	}
	o.mu.RUnlock()
	for _, sid := range sids {
		o.KickBySID(sid)
	}
	room.Dispose()
	log.Info().Str("module", "app.orch").Str("room", string(id)).Int("kicked", len(sids)).Msg("room evicted")
	return true
}
