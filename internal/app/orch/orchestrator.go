package orch

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/Presence/internal/app"
	"github.com/dkeye/Presence/internal/core"
	"github.com/rs/zerolog/log"
)

// TypeLeave is the envelope type a client sends to leave its room on purpose.
const TypeLeave = "leave"

type binding struct {
	room *core.Room
	conn core.SignalConnection
}

// Orchestrator binds transport sessions to rooms and applies the
// backpressure policy to whatever a room could not deliver.
type Orchestrator struct {
	Registry *app.Registry
	Policy   app.Policy

	mu    sync.RWMutex
	bound map[core.SessionID]binding
}

// New wires the policy to every drop reg reports, including those from
// joins and room tickers.
func New(reg *app.Registry, policy app.Policy) *Orchestrator {
	o := &Orchestrator{
		Registry: reg,
		Policy:   policy,
		bound:    make(map[core.SessionID]binding),
	}
	reg.SetDropHandler(o.applyPolicy)
	return o
}

// RoomOf returns the room sid is attached to.
func (o *Orchestrator) RoomOf(sid core.SessionID) (*core.Room, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	b, ok := o.bound[sid]
	return b.room, ok
}

// OnFrame routes one inbound frame. Malformed frames are logged and dropped.
func (o *Orchestrator) OnFrame(sid core.SessionID, data core.Frame) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Str("module", "app.orch").Str("sid", string(sid)).Err(err).Msg("bad envelope")
		return
	}
	if env.Type == TypeLeave {
		o.Leave(sid, true)
		return
	}
	room, ok := o.RoomOf(sid)
	if !ok {
		return
	}

	res := room.Handle(sid, env)
	o.applyPolicy(room, res)
}

func (o *Orchestrator) applyPolicy(room *core.Room, res core.PublishResult) {
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			log.Warn().Str("module", "app.orch").Str("sid", string(slow)).Str("room", string(room.ID())).Msg("kicking slow session")
			o.KickBySID(slow)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}
