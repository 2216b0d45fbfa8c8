package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Presence/internal/app"
	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestOrchestrator(t *testing.T, policy app.Policy) *Orchestrator {
	t.Helper()
	cfg := core.RoomConfig{TickInterval: time.Hour, IdleTimeout: time.Hour, GracePeriod: time.Hour}
	reg := app.NewRegistry(context.Background(), map[domain.RoomKind]core.RoomConfig{
		domain.KindLobby: cfg,
		domain.KindPage:  cfg,
	}, nil)
	t.Cleanup(reg.Close)
	return New(reg, policy)
}

func frame(t *testing.T, typ string, payload any) core.Frame {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(core.Envelope{Type: typ, Payload: raw})
	require.NoError(t, err)
	return data
}

func TestOrchestratorRoutesFrames(t *testing.T) {
	o := newTestOrchestrator(t, app.SimplePolicy{})
	room, err := o.Join(t.Context(), "s1", &fakeConn{}, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{Name: "ann"})
	require.NoError(t, err)

	o.OnFrame("s1", frame(t, "move", map[string]float64{"x": 10, "y": 20}))
	room.Inspect(func(state any) {
		u := state.(*core.LobbyState).Users["s1"]
		require.NotNil(t, u)
		assert.Equal(t, domain.Position{X: 10, Y: 20}, u.Position)
	})

	// garbage and unbound sessions are ignored
	o.OnFrame("s1", core.Frame("{not json"))
	o.OnFrame("ghost", frame(t, "move", map[string]float64{"x": 1, "y": 1}))
}

func TestOrchestratorLeaveFrame(t *testing.T) {
	o := newTestOrchestrator(t, app.SimplePolicy{})
	room, err := o.Join(t.Context(), "s1", &fakeConn{}, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{})
	require.NoError(t, err)

	o.OnFrame("s1", core.Frame(`{"type":"leave"}`))
	_, bound := o.RoomOf("s1")
	assert.False(t, bound)
	assert.Equal(t, 0, room.MemberCount())
	assert.Equal(t, 0, room.UserCount())

	// the transport close that follows is a no-op
	o.OnDisconnect("s1")
	assert.False(t, o.Leave("s1", false))
}

func TestOrchestratorRejoinSwitchesRoom(t *testing.T) {
	o := newTestOrchestrator(t, app.SimplePolicy{})
	conn := &fakeConn{}
	lobby, err := o.Join(t.Context(), "s1", conn, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{})
	require.NoError(t, err)
	page, err := o.Join(t.Context(), "s1", conn, domain.KindPage, core.CreateOptions{ContentID: "about"}, core.JoinOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, lobby.MemberCount())
	assert.Equal(t, 1, page.MemberCount())
	got, ok := o.RoomOf("s1")
	require.True(t, ok)
	assert.Same(t, page, got)
}

func TestOrchestratorKicksSlowSessions(t *testing.T) {
	o := newTestOrchestrator(t, app.SimplePolicy{})
	fast, slow := &fakeConn{}, &fakeConn{}
	room, err := o.Join(t.Context(), "fast", fast, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{})
	require.NoError(t, err)
	_, err = o.Join(t.Context(), "slow", slow, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{})
	require.NoError(t, err)

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	o.OnFrame("fast", frame(t, "move", map[string]float64{"x": 5, "y": 5}))

	assert.True(t, slow.isClosed())
	assert.False(t, fast.isClosed())
	_, bound := o.RoomOf("slow")
	assert.False(t, bound)
	assert.Equal(t, 1, room.MemberCount())
}

func TestOrchestratorTolerantPolicyKeepsSlowSessions(t *testing.T) {
	o := newTestOrchestrator(t, app.TolerantPolicy{})
	slow := &fakeConn{}
	_, err := o.Join(t.Context(), "fast", &fakeConn{}, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{})
	require.NoError(t, err)
	_, err = o.Join(t.Context(), "slow", slow, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{})
	require.NoError(t, err)

	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()
	o.OnFrame("fast", frame(t, "move", map[string]float64{"x": 5, "y": 5}))

	assert.False(t, slow.isClosed())
	_, bound := o.RoomOf("slow")
	assert.True(t, bound)
}

func TestOrchestratorEvictRoom(t *testing.T) {
	o := newTestOrchestrator(t, app.SimplePolicy{})
	a, b := &fakeConn{}, &fakeConn{}
	room, err := o.Join(t.Context(), "a", a, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{})
	require.NoError(t, err)
	_, err = o.Join(t.Context(), "b", b, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{})
	require.NoError(t, err)

	assert.True(t, o.EvictRoom(room.ID()))
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.Equal(t, core.LifecycleDisposed, room.Lifecycle())
	_, ok := o.Registry.Get(room.ID())
	assert.False(t, ok)
}

func TestOrchestratorEvictUnknownRoom(t *testing.T) {
	o := newTestOrchestrator(t, app.SimplePolicy{})
	assert.False(t, o.EvictRoom("nope"))
}

func TestOrchestratorKicksSessionsDroppedOnJoin(t *testing.T) {
	o := newTestOrchestrator(t, app.SimplePolicy{})
	slow := &fakeConn{}
	room, err := o.Join(t.Context(), "slow", slow, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{})
	require.NoError(t, err)
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	_, err = o.Join(t.Context(), "next", &fakeConn{}, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{})
	require.NoError(t, err)

	assert.True(t, slow.isClosed())
	_, bound := o.RoomOf("slow")
	assert.False(t, bound)
	assert.Equal(t, 1, room.MemberCount())
}

func TestOrchestratorKicksSessionsDroppedOnLeave(t *testing.T) {
	o := newTestOrchestrator(t, app.SimplePolicy{})
	slow := &fakeConn{}
	room, err := o.Join(t.Context(), "slow", slow, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{})
	require.NoError(t, err)
	_, err = o.Join(t.Context(), "leaver", &fakeConn{}, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{})
	require.NoError(t, err)
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	require.True(t, o.Leave("leaver", true))
	assert.True(t, slow.isClosed())
	assert.Equal(t, 0, room.MemberCount())
}

func TestOrchestratorKicksSessionsDroppedByTicker(t *testing.T) {
	cfg := core.RoomConfig{TickInterval: 10 * time.Millisecond, IdleTimeout: time.Hour, GracePeriod: time.Hour}
	reg := app.NewRegistry(context.Background(), map[domain.RoomKind]core.RoomConfig{domain.KindLobby: cfg}, nil)
	t.Cleanup(reg.Close)
	o := New(reg, app.SimplePolicy{})

	slow := &fakeConn{}
	_, err := o.Join(t.Context(), "slow", slow, domain.KindLobby, core.CreateOptions{}, core.JoinOptions{})
	require.NoError(t, err)
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	require.Eventually(t, slow.isClosed, time.Second, 5*time.Millisecond)
	_, bound := o.RoomOf("slow")
	assert.False(t, bound)
}
