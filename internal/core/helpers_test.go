package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/stretchr/testify/require"
)

var errFull = errors.New("send buffer full")

// fakeConn records every frame it accepts.
type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errFull
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// typed returns the decoded frames whose "type" equals typ.
func (c *fakeConn) typed(t *testing.T, typ string) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// clock is a manually advanced room clock.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig(clk *clock) RoomConfig {
	return RoomConfig{
		MaxClients:   8,
		TickInterval: time.Hour,
		IdleTimeout:  60 * time.Second,
		GracePeriod:  time.Hour,
		CursorRate:   1000,
		CursorBurst:  1000,
		Now:          clk.Now,
	}
}

func newTestRoom(t *testing.T, kind domain.RoomKind, opts CreateOptions, cfg RoomConfig) *Room {
	t.Helper()
	name := domain.RoomName(kind)
	if kind == domain.KindPage {
		name = domain.RoomName(domain.PagePrefix + opts.ContentID)
	}
	r, err := NewRoom(context.Background(), domain.Room{ID: domain.RoomID("r-" + string(kind)), Name: name, Kind: kind}, opts, cfg)
	require.NoError(t, err)
	t.Cleanup(r.Dispose)
	return r
}

func join(t *testing.T, r *Room, sid string, name string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	_, _, err := r.Join(SessionID(sid), conn, JoinOptions{Name: name})
	require.NoError(t, err)
	return conn
}

func env(t *testing.T, typ string, payload any) Envelope {
	t.Helper()
	e := Envelope{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		e.Payload = raw
	}
	return e
}

func pageState(r *Room) (ps PageState) {
	r.Inspect(func(s any) {
		p := s.(*PageState)
		ps = *p
		ps.Users = cloneMap(p.Users)
		ps.Cursors = cloneMap(p.Cursors)
	})
	return ps
}

func lobbyState(r *Room) (ls LobbyState) {
	r.Inspect(func(s any) {
		l := s.(*LobbyState)
		ls = *l
		ls.Users = cloneMap(l.Users)
	})
	return ls
}

func postState(r *Room) (ps PostState) {
	r.Inspect(func(s any) {
		p := s.(*PostState)
		ps = *p
		ps.Users = cloneMap(p.Users)
		ps.Comments = append([]*domain.Comment(nil), p.Comments...)
	})
	return ps
}

func cloneMap[K comparable, V any](m map[K]*V) map[K]*V {
	out := make(map[K]*V, len(m))
	for k, v := range m {
		c := *v
		out[k] = &c
	}
	return out
}
