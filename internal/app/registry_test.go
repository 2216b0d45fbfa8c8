package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames int
	closed bool
}

func (c *fakeConn) TrySend(core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.frames++
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func roomConfigs(maxClients int, grace time.Duration) map[domain.RoomKind]core.RoomConfig {
	cfg := core.RoomConfig{
		MaxClients:   maxClients,
		TickInterval: time.Hour,
		IdleTimeout:  time.Hour,
		GracePeriod:  grace,
	}
	return map[domain.RoomKind]core.RoomConfig{
		domain.KindLobby: cfg,
		domain.KindPage:  cfg,
		domain.KindPost:  cfg,
	}
}

func newTestRegistry(t *testing.T, maxClients int, grace time.Duration, content ContentService) *Registry {
	t.Helper()
	reg := NewRegistry(context.Background(), roomConfigs(maxClients, grace), content)
	t.Cleanup(reg.Close)
	return reg
}

func TestRegistryRoutesJoinsToOneRoom(t *testing.T) {
	reg := newTestRegistry(t, 10, time.Hour, nil)
	ctx := t.Context()

	a, _, err := reg.JoinOrCreate(ctx, domain.KindLobby, core.CreateOptions{}, "s1", &fakeConn{}, core.JoinOptions{Name: "ann"})
	require.NoError(t, err)
	b, _, err := reg.JoinOrCreate(ctx, domain.KindLobby, core.CreateOptions{}, "s2", &fakeConn{}, core.JoinOptions{Name: "bob"})
	require.NoError(t, err)
	assert.Same(t, a, b)

	rooms, err := reg.Enumerate(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, domain.RoomName("lobby"), rooms[0].Name)
	assert.Equal(t, 2, rooms[0].Clients)
}

func TestRegistryPageRoomsPerPage(t *testing.T) {
	reg := newTestRegistry(t, 10, time.Hour, nil)
	ctx := t.Context()

	about, _, err := reg.JoinOrCreate(ctx, domain.KindPage, core.CreateOptions{ContentID: "about"}, "s1", &fakeConn{}, core.JoinOptions{})
	require.NoError(t, err)
	blog, _, err := reg.JoinOrCreate(ctx, domain.KindPage, core.CreateOptions{ContentID: "blog"}, "s2", &fakeConn{}, core.JoinOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, about.ID(), blog.ID())
	assert.Equal(t, domain.RoomName("page_about"), about.Name())

	_, _, err = reg.JoinOrCreate(ctx, domain.KindPage, core.CreateOptions{}, "s3", &fakeConn{}, core.JoinOptions{})
	assert.ErrorIs(t, err, core.ErrMissingContent)
}

func TestRegistryRejectsWhenFull(t *testing.T) {
	reg := newTestRegistry(t, 1, time.Hour, nil)
	ctx := t.Context()

	_, _, err := reg.JoinOrCreate(ctx, domain.KindLobby, core.CreateOptions{}, "s1", &fakeConn{}, core.JoinOptions{})
	require.NoError(t, err)
	_, _, err = reg.JoinOrCreate(ctx, domain.KindLobby, core.CreateOptions{}, "s2", &fakeConn{}, core.JoinOptions{})
	assert.ErrorIs(t, err, core.ErrRoomFull)
}

func TestRegistryPostTitleFromContent(t *testing.T) {
	content := NewStaticContent([]Content{{ID: "p1", Title: "Hello"}})
	reg := newTestRegistry(t, 10, time.Hour, content)
	ctx := t.Context()

	room, _, err := reg.JoinOrCreate(ctx, domain.KindPost, core.CreateOptions{ContentID: "p1", Title: "ignored"}, "s1", &fakeConn{}, core.JoinOptions{})
	require.NoError(t, err)
	room.Inspect(func(state any) {
		st := state.(*core.PostState)
		assert.Equal(t, "Hello", st.PostTitle)
		assert.Equal(t, "p1", st.PostID)
	})

	_, _, err = reg.JoinOrCreate(ctx, domain.KindPost, core.CreateOptions{ContentID: "missing"}, "s2", &fakeConn{}, core.JoinOptions{})
	assert.ErrorIs(t, err, ErrContentNotFound)

	_, _, err = reg.JoinOrCreate(ctx, domain.KindPost, core.CreateOptions{ContentID: "draft", Title: "Draft"}, "s3", &fakeConn{}, core.JoinOptions{})
	assert.NoError(t, err)
}

func TestRegistryForgetsDisposedRooms(t *testing.T) {
	reg := newTestRegistry(t, 10, 20*time.Millisecond, nil)
	ctx := t.Context()

	room, _, err := reg.JoinOrCreate(ctx, domain.KindLobby, core.CreateOptions{}, "s1", &fakeConn{}, core.JoinOptions{})
	require.NoError(t, err)
	_, ok := room.Leave("s1", true)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		rooms, err := reg.Enumerate(ctx)
		return err == nil && len(rooms) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, core.LifecycleDisposed, room.Lifecycle())

	next, _, err := reg.JoinOrCreate(ctx, domain.KindLobby, core.CreateOptions{}, "s2", &fakeConn{}, core.JoinOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, room.ID(), next.ID())
}

func TestRegistryEnumerateHonoursContext(t *testing.T) {
	reg := newTestRegistry(t, 10, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reg.Enumerate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistryCreateKeepsExistingRoute(t *testing.T) {
	reg := newTestRegistry(t, 10, time.Hour, nil)
	ctx := t.Context()

	first, err := reg.Create(ctx, domain.KindLobby, core.CreateOptions{})
	require.NoError(t, err)
	second, err := reg.Create(ctx, domain.KindLobby, core.CreateOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	joined, _, err := reg.JoinOrCreate(ctx, domain.KindLobby, core.CreateOptions{}, "s1", &fakeConn{}, core.JoinOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.ID(), joined.ID())

	rooms, err := reg.Enumerate(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	_, err = reg.Create(ctx, domain.RoomKind("arena"), core.CreateOptions{})
	assert.Error(t, err)
}

func TestRegistryPublishSummariesReachesLobbies(t *testing.T) {
	reg := newTestRegistry(t, 10, time.Hour, nil)
	ctx := t.Context()

	lobby, _, err := reg.JoinOrCreate(ctx, domain.KindLobby, core.CreateOptions{}, "s1", &fakeConn{}, core.JoinOptions{})
	require.NoError(t, err)

	reg.PublishSummaries(map[string]domain.RoomSnapshot{
		"about": {RoomID: "about", RoomType: "about", DisplayName: "About", UserCount: 2},
	})
	lobby.Inspect(func(state any) {
		st := state.(*core.LobbyState)
		require.Contains(t, st.Rooms, "about")
		assert.Equal(t, 2, st.Rooms["about"].UserCount)
	})
}

func TestRegistryReportsDroppedDeliveries(t *testing.T) {
	reg := newTestRegistry(t, 10, time.Hour, nil)
	ctx := t.Context()

	var dropped []core.SessionID
	reg.SetDropHandler(func(_ *core.Room, res core.PublishResult) {
		dropped = append(dropped, res.Dropped...)
	})

	slow := &fakeConn{}
	_, _, err := reg.JoinOrCreate(ctx, domain.KindLobby, core.CreateOptions{}, "s1", slow, core.JoinOptions{})
	require.NoError(t, err)
	slow.Close()

	_, _, err = reg.JoinOrCreate(ctx, domain.KindLobby, core.CreateOptions{}, "s2", &fakeConn{}, core.JoinOptions{})
	require.NoError(t, err)
	reg.PublishSummaries(map[string]domain.RoomSnapshot{})

	assert.Equal(t, []core.SessionID{"s1", "s1"}, dropped)
}
