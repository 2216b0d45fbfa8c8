package core

import (
	"errors"
	"time"

	"github.com/dkeye/Presence/internal/domain"
	"golang.org/x/time/rate"
)

var (
	ErrRoomFull       = errors.New("room is full")
	ErrRoomDisposed   = errors.New("room disposed")
	ErrSessionExists  = errors.New("session already joined")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrBadPayload     = errors.New("bad payload")
	ErrMissingContent = errors.New("content id required")
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

// RoomInfo is the lightweight metadata the registry enumerates.
// Reading it never takes the room lock.
type RoomInfo struct {
	ID        domain.RoomID   `json:"id"`
	Name      domain.RoomName `json:"name"`
	Kind      domain.RoomKind `json:"kind"`
	Clients   int             `json:"client_count"`
	Lifecycle string          `json:"lifecycle"`
}

type Lifecycle int32

const (
	LifecycleCreated Lifecycle = iota
	LifecycleInitialized
	LifecycleActive
	LifecycleIdle
	LifecycleDisposed
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleCreated:
		return "created"
	case LifecycleInitialized:
		return "initialized"
	case LifecycleActive:
		return "active"
	case LifecycleIdle:
		return "idle"
	case LifecycleDisposed:
		return "disposed"
	}
	return "unknown"
}

// CreateOptions are fixed for the lifetime of a room.
type CreateOptions struct {
	// ContentID is the page id for page rooms and the post id for post rooms.
	ContentID string `json:"contentId"`
	Title     string `json:"title"`
	// Category seeds the lobby's activeCategory.
	Category string `json:"category"`
}

type JoinOptions struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type RoomConfig struct {
	MaxClients   int
	TickInterval time.Duration
	IdleTimeout  time.Duration
	GracePeriod  time.Duration
	CursorRate   rate.Limit
	CursorBurst  int
	// Now is the room clock; tests replace it.
	Now func() time.Time
}

const (
	DefaultMaxClients  = 50
	DefaultIdleTimeout = 60 * time.Second
	DefaultGracePeriod = 5 * time.Second
	DefaultCursorRate  = rate.Limit(30)
	DefaultCursorBurst = 10
)

// DefaultTickInterval is the maintenance cadence per room kind.
func DefaultTickInterval(kind domain.RoomKind) time.Duration {
	switch kind {
	case domain.KindPage:
		return 5 * time.Second
	case domain.KindPost:
		return 30 * time.Second
	}
	return 10 * time.Second
}

func (c RoomConfig) withDefaults(kind domain.RoomKind) RoomConfig {
	if c.MaxClients <= 0 {
		c.MaxClients = DefaultMaxClients
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval(kind)
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.CursorRate <= 0 {
		c.CursorRate = DefaultCursorRate
	}
	if c.CursorBurst <= 0 {
		c.CursorBurst = DefaultCursorBurst
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
