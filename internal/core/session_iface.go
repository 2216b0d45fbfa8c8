package core

import (
	"time"

	"golang.org/x/time/rate"
)

type SessionID string

// Session is one live connection attached to exactly one room.
// The room never closes conn; that stays with the adapter.
type Session struct {
	ID       SessionID
	JoinedAt time.Time

	conn    SignalConnection
	limiter *rate.Limiter
}

func newSession(id SessionID, conn SignalConnection, now time.Time, cfg RoomConfig) *Session {
	return &Session{
		ID:       id,
		JoinedAt: now,
		conn:     conn,
		limiter:  rate.NewLimiter(cfg.CursorRate, cfg.CursorBurst),
	}
}

func (s *Session) Conn() SignalConnection { return s.conn }

func (s *Session) allow(now time.Time) bool {
	return s.limiter.AllowN(now, 1)
}
