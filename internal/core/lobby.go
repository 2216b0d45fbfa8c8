package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/metrics"
)

type LobbyState struct {
	Users          map[domain.UserID]*domain.User `json:"users"`
	Rooms          map[string]domain.RoomSnapshot `json:"rooms"`
	TotalUsers     int                            `json:"totalUsers"`
	ActiveCategory string                         `json:"activeCategory"`
	LastActivityAt time.Time                      `json:"lastActivityAt"`
}

type lobby struct {
	LobbyState
}

func newLobby(opts CreateOptions, now time.Time) *lobby {
	category := opts.Category
	if category == "" {
		category = "home"
	}
	return &lobby{LobbyState{
		Users:          make(map[domain.UserID]*domain.User),
		Rooms:          make(map[string]domain.RoomSnapshot),
		ActiveCategory: category,
		LastActivityAt: now,
	}}
}

func (l *lobby) state() any     { return &l.LobbyState }
func (l *lobby) userCount() int { return len(l.Users) }

func (l *lobby) recount(r *Room) {
	if n := len(l.Users); n != l.TotalUsers {
		l.TotalUsers = n
		r.op(OpUpdate, Path("totalUsers"), n)
	}
}

type lobbyWelcome struct {
	Type      string    `json:"type"`
	SessionID SessionID `json:"sessionId"`
	Message   string    `json:"message"`
}

func (l *lobby) join(r *Room, s *Session, opts JoinOptions, now time.Time) []any {
	pos := domain.Position{X: randBetween(100, 700), Y: randBetween(100, 500)}
	u := newUser(s, opts, pos, now)
	l.Users[u.ID] = u
	r.op(OpAdd, userPath(u.ID), *u)
	l.recount(r)
	return []any{lobbyWelcome{
		Type:      "welcome",
		SessionID: s.ID,
		Message:   fmt.Sprintf("Welcome to the lobby, %s!", u.Name),
	}}
}

func (l *lobby) leave(r *Room, id domain.UserID, now time.Time) {
	if _, ok := l.Users[id]; !ok {
		return
	}
	delete(l.Users, id)
	r.op(OpRemove, userPath(id), nil)
	l.recount(r)
	r.broadcast(newDeparture(id), "")
}

type chatEvent struct {
	Type      string        `json:"type"`
	UserID    domain.UserID `json:"userId"`
	Name      string        `json:"name"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

func (l *lobby) handle(r *Room, s *Session, msg Message, now time.Time) {
	u, ok := l.Users[domain.UserID(s.ID)]
	if !ok {
		return
	}
	switch m := msg.(type) {
	case *Move:
		u.Position = domain.Position{X: m.X, Y: m.Y}
		u.Touch(now)
		r.op(OpUpdate, userPath(u.ID), *u)
	case *StatusUpdate:
		if !applyStatus(u, m) {
			return
		}
		u.Touch(now)
		r.op(OpUpdate, userPath(u.ID), *u)
	case *Chat:
		text := strings.TrimSpace(m.Message)
		if text == "" || len(text) > domain.MaxMessageLen {
			return
		}
		u.Touch(now)
		r.op(OpUpdate, userPath(u.ID), *u)
		r.broadcast(chatEvent{Type: "chat", UserID: u.ID, Name: u.Name, Message: text, Timestamp: now}, "")
	default:
		r.logger.Warn().Str("type", msg.MessageType()).Msg("lobby: no handler")
	}
}

func (l *lobby) tick(r *Room, now time.Time) {
	for _, id := range sweepUsers(l.Users, now, r.cfg.IdleTimeout) {
		r.op(OpRemove, userPath(id), nil)
		metrics.SweepEvictions.WithLabelValues(string(domain.KindLobby)).Inc()
		r.logger.Debug().Str("user", string(id)).Msg("swept idle user")
	}
	l.recount(r)
	l.LastActivityAt = now
	r.op(OpUpdate, Path("lastActivityAt"), now)
}

func (l *lobby) setRooms(r *Room, rooms map[string]domain.RoomSnapshot) {
	next := make(map[string]domain.RoomSnapshot, len(rooms))
	for k, v := range rooms {
		next[k] = v
	}
	l.Rooms = next
	r.op(OpUpdate, Path("rooms"), next)
}
