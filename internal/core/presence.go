package core

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/dkeye/Presence/internal/domain"
)

var avatars = []string{"🦊", "🐼", "🐙", "🦉", "🐢", "🐝", "🦄", "🐬"}

// newUser builds the presence record for a joining session. A missing or
// invalid name falls back to a generated one.
func newUser(s *Session, opts JoinOptions, pos domain.Position, now time.Time) *domain.User {
	u := &domain.User{
		ID:           domain.UserID(s.ID),
		Avatar:       strings.TrimSpace(opts.Avatar),
		Status:       domain.StatusActive,
		Position:     pos,
		LastActiveAt: now,
	}
	if err := u.SetUsername(strings.TrimSpace(opts.Name)); err != nil {
		u.Name = defaultName()
	}
	if u.Avatar == "" {
		u.Avatar = avatars[rand.IntN(len(avatars))]
	}
	return u
}

func defaultName() string {
	return fmt.Sprintf("Visitor %04d", rand.IntN(10000))
}

func randBetween(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}

func userPath(id domain.UserID) string { return Path("users", string(id)) }

// sweepUsers deletes idle or disconnected users and returns their ids sorted.
func sweepUsers(users map[domain.UserID]*domain.User, now time.Time, timeout time.Duration) []domain.UserID {
	var evicted []domain.UserID
	for id, u := range users {
		if u.Idle(now, timeout) {
			delete(users, id)
			evicted = append(evicted, id)
		}
	}
	slices.Sort(evicted)
	return evicted
}

// applyStatus reports whether the update was valid and applied.
func applyStatus(u *domain.User, m *StatusUpdate) bool {
	st, err := domain.ParseStatus(m.Status)
	if err != nil {
		return false
	}
	if m.Message != nil {
		if len(*m.Message) > domain.MaxMessageLen {
			return false
		}
		u.Message = *m.Message
	}
	u.Status = st
	return true
}

// departure is broadcast after a user leaves a room.
type departure struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"userId"`
}

func newDeparture(id domain.UserID) departure {
	return departure{Type: "user-left", UserID: id}
}
