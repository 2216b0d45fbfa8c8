package core

import (
	"strconv"
	"time"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/metrics"
)

type PageState struct {
	Users          map[domain.UserID]*domain.User   `json:"users"`
	Cursors        map[domain.UserID]*domain.Cursor `json:"cursors"`
	Comments       *CommentList                     `json:"comments"`
	PageID         string                           `json:"pageId"`
	TotalUsers     int                              `json:"totalUsers"`
	LastActivityAt time.Time                        `json:"lastActivityAt"`
}

type page struct {
	PageState
	// clientTS is the newest client timestamp applied per cursor.
	clientTS map[domain.UserID]int64
}

func newPage(opts CreateOptions, now time.Time) *page {
	return &page{PageState{
		Users:          make(map[domain.UserID]*domain.User),
		Cursors:        make(map[domain.UserID]*domain.Cursor),
		Comments:       NewCommentList(),
		PageID:         opts.ContentID,
		LastActivityAt: now,
	}, make(map[domain.UserID]int64)}
}

func (p *page) state() any     { return &p.PageState }
func (p *page) userCount() int { return len(p.Users) }

func (p *page) recount(r *Room) {
	if n := len(p.Users); n != p.TotalUsers {
		p.TotalUsers = n
		r.op(OpUpdate, Path("totalUsers"), n)
	}
}

func cursorPath(id domain.UserID) string { return Path("cursors", string(id)) }

func commentPath(i int) string { return Path("comments", strconv.Itoa(i)) }

type pageWelcome struct {
	Type      string    `json:"type"`
	SessionID SessionID `json:"sessionId"`
	PageID    string    `json:"pageId"`
	Color     string    `json:"color"`
}

func (p *page) join(r *Room, s *Session, opts JoinOptions, now time.Time) []any {
	cur := &domain.Cursor{
		UserID:       domain.UserID(s.ID),
		X:            randBetween(10, 90),
		Y:            randBetween(100, 600),
		Color:        domain.PaletteColor(r.joins - 1),
		LastUpdateAt: now,
		IsActive:     true,
		CurrentPage:  p.PageID,
	}
	u := newUser(s, opts, domain.Position{X: cur.X, Y: cur.Y}, now)
	cur.DisplayName = u.Name

	p.Users[u.ID] = u
	p.Cursors[u.ID] = cur
	r.op(OpAdd, userPath(u.ID), *u)
	r.op(OpAdd, cursorPath(u.ID), *cur)
	p.recount(r)

	return []any{
		pageWelcome{Type: "welcome", SessionID: s.ID, PageID: p.PageID, Color: cur.Color},
		commentsFrame{Type: "comments", Comments: p.Comments.All()},
	}
}

// removeUser keeps users and cursors in lockstep.
func (p *page) removeUser(r *Room, id domain.UserID) bool {
	if _, ok := p.Users[id]; !ok {
		return false
	}
	delete(p.Users, id)
	delete(p.clientTS, id)
	r.op(OpRemove, userPath(id), nil)
	if _, ok := p.Cursors[id]; ok {
		delete(p.Cursors, id)
		r.op(OpRemove, cursorPath(id), nil)
	}
	return true
}

func (p *page) leave(r *Room, id domain.UserID, now time.Time) {
	if !p.removeUser(r, id) {
		return
	}
	p.recount(r)
	r.broadcast(newDeparture(id), "")
}

func (p *page) handle(r *Room, s *Session, msg Message, now time.Time) {
	id := domain.UserID(s.ID)
	u, ok := p.Users[id]
	if !ok {
		return
	}
	switch m := msg.(type) {
	case *Move:
		u.Position = domain.Position{X: m.X, Y: m.Y}
		u.Touch(now)
		r.op(OpUpdate, userPath(id), *u)
	case *CursorMove:
		cur, ok := p.Cursors[id]
		if !ok {
			return
		}
		// Stale updates lose: neither clock may move backwards.
		if (m.TS > 0 && m.TS < p.clientTS[id]) || now.Before(cur.LastUpdateAt) {
			return
		}
		if m.TS > 0 {
			p.clientTS[id] = m.TS
		}
		cur.X = domain.ClampPercent(m.X)
		cur.Y = max(m.Y, 0)
		if m.CurrentPage != "" {
			cur.CurrentPage = m.CurrentPage
		}
		cur.LastUpdateAt = now
		cur.IsActive = true
		u.Touch(now)
		r.op(OpUpdate, cursorPath(id), *cur)
		r.op(OpUpdate, userPath(id), *u)
	case *CursorHide:
		cur, ok := p.Cursors[id]
		if !ok || !cur.IsActive {
			return
		}
		cur.IsActive = false
		r.op(OpUpdate, cursorPath(id), *cur)
	case *StatusUpdate:
		if !applyStatus(u, m) {
			return
		}
		u.Touch(now)
		r.op(OpUpdate, userPath(id), *u)
	case *AddComment:
		content, err := domain.NormalizeComment(m.Content)
		if err != nil {
			r.logger.Debug().Err(err).Str("sid", string(s.ID)).Msg("comment rejected")
			return
		}
		c := &domain.Comment{
			ID:          newCommentID(),
			RoomScopeID: p.PageID,
			AuthorID:    id,
			AuthorName:  u.Name,
			Content:     content,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if cur, ok := p.Cursors[id]; ok {
			c.AuthorColor = cur.Color
		}
		if !p.Comments.Add(c) {
			return
		}
		u.Touch(now)
		r.op(OpAdd, commentPath(p.Comments.Len()-1), *c)
		r.op(OpUpdate, userPath(id), *u)
	case *DeleteComment:
		c, ok := p.Comments.Get(m.CommentID)
		if !ok || c.AuthorID != id {
			return
		}
		i := p.Comments.Index(c.ID)
		p.Comments.Remove(c.ID)
		r.op(OpRemove, commentPath(i), nil)
	case *EditComment:
		c, ok := p.Comments.Get(m.CommentID)
		if !ok || c.AuthorID != id {
			return
		}
		content, err := domain.NormalizeComment(m.Content)
		if err != nil {
			return
		}
		c.Content = content
		c.UpdatedAt = now
		c.IsEdited = true
		r.op(OpUpdate, commentPath(p.Comments.Index(c.ID)), *c)
	default:
		r.logger.Warn().Str("type", msg.MessageType()).Msg("page: no handler")
	}
}

func (p *page) tick(r *Room, now time.Time) {
	for _, id := range sweepUsers(p.Users, now, r.cfg.IdleTimeout) {
		r.op(OpRemove, userPath(id), nil)
		delete(p.clientTS, id)
		if _, ok := p.Cursors[id]; ok {
			delete(p.Cursors, id)
			r.op(OpRemove, cursorPath(id), nil)
		}
		metrics.SweepEvictions.WithLabelValues(string(domain.KindPage)).Inc()
		r.logger.Debug().Str("user", string(id)).Msg("swept idle user")
	}
	p.recount(r)
	p.LastActivityAt = now
	r.op(OpUpdate, Path("lastActivityAt"), now)
}
