package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/metrics"
)

const maxEmojiLen = 16

type PostState struct {
	Users          map[domain.UserID]*domain.User `json:"users"`
	Comments       []*domain.Comment              `json:"comments"`
	PostID         string                         `json:"postId"`
	PostTitle      string                         `json:"postTitle"`
	ViewCount      int                            `json:"viewCount"`
	LastActivityAt time.Time                      `json:"lastActivityAt"`
}

type post struct {
	PostState
}

func newPost(opts CreateOptions, now time.Time) *post {
	return &post{PostState{
		Users:          make(map[domain.UserID]*domain.User),
		Comments:       make([]*domain.Comment, 0),
		PostID:         opts.ContentID,
		PostTitle:      opts.Title,
		LastActivityAt: now,
	}}
}

func (p *post) state() any     { return &p.PostState }
func (p *post) userCount() int { return len(p.Users) }

func (p *post) recount(r *Room) {
	if n := len(p.Users); n != p.ViewCount {
		p.ViewCount = n
		r.op(OpUpdate, Path("viewCount"), n)
	}
}

type postWelcome struct {
	Type      string    `json:"type"`
	SessionID SessionID `json:"sessionId"`
	PostID    string    `json:"postId"`
	Title     string    `json:"title"`
}

func (p *post) join(r *Room, s *Session, opts JoinOptions, now time.Time) []any {
	u := newUser(s, opts, domain.Position{X: randBetween(0, 100), Y: 0}, now)
	u.Status = domain.StatusReading
	p.Users[u.ID] = u
	r.op(OpAdd, userPath(u.ID), *u)
	p.recount(r)

	comments := make([]domain.Comment, 0, len(p.Comments))
	for _, c := range p.Comments {
		comments = append(comments, *c)
	}
	return []any{
		postWelcome{Type: "welcome", SessionID: s.ID, PostID: p.PostID, Title: p.PostTitle},
		commentsFrame{Type: "comments", Comments: comments},
	}
}

func (p *post) leave(r *Room, id domain.UserID, now time.Time) {
	if _, ok := p.Users[id]; !ok {
		return
	}
	delete(p.Users, id)
	r.op(OpRemove, userPath(id), nil)
	p.recount(r)
	r.broadcast(newDeparture(id), "")
}

type typingEvent struct {
	Type     string        `json:"type"`
	UserID   domain.UserID `json:"userId"`
	Name     string        `json:"name"`
	IsTyping bool          `json:"isTyping"`
}

type newCommentEvent struct {
	Type    string         `json:"type"`
	Comment domain.Comment `json:"comment"`
}

type reactionEvent struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"userId"`
	Name   string        `json:"name"`
	Emoji  string        `json:"emoji"`
}

func (p *post) handle(r *Room, s *Session, msg Message, now time.Time) {
	id := domain.UserID(s.ID)
	u, ok := p.Users[id]
	if !ok {
		return
	}
	switch m := msg.(type) {
	case *CursorMove:
		u.Position = domain.Position{X: m.X, Y: m.Y}
		u.Touch(now)
		r.op(OpUpdate, userPath(id), *u)
	case *StatusUpdate:
		if !applyStatus(u, m) {
			return
		}
		u.Touch(now)
		r.op(OpUpdate, userPath(id), *u)
	case *Typing:
		u.Touch(now)
		r.op(OpUpdate, userPath(id), *u)
		r.broadcast(typingEvent{Type: "typing", UserID: id, Name: u.Name, IsTyping: m.IsTyping}, s.ID)
	case *PostComment:
		content, err := domain.NormalizeComment(m.Content)
		if err != nil {
			r.logger.Debug().Err(err).Str("sid", string(s.ID)).Msg("comment rejected")
			return
		}
		c := &domain.Comment{
			ID:          newCommentID(),
			RoomScopeID: p.PostID,
			AuthorID:    id,
			AuthorName:  u.Name,
			Content:     content,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		p.Comments = append(p.Comments, c)
		u.Touch(now)
		r.op(OpAdd, Path("comments", strconv.Itoa(len(p.Comments)-1)), *c)
		r.op(OpUpdate, userPath(id), *u)
		r.broadcast(newCommentEvent{Type: "new-comment", Comment: *c}, "")
	case *Reaction:
		emoji := strings.TrimSpace(m.Emoji)
		if emoji == "" || len(emoji) > maxEmojiLen {
			return
		}
		u.Touch(now)
		r.op(OpUpdate, userPath(id), *u)
		r.broadcast(reactionEvent{Type: "reaction", UserID: id, Name: u.Name, Emoji: emoji}, "")
	default:
		r.logger.Warn().Str("type", msg.MessageType()).Msg("post: no handler")
	}
}

// tick sweeps idle readers and republishes the view count.
func (p *post) tick(r *Room, now time.Time) {
	for _, id := range sweepUsers(p.Users, now, r.cfg.IdleTimeout) {
		r.op(OpRemove, userPath(id), nil)
		metrics.SweepEvictions.WithLabelValues(string(domain.KindPost)).Inc()
		r.logger.Debug().Str("user", string(id)).Msg("swept idle user")
	}
	p.ViewCount = len(p.Users)
	p.LastActivityAt = now
	r.op(OpUpdate, Path("viewCount"), p.ViewCount)
	r.op(OpUpdate, Path("lastActivityAt"), now)
}
