package core

import (
	"encoding/json"
	"slices"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/oklog/ulid/v2"
)

// newCommentID is time-ordered with random entropy, unique for the process.
func newCommentID() domain.CommentID {
	return domain.CommentID(ulid.Make().String())
}

// CommentList keeps comments keyed by id in insertion order.
type CommentList struct {
	order []domain.CommentID
	byID  map[domain.CommentID]*domain.Comment
}

func NewCommentList() *CommentList {
	return &CommentList{byID: make(map[domain.CommentID]*domain.Comment)}
}

func (l *CommentList) Len() int { return len(l.order) }

// Index is the position of id in insertion order, or -1.
func (l *CommentList) Index(id domain.CommentID) int { return slices.Index(l.order, id) }

func (l *CommentList) Get(id domain.CommentID) (*domain.Comment, bool) {
	c, ok := l.byID[id]
	return c, ok
}

// Add inserts c; an id already present is left untouched.
func (l *CommentList) Add(c *domain.Comment) bool {
	if _, ok := l.byID[c.ID]; ok {
		return false
	}
	l.byID[c.ID] = c
	l.order = append(l.order, c.ID)
	return true
}

func (l *CommentList) Remove(id domain.CommentID) bool {
	if _, ok := l.byID[id]; !ok {
		return false
	}
	delete(l.byID, id)
	if i := slices.Index(l.order, id); i >= 0 {
		l.order = slices.Delete(l.order, i, i+1)
	}
	return true
}

// All returns copies in insertion order.
func (l *CommentList) All() []domain.Comment {
	out := make([]domain.Comment, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.byID[id])
	}
	return out
}

// MarshalJSON encodes the list as an array, so patch paths address
// comments by position.
func (l *CommentList) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.All())
}

type commentsFrame struct {
	Type     string           `json:"type"`
	Comments []domain.Comment `json:"comments"`
}
