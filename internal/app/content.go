package app

import (
	"context"
	"errors"
)

var ErrContentNotFound = errors.New("content not found")

// Content is what the external content service knows about a post or page.
type Content struct {
	ID    string `json:"id" mapstructure:"id"`
	Title string `json:"title" mapstructure:"title"`
}

// ContentService is read-only from the room engine's point of view.
type ContentService interface {
	Lookup(ctx context.Context, id string) (Content, error)
}

// StaticContent serves a fixed catalogue loaded from configuration.
type StaticContent struct {
	items map[string]Content
}

func NewStaticContent(items []Content) *StaticContent {
	m := make(map[string]Content, len(items))
	for _, it := range items {
		m[it.ID] = it
	}
	return &StaticContent{items: m}
}

func (s *StaticContent) Lookup(ctx context.Context, id string) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}
	c, ok := s.items[id]
	if !ok {
		return Content{}, ErrContentNotFound
	}
	return c, nil
}
