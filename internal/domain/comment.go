package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxCommentLen = 2000

var (
	ErrCommentEmpty   = errors.New("comment content cannot be empty")
	ErrCommentTooLong = errors.New("comment exceeds maximum length")
	ErrCommentInvalid = errors.New("comment contains invalid characters")
)

type CommentID string

type Comment struct {
	ID          CommentID `json:"id"`
	RoomScopeID string    `json:"roomScopeId"`
	AuthorID    UserID    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	IsEdited    bool      `json:"isEdited"`
	AuthorColor string    `json:"authorColor,omitempty"`
}

// NormalizeComment trims content and validates it.
func NormalizeComment(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrCommentEmpty
	}
	if len(content) > MaxCommentLen {
		return "", ErrCommentTooLong
	}
	if !utf8.ValidString(content) {
		return "", ErrCommentInvalid
	}
	return content, nil
}
