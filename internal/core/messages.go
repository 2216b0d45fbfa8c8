package core

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dkeye/Presence/internal/domain"
)

// Envelope is the wire shape of every inbound and outbound message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is the closed set of inbound room messages.
type Message interface {
	MessageType() string
}

// throttled messages are subject to the per-session rate limiter.
type throttled interface {
	throttled()
}

type Move struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type StatusUpdate struct {
	Status  string  `json:"status"`
	Message *string `json:"message,omitempty"`
}

type Chat struct {
	Message string `json:"message"`
}

// CursorMove is a page-room pointer update. TS is the client clock in ms, optional.
// Post rooms reuse it to move the user's position.
type CursorMove struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	CurrentPage string  `json:"currentPage,omitempty"`
	TS          int64   `json:"ts,omitempty"`
}

type CursorHide struct{}

type AddComment struct {
	Content string `json:"content"`
}

type DeleteComment struct {
	CommentID domain.CommentID `json:"commentId"`
}

type EditComment struct {
	CommentID domain.CommentID `json:"commentId"`
	Content   string           `json:"content"`
}

type Typing struct {
	IsTyping bool `json:"isTyping"`
}

type PostComment struct {
	Content string `json:"content"`
}

type Reaction struct {
	Emoji string `json:"emoji"`
}

func (*Move) MessageType() string          { return "move" }
func (*StatusUpdate) MessageType() string  { return "status" }
func (*Chat) MessageType() string          { return "chat" }
func (*CursorMove) MessageType() string    { return "cursor" }
func (*CursorHide) MessageType() string    { return "cursor-hide" }
func (*AddComment) MessageType() string    { return "add-comment" }
func (*DeleteComment) MessageType() string { return "delete-comment" }
func (*EditComment) MessageType() string   { return "edit-comment" }
func (*Typing) MessageType() string        { return "typing" }
func (*PostComment) MessageType() string   { return "comment" }
func (*Reaction) MessageType() string      { return "reaction" }

func (*Move) throttled()       {}
func (*CursorMove) throttled() {}

type decoder func() Message

var decoders = map[domain.RoomKind]map[string]decoder{
	domain.KindLobby: {
		"move":   func() Message { return &Move{} },
		"status": func() Message { return &StatusUpdate{} },
		"chat":   func() Message { return &Chat{} },
	},
	domain.KindPage: {
		"move":           func() Message { return &Move{} },
		"cursor":         func() Message { return &CursorMove{} },
		"cursor-hide":    func() Message { return &CursorHide{} },
		"status":         func() Message { return &StatusUpdate{} },
		"add-comment":    func() Message { return &AddComment{} },
		"delete-comment": func() Message { return &DeleteComment{} },
		"edit-comment":   func() Message { return &EditComment{} },
	},
	domain.KindPost: {
		"cursor":   func() Message { return &CursorMove{} },
		"status":   func() Message { return &StatusUpdate{} },
		"typing":   func() Message { return &Typing{} },
		"comment":  func() Message { return &PostComment{} },
		"reaction": func() Message { return &Reaction{} },
	},
}

// DecodeMessage resolves an envelope against the message set of a room kind.
func DecodeMessage(kind domain.RoomKind, env Envelope) (Message, error) {
	mk, ok := decoders[kind][env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q for %s room", ErrUnknownMessage, env.Type, kind)
	}
	msg := mk()
	if p := bytes.TrimSpace(env.Payload); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		if err := json.Unmarshal(p, msg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Type, err)
		}
	}
	return msg, nil
}
