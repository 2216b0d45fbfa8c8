package domain

import (
	"errors"
	"time"
)

type (
	RoomName string
	RoomID   string
)

type RoomKind string

const (
	KindLobby RoomKind = "lobby"
	KindPage  RoomKind = "page"
	KindPost  RoomKind = "post"
)

var ErrUnknownKind = errors.New("unknown room kind")

func ParseKind(s string) (RoomKind, error) {
	switch k := RoomKind(s); k {
	case KindLobby, KindPage, KindPost:
		return k, nil
	}
	return "", ErrUnknownKind
}

// PagePrefix marks per-page room names, e.g. "page_about".
const PagePrefix = "page_"

type Room struct {
	ID   RoomID
	Name RoomName
	Kind RoomKind
}

// RoomSnapshot is one bucket of the cross-room occupancy summary.
type RoomSnapshot struct {
	RoomID      string    `json:"roomId"`
	RoomType    string    `json:"roomType"`
	DisplayName string    `json:"displayName"`
	UserCount   int       `json:"userCount"`
	LastUpdated time.Time `json:"lastUpdated"`
}
