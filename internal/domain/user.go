// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"
	"unicode/utf8"
)

const (
	MaxUsernameLen = 36
	MaxMessageLen  = 280
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUsernameInvalid = errors.New("username invalid")
	ErrUnknownStatus   = errors.New("unknown status")
)

type UserID string

type Status string

const (
	StatusIdle         Status = "idle"
	StatusActive       Status = "active"
	StatusBrowsing     Status = "browsing"
	StatusReading      Status = "reading"
	StatusTyping       Status = "typing"
	StatusDisconnected Status = "disconnected"
)

// ParseStatus rejects anything outside the known presence states.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusIdle, StatusActive, StatusBrowsing, StatusReading, StatusTyping, StatusDisconnected:
		return st, nil
	}
	return "", ErrUnknownStatus
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// User is the presence record of one session inside one room.
type User struct {
	ID           UserID    `json:"id"`
	Name         string    `json:"name"`
	Position     Position  `json:"position"`
	Avatar       string    `json:"avatar"`
	Status       Status    `json:"status"`
	Message      string    `json:"message,omitempty"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

func ValidateUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	if !utf8.ValidString(username) {
		return ErrUsernameInvalid
	}
	return nil
}

func (u *User) SetUsername(username string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	u.Name = username
	return nil
}

// Touch marks the user active at t.
func (u *User) Touch(t time.Time) {
	u.LastActiveAt = t
}

// Idle reports whether the user should be evicted by a presence sweep.
func (u *User) Idle(now time.Time, timeout time.Duration) bool {
	return u.Status == StatusDisconnected || now.Sub(u.LastActiveAt) > timeout
}
