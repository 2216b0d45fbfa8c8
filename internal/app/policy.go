package app

import "github.com/dkeye/Presence/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a session that could not accept a frame.
type Policy interface {
	OnBackPressure(room *core.Room, sid core.SessionID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room *core.Room, sid core.SessionID) BackpressureAction {
	return KickMember
}

// TolerantPolicy keeps slow sessions attached; they miss frames until they drain.
type TolerantPolicy struct{}

func (TolerantPolicy) OnBackPressure(room *core.Room, sid core.SessionID) BackpressureAction {
	return DropFrame
}
