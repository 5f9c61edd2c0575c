package app

import "github.com/hivechat/relay/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(cid core.ConnID) BackpressureAction
}

// SimplePolicy kicks any member whose transport push failed; a dead or
// slow connection self-heals out of the room on the broadcast that
// detects it.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(cid core.ConnID) BackpressureAction {
	return KickMember
}
