// Package notify declares the outbound volunteer notification hook.
package notify

import "github.com/voluntr/engine/core/model"

// Hook alerts a volunteer that a session was assigned to them. Delivery is
// fire-and-forget: no return value is consumed and failures must be handled
// (logged) by the implementation.
type Hook interface {
	NotifyVolunteer(v model.Volunteer, s *model.Session)
}

// NopHook discards notifications.
type NopHook struct{}

func (NopHook) NotifyVolunteer(model.Volunteer, *model.Session) {}
