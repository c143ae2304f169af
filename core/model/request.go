package model

import "time"

// Priority ranks support requests for routing and queueing.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank returns the ordering value of the priority, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// SupportRequest is an incoming plea for help from a platform user.
type SupportRequest struct {
	RequestID      string            `validate:"required"`
	UserAddress    string            `validate:"required"`
	Category       Category          `validate:"required"`
	Priority       Priority          `validate:"required"`
	InitialMessage string            `validate:"required"`
	Language       string            `validate:"required"`
	UserScore      float64           `validate:"gte=0"`
	Timestamp      time.Time         `validate:"required"`
	Metadata       map[string]string `validate:"-"`
}
