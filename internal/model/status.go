package model

import "fmt"

// Status is the lifecycle state of a schedule occurrence.
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusOverdue    Status = "OVERDUE"
	StatusCancelled  Status = "CANCELLED"
)

// AllStatuses lists every member of the enumeration.
var AllStatuses = []Status{StatusScheduled, StatusInProgress, StatusCompleted, StatusOverdue, StatusCancelled}

// PendingStatuses are the non-terminal states that keep a chain open.
var PendingStatuses = []Status{StatusScheduled, StatusInProgress, StatusOverdue}

// Valid reports whether s is a member of the enumeration.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ParseStatus converts raw input into a Status. Empty values are rejected.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown occurrence status %q", raw)
	}
	return s, nil
}

// Priority is an opaque urgency label carried by occurrences.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// OrDefault returns p, or MEDIUM when p is unset.
func (p Priority) OrDefault() Priority {
	if p == "" {
		return PriorityMedium
	}
	return p
}
