// Package schedule holds the occurrence state machine. Every status change in
// the engine goes through the transition table below; nothing else compares
// status values to decide legality.
package schedule

import (
	"fmt"
	"time"

	"maintenance-scheduler/internal/model"
)

// Transition names an operation that may move an occurrence between states.
type Transition string

const (
	TransitionStart       Transition = "start"
	TransitionComplete    Transition = "complete"
	TransitionMarkOverdue Transition = "mark_overdue"
	TransitionCancel      Transition = "cancel"
)

// AllTransitions lists every transition the machine knows.
var AllTransitions = []Transition{TransitionStart, TransitionComplete, TransitionMarkOverdue, TransitionCancel}

// InitialStatus is the state every new occurrence starts in.
const InitialStatus = model.StatusScheduled

var transitions = map[model.Status]map[Transition]model.Status{
	model.StatusScheduled: {
		TransitionStart:       model.StatusInProgress,
		TransitionComplete:    model.StatusCompleted,
		TransitionMarkOverdue: model.StatusOverdue,
		TransitionCancel:      model.StatusCancelled,
	},
	model.StatusInProgress: {
		TransitionComplete:    model.StatusCompleted,
		TransitionMarkOverdue: model.StatusOverdue,
		TransitionCancel:      model.StatusCancelled,
	},
	model.StatusOverdue: {
		TransitionStart:    model.StatusInProgress,
		TransitionComplete: model.StatusCompleted,
		TransitionCancel:   model.StatusCancelled,
	},
	// COMPLETED and CANCELLED have no outgoing edges.
}

// Next returns the state reached by applying t to from.
func Next(from model.Status, t Transition) (model.Status, error) {
	if from.IsTerminal() {
		return "", fmt.Errorf("%w: occurrence is terminal (%s)", ErrInvalidTransition, from)
	}
	if to, ok := transitions[from][t]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: cannot %s from %q", ErrInvalidTransition, t, from)
}

// Allowed reports whether t may be applied to an occurrence in state from.
func Allowed(from model.Status, t Transition) bool {
	_, err := Next(from, t)
	return err == nil
}

// OverdueSources returns the states MarkOverdue transitions out of.
func OverdueSources() []model.Status {
	var out []model.Status
	for _, s := range model.AllStatuses {
		if Allowed(s, TransitionMarkOverdue) {
			out = append(out, s)
		}
	}
	return out
}

// Start moves an occurrence into IN_PROGRESS.
func Start(occ *model.ScheduleOccurrence, now time.Time) error {
	to, err := Next(occ.Status, TransitionStart)
	if err != nil {
		return err
	}
	occ.Status = to
	occ.UpdatedAt = now
	return nil
}

// Complete closes an occurrence and records its execution payload.
func Complete(occ *model.ScheduleOccurrence, actualCost *float64, observations string, now time.Time) error {
	to, err := Next(occ.Status, TransitionComplete)
	if err != nil {
		return err
	}
	occ.Status = to
	occ.ActualCost = actualCost
	if observations != "" {
		occ.Observations = observations
	}
	occ.CompletedAt = &now
	occ.UpdatedAt = now
	return nil
}

// Cancel closes an occurrence without executing it.
func Cancel(occ *model.ScheduleOccurrence, reason string, now time.Time) error {
	to, err := Next(occ.Status, TransitionCancel)
	if err != nil {
		return err
	}
	occ.Status = to
	occ.CancelReason = reason
	occ.CancelledAt = &now
	occ.UpdatedAt = now
	return nil
}

// MarkOverdue flags an occurrence whose scheduled date is before now. It is a
// no-op (changed=false) for occurrences that are already OVERDUE.
func MarkOverdue(occ *model.ScheduleOccurrence, now time.Time) (bool, error) {
	if occ.Status == model.StatusOverdue {
		return false, nil
	}
	to, err := Next(occ.Status, TransitionMarkOverdue)
	if err != nil {
		return false, err
	}
	if !occ.ScheduledDate.Before(now) {
		return false, fmt.Errorf("%w: %w (due %s)", ErrInvalidTransition, ErrNotDue, Day(occ.ScheduledDate).Format(time.DateOnly))
	}
	occ.Status = to
	occ.UpdatedAt = now
	return true, nil
}

// Day truncates t to its UTC calendar date. Dates are stored as UTC
// midnight, so a value scanned back in another zone maps to the same day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
