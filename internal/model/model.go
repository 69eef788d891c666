// Package model defines the stride record types and the error taxonomy shared
// by the repositories and the sync engine.
package model

import (
	"errors"
	"fmt"
)

// Kind identifies a record type. The string values double as the entity type
// names on the remote API.
type Kind string

const (
	KindGoal      Kind = "goal"
	KindMilestone Kind = "milestone"
	KindTask      Kind = "task"
	KindStep      Kind = "step"
)

// PushOrder lists every kind in dependency order: parents before the children
// that reference them, so a freshly created goal reaches the remote before
// the milestones and tasks pointing at it.
var PushOrder = []Kind{KindGoal, KindMilestone, KindTask, KindStep}

// Valid reports whether k is a known record kind.
func (k Kind) Valid() bool {
	switch k {
	case KindGoal, KindMilestone, KindTask, KindStep:
		return true
	}
	return false
}

// Priority is the task/goal priority scale. Higher sorts first.
type Priority int

const (
	PriorityNone   Priority = 0
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

// String returns the lowercase name used on the wire and in the CLI.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "none"
	}
}

// ParsePriority converts a CLI/wire priority name. Unknown or empty input
// maps to PriorityNone rather than failing; priority is advisory data.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "medium":
		return PriorityMedium
	case "high":
		return PriorityHigh
	default:
		return PriorityNone
	}
}

var (
	// ErrNotFound is returned when a mutation targets a local identifier
	// that does not resolve. Reads return empty results instead.
	ErrNotFound = errors.New("record not found")

	// ErrNoEligibleTask is returned by focus selection when no candidate
	// matches the caller's criteria.
	ErrNoEligibleTask = errors.New("no other tasks match your criteria")
)

// NotFoundError wraps ErrNotFound with the kind and id that missed.
func NotFoundError(kind Kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// DefaultEstimateMinutes is applied when a focused task has no usable
// duration estimate.
const DefaultEstimateMinutes = 30
