// Package models - Mission and Activity definitions
// Authored content consumed read-only by the progression engine
package models

import (
	"encoding/json"
	"time"
)

// MissionKind tags how an attempt at a mission is scored
type MissionKind string

const (
	// MissionStructured missions are built from discrete ActivityDefinitions
	MissionStructured MissionKind = "structured"
	// MissionSession missions are arcade sessions scored from live-play counts
	MissionSession MissionKind = "session"
)

// DefaultPassPercentage is the pass bar used when a mission does not override it
const DefaultPassPercentage = 70

// MissionDefinition is immutable once published
type MissionDefinition struct {
	ID             string      `json:"id" db:"id" yaml:"id"`
	Title          string      `json:"title" db:"title" yaml:"title"`
	Topic          string      `json:"topic" db:"topic" yaml:"topic"`
	Kind           MissionKind `json:"kind" db:"kind" yaml:"kind"`
	DifficultyTier string      `json:"difficulty_tier" db:"difficulty_tier" yaml:"difficulty_tier"`
	BasePoints     int         `json:"base_points" db:"base_points" yaml:"base_points"`
	PassPercentage int         `json:"pass_percentage,omitempty" db:"pass_percentage" yaml:"pass_percentage"`
	ActivityIDs    []string    `json:"activity_ids" db:"-" yaml:"-"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at" yaml:"-"`
}

// PassBar returns the mission's pass percentage, falling back to the default
func (m *MissionDefinition) PassBar() int {
	if m == nil || m.PassPercentage <= 0 {
		return DefaultPassPercentage
	}
	return m.PassPercentage
}

// IsSessionScored reports whether attempts are scored from a SessionScore
func (m *MissionDefinition) IsSessionScored() bool {
	return m != nil && m.Kind == MissionSession
}

// ActivityKind is the closed set of gradable activity shapes
type ActivityKind string

const (
	ActivityChoiceQuiz    ActivityKind = "choice_quiz"
	ActivityFillInBlank   ActivityKind = "fill_in_blank"
	ActivityMatchingPairs ActivityKind = "matching_pairs"
)

// Valid reports whether the kind belongs to the closed set
func (k ActivityKind) Valid() bool {
	switch k {
	case ActivityChoiceQuiz, ActivityFillInBlank, ActivityMatchingPairs:
		return true
	}
	return false
}

// ActivityDefinition is one gradable exercise inside a mission.
// OrderIndex is unique within the parent mission.
type ActivityDefinition struct {
	ID               string          `json:"id" db:"id"`
	MissionID        string          `json:"mission_id" db:"mission_id"`
	Kind             ActivityKind    `json:"kind" db:"kind"`
	Content          json.RawMessage `json:"content" db:"content"`
	PointValue       int             `json:"point_value" db:"point_value"`
	TimeLimitSeconds *int            `json:"time_limit_seconds,omitempty" db:"time_limit_seconds"`
	OrderIndex       int             `json:"order_index" db:"order_index"`
}

// TimeLimit returns the optional time limit as a duration
func (a *ActivityDefinition) TimeLimit() (time.Duration, bool) {
	if a.TimeLimitSeconds == nil || *a.TimeLimitSeconds <= 0 {
		return 0, false
	}
	return time.Duration(*a.TimeLimitSeconds) * time.Second, true
}

// MissionDetail bundles a mission with its ordered activities for display
type MissionDetail struct {
	Mission    MissionDefinition    `json:"mission"`
	Activities []ActivityDefinition `json:"activities"`
}
