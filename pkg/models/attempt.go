package models

import (
	"encoding/json"
	"time"
)

// AttemptStatus - lifecycle state of an Attempt
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusCompleted  AttemptStatus = "completed"
	StatusFailed     AttemptStatus = "failed"
	StatusAbandoned  AttemptStatus = "abandoned"
)

// IsTerminal reports whether no further mutation is allowed
func (s AttemptStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAbandoned
}

// PerformanceTier - coarse bucket derived from score percentage
type PerformanceTier string

const (
	TierExcellent PerformanceTier = "excellent"
	TierGood      PerformanceTier = "good"
	TierFair      PerformanceTier = "fair"
	TierPoor      PerformanceTier = "poor"
)

// Attempt is one learner's pass through a mission.
// At most one in_progress attempt exists per (learner, mission).
type Attempt struct {
	ID              string           `json:"id" db:"id"`
	LearnerID       string           `json:"learner_id" db:"learner_id"`
	MissionID       string           `json:"mission_id" db:"mission_id"`
	Kind            MissionKind      `json:"kind" db:"kind"`
	Status          AttemptStatus    `json:"status" db:"status"`
	Results         []ActivityResult `json:"results" db:"-"`
	ScorePercentage int              `json:"score_percentage" db:"score_percentage"`
	PointsEarned    int              `json:"points_earned" db:"points_earned"`
	Passed          bool             `json:"passed" db:"passed"`
	PerformanceTier PerformanceTier  `json:"performance_tier,omitempty" db:"performance_tier"`
	Multiplier      float64          `json:"multiplier" db:"multiplier"`
	TimeSpentMs     int64            `json:"time_spent_ms" db:"time_spent_ms"`
	ActivityCount   int              `json:"activity_count" db:"activity_count"`
	StartedAt       time.Time        `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CreditedAt      *time.Time       `json:"-" db:"credited_at"`
}

// Aggregate returns the stored terminal aggregate of the attempt
func (a *Attempt) Aggregate() MissionAggregate {
	return MissionAggregate{
		ScorePercentage: a.ScorePercentage,
		PointsEarned:    a.PointsEarned,
		Passed:          a.Passed,
		PerformanceTier: a.PerformanceTier,
		Multiplier:      a.Multiplier,
		TimeSpentMs:     a.TimeSpentMs,
		ActivityCount:   a.ActivityCount,
	}
}

// HighestOrderIndex returns the largest order index recorded so far, or -1
func (a *Attempt) HighestOrderIndex() int {
	highest := -1
	for _, r := range a.Results {
		if r.OrderIndex > highest {
			highest = r.OrderIndex
		}
	}
	return highest
}

// ResultFor returns the stored result for an activity, if any
func (a *Attempt) ResultFor(activityID string) (*ActivityResult, bool) {
	for i := range a.Results {
		if a.Results[i].ActivityID == activityID {
			return &a.Results[i], true
		}
	}
	return nil, false
}

// ActivityResult is appended to an Attempt and never mutated afterwards
type ActivityResult struct {
	AttemptID       string          `json:"attempt_id" db:"attempt_id"`
	ActivityID      string          `json:"activity_id" db:"activity_id"`
	OrderIndex      int             `json:"order_index" db:"order_index"`
	IsCorrect       bool            `json:"is_correct" db:"is_correct"`
	ScorePercentage float64         `json:"score_percentage" db:"score_percentage"`
	PointsEarned    int             `json:"points_earned" db:"points_earned"`
	Response        json.RawMessage `json:"response,omitempty" db:"response"`
	TimeSpentMs     int64           `json:"time_spent_ms" db:"time_spent_ms"`
	RecordedAt      time.Time       `json:"recorded_at" db:"recorded_at"`
}

// ActivityScore is the pure output of scoring one activity response
type ActivityScore struct {
	IsCorrect       bool    `json:"is_correct"`
	ScorePercentage float64 `json:"score_percentage"`
	PointsEarned    int     `json:"points_earned"`
	Correct         int     `json:"correct"`
	Total           int     `json:"total"`
}

// SessionScore is the live-play payload for session-scored (arcade) attempts
type SessionScore struct {
	Score       int     `json:"score"`
	Correct     int     `json:"correct"`
	Wrong       int     `json:"wrong"`
	Accuracy    float64 `json:"accuracy"`
	TimeSpentMs int64   `json:"time_spent_ms"`
}

// MissionAggregate is the mission-level verdict computed from an attempt
type MissionAggregate struct {
	ScorePercentage int             `json:"score_percentage"`
	PointsEarned    int             `json:"points_earned"`
	MaxPoints       int             `json:"max_points"`
	Passed          bool            `json:"passed"`
	PerformanceTier PerformanceTier `json:"performance_tier"`
	Multiplier      float64         `json:"multiplier"`
	TimeSpentMs     int64           `json:"time_spent_ms"`
	ActivityCount   int             `json:"activity_count"`
}

// Status maps the verdict to the terminal attempt status
func (a MissionAggregate) Status() AttemptStatus {
	if a.Passed {
		return StatusCompleted
	}
	return StatusFailed
}
