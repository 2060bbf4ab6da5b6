// Package models - Badge and gamification rewards
// Badges are cumulative-progress rewards with a one-time grant guarantee
package models

import "time"

// BadgeCriteria - what part of LearnerProgress a badge is measured against
type BadgeCriteria string

const (
	CriteriaMissionsCompleted BadgeCriteria = "missions_completed"
	CriteriaPointsReached     BadgeCriteria = "points_reached"
	CriteriaStreakDays        BadgeCriteria = "streak_days"
	CriteriaPerfectScores     BadgeCriteria = "perfect_scores"
)

// Badge rarity tiers
const (
	RarityCommon    = "common"
	RarityRare      = "rare"
	RarityEpic      = "epic"
	RarityLegendary = "legendary"
)

// Badge is authored externally and read-only to the engine
type Badge struct {
	ID           string        `json:"id" db:"id" yaml:"id"`
	Name         string        `json:"name" db:"name" yaml:"name"`
	Description  string        `json:"description,omitempty" db:"description" yaml:"description"`
	CriteriaType BadgeCriteria `json:"criteria_type" db:"criteria_type" yaml:"criteria_type"`
	Threshold    int           `json:"threshold" db:"threshold" yaml:"threshold"`
	PointReward  int           `json:"point_reward" db:"point_reward" yaml:"point_reward"`
	Rarity       string        `json:"rarity" db:"rarity" yaml:"rarity"`
	IsActive     bool          `json:"is_active" db:"is_active" yaml:"is_active"`
}

// LearnerBadge - unique per (learner, badge)
type LearnerBadge struct {
	LearnerID string    `json:"learner_id" db:"learner_id"`
	BadgeID   string    `json:"badge_id" db:"badge_id"`
	EarnedAt  time.Time `json:"earned_at" db:"earned_at"`
	Badge     *Badge    `json:"badge,omitempty" db:"-"` // Joined
}

// BadgeEvent is published when a badge is newly granted
type BadgeEvent struct {
	LearnerID string    `json:"learner_id"`
	AttemptID string    `json:"attempt_id,omitempty"`
	Badge     Badge     `json:"badge"`
	AwardedAt time.Time `json:"awarded_at"`
}
