package models

import "time"

// PointsPerLevel - level N requires N*PointsPerLevel total points
const PointsPerLevel = 100

// LearnerProgress - single cumulative row per learner, owned by the progress aggregator
type LearnerProgress struct {
	LearnerID           string     `json:"learner_id" db:"learner_id"`
	TotalPoints         int        `json:"total_points" db:"total_points"`
	Level               int        `json:"level" db:"level"`
	ActivitiesCompleted int        `json:"activities_completed" db:"activities_completed"`
	MissionsCompleted   int        `json:"missions_completed" db:"missions_completed"`
	PerfectScores       int        `json:"perfect_scores" db:"perfect_scores"`
	CurrentStreak       int        `json:"current_streak" db:"current_streak"`
	LongestStreak       int        `json:"longest_streak" db:"longest_streak"`
	LastActivityAt      *time.Time `json:"last_activity_at,omitempty" db:"last_activity_at"`
	Timezone            string     `json:"timezone" db:"timezone"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// LevelFor derives the level from total points; monotonic in points
func LevelFor(totalPoints int) int {
	if totalPoints <= 0 {
		return 0
	}
	return totalPoints / PointsPerLevel
}

// PointsToNextLevel returns how many points remain until the next level
func (p *LearnerProgress) PointsToNextLevel() int {
	return (LevelFor(p.TotalPoints)+1)*PointsPerLevel - p.TotalPoints
}

// AddPoints adds points and re-derives the level
func (p *LearnerProgress) AddPoints(points int) {
	p.TotalPoints += points
	p.Level = LevelFor(p.TotalPoints)
}

// ProgressView is the presentation-facing shape of LearnerProgress
type ProgressView struct {
	LearnerProgress
	PointsToNextLevel int `json:"points_to_next_level"`
}

// NewProgressView builds the display shape
func NewProgressView(p LearnerProgress) ProgressView {
	return ProgressView{LearnerProgress: p, PointsToNextLevel: p.PointsToNextLevel()}
}
