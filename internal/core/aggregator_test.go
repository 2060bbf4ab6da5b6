package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"missionhub/pkg/models"
)

func TestAggregateScenarioA(t *testing.T) {
	mission := &models.MissionDefinition{ID: "m"}
	acts := []models.ActivityDefinition{
		{ID: "a1", PointValue: 50, OrderIndex: 0},
		{ID: "a2", PointValue: 50, OrderIndex: 1},
	}
	results := []models.ActivityResult{
		{ActivityID: "a1", IsCorrect: true, ScorePercentage: 100, PointsEarned: 50, TimeSpentMs: 1000},
		{ActivityID: "a2", IsCorrect: false, ScorePercentage: 0, PointsEarned: 0, TimeSpentMs: 2000},
	}

	agg := Aggregate(mission, acts, results)
	assert.Equal(t, 50, agg.ScorePercentage)
	assert.Equal(t, 50, agg.PointsEarned)
	assert.Equal(t, 100, agg.MaxPoints)
	assert.False(t, agg.Passed)
	assert.Equal(t, models.TierFair, agg.PerformanceTier)
	assert.Equal(t, 1.0, agg.Multiplier)
	assert.Equal(t, int64(3000), agg.TimeSpentMs)
	assert.Equal(t, 2, agg.ActivityCount)
	assert.Equal(t, models.StatusFailed, agg.Status())
}

func TestAggregateFloorsPercentage(t *testing.T) {
	mission := &models.MissionDefinition{ID: "m"}
	acts := []models.ActivityDefinition{{ID: "a1", PointValue: 3}}
	results := []models.ActivityResult{{ActivityID: "a1", PointsEarned: 2}}

	agg := Aggregate(mission, acts, results)
	assert.Equal(t, 66, agg.ScorePercentage)
}

func TestAggregatePassBar(t *testing.T) {
	acts := []models.ActivityDefinition{{ID: "a1", PointValue: 100}}
	results := []models.ActivityResult{{ActivityID: "a1", PointsEarned: 70}}

	agg := Aggregate(&models.MissionDefinition{}, acts, results)
	assert.True(t, agg.Passed)
	assert.Equal(t, models.StatusCompleted, agg.Status())

	strict := &models.MissionDefinition{PassPercentage: 80}
	agg = Aggregate(strict, acts, results)
	assert.False(t, agg.Passed)
}

func TestAggregateIsPure(t *testing.T) {
	mission := &models.MissionDefinition{ID: "m"}
	acts := []models.ActivityDefinition{{ID: "a1", PointValue: 40}, {ID: "a2", PointValue: 60}}
	results := []models.ActivityResult{{ActivityID: "a1", PointsEarned: 40}, {ActivityID: "a2", PointsEarned: 42}}
	assert.Equal(t, Aggregate(mission, acts, results), Aggregate(mission, acts, results))
}

func TestTierBoundaries(t *testing.T) {
	cases := map[int]models.PerformanceTier{
		100: models.TierExcellent,
		90:  models.TierExcellent,
		89:  models.TierGood,
		75:  models.TierGood,
		74:  models.TierFair,
		50:  models.TierFair,
		49:  models.TierPoor,
		0:   models.TierPoor,
	}
	for pct, want := range cases {
		assert.Equal(t, want, TierFor(pct), "pct %d", pct)
	}
}

func TestAggregateSession(t *testing.T) {
	mission := &models.MissionDefinition{ID: "arcade", Kind: models.MissionSession}

	tests := []struct {
		name       string
		session    models.SessionScore
		pct        int
		tier       models.PerformanceTier
		multiplier float64
		points     int
		passed     bool
	}{
		{"excellent", models.SessionScore{Score: 200, Correct: 19, Wrong: 1}, 95, models.TierExcellent, 1.5, 300, true},
		{"good", models.SessionScore{Score: 101, Correct: 8, Wrong: 2}, 80, models.TierGood, 1.25, 126, true},
		{"fair", models.SessionScore{Score: 80, Correct: 6, Wrong: 4}, 60, models.TierFair, 1.0, 80, false},
		{"poor", models.SessionScore{Score: 50, Correct: 1, Wrong: 3}, 25, models.TierPoor, 0.75, 37, false},
		{"accuracy fallback", models.SessionScore{Score: 10, Accuracy: 92.7}, 92, models.TierExcellent, 1.5, 15, true},
		{"accuracy clamped", models.SessionScore{Score: 10, Accuracy: 140}, 100, models.TierExcellent, 1.5, 15, true},
		{"negative score", models.SessionScore{Score: -5, Correct: 1}, 100, models.TierExcellent, 1.5, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := AggregateSession(mission, tt.session)
			assert.Equal(t, tt.pct, agg.ScorePercentage)
			assert.Equal(t, tt.tier, agg.PerformanceTier)
			assert.Equal(t, tt.multiplier, agg.Multiplier)
			assert.Equal(t, tt.points, agg.PointsEarned)
			assert.Equal(t, tt.passed, agg.Passed)
		})
	}
}
