package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionhub/internal/repository/memory"
	"missionhub/pkg/models"
)

func finished(status models.AttemptStatus, pct, points, activities int, at time.Time) *models.Attempt {
	return &models.Attempt{
		ID: "a", LearnerID: "l1", Status: status,
		ScorePercentage: pct, PointsEarned: points, ActivityCount: activities,
		StartedAt: at.Add(-time.Minute), CompletedAt: &at,
	}
}

func TestFoldFirstCompletion(t *testing.T) {
	p := FoldCompletion(models.LearnerProgress{LearnerID: "l1"},
		finished(models.StatusCompleted, 100, 120, 3, epoch), time.UTC)

	assert.Equal(t, 120, p.TotalPoints)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 80, p.PointsToNextLevel())
	assert.Equal(t, 3, p.ActivitiesCompleted)
	assert.Equal(t, 1, p.MissionsCompleted)
	assert.Equal(t, 1, p.PerfectScores)
	assert.Equal(t, 1, p.CurrentStreak)
	assert.Equal(t, 1, p.LongestStreak)
	require.NotNil(t, p.LastActivityAt)
	assert.True(t, p.LastActivityAt.Equal(epoch))
}

func TestFoldStreak(t *testing.T) {
	last := epoch
	base := models.LearnerProgress{LearnerID: "l1", CurrentStreak: 4, LongestStreak: 6, LastActivityAt: &last}

	tests := []struct {
		name    string
		at      time.Time
		streak  int
		longest int
	}{
		{"same day", epoch.Add(5 * time.Hour), 4, 6},
		{"next day", epoch.Add(24 * time.Hour), 5, 6},
		{"two days later resets", epoch.Add(48 * time.Hour), 1, 6},
		{"a week later resets", epoch.Add(7 * 24 * time.Hour), 1, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FoldCompletion(base, finished(models.StatusCompleted, 80, 10, 1, tt.at), time.UTC)
			assert.Equal(t, tt.streak, p.CurrentStreak)
			assert.Equal(t, tt.longest, p.LongestStreak)
		})
	}
}

func TestFoldStreakRaisesLongest(t *testing.T) {
	last := epoch
	p := models.LearnerProgress{CurrentStreak: 6, LongestStreak: 6, LastActivityAt: &last}
	p = FoldCompletion(p, finished(models.StatusCompleted, 80, 10, 1, epoch.Add(24*time.Hour)), time.UTC)
	assert.Equal(t, 7, p.CurrentStreak)
	assert.Equal(t, 7, p.LongestStreak)
}

func TestFoldStreakUsesLearnerDayBoundary(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// Same UTC day, but they straddle midnight in Tokyo.
	last := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	next := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)
	p := models.LearnerProgress{CurrentStreak: 2, LongestStreak: 2, LastActivityAt: &last}

	inUTC := FoldCompletion(p, finished(models.StatusCompleted, 80, 10, 1, next), time.UTC)
	assert.Equal(t, 2, inUTC.CurrentStreak)

	inTokyo := FoldCompletion(p, finished(models.StatusCompleted, 80, 10, 1, next), tokyo)
	assert.Equal(t, 3, inTokyo.CurrentStreak)
}

func TestFoldFailedAndAbandoned(t *testing.T) {
	p := FoldCompletion(models.LearnerProgress{}, finished(models.StatusFailed, 40, 20, 2, epoch), time.UTC)
	assert.Equal(t, 20, p.TotalPoints)
	assert.Equal(t, 2, p.ActivitiesCompleted)
	assert.Equal(t, 0, p.MissionsCompleted)
	assert.Equal(t, 1, p.CurrentStreak)

	untouched := FoldCompletion(p, finished(models.StatusAbandoned, 0, 0, 0, epoch.Add(24*time.Hour)), time.UTC)
	assert.Equal(t, p, untouched)
}

func TestFoldScenarioD(t *testing.T) {
	twoDaysAgo := epoch.Add(-48 * time.Hour)
	p := models.LearnerProgress{CurrentStreak: 5, LongestStreak: 5, LastActivityAt: &twoDaysAgo}

	p = FoldCompletion(p, finished(models.StatusCompleted, 90, 10, 1, epoch), time.UTC)
	assert.Equal(t, 1, p.CurrentStreak)
	assert.Equal(t, 5, p.LongestStreak)
}

func TestProgressServiceDefaults(t *testing.T) {
	store := memory.NewStore()
	svc := NewProgressService(store.Progress, "Europe/Paris")
	ctx := context.Background()

	p, err := svc.GetLearnerProgress(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", p.LearnerID)
	assert.Equal(t, 0, p.TotalPoints)
	assert.Equal(t, "Europe/Paris", p.Timezone)

	assert.ErrorIs(t, svc.SetTimezone(ctx, "l1", "Mars/Olympus"), models.ErrInvalidInput)
	require.NoError(t, svc.SetTimezone(ctx, "l1", "Asia/Tokyo"))
	p, err = svc.GetLearnerProgress(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", p.Timezone)
}

func TestLevelCurve(t *testing.T) {
	cases := map[int]int{0: 0, 99: 0, 100: 1, 199: 1, 250: 2, 1000: 10}
	for points, level := range cases {
		assert.Equal(t, level, models.LevelFor(points), "points %d", points)
	}
	p := models.LearnerProgress{TotalPoints: 250, Level: 2}
	assert.Equal(t, 50, p.PointsToNextLevel())
}
