package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionhub/internal/repository/memory"
	"missionhub/pkg/models"
)

func TestCriteriaMet(t *testing.T) {
	p := models.LearnerProgress{MissionsCompleted: 5, TotalPoints: 300, CurrentStreak: 3, PerfectScores: 1}

	assert.True(t, CriteriaMet(models.Badge{CriteriaType: models.CriteriaMissionsCompleted, Threshold: 5}, p))
	assert.False(t, CriteriaMet(models.Badge{CriteriaType: models.CriteriaMissionsCompleted, Threshold: 6}, p))
	assert.True(t, CriteriaMet(models.Badge{CriteriaType: models.CriteriaPointsReached, Threshold: 300}, p))
	assert.True(t, CriteriaMet(models.Badge{CriteriaType: models.CriteriaStreakDays, Threshold: 3}, p))
	assert.False(t, CriteriaMet(models.Badge{CriteriaType: models.CriteriaPerfectScores, Threshold: 2}, p))
	assert.False(t, CriteriaMet(models.Badge{CriteriaType: "logins", Threshold: 0}, p))
}

func badgeStore(t *testing.T, badges ...models.Badge) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	for i := range badges {
		require.NoError(t, store.UpsertBadge(context.Background(), &badges[i]))
	}
	return store
}

func TestEvaluateAndAwardOnce(t *testing.T) {
	store := badgeStore(t,
		models.Badge{ID: "five", CriteriaType: models.CriteriaMissionsCompleted, Threshold: 5, PointReward: 50, IsActive: true},
		models.Badge{ID: "retired", CriteriaType: models.CriteriaMissionsCompleted, Threshold: 1, PointReward: 10, IsActive: false},
	)
	svc := NewBadgeService(store.Badges, nil)
	ctx := context.Background()

	awarded, p, err := svc.EvaluateAndAward(ctx, "l1", models.LearnerProgress{LearnerID: "l1", MissionsCompleted: 4})
	require.NoError(t, err)
	assert.Empty(t, awarded)

	awarded, p, err = svc.EvaluateAndAward(ctx, "l1", models.LearnerProgress{LearnerID: "l1", MissionsCompleted: 5})
	require.NoError(t, err)
	require.Len(t, awarded, 1)
	assert.Equal(t, "five", awarded[0].ID)
	assert.Equal(t, 50, p.TotalPoints)

	// Growing progress never re-grants.
	for i := 6; i < 9; i++ {
		awarded, _, err = svc.EvaluateAndAward(ctx, "l1", models.LearnerProgress{LearnerID: "l1", MissionsCompleted: i})
		require.NoError(t, err)
		assert.Empty(t, awarded)
	}

	earned, err := svc.ListEarnedBadges(ctx, "l1")
	require.NoError(t, err)
	assert.Len(t, earned, 1)

	stored, err := store.Progress.Get(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, 50, stored.TotalPoints)
}

func TestRewardCanUnlockPointsBadge(t *testing.T) {
	store := badgeStore(t,
		models.Badge{ID: "first", CriteriaType: models.CriteriaMissionsCompleted, Threshold: 1, PointReward: 100, IsActive: true},
		models.Badge{ID: "century", CriteriaType: models.CriteriaPointsReached, Threshold: 100, IsActive: true},
	)
	svc := NewBadgeService(store.Badges, nil)

	awarded, p, err := svc.EvaluateAndAward(context.Background(), "l1", models.LearnerProgress{LearnerID: "l1", MissionsCompleted: 1})
	require.NoError(t, err)
	require.Len(t, awarded, 2)
	assert.Equal(t, 100, p.TotalPoints)
	assert.Equal(t, 1, p.Level)
}

func TestListBadgesIncludesInactive(t *testing.T) {
	store := badgeStore(t,
		models.Badge{ID: "on", CriteriaType: models.CriteriaStreakDays, Threshold: 3, IsActive: true},
		models.Badge{ID: "off", CriteriaType: models.CriteriaStreakDays, Threshold: 7},
	)
	all, err := NewBadgeService(store.Badges, nil).ListBadges(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
