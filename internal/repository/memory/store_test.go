package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionhub/pkg/models"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertMission(ctx, &models.MissionDefinition{ID: "m1", Topic: "fractions"}, []models.ActivityDefinition{
		{ID: "a2", Kind: models.ActivityChoiceQuiz, PointValue: 50, OrderIndex: 1},
		{ID: "a1", Kind: models.ActivityChoiceQuiz, PointValue: 50, OrderIndex: 0},
	}))
	require.NoError(t, s.UpsertBadge(ctx, &models.Badge{
		ID: "b1", CriteriaType: models.CriteriaMissionsCompleted, Threshold: 1, PointReward: 25, IsActive: true,
	}))
	return s
}

func openAttempt(t *testing.T, s *Store, id string) *models.Attempt {
	t.Helper()
	a, created, err := s.Attempts.CreateOpen(context.Background(), &models.Attempt{
		ID: id, LearnerID: "l1", MissionID: "m1", Kind: models.MissionStructured, StartedAt: time.Now(),
	})
	require.NoError(t, err)
	require.True(t, created)
	return a
}

func TestMissionActivitiesOrdered(t *testing.T) {
	s := seeded(t)
	m, err := s.Missions.GetMission(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, m.ActivityIDs)

	_, err = s.Missions.GetMission(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateOpenConvergesUnderConcurrency(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	ids := make([]string, n)
	created := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, c, err := s.Attempts.CreateOpen(ctx, &models.Attempt{
				ID: fmt.Sprintf("att-%d", i), LearnerID: "l1", MissionID: "m1", StartedAt: time.Now(),
			})
			if !assert.NoError(t, err) {
				return
			}
			ids[i] = a.ID
			created[i] = c
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestAppendResultRules(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	a := openAttempt(t, s, "att-1")

	// a1 has no result yet, so a2 cannot jump ahead of it.
	_, _, err := s.Attempts.AppendResult(ctx, &models.ActivityResult{AttemptID: a.ID, ActivityID: "a2", OrderIndex: 1})
	assert.ErrorIs(t, err, models.ErrOutOfOrder)

	first := &models.ActivityResult{AttemptID: a.ID, ActivityID: "a1", OrderIndex: 0, PointsEarned: 50}
	stored, inserted, err := s.Attempts.AppendResult(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	retry := &models.ActivityResult{AttemptID: a.ID, ActivityID: "a1", OrderIndex: 0, PointsEarned: 0}
	again, inserted, err := s.Attempts.AppendResult(ctx, retry)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, stored.PointsEarned, again.PointsEarned)

	_, inserted, err = s.Attempts.AppendResult(ctx, &models.ActivityResult{AttemptID: a.ID, ActivityID: "a2", OrderIndex: 1})
	require.NoError(t, err)
	assert.True(t, inserted)

	_, _, err = s.Attempts.Finalize(ctx, a.ID, models.StatusFailed, models.MissionAggregate{}, time.Now())
	require.NoError(t, err)
	_, _, err = s.Attempts.AppendResult(ctx, &models.ActivityResult{AttemptID: a.ID, ActivityID: "a3", OrderIndex: 2})
	assert.ErrorIs(t, err, models.ErrAttemptClosed)
}

func TestListUncreditedCarriesResults(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	a := openAttempt(t, s, "att-1")

	for i, id := range []string{"a1", "a2"} {
		_, _, err := s.Attempts.AppendResult(ctx, &models.ActivityResult{AttemptID: a.ID, ActivityID: id, OrderIndex: i})
		require.NoError(t, err)
	}
	_, _, err := s.Attempts.Finalize(ctx, a.ID, models.StatusCompleted, models.MissionAggregate{Passed: true}, time.Now())
	require.NoError(t, err)

	pending, err := s.Attempts.ListUncredited(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Len(t, pending[0].Results, 2)
}

func TestFinalizeOnce(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	a := openAttempt(t, s, "att-1")

	agg := models.MissionAggregate{ScorePercentage: 80, PointsEarned: 80, Passed: true, Multiplier: 1}
	first, ok, err := s.Attempts.Finalize(ctx, a.ID, models.StatusCompleted, agg, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.StatusCompleted, first.Status)

	other := models.MissionAggregate{ScorePercentage: 10}
	second, ok, err := s.Attempts.Finalize(ctx, a.ID, models.StatusFailed, other, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, first.Aggregate(), second.Aggregate())
	assert.Equal(t, models.StatusCompleted, second.Status)

	_, err = s.Attempts.FindOpen(ctx, "l1", "m1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestApplyAttemptCreditsOnce(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	a := openAttempt(t, s, "att-1")

	fold := func(p models.LearnerProgress) models.LearnerProgress {
		p.TotalPoints += 150
		return p
	}

	// Not terminal yet: nothing to credit.
	_, applied, err := s.Progress.ApplyAttempt(ctx, a.ID, "l1", fold)
	require.NoError(t, err)
	assert.False(t, applied)

	_, _, err = s.Attempts.Finalize(ctx, a.ID, models.StatusCompleted, models.MissionAggregate{Passed: true}, time.Now())
	require.NoError(t, err)

	p, applied, err := s.Progress.ApplyAttempt(ctx, a.ID, "l1", fold)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 150, p.TotalPoints)
	assert.Equal(t, 1, p.Level)

	p, applied, err = s.Progress.ApplyAttempt(ctx, a.ID, "l1", fold)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 150, p.TotalPoints)
}

func TestGrantOnce(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	badge := &models.Badge{ID: "b1", PointReward: 25}

	var wg sync.WaitGroup
	var mu sync.Mutex
	grants := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, granted, err := s.Badges.Grant(ctx, "l1", badge, time.Now())
			assert.NoError(t, err)
			if granted {
				mu.Lock()
				grants++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, grants)

	p, err := s.Progress.Get(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, 25, p.TotalPoints)

	earned, err := s.Badges.ListEarned(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, earned, 1)
	require.NotNil(t, earned[0].Badge)
	assert.Equal(t, "b1", earned[0].Badge.ID)
}

func TestFailNext(t *testing.T) {
	s := seeded(t)
	boom := errors.New("boom")
	s.FailNext("GetMission", boom)

	_, err := s.Missions.GetMission(context.Background(), "m1")
	assert.ErrorIs(t, err, boom)

	_, err = s.Missions.GetMission(context.Background(), "m1")
	assert.NoError(t, err)
}

func TestCancelledContextIsStoreUnavailable(t *testing.T) {
	s := seeded(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Missions.GetMission(ctx, "m1")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}
