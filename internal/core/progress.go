package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"missionhub/internal/repository"
	"missionhub/pkg/logger"
	"missionhub/pkg/models"
	"missionhub/pkg/utils"
)

// FoldCompletion returns progress with a terminal attempt folded in.
// Abandoned and in-progress attempts leave progress untouched.
func FoldCompletion(p models.LearnerProgress, a *models.Attempt, loc *time.Location) models.LearnerProgress {
	if a.Status != models.StatusCompleted && a.Status != models.StatusFailed {
		return p
	}

	at := a.StartedAt
	if a.CompletedAt != nil {
		at = *a.CompletedAt
	}

	p.AddPoints(a.PointsEarned)
	p.ActivitiesCompleted += a.ActivityCount
	if a.Status == models.StatusCompleted {
		p.MissionsCompleted++
		if a.ScorePercentage >= 100 {
			p.PerfectScores++
		}
	}

	switch {
	case p.LastActivityAt == nil || p.CurrentStreak == 0:
		p.CurrentStreak = 1
	default:
		switch gap := utils.DaysBetween(*p.LastActivityAt, at, loc); {
		case gap == 1:
			p.CurrentStreak++
		case gap > 1:
			p.CurrentStreak = 1
		}
		// gap 0 is a same-day repeat; a negative gap is a late credit for
		// an earlier day and cannot extend the streak either.
	}
	if p.CurrentStreak > p.LongestStreak {
		p.LongestStreak = p.CurrentStreak
	}

	if p.LastActivityAt == nil || at.After(*p.LastActivityAt) {
		last := at
		p.LastActivityAt = &last
	}
	p.UpdatedAt = at
	return p
}

// ProgressService folds terminal attempts into the learner's cumulative row
type ProgressService interface {
	// ApplyCompletion credits the attempt exactly once. applied=false means
	// an earlier call already credited it.
	ApplyCompletion(ctx context.Context, attempt *models.Attempt) (progress *models.LearnerProgress, applied bool, err error)
	GetLearnerProgress(ctx context.Context, learnerID string) (*models.LearnerProgress, error)
	SetTimezone(ctx context.Context, learnerID, timezone string) error
}

type progressService struct {
	progress        repository.ProgressRepository
	defaultLocation *time.Location
}

// NewProgressService creates the progress aggregator. defaultTimezone is
// used for learners that never set one.
func NewProgressService(progress repository.ProgressRepository, defaultTimezone string) ProgressService {
	return &progressService{
		progress:        progress,
		defaultLocation: utils.LoadLocation(defaultTimezone),
	}
}

func (s *progressService) location(tz string) *time.Location {
	if tz == "" {
		return s.defaultLocation
	}
	return utils.LoadLocation(tz)
}

func (s *progressService) ApplyCompletion(ctx context.Context, attempt *models.Attempt) (*models.LearnerProgress, bool, error) {
	fold := func(current models.LearnerProgress) models.LearnerProgress {
		return FoldCompletion(current, attempt, s.location(current.Timezone))
	}

	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	p, applied, err := s.progress.ApplyAttempt(sctx, attempt.ID, attempt.LearnerID, fold)
	if err != nil {
		return nil, false, fmt.Errorf("apply completion: %w", err)
	}
	if applied {
		logger.WithFields(map[string]interface{}{
			"learner_id":   attempt.LearnerID,
			"attempt_id":   attempt.ID,
			"points_added": attempt.PointsEarned,
			"total_points": p.TotalPoints,
			"streak":       p.CurrentStreak,
		}).Info("progress credited")
	}
	return p, applied, nil
}

// GetLearnerProgress returns an empty row for learners with no history
func (s *progressService) GetLearnerProgress(ctx context.Context, learnerID string) (*models.LearnerProgress, error) {
	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	p, err := s.progress.Get(sctx, learnerID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.LearnerProgress{LearnerID: learnerID, Timezone: s.defaultLocation.String()}, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Timezone == "" {
		p.Timezone = s.defaultLocation.String()
	}
	return p, nil
}

func (s *progressService) SetTimezone(ctx context.Context, learnerID, timezone string) error {
	if _, err := time.LoadLocation(timezone); err != nil || timezone == "" {
		return fmt.Errorf("timezone %q: %w", timezone, models.ErrInvalidInput)
	}
	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	return s.progress.SetTimezone(sctx, learnerID, timezone)
}
