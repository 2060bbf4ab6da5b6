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

// AttemptManager owns the attempt state machine:
// in_progress -> completed | failed | abandoned, one way.
type AttemptManager interface {
	// OpenOrResume returns the learner's open attempt or creates one.
	// Concurrent calls converge on a single attempt.
	OpenOrResume(ctx context.Context, learnerID string, mission *models.MissionDefinition) (attempt *models.Attempt, resumed bool, err error)
	// FindOpen returns ErrNotFound when no attempt is in progress
	FindOpen(ctx context.Context, learnerID, missionID string) (*models.Attempt, error)
	// RecordActivity appends one result. Retries, closed attempts and
	// out-of-order submissions are reported in the outcome, not as errors.
	RecordActivity(ctx context.Context, learnerID string, result models.ActivityResult) (models.ActivityOutcome, error)
	// Finalize applies the terminal status once; alreadyFinal reports that
	// an earlier call won and its stored aggregate is returned
	Finalize(ctx context.Context, learnerID, attemptID string, agg models.MissionAggregate) (attempt *models.Attempt, alreadyFinal bool, err error)
	Abandon(ctx context.Context, learnerID, attemptID string) (attempt *models.Attempt, alreadyFinal bool, err error)
	Get(ctx context.Context, learnerID, attemptID string) (*models.Attempt, error)
}

type attemptManager struct {
	attempts repository.AttemptRepository
	now      Clock
	newID    func() string
}

// NewAttemptManager creates the lifecycle manager
func NewAttemptManager(attempts repository.AttemptRepository, now Clock) AttemptManager {
	if now == nil {
		now = time.Now
	}
	return &attemptManager{attempts: attempts, now: now, newID: utils.NewID}
}

func (m *attemptManager) FindOpen(ctx context.Context, learnerID, missionID string) (*models.Attempt, error) {
	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	return m.attempts.FindOpen(sctx, learnerID, missionID)
}

func (m *attemptManager) OpenOrResume(ctx context.Context, learnerID string, mission *models.MissionDefinition) (*models.Attempt, bool, error) {
	open, err := m.FindOpen(ctx, learnerID, mission.ID)
	if err == nil {
		return open, true, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, false, fmt.Errorf("find open attempt: %w", err)
	}

	kind := mission.Kind
	if kind == "" {
		kind = models.MissionStructured
	}
	candidate := &models.Attempt{
		ID:         m.newID(),
		LearnerID:  learnerID,
		MissionID:  mission.ID,
		Kind:       kind,
		Status:     models.StatusInProgress,
		Multiplier: 1,
		StartedAt:  m.now(),
	}

	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	stored, created, err := m.attempts.CreateOpen(sctx, candidate)
	if err != nil {
		return nil, false, fmt.Errorf("create attempt: %w", err)
	}
	if created {
		logger.WithFields(map[string]interface{}{
			"learner_id": learnerID,
			"mission_id": mission.ID,
			"attempt_id": stored.ID,
		}).Info("attempt opened")
	}
	return stored, !created, nil
}

// Get enforces ownership
func (m *attemptManager) Get(ctx context.Context, learnerID, attemptID string) (*models.Attempt, error) {
	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	a, err := m.attempts.Get(sctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.LearnerID != learnerID {
		return nil, fmt.Errorf("attempt %s: %w", attemptID, models.ErrForbidden)
	}
	return a, nil
}

func (m *attemptManager) RecordActivity(ctx context.Context, learnerID string, result models.ActivityResult) (models.ActivityOutcome, error) {
	a, err := m.Get(ctx, learnerID, result.AttemptID)
	if err != nil {
		return models.ActivityOutcome{}, err
	}
	if out, done := settledOutcome(a, result.ActivityID, result.OrderIndex); done {
		return out, nil
	}

	if result.RecordedAt.IsZero() {
		result.RecordedAt = m.now()
	}

	sctx, cancel := utils.WithStoreTimeout(ctx)
	stored, inserted, err := m.attempts.AppendResult(sctx, &result)
	cancel()

	switch {
	case err == nil:
		return models.ActivityOutcome{Result: stored, Duplicate: !inserted}, nil
	case errors.Is(err, models.ErrAttemptClosed), errors.Is(err, models.ErrOutOfOrder):
		// Lost a race with finalize or a later activity; report prior state.
		fresh, gerr := m.Get(ctx, learnerID, result.AttemptID)
		if gerr != nil {
			return models.ActivityOutcome{}, gerr
		}
		if out, done := settledOutcome(fresh, result.ActivityID, result.OrderIndex); done {
			return out, nil
		}
		return models.ActivityOutcome{Code: models.CodeOf(err), Attempt: fresh}, nil
	default:
		return models.ActivityOutcome{}, fmt.Errorf("append activity result: %w", err)
	}
}

// settledOutcome reports submissions that must not touch the store again:
// closed attempts, retried activities and out-of-order indexes.
func settledOutcome(a *models.Attempt, activityID string, orderIndex int) (models.ActivityOutcome, bool) {
	prior, recorded := a.ResultFor(activityID)
	if a.Status.IsTerminal() {
		out := models.ActivityOutcome{Code: models.ErrCodeAttemptClosed, Attempt: a}
		if recorded {
			out.Result = prior
		}
		return out, true
	}
	if recorded {
		return models.ActivityOutcome{Result: prior, Duplicate: true}, true
	}
	if orderIndex < a.HighestOrderIndex() {
		return models.ActivityOutcome{Code: models.ErrCodeOutOfOrder, Attempt: a}, true
	}
	return models.ActivityOutcome{}, false
}

func (m *attemptManager) Finalize(ctx context.Context, learnerID, attemptID string, agg models.MissionAggregate) (*models.Attempt, bool, error) {
	return m.transition(ctx, learnerID, attemptID, agg.Status(), agg)
}

func (m *attemptManager) Abandon(ctx context.Context, learnerID, attemptID string) (*models.Attempt, bool, error) {
	return m.transition(ctx, learnerID, attemptID, models.StatusAbandoned, models.MissionAggregate{Multiplier: 1})
}

func (m *attemptManager) transition(ctx context.Context, learnerID, attemptID string, status models.AttemptStatus, agg models.MissionAggregate) (*models.Attempt, bool, error) {
	a, err := m.Get(ctx, learnerID, attemptID)
	if err != nil {
		return nil, false, err
	}
	if a.Status.IsTerminal() {
		return a, true, nil
	}

	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	stored, transitioned, err := m.attempts.Finalize(sctx, attemptID, status, agg, m.now())
	if err != nil {
		return nil, false, fmt.Errorf("finalize attempt: %w", err)
	}
	if transitioned {
		logger.WithFields(map[string]interface{}{
			"learner_id": learnerID,
			"attempt_id": attemptID,
			"status":     string(status),
			"score":      agg.ScorePercentage,
			"points":     agg.PointsEarned,
		}).Info("attempt finalized")
	}
	return stored, !transitioned, nil
}
