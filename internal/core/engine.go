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

// Notifier receives newly granted badges. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event models.BadgeEvent) error
}

// MissionEngine is the operation surface exposed to transports
type MissionEngine interface {
	CheckAvailability(ctx context.Context, learnerID string, ref models.WindowRef, sessionID string) models.Availability
	AcknowledgeTheory(ctx context.Context, sessionID, missionID string) error
	StartMission(ctx context.Context, learnerID string, ref models.WindowRef, sessionID string) (*models.StartMissionResponse, error)
	SubmitActivity(ctx context.Context, learnerID, attemptID string, req models.SubmitActivityRequest) (*models.ActivityOutcome, error)
	CompleteAttempt(ctx context.Context, learnerID, attemptID string, session *models.SessionScore) (*models.CompletionOutcome, error)
	AbandonAttempt(ctx context.Context, learnerID, attemptID string) (*models.Attempt, error)
	GetAttempt(ctx context.Context, learnerID, attemptID string) (*models.Attempt, error)
	GetLearnerProgress(ctx context.Context, learnerID string) (*models.ProgressView, error)
	SetTimezone(ctx context.Context, learnerID, timezone string) error
	ListEarnedBadges(ctx context.Context, learnerID string) ([]models.LearnerBadge, error)
	ListBadges(ctx context.Context) ([]models.Badge, error)
	GetMission(ctx context.Context, missionID string) (*models.MissionDetail, error)
	ReconcileCredits(ctx context.Context, limit int) (int, error)
}

// EngineOptions carries the optional collaborators of the engine
type EngineOptions struct {
	Theory          TheoryStore
	Notifier        Notifier
	Clock           Clock
	DefaultTimezone string
}

type missionEngine struct {
	missions repository.MissionRepository
	windows  repository.AvailabilityRepository
	attempts repository.AttemptRepository

	gate      AvailabilityGate
	lifecycle AttemptManager
	scorer    Scorer
	progress  ProgressService
	badges    BadgeService
	notifier  Notifier
	now       Clock
}

// NewMissionEngine wires every component onto one store
func NewMissionEngine(store *repository.Store, opts EngineOptions) MissionEngine {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &missionEngine{
		missions:  store.Missions,
		windows:   store.Windows,
		attempts:  store.Attempts,
		gate:      NewAvailabilityGate(store.Windows, store.Attempts, opts.Theory, now),
		lifecycle: NewAttemptManager(store.Attempts, now),
		scorer:    NewScorer(),
		progress:  NewProgressService(store.Progress, opts.DefaultTimezone),
		badges:    NewBadgeService(store.Badges, now),
		notifier:  opts.Notifier,
		now:       now,
	}
}

func (e *missionEngine) CheckAvailability(ctx context.Context, learnerID string, ref models.WindowRef, sessionID string) models.Availability {
	return e.gate.CheckAvailability(ctx, learnerID, ref, sessionID)
}

func (e *missionEngine) AcknowledgeTheory(ctx context.Context, sessionID, missionID string) error {
	return e.gate.AcknowledgeTheory(ctx, sessionID, missionID)
}

func (e *missionEngine) loadMission(ctx context.Context, missionID string) (*models.MissionDefinition, error) {
	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	m, err := e.missions.GetMission(sctx, missionID)
	if err != nil {
		return nil, fmt.Errorf("mission %s: %w", missionID, err)
	}
	return m, nil
}

// resolveMission finds the mission a ref points at without gating
func (e *missionEngine) resolveMission(ctx context.Context, ref models.WindowRef) string {
	if ref.MissionID != "" {
		return ref.MissionID
	}
	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	w, err := e.windows.GetWindow(sctx, ref)
	if err != nil {
		return ""
	}
	return w.MissionID
}

// StartMission resumes an open attempt without gating, otherwise gates and
// opens one. A denial is a normal response with Attempt == nil.
func (e *missionEngine) StartMission(ctx context.Context, learnerID string, ref models.WindowRef, sessionID string) (*models.StartMissionResponse, error) {
	if missionID := e.resolveMission(ctx, ref); missionID != "" {
		open, err := e.lifecycle.FindOpen(ctx, learnerID, missionID)
		switch {
		case err == nil:
			return &models.StartMissionResponse{
				Availability: models.Availability{CanPlay: true, MissionID: missionID},
				Attempt:      open,
				Resumed:      true,
			}, nil
		case !errors.Is(err, models.ErrNotFound):
			return nil, fmt.Errorf("find open attempt: %w", err)
		}
	}

	avail := e.gate.CheckAvailability(ctx, learnerID, ref, sessionID)
	if !avail.CanPlay {
		return &models.StartMissionResponse{Availability: avail}, nil
	}

	mission, err := e.loadMission(ctx, avail.MissionID)
	if err != nil {
		return nil, err
	}
	attempt, resumed, err := e.lifecycle.OpenOrResume(ctx, learnerID, mission)
	if err != nil {
		return nil, err
	}
	if !resumed && avail.AttemptsRemaining > 0 {
		avail.AttemptsUsed++
		avail.AttemptsRemaining--
	}
	return &models.StartMissionResponse{Availability: avail, Attempt: attempt, Resumed: resumed}, nil
}

// SubmitActivity scores one response and records it on the attempt
func (e *missionEngine) SubmitActivity(ctx context.Context, learnerID, attemptID string, req models.SubmitActivityRequest) (*models.ActivityOutcome, error) {
	attempt, err := e.lifecycle.Get(ctx, learnerID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Kind == models.MissionSession {
		return nil, fmt.Errorf("session-scored attempts take a session score at completion: %w", models.ErrInvalidInput)
	}

	sctx, cancel := utils.WithStoreTimeout(ctx)
	activities, err := e.missions.ListActivities(sctx, attempt.MissionID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	def := findActivity(activities, req.ActivityID)
	if def == nil {
		return nil, fmt.Errorf("activity %s: %w", req.ActivityID, models.ErrNotFound)
	}

	result := models.ActivityResult{
		AttemptID:   attemptID,
		ActivityID:  def.ID,
		OrderIndex:  def.OrderIndex,
		Response:    req.Response,
		TimeSpentMs: req.TimeSpentMs,
	}

	// Retries and closed attempts return prior state without rescoring.
	_, recorded := attempt.ResultFor(def.ID)
	if !recorded && !attempt.Status.IsTerminal() {
		if next := NextActivity(activities, attempt); next != nil && next.ID != def.ID {
			return &models.ActivityOutcome{
				Code:               models.ErrCodeOutOfOrder,
				Attempt:            attempt,
				ExpectedActivityID: next.ID,
			}, nil
		}
		score, err := e.scorer.Score(*def, req.Response)
		if err != nil {
			return nil, err
		}
		result.IsCorrect = score.IsCorrect
		result.ScorePercentage = score.ScorePercentage
		result.PointsEarned = score.PointsEarned
	}

	out, err := e.lifecycle.RecordActivity(ctx, learnerID, result)
	if err != nil {
		return nil, err
	}
	if out.Code == models.ErrCodeOutOfOrder && out.Attempt != nil {
		if next := NextActivity(activities, out.Attempt); next != nil {
			out.ExpectedActivityID = next.ID
		}
	}
	return &out, nil
}

// NextActivity returns the lowest-ordered activity without a result on
// attempt, or nil once every activity is recorded. activities must be in
// order index order.
func NextActivity(activities []models.ActivityDefinition, attempt *models.Attempt) *models.ActivityDefinition {
	for i := range activities {
		if _, ok := attempt.ResultFor(activities[i].ID); !ok {
			return &activities[i]
		}
	}
	return nil
}

func findActivity(activities []models.ActivityDefinition, id string) *models.ActivityDefinition {
	for i := range activities {
		if activities[i].ID == id {
			return &activities[i]
		}
	}
	return nil
}

// CompleteAttempt aggregates, finalizes and credits an attempt. Retrying
// it is safe: crediting happens at most once, and a retry after a crash
// between finalize and crediting finishes the credit.
func (e *missionEngine) CompleteAttempt(ctx context.Context, learnerID, attemptID string, session *models.SessionScore) (*models.CompletionOutcome, error) {
	attempt, err := e.lifecycle.Get(ctx, learnerID, attemptID)
	if err != nil {
		return nil, err
	}
	mission, err := e.loadMission(ctx, attempt.MissionID)
	if err != nil {
		return nil, err
	}

	if attempt.Status.IsTerminal() {
		return e.settle(ctx, attempt, attempt.Aggregate(), true)
	}

	var agg models.MissionAggregate
	out := &models.CompletionOutcome{Attempt: attempt}

	if mission.IsSessionScored() {
		if session == nil {
			return nil, fmt.Errorf("session score required for %s: %w", mission.ID, models.ErrInvalidInput)
		}
		agg = AggregateSession(mission, *session)
	} else {
		sctx, cancel := utils.WithStoreTimeout(ctx)
		activities, err := e.missions.ListActivities(sctx, mission.ID)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("list activities: %w", err)
		}
		out.RecordedCount, out.ExpectedCount = len(attempt.Results), len(activities)
		if len(attempt.Results) < len(activities) {
			out.Code = models.ErrCodeOutOfOrder
			return out, nil
		}
		agg = Aggregate(mission, activities, attempt.Results)
	}

	final, alreadyFinal, err := e.lifecycle.Finalize(ctx, learnerID, attemptID, agg)
	if err != nil {
		return nil, err
	}
	if alreadyFinal {
		agg = final.Aggregate()
	}
	settled, err := e.settle(ctx, final, agg, alreadyFinal)
	if err != nil {
		return nil, err
	}
	settled.RecordedCount, settled.ExpectedCount = out.RecordedCount, out.ExpectedCount
	return settled, nil
}

// settle credits a terminal attempt if its credit has not landed yet and
// evaluates badges only when this call did the crediting
func (e *missionEngine) settle(ctx context.Context, attempt *models.Attempt, agg models.MissionAggregate, alreadyFinal bool) (*models.CompletionOutcome, error) {
	out := &models.CompletionOutcome{
		Attempt:       attempt,
		Aggregate:     agg,
		AlreadyFinal:  alreadyFinal,
		RecordedCount: len(attempt.Results),
	}
	if attempt.Status == models.StatusAbandoned {
		out.Code = models.ErrCodeAttemptClosed
		return out, nil
	}

	if attempt.CreditedAt != nil {
		p, err := e.progress.GetLearnerProgress(ctx, attempt.LearnerID)
		if err != nil {
			return nil, err
		}
		view := models.NewProgressView(*p)
		out.Progress = &view
		return out, nil
	}

	p, applied, err := e.progress.ApplyCompletion(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if applied {
		awarded, updated, err := e.badges.EvaluateAndAward(ctx, attempt.LearnerID, *p)
		if err != nil {
			// Progress is committed; unearned badges are picked up by the
			// next evaluation since criteria read cumulative progress.
			logger.WithFields(map[string]interface{}{
				"learner_id": attempt.LearnerID,
				"attempt_id": attempt.ID,
				"error":      err.Error(),
			}).Error("badge evaluation failed")
		}
		p = &updated
		out.NewlyAwarded = awarded
		e.notify(ctx, attempt, awarded)
	}
	view := models.NewProgressView(*p)
	out.Progress = &view
	return out, nil
}

func (e *missionEngine) notify(ctx context.Context, attempt *models.Attempt, awarded []models.Badge) {
	if e.notifier == nil {
		return
	}
	for _, b := range awarded {
		ev := models.BadgeEvent{LearnerID: attempt.LearnerID, AttemptID: attempt.ID, Badge: b, AwardedAt: e.now()}
		if err := e.notifier.Notify(ctx, ev); err != nil {
			logger.Warnf("badge notification for %s failed: %v", attempt.LearnerID, err)
		}
	}
}

func (e *missionEngine) AbandonAttempt(ctx context.Context, learnerID, attemptID string) (*models.Attempt, error) {
	a, _, err := e.lifecycle.Abandon(ctx, learnerID, attemptID)
	return a, err
}

func (e *missionEngine) GetAttempt(ctx context.Context, learnerID, attemptID string) (*models.Attempt, error) {
	return e.lifecycle.Get(ctx, learnerID, attemptID)
}

func (e *missionEngine) GetLearnerProgress(ctx context.Context, learnerID string) (*models.ProgressView, error) {
	p, err := e.progress.GetLearnerProgress(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	view := models.NewProgressView(*p)
	return &view, nil
}

func (e *missionEngine) SetTimezone(ctx context.Context, learnerID, timezone string) error {
	return e.progress.SetTimezone(ctx, learnerID, timezone)
}

func (e *missionEngine) ListEarnedBadges(ctx context.Context, learnerID string) ([]models.LearnerBadge, error) {
	return e.badges.ListEarnedBadges(ctx, learnerID)
}

func (e *missionEngine) ListBadges(ctx context.Context) ([]models.Badge, error) {
	return e.badges.ListBadges(ctx)
}

// GetMission is read-only authoring access
func (e *missionEngine) GetMission(ctx context.Context, missionID string) (*models.MissionDetail, error) {
	m, err := e.loadMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	acts, err := e.missions.ListActivities(sctx, missionID)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return &models.MissionDetail{Mission: *m, Activities: acts}, nil
}

// ReconcileCredits finishes crediting for finalized attempts whose credit
// never landed, e.g. after a crash between finalize and crediting
func (e *missionEngine) ReconcileCredits(ctx context.Context, limit int) (int, error) {
	sctx, cancel := utils.WithStoreTimeout(ctx)
	pending, err := e.attempts.ListUncredited(sctx, limit)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list uncredited attempts: %w", err)
	}

	credited := 0
	for i := range pending {
		a := &pending[i]
		if _, err := e.settle(ctx, a, a.Aggregate(), true); err != nil {
			return credited, fmt.Errorf("credit attempt %s: %w", a.ID, err)
		}
		credited++
	}
	if credited > 0 {
		logger.Infof("reconciled %d uncredited attempts", credited)
	}
	return credited, nil
}
