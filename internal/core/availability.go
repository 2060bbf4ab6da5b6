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

// Clock is the time source of the engine
type Clock func() time.Time

// TheoryStore remembers, per session, which missions' theory was shown
type TheoryStore interface {
	Acknowledge(ctx context.Context, sessionID, missionID string) error
	Acknowledged(ctx context.Context, sessionID, missionID string) (bool, error)
}

// AvailabilityGate decides whether a learner may play under a window
type AvailabilityGate interface {
	// CheckAvailability never fails; lookup problems become denials
	CheckAvailability(ctx context.Context, learnerID string, ref models.WindowRef, sessionID string) models.Availability
	AcknowledgeTheory(ctx context.Context, sessionID, missionID string) error
}

type availabilityGate struct {
	windows  repository.AvailabilityRepository
	attempts repository.AttemptRepository
	theory   TheoryStore
	now      Clock
}

// NewAvailabilityGate creates the gate. theory may be nil, in which case
// theory is always required when the window asks for it.
func NewAvailabilityGate(
	windows repository.AvailabilityRepository,
	attempts repository.AttemptRepository,
	theory TheoryStore,
	now Clock,
) AvailabilityGate {
	if now == nil {
		now = time.Now
	}
	return &availabilityGate{
		windows:  windows,
		attempts: attempts,
		theory:   theory,
		now:      now,
	}
}

func deny(reason, code string) models.Availability {
	return models.Availability{Reason: reason, Code: code}
}

// CheckAvailability evaluates active flag, date range, attempt cap, then theory
func (g *availabilityGate) CheckAvailability(ctx context.Context, learnerID string, ref models.WindowRef, sessionID string) models.Availability {
	log := logger.WithFields(map[string]interface{}{
		"learner_id": learnerID,
		"topic":      ref.Topic,
		"kind":       ref.Kind,
		"cohort":     ref.Cohort,
	})

	sctx, cancel := utils.WithStoreTimeout(ctx)
	w, err := g.windows.GetWindow(sctx, ref)
	cancel()
	switch {
	case errors.Is(err, models.ErrNotFound):
		return deny(models.ReasonInactive, models.ErrCodeWindowClosed)
	case err != nil:
		log.With("error", err.Error()).Warn("availability window lookup failed")
		return deny(models.ReasonUnavailable, models.ErrCodeStoreUnavailable)
	}

	out := models.Availability{MissionID: w.MissionID, MaxAttempts: w.MaxAttempts}
	if w.CloseAt != nil {
		closes := *w.CloseAt
		out.ClosesAt = &closes
	}

	if !w.IsActive {
		out.Reason, out.Code = models.ReasonInactive, models.ErrCodeWindowClosed
		return out
	}

	now := g.now()
	if now.Before(w.OpenAt) {
		opens := w.OpenAt
		out.OpensAt = &opens
		out.Reason, out.Code = models.ReasonNotYetOpen, models.ErrCodeWindowClosed
		return out
	}
	// Closed at the boundary: close_at == now already denies.
	if w.CloseAt != nil && !now.Before(*w.CloseAt) {
		out.Reason, out.Code = models.ReasonExpired, models.ErrCodeWindowClosed
		return out
	}

	sctx, cancel = utils.WithStoreTimeout(ctx)
	used, err := g.attempts.CountSince(sctx, learnerID, w.MissionID, w.CountingSince())
	cancel()
	if err != nil {
		log.With("error", err.Error()).Warn("attempt count failed")
		out.Reason, out.Code = models.ReasonUnavailable, models.ErrCodeStoreUnavailable
		return out
	}
	out.AttemptsUsed = used

	if w.MaxAttempts > 0 {
		if used >= w.MaxAttempts {
			out.AttemptsRemaining = 0
			out.Reason, out.Code = models.ReasonAttemptLimitReached, models.ErrCodeAttemptLimitReached
			return out
		}
		out.AttemptsRemaining = w.MaxAttempts - used
	} else {
		out.AttemptsRemaining = models.UnlimitedAttempts
	}

	out.CanPlay = true
	out.TheoryRequired = w.TheoryRequired && !g.acknowledged(ctx, sessionID, w.MissionID)
	return out
}

// acknowledged treats any lookup failure as "not yet shown"
func (g *availabilityGate) acknowledged(ctx context.Context, sessionID, missionID string) bool {
	if g.theory == nil || sessionID == "" {
		return false
	}
	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	ok, err := g.theory.Acknowledged(sctx, sessionID, missionID)
	if err != nil {
		logger.Warnf("theory acknowledgement lookup failed for session %s: %v", sessionID, err)
		return false
	}
	return ok
}

// AcknowledgeTheory records that the session has seen the mission's theory
func (g *availabilityGate) AcknowledgeTheory(ctx context.Context, sessionID, missionID string) error {
	if sessionID == "" || missionID == "" {
		return fmt.Errorf("session and mission are required: %w", models.ErrInvalidInput)
	}
	if g.theory == nil {
		return fmt.Errorf("no theory store configured: %w", models.ErrStoreUnavailable)
	}
	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	if err := g.theory.Acknowledge(sctx, sessionID, missionID); err != nil {
		return fmt.Errorf("acknowledge theory: %w", err)
	}
	return nil
}
