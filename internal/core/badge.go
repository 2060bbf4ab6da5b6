package core

import (
	"context"
	"fmt"
	"time"

	"missionhub/internal/repository"
	"missionhub/pkg/logger"
	"missionhub/pkg/models"
	"missionhub/pkg/utils"
)

// CriteriaMet reports whether progress satisfies the badge's criteria
func CriteriaMet(b models.Badge, p models.LearnerProgress) bool {
	var value int
	switch b.CriteriaType {
	case models.CriteriaMissionsCompleted:
		value = p.MissionsCompleted
	case models.CriteriaPointsReached:
		value = p.TotalPoints
	case models.CriteriaStreakDays:
		value = p.CurrentStreak
	case models.CriteriaPerfectScores:
		value = p.PerfectScores
	default:
		return false
	}
	return value >= b.Threshold
}

// BadgeService evaluates and grants badges
type BadgeService interface {
	// EvaluateAndAward grants every satisfied, unearned active badge and
	// returns the badges granted by this call with the resulting progress
	EvaluateAndAward(ctx context.Context, learnerID string, progress models.LearnerProgress) ([]models.Badge, models.LearnerProgress, error)
	ListEarnedBadges(ctx context.Context, learnerID string) ([]models.LearnerBadge, error)
	ListBadges(ctx context.Context) ([]models.Badge, error)
}

type badgeService struct {
	badges repository.BadgeRepository
	now    Clock
}

// NewBadgeService creates the badge engine
func NewBadgeService(badges repository.BadgeRepository, now Clock) BadgeService {
	if now == nil {
		now = time.Now
	}
	return &badgeService{badges: badges, now: now}
}

// EvaluateAndAward repeats until no new badge qualifies, since a point
// reward can itself satisfy a points_reached badge.
func (s *badgeService) EvaluateAndAward(ctx context.Context, learnerID string, progress models.LearnerProgress) ([]models.Badge, models.LearnerProgress, error) {
	sctx, cancel := utils.WithStoreTimeout(ctx)
	active, err := s.badges.ListActive(sctx)
	cancel()
	if err != nil {
		return nil, progress, fmt.Errorf("list active badges: %w", err)
	}

	sctx, cancel = utils.WithStoreTimeout(ctx)
	earned, err := s.badges.ListEarned(sctx, learnerID)
	cancel()
	if err != nil {
		return nil, progress, fmt.Errorf("list earned badges: %w", err)
	}
	held := make(map[string]bool, len(earned))
	for _, lb := range earned {
		held[lb.BadgeID] = true
	}

	var awarded []models.Badge
	for changed := true; changed; {
		changed = false
		for i := range active {
			b := active[i]
			if held[b.ID] || !CriteriaMet(b, progress) {
				continue
			}

			sctx, cancel := utils.WithStoreTimeout(ctx)
			p, granted, err := s.badges.Grant(sctx, learnerID, &b, s.now())
			cancel()
			if err != nil {
				return awarded, progress, fmt.Errorf("grant badge %s: %w", b.ID, err)
			}
			held[b.ID] = true
			if p != nil {
				progress = *p
			}
			if !granted {
				// Someone else granted it concurrently; the reward is theirs.
				continue
			}

			awarded = append(awarded, b)
			if b.PointReward > 0 {
				changed = true
			}
			logger.WithFields(map[string]interface{}{
				"learner_id": learnerID,
				"badge_id":   b.ID,
				"reward":     b.PointReward,
			}).Info("badge awarded")
		}
	}
	return awarded, progress, nil
}

func (s *badgeService) ListEarnedBadges(ctx context.Context, learnerID string) ([]models.LearnerBadge, error) {
	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	return s.badges.ListEarned(sctx, learnerID)
}

func (s *badgeService) ListBadges(ctx context.Context) ([]models.Badge, error) {
	sctx, cancel := utils.WithStoreTimeout(ctx)
	defer cancel()
	return s.badges.ListAll(sctx)
}
