package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"missionhub/pkg/models"
)

type badgeRepository struct {
	pgBase
}

const badgeColumns = `id, name, description, criteria_type, threshold, point_reward, rarity, is_active`

func scanBadge(row pgx.Row, b *models.Badge) error {
	var criteria string
	if err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Description,
		&criteria,
		&b.Threshold,
		&b.PointReward,
		&b.Rarity,
		&b.IsActive,
	); err != nil {
		return err
	}
	b.CriteriaType = models.BadgeCriteria(criteria)
	return nil
}

func (r *badgeRepository) listBadges(ctx context.Context, query, op string) ([]models.Badge, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, mapDBError(err, op)
	}
	defer rows.Close()

	var out []models.Badge
	for rows.Next() {
		var b models.Badge
		if err := scanBadge(rows, &b); err != nil {
			return nil, mapDBError(err, "scan_badge")
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBError(err, op)
	}
	return out, nil
}

// ListActive returns badges eligible for evaluation
func (r *badgeRepository) ListActive(ctx context.Context) ([]models.Badge, error) {
	return r.listBadges(ctx,
		`SELECT `+badgeColumns+` FROM badges WHERE is_active ORDER BY threshold, id`, "list_active_badges")
}

// ListAll returns every badge including inactive ones
func (r *badgeRepository) ListAll(ctx context.Context) ([]models.Badge, error) {
	return r.listBadges(ctx,
		`SELECT `+badgeColumns+` FROM badges ORDER BY criteria_type, threshold, id`, "list_badges")
}

// ListEarned returns a learner's badges, newest first, with badge details joined
func (r *badgeRepository) ListEarned(ctx context.Context, learnerID string) ([]models.LearnerBadge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT lb.learner_id, lb.badge_id, lb.earned_at,
			b.id, b.name, b.description, b.criteria_type, b.threshold, b.point_reward, b.rarity, b.is_active
		FROM learner_badges lb
		JOIN badges b ON b.id = lb.badge_id
		WHERE lb.learner_id = $1
		ORDER BY lb.earned_at DESC, lb.badge_id
	`, learnerID)
	if err != nil {
		return nil, mapDBError(err, "list_earned_badges")
	}
	defer rows.Close()

	out := []models.LearnerBadge{}
	for rows.Next() {
		var lb models.LearnerBadge
		var b models.Badge
		var criteria string
		if err := rows.Scan(
			&lb.LearnerID, &lb.BadgeID, &lb.EarnedAt,
			&b.ID, &b.Name, &b.Description, &criteria, &b.Threshold, &b.PointReward, &b.Rarity, &b.IsActive,
		); err != nil {
			return nil, mapDBError(err, "scan_earned_badge")
		}
		b.CriteriaType = models.BadgeCriteria(criteria)
		lb.Badge = &b
		out = append(out, lb)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBError(err, "list_earned_badges")
	}
	return out, nil
}

// Grant uses the learner_badges primary key as the only guard; the reward
// is added only when this call inserted the row.
func (r *badgeRepository) Grant(ctx context.Context, learnerID string, badge *models.Badge, earnedAt time.Time) (*models.LearnerProgress, bool, error) {
	var out *models.LearnerProgress
	granted := false

	err := r.WithTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO learner_badges (learner_id, badge_id, earned_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (learner_id, badge_id) DO NOTHING
		`, learnerID, badge.ID, earnedAt)
		if err != nil {
			return mapDBError(err, "grant_badge")
		}

		p, err := lockProgress(ctx, tx, learnerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			out = p
			return nil
		}

		granted = true
		if badge.PointReward > 0 {
			p.AddPoints(badge.PointReward)
			p.UpdatedAt = earnedAt
			if err := writeProgress(ctx, tx, p); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, granted, nil
}

// UpsertBadge writes an authored badge
func (r *badgeRepository) UpsertBadge(ctx context.Context, b *models.Badge) error {
	rarity := b.Rarity
	if rarity == "" {
		rarity = models.RarityCommon
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO badges (id, name, description, criteria_type, threshold, point_reward, rarity, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			criteria_type = EXCLUDED.criteria_type,
			threshold = EXCLUDED.threshold,
			point_reward = EXCLUDED.point_reward,
			rarity = EXCLUDED.rarity,
			is_active = EXCLUDED.is_active
	`, b.ID, b.Name, b.Description, string(b.CriteriaType), b.Threshold, b.PointReward, rarity, b.IsActive)
	if err != nil {
		return mapDBError(err, "upsert_badge")
	}
	return nil
}
