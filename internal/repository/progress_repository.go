package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"missionhub/pkg/models"
)

type progressRepository struct {
	pgBase
}

const progressColumns = `learner_id, total_points, level, activities_completed, missions_completed,
	perfect_scores, current_streak, longest_streak, last_activity_at, timezone, updated_at`

func scanProgress(row pgx.Row, p *models.LearnerProgress) error {
	return row.Scan(
		&p.LearnerID,
		&p.TotalPoints,
		&p.Level,
		&p.ActivitiesCompleted,
		&p.MissionsCompleted,
		&p.PerfectScores,
		&p.CurrentStreak,
		&p.LongestStreak,
		&p.LastActivityAt,
		&p.Timezone,
		&p.UpdatedAt,
	)
}

// Get returns the learner's row or ErrNotFound
func (r *progressRepository) Get(ctx context.Context, learnerID string) (*models.LearnerProgress, error) {
	p := &models.LearnerProgress{}
	err := scanProgress(r.pool.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM learner_progress WHERE learner_id = $1`, learnerID), p)
	if err != nil {
		return nil, mapDBError(err, "get_progress")
	}
	return p, nil
}

// lockProgress makes sure the row exists and locks it for this transaction
func lockProgress(ctx context.Context, tx pgx.Tx, learnerID string) (*models.LearnerProgress, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO learner_progress (learner_id) VALUES ($1)
		ON CONFLICT (learner_id) DO NOTHING
	`, learnerID); err != nil {
		return nil, mapDBError(err, "ensure_progress")
	}

	p := &models.LearnerProgress{}
	err := scanProgress(tx.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM learner_progress WHERE learner_id = $1 FOR UPDATE`, learnerID), p)
	if err != nil {
		return nil, mapDBError(err, "lock_progress")
	}
	return p, nil
}

func writeProgress(ctx context.Context, tx pgx.Tx, p *models.LearnerProgress) error {
	_, err := tx.Exec(ctx, `
		UPDATE learner_progress SET
			total_points = $2,
			level = $3,
			activities_completed = $4,
			missions_completed = $5,
			perfect_scores = $6,
			current_streak = $7,
			longest_streak = $8,
			last_activity_at = $9,
			updated_at = $10
		WHERE learner_id = $1
	`, p.LearnerID, p.TotalPoints, p.Level, p.ActivitiesCompleted, p.MissionsCompleted,
		p.PerfectScores, p.CurrentStreak, p.LongestStreak, p.LastActivityAt, p.UpdatedAt)
	if err != nil {
		return mapDBError(err, "update_progress")
	}
	return nil
}

// ApplyAttempt flips credited_at and folds the attempt into progress in
// the same transaction; a retried call finds credited_at set and stops.
func (r *progressRepository) ApplyAttempt(ctx context.Context, attemptID, learnerID string, fold ProgressFold) (*models.LearnerProgress, bool, error) {
	var out *models.LearnerProgress
	applied := false

	err := r.WithTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE attempts SET credited_at = CURRENT_TIMESTAMP
			WHERE id = $1 AND learner_id = $2
			  AND credited_at IS NULL
			  AND status IN ('completed', 'failed')
		`, attemptID, learnerID)
		if err != nil {
			return mapDBError(err, "mark_credited")
		}

		current, err := lockProgress(ctx, tx, learnerID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			out = current
			return nil
		}

		next := fold(*current)
		next.LearnerID = learnerID
		next.Level = models.LevelFor(next.TotalPoints)
		if next.UpdatedAt.IsZero() {
			next.UpdatedAt = time.Now()
		}
		if err := writeProgress(ctx, tx, &next); err != nil {
			return err
		}
		out = &next
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, applied, nil
}

// SetTimezone records the learner's day-boundary timezone
func (r *progressRepository) SetTimezone(ctx context.Context, learnerID, timezone string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO learner_progress (learner_id, timezone) VALUES ($1, $2)
		ON CONFLICT (learner_id) DO UPDATE SET timezone = EXCLUDED.timezone, updated_at = CURRENT_TIMESTAMP
	`, learnerID, timezone)
	if err != nil {
		return mapDBError(err, "set_timezone")
	}
	return nil
}
