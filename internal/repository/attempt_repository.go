package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"missionhub/pkg/models"
)

type attemptRepository struct {
	pgBase
}

const attemptColumns = `id, learner_id, mission_id, kind, status, score_percentage, points_earned,
	passed, performance_tier, multiplier, time_spent_ms, activity_count, started_at, completed_at, credited_at`

func scanAttempt(row pgx.Row, a *models.Attempt) error {
	var kind, status, tier string
	if err := row.Scan(
		&a.ID,
		&a.LearnerID,
		&a.MissionID,
		&kind,
		&status,
		&a.ScorePercentage,
		&a.PointsEarned,
		&a.Passed,
		&tier,
		&a.Multiplier,
		&a.TimeSpentMs,
		&a.ActivityCount,
		&a.StartedAt,
		&a.CompletedAt,
		&a.CreditedAt,
	); err != nil {
		return err
	}
	a.Kind = models.MissionKind(kind)
	a.Status = models.AttemptStatus(status)
	a.PerformanceTier = models.PerformanceTier(tier)
	return nil
}

const resultColumns = `attempt_id, activity_id, order_index, is_correct, score_percentage,
	points_earned, response, time_spent_ms, recorded_at`

func scanResult(row pgx.Row, r *models.ActivityResult) error {
	var response []byte
	if err := row.Scan(
		&r.AttemptID,
		&r.ActivityID,
		&r.OrderIndex,
		&r.IsCorrect,
		&r.ScorePercentage,
		&r.PointsEarned,
		&response,
		&r.TimeSpentMs,
		&r.RecordedAt,
	); err != nil {
		return err
	}
	if len(response) > 0 {
		r.Response = json.RawMessage(response)
	}
	return nil
}

// queryer is satisfied by both the pool and a transaction
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadAttempt(ctx context.Context, q queryer, query string, args ...any) (*models.Attempt, error) {
	a := &models.Attempt{}
	if err := scanAttempt(q.QueryRow(ctx, query, args...), a); err != nil {
		return nil, err
	}
	results, err := listResults(ctx, q, a.ID)
	if err != nil {
		return nil, err
	}
	a.Results = results
	return a, nil
}

func listResults(ctx context.Context, q queryer, attemptID string) ([]models.ActivityResult, error) {
	rows, err := q.Query(ctx, `
		SELECT `+resultColumns+`
		FROM activity_results
		WHERE attempt_id = $1
		ORDER BY order_index, recorded_at
	`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.ActivityResult{}
	for rows.Next() {
		var r models.ActivityResult
		if err := scanResult(rows, &r); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// FindOpen returns the in_progress attempt for (learner, mission)
func (r *attemptRepository) FindOpen(ctx context.Context, learnerID, missionID string) (*models.Attempt, error) {
	a, err := loadAttempt(ctx, r.pool, `
		SELECT `+attemptColumns+`
		FROM attempts
		WHERE learner_id = $1 AND mission_id = $2 AND status = 'in_progress'
	`, learnerID, missionID)
	if err != nil {
		return nil, mapDBError(err, "find_open_attempt")
	}
	return a, nil
}

// CreateOpen relies on uq_attempts_one_open: the loser of a concurrent
// insert hits ON CONFLICT DO NOTHING and reads the winner's row.
func (r *attemptRepository) CreateOpen(ctx context.Context, attempt *models.Attempt) (*models.Attempt, bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO attempts (id, learner_id, mission_id, kind, status, multiplier, started_at)
		VALUES ($1, $2, $3, $4, 'in_progress', 1, $5)
		ON CONFLICT (learner_id, mission_id) WHERE status = 'in_progress' DO NOTHING
	`, attempt.ID, attempt.LearnerID, attempt.MissionID, string(attempt.Kind), attempt.StartedAt)
	if err != nil {
		return nil, false, mapDBError(err, "create_attempt")
	}

	created := tag.RowsAffected() == 1
	stored, err := r.FindOpen(ctx, attempt.LearnerID, attempt.MissionID)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// Get returns an attempt with its results
func (r *attemptRepository) Get(ctx context.Context, attemptID string) (*models.Attempt, error) {
	a, err := loadAttempt(ctx, r.pool,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, attemptID)
	if err != nil {
		return nil, mapDBError(err, "get_attempt")
	}
	return a, nil
}

// CountSince counts attempts of every status since the window activation
func (r *attemptRepository) CountSince(ctx context.Context, learnerID, missionID string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM attempts
		WHERE learner_id = $1 AND mission_id = $2 AND started_at >= $3
	`, learnerID, missionID, since).Scan(&n)
	if err != nil {
		return 0, mapDBError(err, "count_attempts")
	}
	return n, nil
}

// AppendResult locks the attempt row FOR UPDATE so appends to one attempt
// and a concurrent Finalize serialize behind the status and order checks.
// A result is inserted only when every activity of the mission ordered
// before it already has a result.
func (r *attemptRepository) AppendResult(ctx context.Context, result *models.ActivityResult) (*models.ActivityResult, bool, error) {
	var stored *models.ActivityResult
	inserted := false

	err := r.WithTransaction(ctx, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx,
			`SELECT status FROM attempts WHERE id = $1 FOR UPDATE`, result.AttemptID).Scan(&status)
		if err != nil {
			return mapDBError(err, "lock_attempt")
		}
		if models.AttemptStatus(status).IsTerminal() {
			return fmt.Errorf("append result to %s attempt: %w", status, models.ErrAttemptClosed)
		}

		var response []byte
		if len(result.Response) > 0 {
			response = []byte(result.Response)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO activity_results (attempt_id, activity_id, order_index, is_correct,
				score_percentage, points_earned, response, time_spent_ms, recorded_at)
			SELECT $1::text, $2::text, $3::int, $4::boolean, $5::float8, $6::int, $7::jsonb, $8::bigint, $9::timestamptz
			WHERE NOT EXISTS (
				SELECT 1 FROM activity_results WHERE attempt_id = $1::text AND order_index > $3::int
			)
			AND NOT EXISTS (
				SELECT 1
				FROM activities d
				JOIN attempts a ON a.mission_id = d.mission_id
				WHERE a.id = $1::text AND d.order_index < $3::int
				  AND NOT EXISTS (
					SELECT 1 FROM activity_results r
					WHERE r.attempt_id = $1::text AND r.activity_id = d.id
				  )
			)
			ON CONFLICT (attempt_id, activity_id) DO NOTHING
			RETURNING `+resultColumns,
			result.AttemptID, result.ActivityID, result.OrderIndex, result.IsCorrect,
			result.ScorePercentage, result.PointsEarned, response, result.TimeSpentMs, result.RecordedAt)

		var fresh models.ActivityResult
		err = scanResult(row, &fresh)
		if err == nil {
			stored = &fresh
			inserted = true
			return nil
		}
		if err != pgx.ErrNoRows {
			return mapDBError(err, "append_result")
		}

		// Nothing inserted: a retry of a stored activity, or out of order.
		var existing models.ActivityResult
		err = scanResult(tx.QueryRow(ctx, `
			SELECT `+resultColumns+`
			FROM activity_results
			WHERE attempt_id = $1 AND activity_id = $2
		`, result.AttemptID, result.ActivityID), &existing)
		if err == pgx.ErrNoRows {
			return fmt.Errorf("activity %s at order %d: %w", result.ActivityID, result.OrderIndex, models.ErrOutOfOrder)
		}
		if err != nil {
			return mapDBError(err, "get_result")
		}
		stored = &existing
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, inserted, nil
}

// Finalize is a compare-and-set on status = 'in_progress'
func (r *attemptRepository) Finalize(ctx context.Context, attemptID string, status models.AttemptStatus, agg models.MissionAggregate, at time.Time) (*models.Attempt, bool, error) {
	if !status.IsTerminal() {
		return nil, false, fmt.Errorf("finalize to %s: %w", status, models.ErrInvalidInput)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE attempts SET
			status = $2,
			score_percentage = $3,
			points_earned = $4,
			passed = $5,
			performance_tier = $6,
			multiplier = $7,
			time_spent_ms = $8,
			activity_count = $9,
			completed_at = $10
		WHERE id = $1 AND status = 'in_progress'
	`, attemptID, string(status), agg.ScorePercentage, agg.PointsEarned, agg.Passed,
		string(agg.PerformanceTier), agg.Multiplier, agg.TimeSpentMs, agg.ActivityCount, at)
	if err != nil {
		return nil, false, mapDBError(err, "finalize_attempt")
	}

	stored, err := r.Get(ctx, attemptID)
	if err != nil {
		return nil, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

// ListUncredited finds finalized attempts whose progress credit is missing
func (r *attemptRepository) ListUncredited(ctx context.Context, limit int) ([]models.Attempt, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+attemptColumns+`
		FROM attempts
		WHERE status IN ('completed', 'failed') AND credited_at IS NULL
		ORDER BY completed_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, mapDBError(err, "list_uncredited")
	}
	defer rows.Close()

	var out []models.Attempt
	for rows.Next() {
		var a models.Attempt
		if err := scanAttempt(rows, &a); err != nil {
			return nil, mapDBError(err, "scan_attempt")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBError(err, "list_uncredited")
	}
	rows.Close()

	for i := range out {
		results, err := listResults(ctx, r.pool, out[i].ID)
		if err != nil {
			return nil, mapDBError(err, "list_results")
		}
		out[i].Results = results
	}
	return out, nil
}
