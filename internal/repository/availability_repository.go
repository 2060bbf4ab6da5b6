package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"missionhub/pkg/models"
)

type availabilityRepository struct {
	pgBase
}

const windowColumns = `id, topic, kind, cohort, mission_id, is_active, open_at, close_at,
	max_attempts, theory_required, activated_at`

func scanWindow(row pgx.Row, w *models.AvailabilityWindow) error {
	return row.Scan(
		&w.ID,
		&w.Topic,
		&w.Kind,
		&w.Cohort,
		&w.MissionID,
		&w.IsActive,
		&w.OpenAt,
		&w.CloseAt,
		&w.MaxAttempts,
		&w.TheoryRequired,
		&w.ActivatedAt,
	)
}

// GetWindow reads the window matching ref. An empty MissionID matches any
// mission; active windows win over inactive ones.
func (r *availabilityRepository) GetWindow(ctx context.Context, ref models.WindowRef) (*models.AvailabilityWindow, error) {
	w := &models.AvailabilityWindow{}
	err := scanWindow(r.pool.QueryRow(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE topic = $1 AND kind = $2 AND cohort = $3
		  AND ($4 = '' OR mission_id = $4)
		ORDER BY is_active DESC, open_at DESC
		LIMIT 1
	`, ref.Topic, ref.Kind, ref.Cohort, ref.MissionID), w)
	if err != nil {
		return nil, mapDBError(err, "get_window")
	}
	return w, nil
}

// ListWindows returns every window for admin display
func (r *availabilityRepository) ListWindows(ctx context.Context) ([]models.AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+windowColumns+` FROM availability_windows ORDER BY topic, kind, cohort`)
	if err != nil {
		return nil, mapDBError(err, "list_windows")
	}
	defer rows.Close()

	var out []models.AvailabilityWindow
	for rows.Next() {
		var w models.AvailabilityWindow
		if err := scanWindow(rows, &w); err != nil {
			return nil, mapDBError(err, "scan_window")
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBError(err, "list_windows")
	}
	return out, nil
}

// UpsertWindow writes an authored window
func (r *availabilityRepository) UpsertWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_windows (id, topic, kind, cohort, mission_id, is_active, open_at,
			close_at, max_attempts, theory_required, activated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			topic = EXCLUDED.topic,
			kind = EXCLUDED.kind,
			cohort = EXCLUDED.cohort,
			mission_id = EXCLUDED.mission_id,
			is_active = EXCLUDED.is_active,
			open_at = EXCLUDED.open_at,
			close_at = EXCLUDED.close_at,
			max_attempts = EXCLUDED.max_attempts,
			theory_required = EXCLUDED.theory_required,
			activated_at = EXCLUDED.activated_at
	`, w.ID, w.Topic, w.Kind, w.Cohort, w.MissionID, w.IsActive, w.OpenAt,
		w.CloseAt, w.MaxAttempts, w.TheoryRequired, w.ActivatedAt)
	if err != nil {
		return mapDBError(err, "upsert_window")
	}
	return nil
}
