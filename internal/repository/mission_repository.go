package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"missionhub/pkg/models"
)

type missionRepository struct {
	pgBase
}

const missionColumns = `id, title, topic, kind, difficulty_tier, base_points, pass_percentage, created_at`

func scanMission(row pgx.Row, m *models.MissionDefinition) error {
	var kind string
	if err := row.Scan(
		&m.ID,
		&m.Title,
		&m.Topic,
		&kind,
		&m.DifficultyTier,
		&m.BasePoints,
		&m.PassPercentage,
		&m.CreatedAt,
	); err != nil {
		return err
	}
	m.Kind = models.MissionKind(kind)
	return nil
}

// GetMission returns a mission with its ordered activity ids
func (r *missionRepository) GetMission(ctx context.Context, id string) (*models.MissionDefinition, error) {
	m := &models.MissionDefinition{}
	err := scanMission(r.pool.QueryRow(ctx,
		`SELECT `+missionColumns+` FROM missions WHERE id = $1`, id), m)
	if err != nil {
		return nil, mapDBError(err, "get_mission")
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id FROM activities WHERE mission_id = $1 ORDER BY order_index`, id)
	if err != nil {
		return nil, mapDBError(err, "list_mission_activity_ids")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapDBError(err, "scan_mission_activity_ids")
	}
	m.ActivityIDs = ids
	return m, nil
}

// ListMissions returns every mission ordered by topic then id
func (r *missionRepository) ListMissions(ctx context.Context) ([]models.MissionDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+missionColumns+` FROM missions ORDER BY topic, id`)
	if err != nil {
		return nil, mapDBError(err, "list_missions")
	}
	defer rows.Close()

	var out []models.MissionDefinition
	for rows.Next() {
		var m models.MissionDefinition
		if err := scanMission(rows, &m); err != nil {
			return nil, mapDBError(err, "scan_mission")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBError(err, "list_missions")
	}
	return out, nil
}

const activityColumns = `id, mission_id, kind, content, point_value, time_limit_seconds, order_index`

func scanActivity(row pgx.Row, a *models.ActivityDefinition) error {
	var kind string
	var content []byte
	if err := row.Scan(
		&a.ID,
		&a.MissionID,
		&kind,
		&content,
		&a.PointValue,
		&a.TimeLimitSeconds,
		&a.OrderIndex,
	); err != nil {
		return err
	}
	a.Kind = models.ActivityKind(kind)
	a.Content = json.RawMessage(content)
	return nil
}

// ListActivities returns activities in order index order
func (r *missionRepository) ListActivities(ctx context.Context, missionID string) ([]models.ActivityDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE mission_id = $1 ORDER BY order_index`, missionID)
	if err != nil {
		return nil, mapDBError(err, "list_activities")
	}
	defer rows.Close()

	var out []models.ActivityDefinition
	for rows.Next() {
		var a models.ActivityDefinition
		if err := scanActivity(rows, &a); err != nil {
			return nil, mapDBError(err, "scan_activity")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBError(err, "list_activities")
	}
	return out, nil
}

// UpsertMission replaces a mission and its activity set
func (r *missionRepository) UpsertMission(ctx context.Context, m *models.MissionDefinition, acts []models.ActivityDefinition) error {
	return r.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO missions (id, title, topic, kind, difficulty_tier, base_points, pass_percentage)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				topic = EXCLUDED.topic,
				kind = EXCLUDED.kind,
				difficulty_tier = EXCLUDED.difficulty_tier,
				base_points = EXCLUDED.base_points,
				pass_percentage = EXCLUDED.pass_percentage
		`, m.ID, m.Title, m.Topic, string(m.Kind), m.DifficultyTier, m.BasePoints, m.PassPercentage)
		if err != nil {
			return mapDBError(err, "upsert_mission")
		}

		// Activity ids can move order index, so clear before re-inserting
		// to avoid transient unique (mission_id, order_index) collisions.
		if _, err := tx.Exec(ctx, `DELETE FROM activities WHERE mission_id = $1`, m.ID); err != nil {
			return mapDBError(err, "clear_activities")
		}

		batch := &pgx.Batch{}
		for _, a := range acts {
			content := []byte(a.Content)
			if len(content) == 0 {
				content = []byte("{}")
			}
			batch.Queue(`
				INSERT INTO activities (id, mission_id, kind, content, point_value, time_limit_seconds, order_index)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, a.ID, m.ID, string(a.Kind), content, a.PointValue, a.TimeLimitSeconds, a.OrderIndex)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return mapDBError(err, "insert_activities")
		}
		return nil
	})
}
