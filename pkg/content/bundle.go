// Package content loads authored mission, window and badge definitions
// from a YAML bundle. The engine treats these as read-only.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"missionhub/pkg/models"
)

// Bundle is the on-disk authoring format
type Bundle struct {
	Missions []Mission                  `yaml:"missions"`
	Windows  []models.AvailabilityWindow `yaml:"windows"`
	Badges   []models.Badge             `yaml:"badges"`
}

// Mission is a mission definition with its activities inlined
type Mission struct {
	models.MissionDefinition `yaml:",inline"`
	Activities               []Activity `yaml:"activities"`
}

// Activity is an activity definition whose content is authored as YAML
type Activity struct {
	ID               string                 `yaml:"id"`
	Kind             models.ActivityKind    `yaml:"kind"`
	PointValue       int                    `yaml:"point_value"`
	TimeLimitSeconds *int                   `yaml:"time_limit_seconds"`
	OrderIndex       int                    `yaml:"order_index"`
	Content          map[string]interface{} `yaml:"content"`
}

// Sink receives the definitions of a bundle
type Sink interface {
	UpsertMission(ctx context.Context, mission *models.MissionDefinition, activities []models.ActivityDefinition) error
	UpsertWindow(ctx context.Context, window *models.AvailabilityWindow) error
	UpsertBadge(ctx context.Context, badge *models.Badge) error
}

// Load reads and validates a bundle file
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content bundle: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates bundle bytes
func Parse(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode content bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks referential integrity and closed sets. Activity content
// shape is left to the scorer.
func (b *Bundle) Validate() error {
	var errs []error
	missions := make(map[string]bool, len(b.Missions))

	for _, m := range b.Missions {
		if m.ID == "" {
			errs = append(errs, errors.New("mission without id"))
			continue
		}
		if missions[m.ID] {
			errs = append(errs, fmt.Errorf("mission %s: duplicate id", m.ID))
		}
		missions[m.ID] = true

		switch m.Kind {
		case models.MissionStructured, "":
			if len(m.Activities) == 0 {
				errs = append(errs, fmt.Errorf("mission %s: structured mission has no activities", m.ID))
			}
		case models.MissionSession:
		default:
			errs = append(errs, fmt.Errorf("mission %s: unknown kind %q", m.ID, m.Kind))
		}
		if m.PassPercentage < 0 || m.PassPercentage > 100 {
			errs = append(errs, fmt.Errorf("mission %s: pass_percentage out of range", m.ID))
		}

		orders := make(map[int]string, len(m.Activities))
		for _, a := range m.Activities {
			if a.ID == "" {
				errs = append(errs, fmt.Errorf("mission %s: activity without id", m.ID))
			}
			if !a.Kind.Valid() {
				errs = append(errs, fmt.Errorf("activity %s: unknown kind %q", a.ID, a.Kind))
			}
			if a.PointValue < 0 {
				errs = append(errs, fmt.Errorf("activity %s: negative point_value", a.ID))
			}
			if other, dup := orders[a.OrderIndex]; dup {
				errs = append(errs, fmt.Errorf("activity %s: order_index %d already used by %s", a.ID, a.OrderIndex, other))
			}
			orders[a.OrderIndex] = a.ID
		}
	}

	for _, w := range b.Windows {
		if w.ID == "" {
			errs = append(errs, errors.New("window without id"))
		}
		if !missions[w.MissionID] {
			errs = append(errs, fmt.Errorf("window %s: unknown mission %s", w.ID, w.MissionID))
		}
		if w.MaxAttempts < 0 {
			errs = append(errs, fmt.Errorf("window %s: negative max_attempts", w.ID))
		}
		if w.CloseAt != nil && !w.CloseAt.After(w.OpenAt) {
			errs = append(errs, fmt.Errorf("window %s: close_at must be after open_at", w.ID))
		}
	}

	for _, bd := range b.Badges {
		switch bd.CriteriaType {
		case models.CriteriaMissionsCompleted, models.CriteriaPointsReached,
			models.CriteriaStreakDays, models.CriteriaPerfectScores:
		default:
			errs = append(errs, fmt.Errorf("badge %s: unknown criteria %q", bd.ID, bd.CriteriaType))
		}
		if bd.Threshold <= 0 {
			errs = append(errs, fmt.Errorf("badge %s: threshold must be positive", bd.ID))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", models.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

// Definitions converts a bundled mission into engine definitions,
// activities sorted by order index
func (m *Mission) Definitions() (models.MissionDefinition, []models.ActivityDefinition, error) {
	def := m.MissionDefinition
	if def.Kind == "" {
		def.Kind = models.MissionStructured
	}

	acts := make([]models.ActivityDefinition, 0, len(m.Activities))
	for _, a := range m.Activities {
		payload, err := json.Marshal(a.Content)
		if err != nil {
			return def, nil, fmt.Errorf("activity %s content: %w", a.ID, err)
		}
		acts = append(acts, models.ActivityDefinition{
			ID:               a.ID,
			MissionID:        def.ID,
			Kind:             a.Kind,
			Content:          payload,
			PointValue:       a.PointValue,
			TimeLimitSeconds: a.TimeLimitSeconds,
			OrderIndex:       a.OrderIndex,
		})
	}
	sort.Slice(acts, func(i, j int) bool { return acts[i].OrderIndex < acts[j].OrderIndex })

	def.ActivityIDs = make([]string, len(acts))
	for i, a := range acts {
		def.ActivityIDs[i] = a.ID
	}
	return def, acts, nil
}

// Stats summarizes what Apply wrote
type Stats struct {
	Missions   int
	Activities int
	Windows    int
	Badges     int
}

// Apply upserts every definition into sink. Missions go first so windows
// can reference them.
func (b *Bundle) Apply(ctx context.Context, sink Sink) (Stats, error) {
	var st Stats
	for i := range b.Missions {
		def, acts, err := b.Missions[i].Definitions()
		if err != nil {
			return st, err
		}
		if err := sink.UpsertMission(ctx, &def, acts); err != nil {
			return st, fmt.Errorf("upsert mission %s: %w", def.ID, err)
		}
		st.Missions++
		st.Activities += len(acts)
	}
	for i := range b.Windows {
		if err := sink.UpsertWindow(ctx, &b.Windows[i]); err != nil {
			return st, fmt.Errorf("upsert window %s: %w", b.Windows[i].ID, err)
		}
		st.Windows++
	}
	for i := range b.Badges {
		if err := sink.UpsertBadge(ctx, &b.Badges[i]); err != nil {
			return st, fmt.Errorf("upsert badge %s: %w", b.Badges[i].ID, err)
		}
		st.Badges++
	}
	return st, nil
}
