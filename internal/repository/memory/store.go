// Package memory is an in-process progress store with the same guarantees
// as the Postgres store. Used for dev mode and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"missionhub/internal/repository"
	"missionhub/pkg/models"
)

type state struct {
	mu sync.Mutex

	missions   map[string]models.MissionDefinition
	activities map[string][]models.ActivityDefinition
	windows    map[string]models.AvailabilityWindow
	attempts   map[string]*models.Attempt
	results    map[string][]models.ActivityResult
	progress   map[string]*models.LearnerProgress
	badges     map[string]models.Badge
	earned     map[string]map[string]models.LearnerBadge

	faults map[string]error
	now    func() time.Time
}

// Store holds the memory state behind the repository interfaces
type Store struct {
	*repository.Store
	st *state
}

// NewStore returns an empty memory store
func NewStore() *Store {
	st := &state{
		missions:   map[string]models.MissionDefinition{},
		activities: map[string][]models.ActivityDefinition{},
		windows:    map[string]models.AvailabilityWindow{},
		attempts:   map[string]*models.Attempt{},
		results:    map[string][]models.ActivityResult{},
		progress:   map[string]*models.LearnerProgress{},
		badges:     map[string]models.Badge{},
		earned:     map[string]map[string]models.LearnerBadge{},
		faults:     map[string]error{},
		now:        time.Now,
	}
	return &Store{
		Store: repository.NewStore(
			&missionRepo{st},
			&windowRepo{st},
			&attemptRepo{st},
			&progressRepo{st},
			&badgeRepo{st},
		),
		st: st,
	}
}

// FailNext makes the next call of op return err. Ops are named after the
// repository method, e.g. "ApplyAttempt".
func (s *Store) FailNext(op string, err error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.faults[op] = err
}

// SetClock overrides the timestamp source for credited_at
func (s *Store) SetClock(now func() time.Time) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.now = now
}

// fault must be called with mu held
func (st *state) fault(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %v", op, models.ErrStoreUnavailable, err)
	}
	if err, ok := st.faults[op]; ok {
		delete(st.faults, op)
		return err
	}
	return nil
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, models.ErrNotFound)
}

func cloneAttempt(a *models.Attempt, results []models.ActivityResult) *models.Attempt {
	c := *a
	c.Results = append([]models.ActivityResult{}, results...)
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		c.CompletedAt = &t
	}
	if a.CreditedAt != nil {
		t := *a.CreditedAt
		c.CreditedAt = &t
	}
	return &c
}

// missions

type missionRepo struct{ st *state }

func (r *missionRepo) GetMission(ctx context.Context, id string) (*models.MissionDefinition, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "GetMission"); err != nil {
		return nil, err
	}
	m, ok := r.st.missions[id]
	if !ok {
		return nil, notFound("get_mission")
	}
	ids := make([]string, 0, len(r.st.activities[id]))
	for _, a := range r.st.activities[id] {
		ids = append(ids, a.ID)
	}
	m.ActivityIDs = ids
	return &m, nil
}

func (r *missionRepo) ListMissions(ctx context.Context) ([]models.MissionDefinition, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "ListMissions"); err != nil {
		return nil, err
	}
	out := make([]models.MissionDefinition, 0, len(r.st.missions))
	for _, m := range r.st.missions {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Topic != out[j].Topic {
			return out[i].Topic < out[j].Topic
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *missionRepo) ListActivities(ctx context.Context, missionID string) ([]models.ActivityDefinition, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "ListActivities"); err != nil {
		return nil, err
	}
	return append([]models.ActivityDefinition{}, r.st.activities[missionID]...), nil
}

func (r *missionRepo) UpsertMission(ctx context.Context, m *models.MissionDefinition, acts []models.ActivityDefinition) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "UpsertMission"); err != nil {
		return err
	}
	seen := map[int]string{}
	for _, a := range acts {
		if other, dup := seen[a.OrderIndex]; dup {
			return fmt.Errorf("upsert_mission: order index %d shared by %s and %s: %w",
				a.OrderIndex, other, a.ID, models.ErrInvalidInput)
		}
		seen[a.OrderIndex] = a.ID
	}

	stored := *m
	stored.ActivityIDs = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.st.now()
	}
	r.st.missions[m.ID] = stored

	sorted := make([]models.ActivityDefinition, len(acts))
	copy(sorted, acts)
	for i := range sorted {
		sorted[i].MissionID = m.ID
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })
	r.st.activities[m.ID] = sorted
	return nil
}

// windows

type windowRepo struct{ st *state }

func (r *windowRepo) GetWindow(ctx context.Context, ref models.WindowRef) (*models.AvailabilityWindow, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "GetWindow"); err != nil {
		return nil, err
	}
	var best *models.AvailabilityWindow
	for _, w := range r.st.windows {
		if w.Topic != ref.Topic || w.Kind != ref.Kind || w.Cohort != ref.Cohort {
			continue
		}
		if ref.MissionID != "" && w.MissionID != ref.MissionID {
			continue
		}
		w := w
		switch {
		case best == nil:
			best = &w
		case w.IsActive && !best.IsActive:
			best = &w
		case w.IsActive == best.IsActive && w.OpenAt.After(best.OpenAt):
			best = &w
		}
	}
	if best == nil {
		return nil, notFound("get_window")
	}
	return best, nil
}

func (r *windowRepo) ListWindows(ctx context.Context) ([]models.AvailabilityWindow, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "ListWindows"); err != nil {
		return nil, err
	}
	out := make([]models.AvailabilityWindow, 0, len(r.st.windows))
	for _, w := range r.st.windows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *windowRepo) UpsertWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "UpsertWindow"); err != nil {
		return err
	}
	if _, ok := r.st.missions[w.MissionID]; !ok {
		return fmt.Errorf("upsert_window: referenced mission %s: %w", w.MissionID, models.ErrNotFound)
	}
	r.st.windows[w.ID] = *w
	return nil
}

// attempts

type attemptRepo struct{ st *state }

func (r *attemptRepo) findOpenLocked(learnerID, missionID string) *models.Attempt {
	for _, a := range r.st.attempts {
		if a.LearnerID == learnerID && a.MissionID == missionID && a.Status == models.StatusInProgress {
			return a
		}
	}
	return nil
}

func (r *attemptRepo) FindOpen(ctx context.Context, learnerID, missionID string) (*models.Attempt, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "FindOpen"); err != nil {
		return nil, err
	}
	a := r.findOpenLocked(learnerID, missionID)
	if a == nil {
		return nil, notFound("find_open_attempt")
	}
	return cloneAttempt(a, r.st.results[a.ID]), nil
}

func (r *attemptRepo) CreateOpen(ctx context.Context, attempt *models.Attempt) (*models.Attempt, bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "CreateOpen"); err != nil {
		return nil, false, err
	}
	if _, ok := r.st.missions[attempt.MissionID]; !ok {
		return nil, false, fmt.Errorf("create_attempt: referenced mission %s: %w", attempt.MissionID, models.ErrNotFound)
	}
	if open := r.findOpenLocked(attempt.LearnerID, attempt.MissionID); open != nil {
		return cloneAttempt(open, r.st.results[open.ID]), false, nil
	}

	stored := *attempt
	stored.Status = models.StatusInProgress
	stored.Results = nil
	if stored.Multiplier == 0 {
		stored.Multiplier = 1
	}
	r.st.attempts[stored.ID] = &stored
	return cloneAttempt(&stored, nil), true, nil
}

func (r *attemptRepo) Get(ctx context.Context, attemptID string) (*models.Attempt, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "Get"); err != nil {
		return nil, err
	}
	a, ok := r.st.attempts[attemptID]
	if !ok {
		return nil, notFound("get_attempt")
	}
	return cloneAttempt(a, r.st.results[attemptID]), nil
}

func (r *attemptRepo) CountSince(ctx context.Context, learnerID, missionID string, since time.Time) (int, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "CountSince"); err != nil {
		return 0, err
	}
	n := 0
	for _, a := range r.st.attempts {
		if a.LearnerID == learnerID && a.MissionID == missionID && !a.StartedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *attemptRepo) AppendResult(ctx context.Context, result *models.ActivityResult) (*models.ActivityResult, bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "AppendResult"); err != nil {
		return nil, false, err
	}
	a, ok := r.st.attempts[result.AttemptID]
	if !ok {
		return nil, false, notFound("lock_attempt")
	}
	if a.Status.IsTerminal() {
		return nil, false, fmt.Errorf("append result to %s attempt: %w", a.Status, models.ErrAttemptClosed)
	}

	existing := r.st.results[a.ID]
	for _, prev := range existing {
		if prev.ActivityID == result.ActivityID {
			prev := prev
			return &prev, false, nil
		}
	}
	for _, prev := range existing {
		if prev.OrderIndex > result.OrderIndex {
			return nil, false, fmt.Errorf("activity %s at order %d: %w", result.ActivityID, result.OrderIndex, models.ErrOutOfOrder)
		}
	}
	recorded := make(map[string]bool, len(existing))
	for _, prev := range existing {
		recorded[prev.ActivityID] = true
	}
	for _, def := range r.st.activities[a.MissionID] {
		if def.OrderIndex < result.OrderIndex && !recorded[def.ID] {
			return nil, false, fmt.Errorf("activity %s at order %d, %s still missing: %w",
				result.ActivityID, result.OrderIndex, def.ID, models.ErrOutOfOrder)
		}
	}

	stored := *result
	r.st.results[a.ID] = append(existing, stored)
	return &stored, true, nil
}

func (r *attemptRepo) Finalize(ctx context.Context, attemptID string, status models.AttemptStatus, agg models.MissionAggregate, at time.Time) (*models.Attempt, bool, error) {
	if !status.IsTerminal() {
		return nil, false, fmt.Errorf("finalize to %s: %w", status, models.ErrInvalidInput)
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "Finalize"); err != nil {
		return nil, false, err
	}
	a, ok := r.st.attempts[attemptID]
	if !ok {
		return nil, false, notFound("finalize_attempt")
	}
	if a.Status != models.StatusInProgress {
		return cloneAttempt(a, r.st.results[attemptID]), false, nil
	}

	a.Status = status
	a.ScorePercentage = agg.ScorePercentage
	a.PointsEarned = agg.PointsEarned
	a.Passed = agg.Passed
	a.PerformanceTier = agg.PerformanceTier
	a.Multiplier = agg.Multiplier
	a.TimeSpentMs = agg.TimeSpentMs
	a.ActivityCount = agg.ActivityCount
	completed := at
	a.CompletedAt = &completed
	return cloneAttempt(a, r.st.results[attemptID]), true, nil
}

func (r *attemptRepo) ListUncredited(ctx context.Context, limit int) ([]models.Attempt, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "ListUncredited"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	var out []models.Attempt
	for _, a := range r.st.attempts {
		if (a.Status == models.StatusCompleted || a.Status == models.StatusFailed) && a.CreditedAt == nil {
			out = append(out, *cloneAttempt(a, r.st.results[a.ID]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(*out[j].CompletedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// progress

type progressRepo struct{ st *state }

func (r *progressRepo) Get(ctx context.Context, learnerID string) (*models.LearnerProgress, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "GetProgress"); err != nil {
		return nil, err
	}
	p, ok := r.st.progress[learnerID]
	if !ok {
		return nil, notFound("get_progress")
	}
	c := *p
	return &c, nil
}

// rowLocked returns the learner's row, creating it; mu must be held
func (st *state) rowLocked(learnerID string) *models.LearnerProgress {
	p, ok := st.progress[learnerID]
	if !ok {
		p = &models.LearnerProgress{LearnerID: learnerID, UpdatedAt: st.now()}
		st.progress[learnerID] = p
	}
	return p
}

func (r *progressRepo) ApplyAttempt(ctx context.Context, attemptID, learnerID string, fold repository.ProgressFold) (*models.LearnerProgress, bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "ApplyAttempt"); err != nil {
		return nil, false, err
	}

	p := r.st.rowLocked(learnerID)
	a, ok := r.st.attempts[attemptID]
	creditable := ok && a.LearnerID == learnerID && a.CreditedAt == nil &&
		(a.Status == models.StatusCompleted || a.Status == models.StatusFailed)
	if !creditable {
		c := *p
		return &c, false, nil
	}

	next := fold(*p)
	next.LearnerID = learnerID
	next.Level = models.LevelFor(next.TotalPoints)
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = r.st.now()
	}
	*p = next
	credited := r.st.now()
	a.CreditedAt = &credited

	c := next
	return &c, true, nil
}

func (r *progressRepo) SetTimezone(ctx context.Context, learnerID, timezone string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "SetTimezone"); err != nil {
		return err
	}
	p := r.st.rowLocked(learnerID)
	p.Timezone = timezone
	p.UpdatedAt = r.st.now()
	return nil
}

// badges

type badgeRepo struct{ st *state }

func (r *badgeRepo) list(ctx context.Context, op string, activeOnly bool) ([]models.Badge, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, op); err != nil {
		return nil, err
	}
	out := []models.Badge{}
	for _, b := range r.st.badges {
		if activeOnly && !b.IsActive {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Threshold != out[j].Threshold {
			return out[i].Threshold < out[j].Threshold
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *badgeRepo) ListActive(ctx context.Context) ([]models.Badge, error) {
	return r.list(ctx, "ListActive", true)
}

func (r *badgeRepo) ListAll(ctx context.Context) ([]models.Badge, error) {
	return r.list(ctx, "ListAll", false)
}

func (r *badgeRepo) ListEarned(ctx context.Context, learnerID string) ([]models.LearnerBadge, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "ListEarned"); err != nil {
		return nil, err
	}
	out := []models.LearnerBadge{}
	for _, lb := range r.st.earned[learnerID] {
		if b, ok := r.st.badges[lb.BadgeID]; ok {
			lb.Badge = &b
		}
		out = append(out, lb)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.After(out[j].EarnedAt)
		}
		return out[i].BadgeID < out[j].BadgeID
	})
	return out, nil
}

func (r *badgeRepo) Grant(ctx context.Context, learnerID string, badge *models.Badge, earnedAt time.Time) (*models.LearnerProgress, bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "Grant"); err != nil {
		return nil, false, err
	}
	if _, ok := r.st.badges[badge.ID]; !ok {
		return nil, false, fmt.Errorf("grant_badge: referenced badge %s: %w", badge.ID, models.ErrNotFound)
	}

	p := r.st.rowLocked(learnerID)
	held := r.st.earned[learnerID]
	if held == nil {
		held = map[string]models.LearnerBadge{}
		r.st.earned[learnerID] = held
	}
	if _, dup := held[badge.ID]; dup {
		c := *p
		return &c, false, nil
	}

	held[badge.ID] = models.LearnerBadge{LearnerID: learnerID, BadgeID: badge.ID, EarnedAt: earnedAt}
	if badge.PointReward > 0 {
		p.AddPoints(badge.PointReward)
		p.UpdatedAt = earnedAt
	}
	c := *p
	return &c, true, nil
}

func (r *badgeRepo) UpsertBadge(ctx context.Context, b *models.Badge) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if err := r.st.fault(ctx, "UpsertBadge"); err != nil {
		return err
	}
	stored := *b
	if stored.Rarity == "" {
		stored.Rarity = models.RarityCommon
	}
	r.st.badges[b.ID] = stored
	return nil
}
