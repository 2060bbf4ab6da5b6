package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"missionhub/pkg/models"
	"missionhub/pkg/utils"
)

// MissionRepository gives read access to authored missions and activities
type MissionRepository interface {
	GetMission(ctx context.Context, id string) (*models.MissionDefinition, error)
	ListMissions(ctx context.Context) ([]models.MissionDefinition, error)
	// ListActivities returns the mission's activities ordered by order index
	ListActivities(ctx context.Context, missionID string) ([]models.ActivityDefinition, error)

	// Authoring
	UpsertMission(ctx context.Context, mission *models.MissionDefinition, activities []models.ActivityDefinition) error
}

// AvailabilityRepository reads availability windows
type AvailabilityRepository interface {
	GetWindow(ctx context.Context, ref models.WindowRef) (*models.AvailabilityWindow, error)
	ListWindows(ctx context.Context) ([]models.AvailabilityWindow, error)
	UpsertWindow(ctx context.Context, window *models.AvailabilityWindow) error
}

// AttemptRepository owns attempts and their activity results
type AttemptRepository interface {
	// FindOpen returns the in_progress attempt for the pair or ErrNotFound
	FindOpen(ctx context.Context, learnerID, missionID string) (*models.Attempt, error)
	// CreateOpen inserts attempt unless an open one exists for the pair, in
	// which case the existing attempt is returned with created=false
	CreateOpen(ctx context.Context, attempt *models.Attempt) (stored *models.Attempt, created bool, err error)
	// Get returns the attempt with its results in order index order
	Get(ctx context.Context, attemptID string) (*models.Attempt, error)
	// CountSince counts attempts of any status started at or after since
	CountSince(ctx context.Context, learnerID, missionID string, since time.Time) (int, error)
	// AppendResult stores result once per (attempt, activity). A retried
	// append returns the stored row with inserted=false. Fails with
	// ErrAttemptClosed on terminal attempts and ErrOutOfOrder unless the
	// result is for the lowest-ordered activity still missing a result.
	AppendResult(ctx context.Context, result *models.ActivityResult) (stored *models.ActivityResult, inserted bool, err error)
	// Finalize moves an in_progress attempt to status exactly once. When the
	// attempt is already terminal the stored attempt is returned with
	// transitioned=false.
	Finalize(ctx context.Context, attemptID string, status models.AttemptStatus, agg models.MissionAggregate, at time.Time) (attempt *models.Attempt, transitioned bool, err error)
	// ListUncredited returns terminal, scored attempts whose progress credit
	// never landed
	ListUncredited(ctx context.Context, limit int) ([]models.Attempt, error)
}

// ProgressFold derives the next progress row from the current one
type ProgressFold func(current models.LearnerProgress) models.LearnerProgress

// ProgressRepository owns the cumulative learner row
type ProgressRepository interface {
	// Get returns ErrNotFound when the learner has no row yet
	Get(ctx context.Context, learnerID string) (*models.LearnerProgress, error)
	// ApplyAttempt marks the attempt credited and folds it into progress in
	// one transaction. applied=false means the attempt was already credited
	// (or is not creditable) and progress is returned unchanged.
	ApplyAttempt(ctx context.Context, attemptID, learnerID string, fold ProgressFold) (progress *models.LearnerProgress, applied bool, err error)
	SetTimezone(ctx context.Context, learnerID, timezone string) error
}

// BadgeRepository reads badges and grants them
type BadgeRepository interface {
	ListActive(ctx context.Context) ([]models.Badge, error)
	ListAll(ctx context.Context) ([]models.Badge, error)
	ListEarned(ctx context.Context, learnerID string) ([]models.LearnerBadge, error)
	// Grant inserts the (learner, badge) row and adds the badge's point
	// reward in one transaction. granted=false means the learner already
	// held the badge and nothing changed.
	Grant(ctx context.Context, learnerID string, badge *models.Badge, earnedAt time.Time) (progress *models.LearnerProgress, granted bool, err error)
	UpsertBadge(ctx context.Context, badge *models.Badge) error
}

// Store bundles the repositories the engine depends on
type Store struct {
	Missions MissionRepository
	Windows  AvailabilityRepository
	Attempts AttemptRepository
	Progress ProgressRepository
	Badges   BadgeRepository

	ping  func(ctx context.Context) error
	close func()
}

// NewStore assembles a Store from parts; used by alternative backends
func NewStore(m MissionRepository, w AvailabilityRepository, a AttemptRepository, p ProgressRepository, b BadgeRepository) *Store {
	return &Store{Missions: m, Windows: w, Attempts: a, Progress: p, Badges: b}
}

// NewPostgresStore builds every repository on one pgx pool
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	base := pgBase{pool: pool}
	return &Store{
		Missions: &missionRepository{base},
		Windows:  &availabilityRepository{base},
		Attempts: &attemptRepository{base},
		Progress: &progressRepository{base},
		Badges:   &badgeRepository{base},
		ping:     pool.Ping,
		close:    pool.Close,
	}
}

// Ping checks the backing store
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	if err := s.ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", models.ErrStoreUnavailable)
	}
	return nil
}

// Close releases the backing connections
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// UpsertMission lets a Store act as a content sink
func (s *Store) UpsertMission(ctx context.Context, m *models.MissionDefinition, acts []models.ActivityDefinition) error {
	return s.Missions.UpsertMission(ctx, m, acts)
}

// UpsertWindow lets a Store act as a content sink
func (s *Store) UpsertWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	return s.Windows.UpsertWindow(ctx, w)
}

// UpsertBadge lets a Store act as a content sink
func (s *Store) UpsertBadge(ctx context.Context, b *models.Badge) error {
	return s.Badges.UpsertBadge(ctx, b)
}

type pgBase struct {
	pool *pgxpool.Pool
}

// WithTransaction executes a function within a database transaction
func (r pgBase) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapDBError(err, "begin_transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapDBError(err, "commit_transaction")
	}
	return nil
}

// mapDBError maps driver errors onto the engine taxonomy
func mapDBError(err error, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", operation, models.ErrNotFound)
	}
	if utils.IsContextError(err) {
		return fmt.Errorf("%s: %w: %v", operation, models.ErrStoreUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23503": // foreign_key_violation
			return fmt.Errorf("%s: referenced row missing: %w", operation, models.ErrNotFound)
		case pgErr.Code == "23502", pgErr.Code == "23514": // not_null, check
			return fmt.Errorf("%s: %w: %s", operation, models.ErrInvalidInput, pgErr.Message)
		case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization, deadlock
			return fmt.Errorf("%s: %w: %s", operation, models.ErrStoreUnavailable, pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"): // connection, shutdown
			return fmt.Errorf("%s: %w: %s", operation, models.ErrStoreUnavailable, pgErr.Message)
		}
		return fmt.Errorf("database error during %s: %w", operation, err)
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%s: %w: %v", operation, models.ErrStoreUnavailable, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%s: %w: %v", operation, models.ErrStoreUnavailable, err)
	}

	return fmt.Errorf("database error during %s: %w", operation, err)
}
