package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"missionhub/internal/repository/memory"
	"missionhub/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memTheory struct {
	mu    sync.Mutex
	acked map[string]bool
	err   error
}

func (m *memTheory) Acknowledge(_ context.Context, sessionID, missionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acked == nil {
		m.acked = map[string]bool{}
	}
	m.acked[sessionID+"/"+missionID] = true
	return nil
}

func (m *memTheory) Acknowledged(_ context.Context, sessionID, missionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.acked[sessionID+"/"+missionID], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.BadgeEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev models.BadgeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

var epoch = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	clock    *fakeClock
	theory   *memTheory
	notifier *recordingNotifier
	engine   MissionEngine
}

// newFixture seeds a structured mission "m1" with two 50-point single
// question quizzes (correct option 1) and an arcade mission "arcade".
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:    memory.NewStore(),
		clock:    newFakeClock(epoch),
		theory:   &memTheory{},
		notifier: &recordingNotifier{},
	}
	f.store.SetClock(f.clock.Now)

	quiz := json.RawMessage(`{"options":["a","b"],"correct_index":1}`)
	require.NoError(t, f.store.UpsertMission(ctx,
		&models.MissionDefinition{ID: "m1", Topic: "fractions", Kind: models.MissionStructured},
		[]models.ActivityDefinition{
			{ID: "a1", Kind: models.ActivityChoiceQuiz, Content: quiz, PointValue: 50, OrderIndex: 0},
			{ID: "a2", Kind: models.ActivityChoiceQuiz, Content: quiz, PointValue: 50, OrderIndex: 1},
		}))
	require.NoError(t, f.store.UpsertMission(ctx,
		&models.MissionDefinition{ID: "arcade", Topic: "fractions", Kind: models.MissionSession}, nil))

	require.NoError(t, f.store.UpsertWindow(ctx, &models.AvailabilityWindow{
		ID: "w1", Topic: "fractions", Kind: "mission", Cohort: "5a", MissionID: "m1",
		IsActive: true, OpenAt: epoch.Add(-24 * time.Hour), MaxAttempts: 2, TheoryRequired: true,
	}))
	require.NoError(t, f.store.UpsertWindow(ctx, &models.AvailabilityWindow{
		ID: "w2", Topic: "fractions", Kind: "arcade", Cohort: "5a", MissionID: "arcade",
		IsActive: true, OpenAt: epoch.Add(-24 * time.Hour),
	}))

	f.engine = NewMissionEngine(f.store.Store, EngineOptions{
		Theory:          f.theory,
		Notifier:        f.notifier,
		Clock:           f.clock.Now,
		DefaultTimezone: "UTC",
	})
	return f
}

var missionRef = models.WindowRef{Topic: "fractions", Kind: "mission", Cohort: "5a"}
var arcadeRef = models.WindowRef{Topic: "fractions", Kind: "arcade", Cohort: "5a"}

func answer(idx int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"selected_index":%d}`, idx))
}

// play starts m1 and answers both activities with the given options
func (f *fixture) play(t *testing.T, learnerID string, first, second int) *models.CompletionOutcome {
	t.Helper()
	ctx := context.Background()

	start, err := f.engine.StartMission(ctx, learnerID, missionRef, "s1")
	require.NoError(t, err)
	require.NotNil(t, start.Attempt, "denied: %+v", start.Availability)

	for i, pick := range []int{first, second} {
		out, err := f.engine.SubmitActivity(ctx, learnerID, start.Attempt.ID, models.SubmitActivityRequest{
			ActivityID: fmt.Sprintf("a%d", i+1), Response: answer(pick),
		})
		require.NoError(t, err)
		require.Empty(t, out.Code)
	}

	done, err := f.engine.CompleteAttempt(ctx, learnerID, start.Attempt.ID, nil)
	require.NoError(t, err)
	require.Empty(t, done.Code)
	return done
}
