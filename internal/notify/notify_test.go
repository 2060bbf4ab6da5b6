package notify

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionhub/pkg/models"
)

func recv(t *testing.T, ch <-chan models.BadgeEvent) models.BadgeEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for badge event")
	}
	return models.BadgeEvent{}
}

func event(learner, badge string) models.BadgeEvent {
	return models.BadgeEvent{LearnerID: learner, Badge: models.Badge{ID: badge}}
}

func TestLocalBusDeliversToLearnerOnly(t *testing.T) {
	bus := NewLocalBus()
	mine, cancelMine := bus.Subscribe("l1")
	defer cancelMine()
	other, cancelOther := bus.Subscribe("l2")
	defer cancelOther()

	require.NoError(t, bus.Notify(context.Background(), event("l1", "first")))

	assert.Equal(t, "first", recv(t, mine).Badge.ID)
	select {
	case ev := <-other:
		t.Fatalf("unexpected event for l2: %+v", ev)
	default:
	}
}

func TestLocalBusCancelClosesChannel(t *testing.T) {
	bus := NewLocalBus()
	ch, cancel := bus.Subscribe("l1")
	assert.Equal(t, 1, bus.Subscribers("l1"))

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Subscribers("l1"))

	// Notifying with no subscribers is fine.
	assert.NoError(t, bus.Notify(context.Background(), event("l1", "x")))
}

func TestLocalBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewLocalBus()
	ch, cancel := bus.Subscribe("l1")
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		require.NoError(t, bus.Notify(context.Background(), event("l1", "b")))
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestRedisBusRoundTrip(t *testing.T) {
	addr := os.Getenv("MISSIONHUB_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MISSIONHUB_TEST_REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	bus := NewRedisBus(rdb, "missionhub:test:"+time.Now().Format("150405.000000"), nil)
	ch, unsub := bus.Local().Subscribe("l1")
	defer unsub()

	go func() { _ = bus.Run(ctx) }()

	// Publish until the subscriber is attached.
	deadline := time.After(3 * time.Second)
	for {
		require.NoError(t, bus.Notify(ctx, event("l1", "first")))
		select {
		case ev := <-ch:
			assert.Equal(t, "first", ev.Badge.ID)
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no event forwarded from redis")
		}
	}
}
