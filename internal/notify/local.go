// Package notify fans badge events out to interested subscribers
package notify

import (
	"context"
	"sync"

	"missionhub/pkg/logger"
	"missionhub/pkg/models"
)

// subscriberBuffer bounds per-subscriber backlog; slow readers drop events
const subscriberBuffer = 16

// LocalBus delivers events to in-process subscribers keyed by learner
type LocalBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan models.BadgeEvent
}

// NewLocalBus creates an empty bus
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[int]chan models.BadgeEvent)}
}

// Subscribe registers for a learner's events. Call cancel to unsubscribe;
// the returned channel is closed afterwards.
func (b *LocalBus) Subscribe(learnerID string) (<-chan models.BadgeEvent, func()) {
	ch := make(chan models.BadgeEvent, subscriberBuffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.subs[learnerID] == nil {
		b.subs[learnerID] = make(map[int]chan models.BadgeEvent)
	}
	b.subs[learnerID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[learnerID], id)
			if len(b.subs[learnerID]) == 0 {
				delete(b.subs, learnerID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers reports how many subscriptions a learner has
func (b *LocalBus) Subscribers(learnerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[learnerID])
}

// Notify implements core.Notifier. It never blocks on slow subscribers.
func (b *LocalBus) Notify(_ context.Context, ev models.BadgeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[ev.LearnerID] {
		select {
		case ch <- ev:
		default:
			logger.Warnf("notify: dropping %s event for slow subscriber of %s", ev.Badge.ID, ev.LearnerID)
		}
	}
	return nil
}
