package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"missionhub/pkg/logger"
	"missionhub/pkg/models"
)

// DefaultChannel is the pub/sub channel shared by all instances
const DefaultChannel = "missionhub:notifications"

// RedisBus publishes events to a channel so every instance can push them to
// its own connections. Received events are delivered through Local.
type RedisBus struct {
	rdb     *goredis.Client
	channel string
	local   *LocalBus
}

// NewRedisBus wraps an existing client; the caller owns its lifecycle
func NewRedisBus(rdb *goredis.Client, channel string, local *LocalBus) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	if local == nil {
		local = NewLocalBus()
	}
	return &RedisBus{rdb: rdb, channel: channel, local: local}
}

// Local returns the in-process side of the bus
func (b *RedisBus) Local() *LocalBus { return b.local }

// Notify implements core.Notifier
func (b *RedisBus) Notify(ctx context.Context, ev models.BadgeEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode badge event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes and forwards events to the local bus until ctx is done
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Receive confirms the subscription before we report readiness.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	logger.Infof("notify: forwarding %s", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			var ev models.BadgeEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				logger.Warnf("notify: bad payload on %s: %v", b.channel, err)
				continue
			}
			_ = b.local.Notify(ctx, ev)
		}
	}
}
