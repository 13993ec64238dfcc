// Package events provides side-channel listener implementations. The
// bridge core forwards impressions, clicks, rewards, and dismissals to a
// listener; the Redis sink here turns them into per-placement counters
// so operators can watch delivery without persisting anything in the
// adapter itself.
package events

import (
	"context"
	"time"

	"github.com/admeshlabs/mediation-bridge/internal/mediation"
	"github.com/admeshlabs/mediation-bridge/pkg/logger"
)

// Counters is the slice of the Redis client the sink uses
type Counters interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error)
	IncrByFloat(ctx context.Context, key string, incr float64) (float64, error)
}

// writeTimeout bounds each counter write; partner callbacks must never
// hang behind a slow Redis
const writeTimeout = 2 * time.Second

// DefaultKeyPrefix namespaces counter keys when no prefix is configured
const DefaultKeyPrefix = "mediation_bridge"

// RedisSink counts side-channel events per placement in Redis hashes.
// Write failures are logged and dropped; a slow or absent Redis must not
// stall partner callbacks.
type RedisSink struct {
	counters  Counters
	keyPrefix string
}

// NewRedisSink creates a sink writing under the given key prefix
func NewRedisSink(counters Counters, keyPrefix string) *RedisSink {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisSink{counters: counters, keyPrefix: keyPrefix}
}

// EventsKey returns the hash key holding per-event counts for a placement
func EventsKey(keyPrefix, placementID string) string {
	return keyPrefix + ":events:" + placementID
}

// RewardsKey returns the key accumulating reward amounts for a placement
func RewardsKey(keyPrefix, placementID string) string {
	return keyPrefix + ":rewards:" + placementID
}

// OnImpression counts an impression for the event's placement
func (s *RedisSink) OnImpression(ev mediation.SideEvent) {
	s.count(ev, "impression")
}

// OnClick counts a click for the event's placement
func (s *RedisSink) OnClick(ev mediation.SideEvent) {
	s.count(ev, "click")
}

// OnReward counts the reward and accumulates its amount
func (s *RedisSink) OnReward(ev mediation.RewardEvent) {
	s.count(ev.SideEvent, "reward")

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	key := RewardsKey(s.keyPrefix, ev.PlacementID)
	if _, err := s.counters.IncrByFloat(ctx, key, ev.Amount); err != nil {
		lg := logger.Storage()
		lg.Warn().Err(err).
			Str("placement_id", ev.PlacementID).
			Msg("reward amount write failed")
	}
}

// OnDismiss counts a dismissal for the event's placement
func (s *RedisSink) OnDismiss(ev mediation.SideEvent) {
	s.count(ev, "dismiss")
}

func (s *RedisSink) count(ev mediation.SideEvent, field string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	key := EventsKey(s.keyPrefix, ev.PlacementID)
	if _, err := s.counters.HIncrBy(ctx, key, field, 1); err != nil {
		lg := logger.Storage()
		lg.Warn().Err(err).
			Str("placement_id", ev.PlacementID).
			Str("event", field).
			Msg("side event write failed")
	}
}
