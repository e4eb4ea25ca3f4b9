package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

// RedisPublisher publishes events for every process subscribed to a topic.
type RedisPublisher interface {
	Publish(ctx context.Context, topic, event string, payload []byte) error
}

// Publisher sends domain events to dashboards. With Redis the event is only published,
// and each process's subscription performs the local broadcast once. Without Redis it
// broadcasts on the local hub directly.
type Publisher struct {
	hub   *Hub
	redis RedisPublisher
}

// NewPublisher creates a publisher. Either argument may be nil, not both.
func NewPublisher(hub *Hub, redis RedisPublisher) *Publisher {
	return &Publisher{hub: hub, redis: redis}
}

// Publish marshals data and delivers it as event on topic.
func (p *Publisher) Publish(ctx context.Context, topic, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	if p.redis != nil {
		if err := p.redis.Publish(ctx, topic, event, payload); err != nil {
			return fmt.Errorf("publish %s: %w", event, err)
		}
		return nil
	}
	if p.hub != nil {
		p.hub.Broadcast(topic, event, json.RawMessage(payload))
	}
	return nil
}
