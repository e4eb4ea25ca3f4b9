package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// RedisSubscriber subscribes to topic channels and invokes handler for incoming events.
type RedisSubscriber interface {
	Subscribe(topic string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// subscription is this instance's Redis subscription to one topic. cancel is nil
// while Subscribe is still in progress.
type subscription struct {
	cancel func()
}

// Hub maintains topic -> set of connections and broadcasts messages to them.
// When a RedisSubscriber is set, the first client on a topic subscribes this
// instance to the topic's channel so events from other processes reach it.
// Subscribe runs outside mu so a slow Redis never stalls broadcasts.
type Hub struct {
	topics   map[string]map[string]*Client
	subs     map[string]*subscription
	mu       sync.RWMutex
	redisSub RedisSubscriber
	logger   *zap.Logger
}

// NewHub creates a new WebSocket hub. redisSub may be nil for a single-process setup.
func NewHub(logger *zap.Logger, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		topics:   make(map[string]map[string]*Client),
		subs:     make(map[string]*subscription),
		redisSub: redisSub,
		logger:   logger,
	}
}

// Register adds a client to its topic. Starts the Redis subscription for the topic if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.topics[c.Topic] == nil {
		h.topics[c.Topic] = make(map[string]*Client)
	}
	h.topics[c.Topic][c.ID] = c
	var sub *subscription
	if h.redisSub != nil && h.subs[c.Topic] == nil {
		sub = &subscription{}
		h.subs[c.Topic] = sub
	}
	h.mu.Unlock()

	h.logger.Debug("client subscribed", zap.String("client_id", c.ID), zap.String("topic", c.Topic))
	if sub != nil {
		h.subscribe(c.Topic, sub)
	}
}

func (h *Hub) subscribe(topic string, sub *subscription) {
	cancel, err := h.redisSub.Subscribe(topic, func(event string, payload []byte) {
		h.Broadcast(topic, event, json.RawMessage(payload))
	})

	h.mu.Lock()
	current := h.subs[topic] == sub
	switch {
	case err != nil && current:
		delete(h.subs, topic)
	case err == nil && current:
		sub.cancel = cancel
	}
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("redis subscribe failed", zap.Error(err), zap.String("topic", topic))
		return
	}
	if !current {
		// the topic emptied while subscribing
		cancel()
	}
}

// Unregister removes a client. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	m, ok := h.topics[c.Topic]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := m[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(m, c.ID)
	close(c.send)
	var cancel func()
	if len(m) == 0 {
		delete(h.topics, c.Topic)
		if sub, ok := h.subs[c.Topic]; ok {
			cancel = sub.cancel
			delete(h.subs, c.Topic)
		}
	}
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.logger.Debug("client unsubscribed", zap.String("client_id", c.ID), zap.String("topic", c.Topic))
}

// Broadcast sends a message to all local clients on a topic. Slow clients drop messages.
func (h *Hub) Broadcast(topic, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("marshal broadcast payload failed", zap.Error(err), zap.String("event", event))
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.topics[topic] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// ClientCount returns the number of local clients on a topic.
func (h *Hub) ClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
