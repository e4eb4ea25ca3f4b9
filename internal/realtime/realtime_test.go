package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-lms/backend/internal/auth"
	"github.com/classroom-lms/backend/internal/models"
)

func wsServer(t *testing.T, hub *Hub, jwt *auth.JWTService) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", ServeWs(hub, jwt, nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
}

func TestServeWs_ReceivesBroadcast(t *testing.T) {
	jwt := auth.NewJWTService("secret", 1)
	hub := NewHub(nil, nil)
	srv := wsServer(t, hub, jwt)

	token, err := jwt.Generate(uuid.New(), "admin@example.com", models.RoleAdmin)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount(models.TopicRecordings) == 1 }, time.Second, 5*time.Millisecond)

	pub := NewPublisher(hub, nil)
	require.NoError(t, pub.Publish(context.Background(), models.TopicRecordings, models.EventSyncCompleted, map[string]int{"ingested": 2}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, models.EventSyncCompleted, msg.Event)
	assert.JSONEq(t, `{"ingested":2}`, string(msg.Data))

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount(models.TopicRecordings) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestServeWs_RejectsBeforeUpgrade(t *testing.T) {
	jwt := auth.NewJWTService("secret", 1)
	srv := wsServer(t, NewHub(nil, nil), jwt)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws?token=bad")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	student, err := jwt.Generate(uuid.New(), "s@example.com", models.RoleStudent)
	require.NoError(t, err)
	resp, err = http.Get(srv.URL + "/ws?token=" + student)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

type fakeRedis struct {
	published []string
	handlers  map[string]func(event string, payload []byte)
	cancelled []string
	err       error
}

func (f *fakeRedis) Publish(_ context.Context, topic, event string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, topic+"/"+event+"/"+string(payload))
	return nil
}

func (f *fakeRedis) Subscribe(topic string, handler func(event string, payload []byte)) (func(), error) {
	f.handlers[topic] = handler
	return func() { f.cancelled = append(f.cancelled, topic) }, nil
}

func TestPublisher_UsesRedisWhenPresent(t *testing.T) {
	r := &fakeRedis{}
	hub := NewHub(nil, nil)
	c := &Client{ID: "c1", Topic: models.TopicRecordings, send: make(chan WSMessage, 1)}
	hub.Register(c)

	require.NoError(t, NewPublisher(hub, r).Publish(context.Background(), models.TopicRecordings, models.EventRecordingArchived, map[string]string{"id": "x"}))
	assert.Equal(t, []string{`recordings/recording.archived/{"id":"x"}`}, r.published)
	assert.Len(t, c.send, 0)

	r.err = errors.New("down")
	assert.Error(t, NewPublisher(nil, r).Publish(context.Background(), models.TopicRecordings, "e", 1))
}

func TestHub_RedisSubscriptionLifecycle(t *testing.T) {
	r := &fakeRedis{handlers: map[string]func(string, []byte){}}
	hub := NewHub(nil, r)
	a := &Client{ID: "a", Topic: models.TopicRecordings, send: make(chan WSMessage, 4)}
	b := &Client{ID: "b", Topic: models.TopicRecordings, send: make(chan WSMessage, 4)}
	hub.Register(a)
	hub.Register(b)
	require.Contains(t, r.handlers, models.TopicRecordings)

	r.handlers[models.TopicRecordings](models.EventRecordingIngested, []byte(`{"title":"Intro"}`))
	for _, c := range []*Client{a, b} {
		msg := <-c.send
		assert.Equal(t, models.EventRecordingIngested, msg.Event)
		var data map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.Equal(t, "Intro", data["title"])
	}

	hub.Unregister(a)
	assert.Empty(t, r.cancelled)
	hub.Unregister(b)
	assert.Equal(t, []string{models.TopicRecordings}, r.cancelled)
	_, open := <-b.send
	assert.False(t, open)
}

// slowRedis blocks Subscribe until release is closed.
type slowRedis struct {
	entered   chan struct{}
	release   chan struct{}
	mu        sync.Mutex
	cancelled int
}

func (s *slowRedis) Subscribe(topic string, handler func(event string, payload []byte)) (func(), error) {
	s.entered <- struct{}{}
	<-s.release
	return func() {
		s.mu.Lock()
		s.cancelled++
		s.mu.Unlock()
	}, nil
}

func (s *slowRedis) cancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func TestHub_SlowSubscribeDoesNotBlockBroadcast(t *testing.T) {
	r := &slowRedis{entered: make(chan struct{}, 1), release: make(chan struct{})}
	hub := NewHub(nil, r)
	a := &Client{ID: "a", Topic: models.TopicRecordings, send: make(chan WSMessage, 4)}

	registered := make(chan struct{})
	go func() {
		hub.Register(a)
		close(registered)
	}()
	<-r.entered

	served := make(chan struct{})
	go func() {
		hub.Broadcast(models.TopicRecordings, models.EventSyncCompleted, map[string]int{"ingested": 1})
		_ = hub.ClientCount(models.TopicRecordings)
		close(served)
	}()
	select {
	case <-served:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked behind a pending redis subscribe")
	}
	msg := <-a.send
	assert.Equal(t, models.EventSyncCompleted, msg.Event)

	// the only client leaves before the subscription is established
	hub.Unregister(a)
	close(r.release)
	<-registered
	assert.Equal(t, 1, r.cancelCount())
	assert.Equal(t, 0, hub.ClientCount(models.TopicRecordings))

	hub.mu.RLock()
	assert.Empty(t, hub.subs)
	hub.mu.RUnlock()
}
