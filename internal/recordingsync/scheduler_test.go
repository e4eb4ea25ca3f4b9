package recordingsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_StartupRunThenInterval(t *testing.T) {
	src := &fakeSource{}
	runner, _ := newTestRunner(src, newMemStore(), nil)
	s := NewScheduler(runner, 20*time.Millisecond, 5*time.Millisecond, 7, nil)
	now := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(ctx)
	}()

	require.Eventually(t, func() bool { return src.callCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()

	src.mu.Lock()
	w := src.windows[0]
	src.mu.Unlock()
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, now, w.To)
}

func TestScheduler_StopsBeforeStartup(t *testing.T) {
	src := &fakeSource{}
	runner, _ := newTestRunner(src, newMemStore(), nil)
	s := NewScheduler(runner, time.Hour, time.Hour, 7, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 0, src.callCount())
}

func TestScheduler_TickFailureKeepsRunning(t *testing.T) {
	src := &fakeSource{err: errBoom}
	runner, _ := newTestRunner(src, newMemStore(), nil)
	s := NewScheduler(runner, 10*time.Millisecond, 0, 7, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	require.Eventually(t, func() bool { return src.callCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
}
