package recordingsync

import (
	"context"
	"sync/atomic"
	"time"
)

// Guard admits at most one pass at a time. *redis.Lease implements it across processes.
type Guard interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// expiringGuard is a Guard whose hold lapses after a fixed TTL.
type expiringGuard interface {
	TTL() time.Duration
}

// LocalGuard is an in-process Guard.
type LocalGuard struct {
	running atomic.Bool
}

// TryAcquire never blocks and never fails.
func (g *LocalGuard) TryAcquire(context.Context) (func(), bool, error) {
	if !g.running.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	return func() { g.running.Store(false) }, true, nil
}

// LockKey is the Redis key of the cross-process sync lease.
const LockKey = "lock:recording-sync"
