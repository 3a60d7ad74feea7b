package sdk

import (
	"context"
	"sync"
	"time"
)

// roomFuture is the single-assignment result of one room id acquisition.
// The first resolve wins; later calls are no-ops.
type roomFuture struct {
	once   sync.Once
	done   chan struct{}
	roomID string
}

func newRoomFuture() *roomFuture {
	return &roomFuture{done: make(chan struct{})}
}

// resolve records roomID and reports whether this call resolved the
// future.
func (f *roomFuture) resolve(roomID string) bool {
	resolved := false
	f.once.Do(func() {
		f.roomID = roomID
		close(f.done)
		resolved = true
	})
	return resolved
}

func (f *roomFuture) resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// wait returns as soon as the future resolves or timeout elapses,
// whichever comes first. ok is false on timeout or cancellation.
func (f *roomFuture) wait(ctx context.Context, timeout time.Duration) (string, bool) {
	if timeout <= 0 {
		select {
		case <-f.done:
			return f.roomID, true
		default:
			return "", false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.roomID, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}
