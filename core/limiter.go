package core

import (
	"fmt"
	"sync"
)

// SessionLimiter bounds the number of concurrently running sessions.
type SessionLimiter struct {
	max    int
	active int
	mu     sync.Mutex
}

// NewSessionLimiter creates a new limiter admitting at most max sessions.
// If max == 0, unlimited sessions are allowed.
func NewSessionLimiter(max int) *SessionLimiter {
	return &SessionLimiter{max: max}
}

// Acquire reserves a slot and returns an error if the limit is reached.
func (sl *SessionLimiter) Acquire() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.max > 0 && sl.active >= sl.max {
		return fmt.Errorf("exceeded max concurrent sessions: %d", sl.max)
	}

	sl.active++

	return nil
}

// Release frees a slot previously reserved with Acquire.
func (sl *SessionLimiter) Release() {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.active > 0 {
		sl.active--
	}
}

// Active returns the number of reserved slots.
func (sl *SessionLimiter) Active() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	return sl.active
}

// Remaining returns how many slots are left before hitting the limit.
func (sl *SessionLimiter) Remaining() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.max == 0 {
		return -1 // unlimited
	}

	return sl.max - sl.active
}
