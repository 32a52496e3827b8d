package core

import (
	"fmt"
	"sync"
)

// CallLimiter enforces a maximum number of agent invocations per plan
// execution (primary, supporting and fallback calls combined).
type CallLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewCallLimiter creates a limiter. If max == 0, unlimited calls are allowed.
func NewCallLimiter(max int) *CallLimiter {
	return &CallLimiter{max: max}
}

// Acquire counts one call and returns ErrCallLimitExceeded past the limit.
func (l *CallLimiter) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("%w: %d", ErrCallLimitExceeded, l.max)
	}

	return nil
}

// Count returns the number of calls attempted so far.
func (l *CallLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns how many calls are left before hitting the limit.
func (l *CallLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1 // unlimited
	}
	if l.count >= l.max {
		return 0
	}

	return l.max - l.count
}
