package memqueue

import (
	"sync"
	"time"
)

// Limiter enforces the per-account enqueue rate limit: one admission per
// window per account. Expired windows are swept lazily so the map stays
// bounded by recently-active accounts.
type Limiter struct {
	mu    sync.Mutex
	next  map[string]time.Time
	win   time.Duration
	sweep time.Time
}

func NewLimiter(window time.Duration) *Limiter {
	return &Limiter{next: map[string]time.Time{}, win: window}
}

func (l *Limiter) Allow(accountID string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.After(l.sweep) {
		for id, until := range l.next {
			if now.After(until) {
				delete(l.next, id)
			}
		}
		l.sweep = now.Add(l.win)
	}
	if until, ok := l.next[accountID]; ok && now.Before(until) {
		return false
	}
	l.next[accountID] = now.Add(l.win)
	return true
}

// Forget clears an account's window, used when an admission is rolled back.
func (l *Limiter) Forget(accountID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.next, accountID)
}
