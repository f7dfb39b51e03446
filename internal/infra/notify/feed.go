// Package notify keeps the recent user-facing notifications that mutating
// operations emit.
package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
)

// DefaultCapacity bounds the feed when New is given a non-positive size.
const DefaultCapacity = 100

// Feed is a bounded ring of notifications, newest last.
type Feed struct {
	mu     sync.RWMutex
	items  []domain.Notification
	cap    int
	logger *zap.Logger
}

// New creates a feed holding at most capacity notifications.
func New(capacity int, logger *zap.Logger) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Feed{cap: capacity, logger: logger}
}

// Notify implements port.Notifier.
func (f *Feed) Notify(n domain.Notification) {
	f.mu.Lock()
	f.items = append(f.items, n)
	if over := len(f.items) - f.cap; over > 0 {
		f.items = append([]domain.Notification(nil), f.items[over:]...)
	}
	f.mu.Unlock()

	f.logger.Debug("notification",
		zap.String("level", string(n.Level)),
		zap.String("title", n.Title),
	)
}

// Recent returns up to limit notifications, newest first. limit <= 0
// returns all.
func (f *Feed) Recent(limit int) []domain.Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := len(f.items)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Notification, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, f.items[i])
	}
	return out
}
