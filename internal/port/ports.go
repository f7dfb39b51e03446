// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"io"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
)

// KVStore is the raw key-value persistence backend. Values are opaque JSON
// documents stored under the collection keys.
type KVStore interface {
	// Get returns the stored bytes and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists every key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Repository persists one collection value under a single key.
type Repository[T any] interface {
	Load(ctx context.Context) (T, error)
	Save(ctx context.Context, value T) error
	// Subscribe registers fn to run after every successful Save. The
	// returned func removes the subscription.
	Subscribe(fn func(T)) func()
}

// RemoteTaskStore is the hosted tasks table.
type RemoteTaskStore interface {
	ListTasks(ctx context.Context, userID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error)
	UpdateTask(ctx context.Context, task *domain.Task) error
	DeleteTask(ctx context.Context, userID, remoteID string) error
}

// FeedbackStore receives beta feedback submissions.
type FeedbackStore interface {
	InsertFeedback(ctx context.Context, fb *domain.Feedback) error
}

// BlobStorage stores document file bodies.
type BlobStorage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Notifier receives user-facing notifications from mutating operations.
type Notifier interface {
	Notify(n domain.Notification)
}

// SessionVerifier validates an admin bearer token and returns the user id.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	// Touch is Get that also restarts the entry's TTL.
	Touch(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}
