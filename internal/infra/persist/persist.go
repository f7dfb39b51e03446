// Package persist is the JSON store adapter over a port.KVStore. Reads fall
// back to an initial value on a missing or corrupt key; writes surface
// failures as *domain.ErrPersistence.
package persist

import (
	"context"
	"encoding/json"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/observability"
	"github.com/allensfl/coachingspace-app-sub001/internal/port"
)

var tracer = otel.Tracer("persist")

// Adapter binds a key-value backend to logging and metrics.
type Adapter struct {
	kv      port.KVStore
	logger  *zap.Logger
	metrics *observability.Metrics
}

// New creates an Adapter.
func New(kv port.KVStore, logger *zap.Logger, metrics *observability.Metrics) *Adapter {
	return &Adapter{kv: kv, logger: logger, metrics: metrics}
}

// KV exposes the underlying backend.
func (a *Adapter) KV() port.KVStore {
	return a.kv
}

// Read parses the JSON stored under key. A missing key or unparsable value
// yields initial; normalize, when non-nil, is applied to whichever value
// is returned. Only backend errors are returned.
func Read[T any](ctx context.Context, a *Adapter, key string, initial T, normalize func(T) T) (T, error) {
	ctx, span := tracer.Start(ctx, "persist.Read")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	value := initial
	raw, ok, err := a.kv.Get(ctx, key)
	if err != nil {
		a.logger.Error("read failed", zap.String("key", key), zap.Error(err))
		return initial, err
	}
	if ok {
		var parsed T
		if err := json.Unmarshal(raw, &parsed); err != nil {
			a.logger.Warn("discarding unparsable value",
				zap.String("key", key),
				zap.Int("bytes", len(raw)),
				zap.Error(err),
			)
		} else {
			value = parsed
		}
	}

	if normalize != nil {
		value = normalize(value)
	}
	return value, nil
}

// Write serializes value and stores it under key.
func Write[T any](ctx context.Context, a *Adapter, key string, value T) error {
	ctx, span := tracer.Start(ctx, "persist.Write")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	raw, err := json.Marshal(value)
	if err == nil {
		err = a.kv.Set(ctx, key, raw)
	}
	if err != nil {
		a.logger.Error("write failed", zap.String("key", key), zap.Error(err))
		if a.metrics != nil {
			a.metrics.IncrPersistError(key)
		}
		span.RecordError(err)
		return &domain.ErrPersistence{Key: key, Err: err}
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func Delete(ctx context.Context, a *Adapter, key string) error {
	ctx, span := tracer.Start(ctx, "persist.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	if err := a.kv.Delete(ctx, key); err != nil {
		a.logger.Error("delete failed", zap.String("key", key), zap.Error(err))
		if a.metrics != nil {
			a.metrics.IncrPersistError(key)
		}
		span.RecordError(err)
		return &domain.ErrPersistence{Key: key, Err: err}
	}
	return nil
}

// Collection is the Repository for one key.
type Collection[T any] struct {
	adapter   *Adapter
	key       string
	initial   func() T
	normalize func(T) T

	mu     sync.Mutex
	subs   map[int]func(T)
	nextID int
}

var _ port.Repository[[]domain.Coachee] = (*Collection[[]domain.Coachee])(nil)

// NewCollection creates a repository for key. initial builds the default
// value for a missing or corrupt key.
func NewCollection[T any](a *Adapter, key string, initial func() T, normalize func(T) T) *Collection[T] {
	return &Collection[T]{
		adapter:   a,
		key:       key,
		initial:   initial,
		normalize: normalize,
		subs:      make(map[int]func(T)),
	}
}

// Key returns the storage key.
func (c *Collection[T]) Key() string {
	return c.key
}

func (c *Collection[T]) Load(ctx context.Context) (T, error) {
	return Read(ctx, c.adapter, c.key, c.initial(), c.normalize)
}

func (c *Collection[T]) Save(ctx context.Context, value T) error {
	if err := Write(ctx, c.adapter, c.key, value); err != nil {
		return err
	}

	c.mu.Lock()
	subs := make([]func(T), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(value)
	}
	return nil
}

func (c *Collection[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// SliceOf is an initial func for list collections.
func SliceOf[E any]() []E {
	return []E{}
}

// NonNil replaces a nil slice (stored JSON null) with an empty one.
func NonNil[E any](s []E) []E {
	if s == nil {
		return []E{}
	}
	return s
}
