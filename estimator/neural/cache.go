package neural

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-chroma/logging"
	"golang.org/x/sync/singleflight"
)

// LoadObserver is told about every completed load attempt
type LoadObserver func(kind Kind, elapsed time.Duration, err error)

// Cache loads each model kind at most once and shares it between callers.
// Concurrent requests for a kind that is still loading wait on the same load.
// Failed loads are not remembered, so a later Get retries.
type Cache struct {
	loader   Loader
	logger   logging.Logger
	observer LoadObserver

	group  singleflight.Group
	mu     sync.RWMutex
	models map[Kind]Model
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithCacheLogger sets the logger used for load events
func WithCacheLogger(logger logging.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithLoadObserver registers a callback for load timings
func WithLoadObserver(fn LoadObserver) CacheOption {
	return func(c *Cache) {
		c.observer = fn
	}
}

// NewCache creates an empty cache backed by loader
func NewCache(loader Loader, opts ...CacheOption) *Cache {
	c := &Cache{
		loader: loader,
		logger: &logging.NoOpLogger{},
		models: make(map[Kind]Model),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the model for kind, loading it on first use. Cancelling ctx
// stops this caller from waiting but does not abort a load other callers may
// be sharing; the model is cached when that load finishes.
func (c *Cache) Get(ctx context.Context, kind Kind) (Model, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if m, ok := c.lookup(kind); ok {
		return m, nil
	}

	ch := c.group.DoChan(string(kind), func() (any, error) {
		// A flight that finished between lookup and DoChan already stored it.
		if m, ok := c.lookup(kind); ok {
			return m, nil
		}
		return c.load(context.WithoutCancel(ctx), kind)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Model), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) load(ctx context.Context, kind Kind) (Model, error) {
	logger := c.logger.WithFields(logging.Fields{"model": kind.String()})
	logger.Debug("loading model")

	start := time.Now()
	m, err := c.loader.Load(ctx, kind)
	if err == nil && m.Kind() != kind {
		err = fmt.Errorf("loader returned a %s model", m.Kind())
	}
	elapsed := time.Since(start)

	if c.observer != nil {
		c.observer(kind, elapsed, err)
	}
	if err != nil {
		logger.Error(err, "model load failed")
		return nil, fmt.Errorf("load %s model: %w", kind, err)
	}

	c.mu.Lock()
	c.models[kind] = m
	c.mu.Unlock()

	logger.Info("model loaded", logging.Fields{
		"input_size": m.InputSize(),
		"elapsed_ms": elapsed.Milliseconds(),
	})
	return m, nil
}

func (c *Cache) lookup(kind Kind) (Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[kind]
	return m, ok
}

// Loaded reports whether kind is already cached
func (c *Cache) Loaded(kind Kind) bool {
	_, ok := c.lookup(kind)
	return ok
}

// Evict drops a cached model; the next Get reloads it
func (c *Cache) Evict(kind Kind) {
	c.mu.Lock()
	delete(c.models, kind)
	c.mu.Unlock()
}
