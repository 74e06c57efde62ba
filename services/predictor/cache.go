package predictor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNoModel is returned by stores when no trained model has been saved yet
var ErrNoModel = errors.New("no trained model available")

// LoadError wraps the failure cause when the cache could not load a model.
// The cache keeps its prior model on failure, so a failed reload is never
// destructive to in-flight readers.
type LoadError struct {
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("model load failed: %v", e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Loader loads the most recently trained model
type Loader interface {
	LoadLatest(ctx context.Context) (*Model, error)
}

// Cache owns the single shared instance of the currently loaded model.
// Loading is lazy: the first Get performs the load, concurrent callers
// during a cold load wait for that one load instead of duplicating it.
// There is no implicit periodic reload; Reload is driven by the retraining
// job or an explicit API call.
type Cache struct {
	loader Loader

	group singleflight.Group

	mu       sync.RWMutex
	model    *Model
	loadedAt time.Time
}

// NewCache creates a model cache around the given loader. The cache is
// constructed once at process start and passed by reference to everything
// that reads the model.
func NewCache(loader Loader) *Cache {
	return &Cache{loader: loader}
}

// Get returns the currently loaded model, performing a blocking load when
// the cache is cold. Exactly one load executes no matter how many callers
// arrive concurrently; the others share its result or its failure.
func (c *Cache) Get(ctx context.Context) (*Model, error) {
	c.mu.RLock()
	m := c.model
	c.mu.RUnlock()
	if m != nil {
		return m, nil
	}

	v, err, _ := c.group.Do("load", func() (interface{}, error) {
		// A waiter queued behind a finished load may arrive here after the
		// cache was populated; don't load again.
		c.mu.RLock()
		cur := c.model
		c.mu.RUnlock()
		if cur != nil {
			return cur, nil
		}

		loaded, err := c.loader.LoadLatest(ctx)
		if err != nil {
			return nil, &LoadError{Cause: err}
		}
		c.store(loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Model), nil
}

// Reload forces a fresh load and atomically swaps the cached model. On
// failure the prior model is retained and a LoadError is returned.
func (c *Cache) Reload(ctx context.Context) (*Model, error) {
	loaded, err := c.loader.LoadLatest(ctx)
	if err != nil {
		log.Printf("Model reload failed, keeping previous model: %v", err)
		return nil, &LoadError{Cause: err}
	}
	c.store(loaded)
	log.Printf("Model cache reloaded: version=%s trained_at=%s",
		loaded.Version, loaded.TrainedAt.Format(time.RFC3339))
	return loaded, nil
}

// Reset clears the cache without loading; the next Get triggers a fresh load
func (c *Cache) Reset() {
	c.mu.Lock()
	c.model = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

// Current returns the cached model without triggering a load; nil when cold
func (c *Cache) Current() *Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// Info describes the cache state for status endpoints
type Info struct {
	Loaded    bool       `json:"loaded"`
	Version   string     `json:"version,omitempty"`
	TrainedAt *time.Time `json:"trained_at,omitempty"`
	LoadedAt  *time.Time `json:"loaded_at,omitempty"`
}

// Info returns a snapshot of the cache state
func (c *Cache) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.model == nil {
		return Info{Loaded: false}
	}
	trainedAt := c.model.TrainedAt
	loadedAt := c.loadedAt
	return Info{
		Loaded:    true,
		Version:   c.model.Version,
		TrainedAt: &trainedAt,
		LoadedAt:  &loadedAt,
	}
}

func (c *Cache) store(m *Model) {
	c.mu.Lock()
	c.model = m
	c.loadedAt = time.Now()
	c.mu.Unlock()
}
