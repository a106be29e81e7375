package usecase

import (
	"sync"

	"github.com/you-humble/tasksync/internal/domain"
)

// cache is the process-local view of task records. It is never persisted.
// Records go in and out as copies so callers cannot mutate cached state.
type cache struct {
	mu    sync.RWMutex
	tasks map[string]domain.Task
}

func newCache() *cache {
	return &cache{tasks: make(map[string]domain.Task)}
}

func (c *cache) get(id string) (domain.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tasks[id]
	return t.Clone(), ok
}

func (c *cache) set(id string, t domain.Task) {
	c.mu.Lock()
	c.tasks[id] = t.Clone()
	c.mu.Unlock()
}

// setIfAbsent stores t unless id is already cached and returns the cached
// record.
func (c *cache) setIfAbsent(id string, t domain.Task) domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.tasks[id]; ok {
		return existing.Clone()
	}
	c.tasks[id] = t.Clone()
	return t.Clone()
}

// update replaces the record with fn(previous) under one lock. prev is nil
// when id is not cached.
func (c *cache) update(id string, fn func(prev domain.Task) domain.Task) domain.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := fn(c.tasks[id].Clone())
	c.tasks[id] = next.Clone()
	return next
}

func (c *cache) delete(id string) {
	c.mu.Lock()
	delete(c.tasks, id)
	c.mu.Unlock()
}

func (c *cache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tasks)
}
