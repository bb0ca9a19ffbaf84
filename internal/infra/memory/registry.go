package memory

import (
	"sync"

	"exam-practice-service/internal/app"
)

// Registry is an in-memory implementation of app.ControllerRegistry.
type Registry struct {
	mu          sync.RWMutex
	controllers map[string]*app.Controller
}

func NewRegistry() *Registry {
	return &Registry{
		controllers: make(map[string]*app.Controller),
	}
}

func (r *Registry) Put(key string, c *app.Controller) *app.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.controllers[key]
	r.controllers[key] = c
	return prev
}

func (r *Registry) Get(key string) (*app.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[key]
	return c, ok
}

func (r *Registry) DeleteIf(key string, c *app.Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.controllers[key] == c {
		delete(r.controllers, key)
	}
}
