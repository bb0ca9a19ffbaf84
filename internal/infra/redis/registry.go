package redis

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"exam-practice-service/internal/app"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Registry is a Redis-aware implementation of app.ControllerRegistry.
// Notes:
//   - Controllers live in a local map; they own goroutines and cannot move
//     between instances.
//   - SET exam:live:{user}:{category} <instance id> marks which instance runs
//     the attempt. The marker is refreshed while the controller is registered.
type Registry struct {
	client   *redis.Client
	ttl      time.Duration
	instance string

	mu          sync.RWMutex
	controllers map[string]*app.Controller
	refreshers  map[string]chan struct{}
}

func NewRegistry(client *redis.Client, ttl time.Duration) *Registry {
	return &Registry{
		client:      client,
		ttl:         ttl,
		instance:    uuid.NewString(),
		controllers: make(map[string]*app.Controller),
		refreshers:  make(map[string]chan struct{}),
	}
}

// Instance returns the ID this registry writes into the liveness markers.
func (r *Registry) Instance() string { return r.instance }

func (r *Registry) Put(key string, c *app.Controller) *app.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.controllers[key]
	r.controllers[key] = c
	r.stopRefreshLocked(key)

	// best-effort liveness marker
	owner, err := r.client.SetArgs(context.Background(), r.key(key), r.instance, redis.SetArgs{TTL: r.ttl, Get: true}).Result()
	switch {
	case err != nil && !errors.Is(err, redis.Nil):
		log.Printf("registry marker %s not written: %v", key, err)
	case owner != "" && owner != r.instance:
		log.Printf("exam %s was live on instance %s, taking it over", key, owner)
	}

	if r.ttl > 0 {
		stop := make(chan struct{})
		r.refreshers[key] = stop
		go r.refresh(key, stop)
	}
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
	if r.controllers[key] != c {
		return
	}
	delete(r.controllers, key)
	r.stopRefreshLocked(key)

	// another instance may have taken the attempt over
	ctx := context.Background()
	if owner, err := r.Owner(ctx, key); err == nil && owner == r.instance {
		_ = r.client.Del(ctx, r.key(key)).Err()
	}
}

// Owner returns the instance holding the attempt's marker, or "" when the
// attempt is not live anywhere.
func (r *Registry) Owner(ctx context.Context, key string) (string, error) {
	owner, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return owner, err
}

func (r *Registry) refresh(key string, stop <-chan struct{}) {
	ticker := time.NewTicker(r.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := r.client.Expire(context.Background(), r.key(key), r.ttl).Err(); err != nil {
				log.Printf("registry marker %s not refreshed: %v", key, err)
			}
		}
	}
}

func (r *Registry) stopRefreshLocked(key string) {
	if stop, ok := r.refreshers[key]; ok {
		close(stop)
		delete(r.refreshers, key)
	}
}

func (r *Registry) key(key string) string {
	return "exam:live:" + key
}
