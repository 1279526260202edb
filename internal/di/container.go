// Package di provides a minimal service container used by the module system.
// Services are registered by string token and resolved lazily: a factory runs
// once, on first Get, and the instance is cached.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry is the read side of the container.
type ServiceRegistry interface {
	// Get resolves the service registered under token. Panics if the
	// token is unknown (a programming error, not a runtime condition).
	Get(token string) any
}

// Container is the write side: modules register services during wiring.
type Container interface {
	ServiceRegistry

	// Register stores an already-built instance under token.
	Register(token string, instance any)

	// RegisterFactory stores a lazy constructor under token.
	RegisterFactory(token string, factory func(ServiceRegistry) any)
}

type container struct {
	mu        sync.Mutex
	instances map[string]any
	factories map[string]func(ServiceRegistry) any
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{
		instances: make(map[string]any),
		factories: make(map[string]func(ServiceRegistry) any),
	}
}

func (c *container) Register(token string, instance any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instances[token] = instance
}

func (c *container) RegisterFactory(token string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[token] = factory
}

func (c *container) Get(token string) any {
	c.mu.Lock()
	if inst, ok := c.instances[token]; ok {
		c.mu.Unlock()
		return inst
	}
	factory, ok := c.factories[token]
	c.mu.Unlock()

	if !ok {
		panic(fmt.Sprintf("di: unknown service token %q", token))
	}

	inst := factory(c)

	c.mu.Lock()
	c.instances[token] = inst
	c.mu.Unlock()

	return inst
}

// RegisterToken registers a typed factory under token.
func RegisterToken[T any](c Container, token string, factory func(ServiceRegistry) T) {
	c.RegisterFactory(token, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// Resolve fetches a service and asserts its type.
func Resolve[T any](sr ServiceRegistry, token string) T {
	inst, ok := sr.Get(token).(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has unexpected type %T", token, sr.Get(token)))
	}
	return inst
}
