// Package catalog provides a keyed registry with at-most-one-instance
// semantics. It backs the model definitions (molecule types, modifications)
// as well as the generated species, reactions and families.
package catalog

import (
	"fmt"
	"sync"

	"github.com/nvandessel/plexsim/internal/fault"
)

// Catalog interns values by key. Iteration follows insertion order.
//
// GetOrCreate runs its builder with the catalog locked, so there is never
// more than one builder per key. A builder must not call back into the
// same catalog.
type Catalog[K comparable, V any] struct {
	mu    sync.Mutex
	name  string
	items map[K]V
	order []K
}

// New creates an empty catalog. The name is used in fault messages.
func New[K comparable, V any](name string) *Catalog[K, V] {
	return &Catalog[K, V]{
		name:  name,
		items: make(map[K]V),
	}
}

// Name returns the catalog name.
func (c *Catalog[K, V]) Name() string { return c.name }

// Add registers v under key. A second definition of the same key is a
// configuration fault.
func (c *Catalog[K, V]) Add(key K, v V) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; exists {
		return fault.Configf(fmt.Sprintf("%s %v", c.name, key), "duplicate definition")
	}
	c.items[key] = v
	c.order = append(c.order, key)
	return nil
}

// Get looks up key.
func (c *Catalog[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

// GetOrCreate returns the value stored under key, calling build to create it
// when absent. The boolean result reports whether build ran and succeeded.
// When build fails nothing is stored.
func (c *Catalog[K, V]) GetOrCreate(key K, build func() (V, error)) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.items[key]; ok {
		return v, false, nil
	}
	v, err := build()
	if err != nil {
		var zero V
		return zero, false, err
	}
	c.items[key] = v
	c.order = append(c.order, key)
	return v, true, nil
}

// Len returns the number of entries.
func (c *Catalog[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Keys returns the keys in insertion order.
func (c *Catalog[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]K, len(c.order))
	copy(out, c.order)
	return out
}

// Values returns the values in insertion order.
func (c *Catalog[K, V]) Values() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]V, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.items[k])
	}
	return out
}

// Each calls fn for every entry in insertion order until fn returns false.
// fn runs on a copy of the entries and may use the catalog.
func (c *Catalog[K, V]) Each(fn func(K, V) bool) {
	keys := c.Keys()
	for _, k := range keys {
		v, _ := c.Get(k)
		if !fn(k, v) {
			return
		}
	}
}
