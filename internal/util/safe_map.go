// Package util holds small generic helpers shared across packages.
package util

import (
	"sort"
	"sync"
)

// SafeMap is a string-keyed map guarded by a RWMutex. Reads vastly
// outnumber writes in every current use, e.g. type lookups after startup
// registration.
type SafeMap[V any] struct {
	mu   sync.RWMutex
	data map[string]V
}

func NewSafeMap[V any]() *SafeMap[V] {
	return &SafeMap[V]{
		data: make(map[string]V),
	}
}

func (sm *SafeMap[V]) Set(key string, value V) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.data[key] = value
}

func (sm *SafeMap[V]) Get(key string) (V, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	val, ok := sm.data[key]
	return val, ok
}

// Keys returns the keys in sorted order.
func (sm *SafeMap[V]) Keys() []string {
	sm.mu.RLock()
	keys := make([]string, 0, len(sm.data))
	for k := range sm.data {
		keys = append(keys, k)
	}
	sm.mu.RUnlock()
	sort.Strings(keys)
	return keys
}
