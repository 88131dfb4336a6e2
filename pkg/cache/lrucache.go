package cache

import (
	"container/list"
	"fmt"
	"sync"
)

// LRUSet is a generic, thread-safe set with a fixed size and a Least Recently
// Used (LRU) eviction policy. Aggregators use it to remember recently completed
// correlation keys without growing without bound.
type LRUSet[K comparable] struct {
	maxSize int

	mu    sync.Mutex
	ll    *list.List          // Used to track the order of keys (recency).
	items map[K]*list.Element // Used for fast key lookups.
}

// NewLRUSet creates a new size-limited LRU set.
// - maxSize: The maximum number of keys to remember. Must be > 0.
func NewLRUSet[K comparable](maxSize int) (*LRUSet[K], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	return &LRUSet[K]{
		maxSize: maxSize,
		ll:      list.New(),
		items:   make(map[K]*list.Element),
	}, nil
}

// Add records key as the most recently used entry, evicting the least recently
// used key if the set is over capacity.
func (s *LRUSet[K]) Add(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.ll.MoveToFront(elem)
		return
	}

	s.items[key] = s.ll.PushFront(key)
	if s.ll.Len() > s.maxSize {
		s.evict()
	}
}

// Contains reports whether key is present. A hit refreshes the key's recency.
func (s *LRUSet[K]) Contains(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.items[key]
	if ok {
		s.ll.MoveToFront(elem)
	}
	return ok
}

// Remove deletes key if present.
func (s *LRUSet[K]) Remove(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[key]; ok {
		s.ll.Remove(elem)
		delete(s.items, key)
	}
}

// Len returns the number of keys held.
func (s *LRUSet[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// evict removes the least recently used key.
// This method is unexported and must be called within a locked mutex.
func (s *LRUSet[K]) evict() {
	elementToRemove := s.ll.Back()
	if elementToRemove != nil {
		key := s.ll.Remove(elementToRemove).(K)
		delete(s.items, key)
	}
}
