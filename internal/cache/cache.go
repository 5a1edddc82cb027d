// Package cache provides the bounded, time-boxed response cache keyed by
// plan fingerprint.
//
// Eviction rule: TTL is checked first — an expired entry is removed and
// reported as a miss before any LRU bookkeeping happens; capacity overflow
// then evicts the least recently used live entry. Expiry is lazy on every
// Get/Put; no background sweep is needed for correctness.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/common/metrics"
)

// Result is the cached payload for one plan fingerprint.
type Result struct {
	Data      []map[string]interface{} `json:"data"`
	Synthesis string                   `json:"synthesis,omitempty"`
}

// Store is the response cache contract shared by the in-memory and Redis
// implementations.
type Store interface {
	Get(ctx context.Context, fingerprint string) (*Result, bool, error)
	Put(ctx context.Context, fingerprint string, result *Result, ttl time.Duration) error
}

type memoryEntry struct {
	fingerprint string
	result      *Result
	createdAt   time.Time
	expiresAt   time.Time
	sizeEst     int
}

// MemoryStore is the default single-process cache. All operations run under
// one mutex, so a Get never observes a partially evicted entry and capacity
// accounting cannot drift.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	// lru holds *memoryEntry values, most recently used at the front.
	lru *list.List

	now func() time.Time
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryStore{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
		now:      time.Now,
	}
}

// Get returns the cached result and refreshes its recency. An expired entry
// is removed and treated as a miss.
func (s *MemoryStore) Get(_ context.Context, fingerprint string) (*Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[fingerprint]
	if !ok {
		return nil, false, nil
	}
	entry, ok := elem.Value.(*memoryEntry)
	if !ok {
		return nil, false, gwerrors.NewCacheCorruptionError("lru element does not hold a cache entry")
	}

	if s.now().After(entry.expiresAt) {
		s.removeLocked(elem, entry, "ttl")
		return nil, false, nil
	}

	s.lru.MoveToFront(elem)
	return entry.result, true, nil
}

// Put inserts or replaces the entry for a fingerprint, evicting the least
// recently used entry when over capacity.
func (s *MemoryStore) Put(_ context.Context, fingerprint string, result *Result, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if elem, ok := s.entries[fingerprint]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.result = result
		entry.createdAt = now
		entry.expiresAt = now.Add(ttl)
		entry.sizeEst = estimateSize(result)
		s.lru.MoveToFront(elem)
		return nil
	}

	entry := &memoryEntry{
		fingerprint: fingerprint,
		result:      result,
		createdAt:   now,
		expiresAt:   now.Add(ttl),
		sizeEst:     estimateSize(result),
	}
	s.entries[fingerprint] = s.lru.PushFront(entry)

	for s.lru.Len() > s.capacity {
		oldest := s.lru.Back()
		if oldest == nil {
			return gwerrors.NewCacheCorruptionError("capacity exceeded with empty lru list")
		}
		oldEntry, ok := oldest.Value.(*memoryEntry)
		if !ok {
			return gwerrors.NewCacheCorruptionError("lru element does not hold a cache entry")
		}
		// The LRU victim may also be past its TTL; count it under ttl
		// in that case so the eviction metrics stay honest.
		reason := "lru"
		if now.After(oldEntry.expiresAt) {
			reason = "ttl"
		}
		s.removeLocked(oldest, oldEntry, reason)
	}

	return nil
}

// Len reports the current number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

func (s *MemoryStore) removeLocked(elem *list.Element, entry *memoryEntry, reason string) {
	s.lru.Remove(elem)
	delete(s.entries, entry.fingerprint)
	metrics.CacheEvictions.WithLabelValues(reason).Inc()
}

func estimateSize(r *Result) int {
	size := len(r.Synthesis)
	for _, row := range r.Data {
		// Rough per-row estimate; exact accounting is not needed since
		// capacity is entry-counted.
		size += 32 * len(row)
	}
	return size
}
