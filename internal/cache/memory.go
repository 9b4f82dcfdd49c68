package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store with per-entry TTL and LRU eviction once
// maxSize is reached. It is the default backend for development and tests;
// its TTL enforcement happens lazily on read plus a periodic sweep.
type Memory struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lru     *list.List

	stopSweep chan struct{}
	sweepDone chan struct{}
	stopOnce  sync.Once
}

type memoryItem struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemory creates a memory store holding at most maxSize entries and
// starts a background sweep that drops expired entries every interval.
func NewMemory(maxSize int, sweepInterval time.Duration) *Memory {
	m := &Memory{
		maxSize:   maxSize,
		items:     make(map[string]*list.Element),
		lru:       list.New(),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	go m.sweep(sweepInterval)
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, exists := m.items[key]
	if !exists {
		return nil, ErrCacheMiss
	}
	item := elem.Value.(*memoryItem)
	if time.Now().After(item.expiresAt) {
		m.removeElement(elem)
		return nil, ErrCacheMiss
	}

	// Move to front (most recently used)
	m.lru.MoveToFront(elem)

	// Copy so callers cannot mutate the cached bytes.
	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	item := &memoryItem{
		key:       key,
		value:     stored,
		expiresAt: time.Now().Add(ttl),
	}

	if elem, exists := m.items[key]; exists {
		elem.Value = item
		m.lru.MoveToFront(elem)
		return nil
	}

	elem := m.lru.PushFront(item)
	m.items[key] = elem

	// Evict if over capacity
	if m.lru.Len() > m.maxSize {
		if oldest := m.lru.Back(); oldest != nil {
			m.removeElement(oldest)
		}
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, exists := m.items[key]; exists {
		m.removeElement(elem)
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, exists := m.items[key]
	if !exists {
		return false, nil
	}
	if time.Now().After(elem.Value.(*memoryItem).expiresAt) {
		m.removeElement(elem)
		return false, nil
	}
	return true, nil
}

func (m *Memory) SupportsPatternDelete() bool { return false }

func (m *Memory) Close() error {
	m.stopOnce.Do(func() {
		close(m.stopSweep)
		<-m.sweepDone
	})
	return nil
}

// Size returns the current number of entries, expired or not.
func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memory) removeElement(elem *list.Element) {
	item := elem.Value.(*memoryItem)
	delete(m.items, item.key)
	m.lru.Remove(elem)
}

func (m *Memory) sweep(interval time.Duration) {
	defer close(m.sweepDone)
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanExpired()
		case <-m.stopSweep:
			return
		}
	}
}

func (m *Memory) cleanExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element
	for elem := m.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*memoryItem).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		m.removeElement(elem)
	}
	return len(toRemove)
}
