package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// lruCacheItem is the internal structure stored in the linked list.
type lruCacheItem[K comparable, V any] struct {
	key   K
	value V
}

// LRUStore is a size-limited, in-memory front tier over another Store.
// Lookups are answered from memory when possible and fall back to the backing
// store on a miss; inserts write through to the backing store.
type LRUStore[K comparable, V any] struct {
	maxSize int
	backing Store[K, V]

	mu    sync.Mutex
	ll    *list.List          // Used to track the order of items (recency).
	cache map[K]*list.Element // Used for fast key lookups.
}

// NewLRUStore creates a new LRU front tier.
// - maxSize: The maximum number of items kept in memory. Must be > 0.
// - backing: The store that holds the authoritative copy.
func NewLRUStore[K comparable, V any](maxSize int, backing Store[K, V]) (*LRUStore[K, V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	if backing == nil {
		return nil, fmt.Errorf("backing store cannot be nil")
	}
	return &LRUStore[K, V]{
		maxSize: maxSize,
		backing: backing,
		ll:      list.New(),
		cache:   make(map[K]*list.Element),
	}, nil
}

// Lookup checks memory first, moving a hit to the front of the recency list.
// On a miss it asks the backing store and remembers what it finds.
func (c *LRUStore[K, V]) Lookup(ctx context.Context, key K) (V, bool, error) {
	c.mu.Lock()
	if elem, ok := c.cache[key]; ok {
		c.ll.MoveToFront(elem)
		c.mu.Unlock()
		return elem.Value.(*lruCacheItem[K, V]).value, true, nil
	}
	c.mu.Unlock()

	value, ok, err := c.backing.Lookup(ctx, key)
	if err != nil || !ok {
		return value, ok, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value)
	return value, true, nil
}

// Insert writes through to the backing store, then updates memory.
func (c *LRUStore[K, V]) Insert(ctx context.Context, key K, value V) error {
	if err := c.backing.Insert(ctx, key, value); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value)
	return nil
}

// put adds or refreshes an item. Must be called with the mutex held.
func (c *LRUStore[K, V]) put(key K, value V) {
	if elem, ok := c.cache[key]; ok {
		elem.Value.(*lruCacheItem[K, V]).value = value
		c.ll.MoveToFront(elem)
		return
	}
	element := c.ll.PushFront(&lruCacheItem[K, V]{key: key, value: value})
	c.cache[key] = element

	// If the cache is over capacity, evict the least recently used item.
	if c.ll.Len() > c.maxSize {
		c.evict()
	}
}

// Invalidate drops key from memory only; the backing store keeps it.
func (c *LRUStore[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.ll.Remove(elem)
		delete(c.cache, key)
	}
}

// evict removes the least recently used item from the cache.
// This method is unexported and must be called within a locked mutex.
func (c *LRUStore[K, V]) evict() {
	elementToRemove := c.ll.Back()
	if elementToRemove != nil {
		itemToRemove := c.ll.Remove(elementToRemove).(*lruCacheItem[K, V])
		delete(c.cache, itemToRemove.key)
	}
}

// Flush delegates to the backing store.
func (c *LRUStore[K, V]) Flush(ctx context.Context, durable bool) error {
	return c.backing.Flush(ctx, durable)
}

// Close closes the backing store.
func (c *LRUStore[K, V]) Close() error {
	return c.backing.Close()
}
