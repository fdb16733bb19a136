// Package ordcache provides a fixed-capacity map that evicts in insertion
// order. It replaces ad hoc "scan the map for something to delete" eviction
// with an explicit, unit-tested data structure. Eviction follows the order
// keys were first observed, not last access, so the policy is bounded and
// cheap rather than strictly LRU.
package ordcache

// Map is a fixed-capacity string-keyed map with insertion-order eviction.
// It is not safe for concurrent use; callers hold their own lock.
type Map struct {
	capacity int
	order    []string
	items    map[string]any
}

// New creates a Map holding at most capacity entries. Capacity must be
// positive.
func New(capacity int) *Map {
	if capacity <= 0 {
		capacity = 1
	}
	return &Map{
		capacity: capacity,
		items:    make(map[string]any, capacity),
	}
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	v, ok := m.items[key]
	return v, ok
}

// Put inserts or overwrites the value under key. Overwriting does not change
// the key's position in the eviction order. When inserting a new key would
// exceed capacity, the oldest key is evicted first; the evicted key is
// returned so callers can observe it.
func (m *Map) Put(key string, value any) (evicted string, didEvict bool) {
	if _, exists := m.items[key]; exists {
		m.items[key] = value
		return "", false
	}

	if len(m.items) >= m.capacity {
		evicted = m.order[0]
		m.order = m.order[1:]
		delete(m.items, evicted)
		didEvict = true
	}

	m.items[key] = value
	m.order = append(m.order, key)
	return evicted, didEvict
}

// Delete removes key and reports whether it was present.
func (m *Map) Delete(key string) bool {
	if _, exists := m.items[key]; !exists {
		return false
	}
	delete(m.items, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of stored entries.
func (m *Map) Len() int {
	return len(m.items)
}

// Keys returns the stored keys in insertion order. The returned slice is a
// copy; mutating it does not affect the map.
func (m *Map) Keys() []string {
	keys := make([]string, len(m.order))
	copy(keys, m.order)
	return keys
}

// Clear removes all entries.
func (m *Map) Clear() {
	m.order = m.order[:0]
	m.items = make(map[string]any, m.capacity)
}
