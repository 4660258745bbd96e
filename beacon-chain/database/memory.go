package database

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

const btreeDegree = 32

type memItem struct {
	key   []byte
	value []byte
}

func (m memItem) Less(than btree.Item) bool {
	return bytes.Compare(m.key, than.(memItem).key) < 0
}

// MemoryStore is an in-memory implementation of Database with the same
// semantics as the bolt-backed store, minus durability. Used for ephemeral
// nodes and tests.
type MemoryStore struct {
	mu   sync.Mutex
	tree *btree.BTree
}

var _ = Database(&MemoryStore{})

// NewMemoryStore initializes an in-memory key-value store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tree: btree.New(btreeDegree)}
}

// Get retrieves the value stored under key, or nil if none exists.
func (m *MemoryStore) Get(key []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.tree.Get(memItem{key: key})
	if item == nil {
		return nil, nil
	}
	stored := item.(memItem).value
	value := make([]byte, len(stored))
	copy(value, stored)
	return value, nil
}

// Has checks whether key exists in the store.
func (m *MemoryStore) Has(key []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.Has(memItem{key: key}), nil
}

// PutBatch writes all entries under a single lock acquisition, so no reader
// observes a partial batch.
func (m *MemoryStore) PutBatch(entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range entries {
		key := make([]byte, len(entry.Key))
		copy(key, entry.Key)
		value := make([]byte, len(entry.Value))
		copy(value, entry.Value)
		m.tree.ReplaceOrInsert(memItem{key: key, value: value})
	}
	return nil
}

// Delete removes the entry stored under key, if any.
func (m *MemoryStore) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Delete(memItem{key: key})
	return nil
}

// IteratorAscending yields pairs with keys >= from in ascending order.
func (m *MemoryStore) IteratorAscending(from []byte) (Iterator, error) {
	return m.newIterator(from, false), nil
}

// IteratorDescending yields pairs with keys <= to in descending order.
func (m *MemoryStore) IteratorDescending(to []byte) (Iterator, error) {
	return m.newIterator(to, true), nil
}

func (m *MemoryStore) newIterator(bound []byte, reverse bool) Iterator {
	m.mu.Lock()
	// Clone is a lazy copy-on-write snapshot, cheap to take under the lock.
	snapshot := m.tree.Clone()
	m.mu.Unlock()
	return &memIterator{tree: snapshot, bound: bound, reverse: reverse}
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

type memIterator struct {
	tree    *btree.BTree
	bound   []byte
	reverse bool
	started bool
	current memItem
	done    bool
}

func (it *memIterator) Next() bool {
	if it.done {
		return false
	}
	var next *memItem
	step := func(item btree.Item) bool {
		entry := item.(memItem)
		if it.started && bytes.Equal(entry.key, it.current.key) {
			// Skip the pivot itself; iteration bounds are inclusive.
			return true
		}
		next = &entry
		return false
	}
	switch {
	case !it.started && it.bound == nil && !it.reverse:
		it.tree.Ascend(step)
	case !it.started && it.bound == nil && it.reverse:
		it.tree.Descend(step)
	case it.reverse:
		pivot := it.bound
		if it.started {
			pivot = it.current.key
		}
		it.tree.DescendLessOrEqual(memItem{key: pivot}, step)
	default:
		pivot := it.bound
		if it.started {
			pivot = it.current.key
		}
		it.tree.AscendGreaterOrEqual(memItem{key: pivot}, step)
	}
	it.started = true
	if next == nil {
		it.done = true
		return false
	}
	it.current = *next
	return true
}

func (it *memIterator) Key() []byte   { return it.current.key }
func (it *memIterator) Value() []byte { return it.current.value }
func (it *memIterator) Error() error  { return nil }
func (it *memIterator) Close() error  { return nil }
