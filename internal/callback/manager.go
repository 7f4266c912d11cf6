// Package callback provides an ordered, concurrency-safe registry of
// callback values with O(1) removal, used wherever a layer needs to
// fan a notification out to more than one registered delegate.
package callback

import (
	"container/list"
	"sync"
)

// Manager holds a set of registered values of type T in registration
// order. It is safe for concurrent use.
type Manager[T any] struct {
	mu     sync.RWMutex
	order  *list.List
	byID   map[int]*list.Element
	nextID int
}

type entry[T any] struct {
	id int
	v  T
}

// Add registers v and returns a function that removes it; the
// returned function is idempotent.
func (m *Manager[T]) Add(v T) (remove func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	if m.order == nil {
		m.order = list.New()
		m.byID = make(map[int]*list.Element)
	}
	el := m.order.PushBack(&entry[T]{id: id, v: v})
	m.byID[id] = el
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if el, ok := m.byID[id]; ok {
				m.order.Remove(el)
				delete(m.byID, id)
			}
			m.mu.Unlock()
		})
	}
}

// Len reports the number of currently registered values.
func (m *Manager[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.order == nil {
		return 0
	}
	return m.order.Len()
}

// Range calls fn once per registered value, in registration order, over
// a snapshot taken under the read lock (fn itself runs unlocked, so it
// may call Add/remove without deadlocking).
func (m *Manager[T]) Range(fn func(T)) {
	m.mu.RLock()
	if m.order == nil {
		m.mu.RUnlock()
		return
	}
	vs := make([]T, 0, m.order.Len())
	for el := m.order.Front(); el != nil; el = el.Next() {
		vs = append(vs, el.Value.(*entry[T]).v)
	}
	m.mu.RUnlock()

	for _, v := range vs {
		fn(v)
	}
}
