package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memItem struct {
	key     string
	v       []byte
	expires time.Time
}

// MemoryStore is an in-process Store holding at most maxEntries keys. When full, the least
// recently written key is evicted.
type MemoryStore struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List
	maxEntries int
	now        func() time.Time
}

// NewMemoryStore builds a store; maxEntries <= 0 means unbounded.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		items:      map[string]*list.Element{},
		order:      list.New(),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	it := el.Value.(*memItem)
	if !it.expires.IsZero() && s.now().After(it.expires) {
		s.removeElement(el)
		return nil, false, nil
	}
	return clone(it.v), true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = ctx
	it := &memItem{key: key, v: clone(value)}
	if ttl > 0 {
		it.expires = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		el.Value = it
		s.order.MoveToFront(el)
		return nil
	}

	s.items[key] = s.order.PushFront(it)
	for s.maxEntries > 0 && s.order.Len() > s.maxEntries {
		s.removeElement(s.order.Back())
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[key]; ok {
		s.removeElement(el)
	}
	return nil
}

// Len counts stored keys, expired ones included until they are touched.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *MemoryStore) removeElement(el *list.Element) {
	s.order.Remove(el)
	delete(s.items, el.Value.(*memItem).key)
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
