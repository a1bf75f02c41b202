package load

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// memStore is an in-memory ObjectStore. failPut and failCopy let a test fail calls by key.
type memStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	ops      []string
	failPut  func(key string, attempt int) error
	failCopy func(dst string) error
	puts     map[string]int
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, puts: map[string]int{}}
}

func (s *memStore) Put(_ context.Context, key string, body []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts[key]++
	if s.failPut != nil {
		if err := s.failPut(key, s.puts[key]); err != nil {
			return err
		}
	}
	s.ops = append(s.ops, "put "+key)
	s.objects[key] = slices.Clone(body)
	return nil
}

func (s *memStore) Copy(_ context.Context, src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCopy != nil {
		if err := s.failCopy(dst); err != nil {
			return err
		}
	}
	body, ok := s.objects[src]
	if !ok {
		return fmt.Errorf("no such key %s", src)
	}
	s.ops = append(s.ops, "copy "+dst)
	s.objects[dst] = body
	return nil
}

func (s *memStore) Delete(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.ops = append(s.ops, "delete "+k)
		delete(s.objects, k)
	}
	return nil
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.objects))
}

func (s *memStore) get(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key]
}
