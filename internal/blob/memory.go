package blob

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store with the same conditional-write
// semantics as the S3 backend. It backs tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	nextVer int64
}

type memoryObject struct {
	data    []byte
	version string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Get returns a copy of the object at key.
func (s *MemoryStore) Get(_ context.Context, key string) (*Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return &Object{Data: data, Version: obj.version}, nil
}

// Put stores data at key, enforcing the conditional-write contract.
func (s *MemoryStore) Put(_ context.Context, key string, data []byte, version string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.objects[key]
	if version == "" {
		if exists {
			return "", ErrVersionConflict
		}
	} else if !exists || current.version != version {
		return "", ErrVersionConflict
	}

	s.nextVer++
	newVersion := "v" + strconv.FormatInt(s.nextVer, 10)
	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[key] = memoryObject{data: stored, version: newVersion}
	return newVersion, nil
}

// List returns all keys under prefix in lexical order.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

var _ Store = (*MemoryStore)(nil)
