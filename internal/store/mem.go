package store

import (
	"context"
	"sync"
)

// memKV is a process-local KV. Useful for tests and for running the daemon
// without persistence (every item looks new again after a restart).
type memKV struct {
	mu     sync.RWMutex
	m      map[string]string
	closed bool
}

// NewMem returns an empty in-memory KV.
func NewMem() KV {
	return &memKV{m: map[string]string{}}
}

func (s *memKV) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *memKV) Put(ctx context.Context, key, value string) error {
	_ = ctx
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.m[key] = value
	return nil
}

func (s *memKV) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
