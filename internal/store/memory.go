package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/vyrodovalexey/avkeyd/internal/record"
)

// Memory implements Store with a mutex-guarded map. It suits tests and
// single-node deployments. One mutex covers the whole map, which keeps
// multi-record batches atomic without version counters.
type Memory struct {
	mu     sync.RWMutex
	data   map[record.Address][]byte
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[record.Address][]byte),
	}
}

// Get implements Store. The returned slice is a copy.
func (s *Memory) Get(ctx context.Context, addr record.Address) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	data, ok := s.data[addr]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}

	return append([]byte(nil), data...), nil
}

// Apply implements Store.
func (s *Memory) Apply(ctx context.Context, ops ...Op) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if len(ops) == 0 {
		return nil
	}
	if err := validateOps(ops); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		_, exists := s.data[op.Addr]
		switch op.Kind {
		case OpCreate:
			if exists {
				return fmt.Errorf("%w: %s", ErrAlreadyExists, op.Addr)
			}
		case OpUpdate, OpDelete:
			if !exists {
				return fmt.Errorf("%w: %s", ErrNotFound, op.Addr)
			}
		}
	}

	for _, op := range ops {
		if op.Kind == OpDelete {
			delete(s.data, op.Addr)
			continue
		}
		s.data[op.Addr] = append([]byte(nil), op.Data...)
	}

	return nil
}

// Ping implements Store.
func (s *Memory) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return nil
}

// Close implements Store.
func (s *Memory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return nil
}

// Size returns the number of stored records.
func (s *Memory) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
