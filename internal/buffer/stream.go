package buffer

import "sync"

const (
	// DashboardSize is the capacity of the per-source dashboard streams.
	DashboardSize = 30
	// HistorySize keeps ten points plus the newest one.
	HistorySize = 11
)

// Stream is a fixed-capacity, insertion-ordered buffer that keeps the last N items.
type Stream[T any] struct {
	mu       sync.RWMutex
	data     []T
	capacity int
}

// New creates a Stream holding at most capacity items. A capacity below one is treated as one.
func New[T any](capacity int) *Stream[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Stream[T]{
		data:     make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push appends item, dropping the oldest entry when the stream is full.
func (s *Stream[T]) Push(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.data) >= s.capacity {
		// shift left in place so the backing array never grows
		copy(s.data, s.data[1:])
		s.data[len(s.data)-1] = item
		return
	}
	s.data = append(s.data, item)
}

// Snapshot returns a copy of the buffered items, oldest first.
func (s *Stream[T]) Snapshot() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, len(s.data))
	copy(out, s.data)
	return out
}

func (s *Stream[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *Stream[T]) Cap() int { return s.capacity }
