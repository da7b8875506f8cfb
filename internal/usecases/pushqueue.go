package usecases

import (
	"sync"

	"github.com/samber/lo"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// RepoPushQueue is a bounded FIFO of repositories awaiting a background push.
// A repository is pending at most once: enqueueing a location that is already
// waiting is a no-op until the consumer takes it.
type RepoPushQueue struct {
	mu       sync.Mutex
	items    []domain.RepositoryHandle
	pending  map[string]struct{}
	capacity int
	ready    chan struct{}
}

// NewRepoPushQueue creates an empty queue. A capacity of zero or less selects
// domain.DefaultQueueCapacity.
func NewRepoPushQueue(capacity int) *RepoPushQueue {
	if capacity <= 0 {
		capacity = domain.DefaultQueueCapacity
	}
	return &RepoPushQueue{
		pending:  make(map[string]struct{}),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Enqueue adds repo unless it is already pending.
// Returns true if a new entry was created, or domain.ErrQueueFull when the queue
// holds capacity distinct repositories.
func (q *RepoPushQueue) Enqueue(repo domain.RepositoryHandle) (bool, error) {
	key := repo.Key()

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[key]; ok {
		return false, nil
	}
	if len(q.items) >= q.capacity {
		return false, domain.ErrQueueFull
	}

	q.items = append(q.items, domain.RepositoryHandle{Path: key})
	q.pending[key] = struct{}{}

	select {
	case q.ready <- struct{}{}:
	default:
	}

	return true, nil
}

// TryDequeue removes and returns the oldest pending repository.
func (q *RepoPushQueue) TryDequeue() (domain.RepositoryHandle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return domain.RepositoryHandle{}, false
	}

	repo := q.items[0]
	q.items[0] = domain.RepositoryHandle{}
	q.items = q.items[1:]
	delete(q.pending, repo.Key())

	return repo, true
}

// Len returns the number of pending repositories.
func (q *RepoPushQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending reports whether the repository at path is waiting for a push.
func (q *RepoPushQueue) Pending(path string) bool {
	key := domain.NewRepositoryHandle(path).Key()

	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[key]
	return ok
}

// Snapshot returns the pending repository paths in delivery order.
func (q *RepoPushQueue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return lo.Map(q.items, func(h domain.RepositoryHandle, _ int) string {
		return h.Path
	})
}

// Ready is signalled after an Enqueue creates a new entry. It carries at most
// one pending signal, so receivers must drain the queue after waking.
func (q *RepoPushQueue) Ready() <-chan struct{} {
	return q.ready
}
