package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskRepository defines the persistence contract for queued tasks
type TaskRepository interface {
	// Enqueue persists a new pending task due immediately
	Enqueue(ctx context.Context, kind string, payload []byte) error

	// ClaimDue returns up to limit due pending tasks and leases them
	// for leaseFor so concurrent workers do not pick them up twice.
	// A lease expiring before completion only causes a re-run, never a
	// loss.
	ClaimDue(ctx context.Context, limit int, leaseFor time.Duration) ([]*Task, error)

	// MarkDone finishes a task
	MarkDone(ctx context.Context, id uuid.UUID) error

	// Reschedule returns a failed attempt to the queue with a new due
	// time and bumped retry count
	Reschedule(ctx context.Context, id uuid.UUID, retryCount int, nextAttemptAt time.Time) error

	// MarkFailed parks a task that exhausted its attempts
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

// InMemoryTaskRepository implements TaskRepository with a mutex-guarded
// map. Durability is obviously absent; tests only.
type InMemoryTaskRepository struct {
	tasks map[uuid.UUID]*Task
	mutex sync.Mutex
}

// NewInMemoryTaskRepository creates a new empty in-memory repository
func NewInMemoryTaskRepository() *InMemoryTaskRepository {
	return &InMemoryTaskRepository{
		tasks: make(map[uuid.UUID]*Task),
	}
}

// Enqueue implements TaskRepository.Enqueue
func (r *InMemoryTaskRepository) Enqueue(ctx context.Context, kind string, payload []byte) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now().UTC()
	id := uuid.New()
	r.tasks[id] = &Task{
		ID:            id,
		Kind:          kind,
		Payload:       append([]byte(nil), payload...),
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	return nil
}

// ClaimDue implements TaskRepository.ClaimDue
func (r *InMemoryTaskRepository) ClaimDue(ctx context.Context, limit int, leaseFor time.Duration) ([]*Task, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now().UTC()
	var due []*Task
	for _, t := range r.tasks {
		if t.Status == StatusPending && !t.NextAttemptAt.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*Task, 0, len(due))
	for _, t := range due {
		t.NextAttemptAt = now.Add(leaseFor)
		dup := *t
		dup.Payload = append([]byte(nil), t.Payload...)
		claimed = append(claimed, &dup)
	}
	return claimed, nil
}

// MarkDone implements TaskRepository.MarkDone
func (r *InMemoryTaskRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if t, ok := r.tasks[id]; ok {
		t.Status = StatusDone
	}
	return nil
}

// Reschedule implements TaskRepository.Reschedule
func (r *InMemoryTaskRepository) Reschedule(ctx context.Context, id uuid.UUID, retryCount int, nextAttemptAt time.Time) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if t, ok := r.tasks[id]; ok {
		t.RetryCount = retryCount
		t.NextAttemptAt = nextAttemptAt
	}
	return nil
}

// MarkFailed implements TaskRepository.MarkFailed
func (r *InMemoryTaskRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if t, ok := r.tasks[id]; ok {
		t.Status = StatusFailed
	}
	return nil
}

// PendingCount reports how many tasks are still pending; test helper
func (r *InMemoryTaskRepository) PendingCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	count := 0
	for _, t := range r.tasks {
		if t.Status == StatusPending {
			count++
		}
	}
	return count
}
