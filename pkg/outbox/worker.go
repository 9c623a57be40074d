package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// HandlerFunc executes one task. Returning an error reschedules the
// task until its attempts are exhausted, so handlers must be idempotent.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Scheduler enqueues durable tasks. It satisfies the scheduler
// interfaces of the clientreg and consent services.
type Scheduler struct {
	repository TaskRepository
}

// NewScheduler creates a scheduler backed by the given repository
func NewScheduler(repository TaskRepository) *Scheduler {
	return &Scheduler{repository: repository}
}

// ScheduleClientCascade enqueues deletion of a client's authorizations
// and invalidation of its consents
func (s *Scheduler) ScheduleClientCascade(ctx context.Context, tenantID int, clientID string) error {
	payload, err := json.Marshal(ClientCascadePayload{TenantID: tenantID, ClientID: clientID})
	if err != nil {
		return fmt.Errorf("failed to marshal cascade payload: %w", err)
	}
	return s.repository.Enqueue(ctx, KindClientCascade, payload)
}

// SchedulePrincipalRevocation enqueues deletion of a principal's
// authorizations for one client
func (s *Scheduler) SchedulePrincipalRevocation(ctx context.Context, tenantID int, clientID, principalID string) error {
	payload, err := json.Marshal(PrincipalRevocationPayload{
		TenantID:    tenantID,
		ClientID:    clientID,
		PrincipalID: principalID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal revocation payload: %w", err)
	}
	return s.repository.Enqueue(ctx, KindPrincipalRevocation, payload)
}

// Worker polls the task table and executes registered handlers.
// Execution is at-least-once: a crash between handler completion and
// MarkDone re-runs the task, which is safe because every handler is an
// idempotent bulk revocation.
type Worker struct {
	repository   TaskRepository
	handlers     map[string]HandlerFunc
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retryBase    time.Duration
	lease        time.Duration
}

// WorkerOption configures the worker
type WorkerOption func(*Worker)

// WithPollInterval sets how often the worker looks for due tasks
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.pollInterval = d }
}

// WithBatchSize sets how many tasks one poll claims
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) { w.batchSize = n }
}

// WithMaxAttempts sets the attempt budget before a task is parked
func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) { w.maxAttempts = n }
}

// NewWorker creates a new worker; handlers are registered per kind
// before Run is called
func NewWorker(repository TaskRepository, opts ...WorkerOption) *Worker {
	w := &Worker{
		repository:   repository,
		handlers:     make(map[string]HandlerFunc),
		pollInterval: time.Second,
		batchSize:    20,
		maxAttempts:  5,
		retryBase:    2 * time.Second,
		lease:        30 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register binds a handler to a task kind
func (w *Worker) Register(kind string, handler HandlerFunc) {
	w.handlers[kind] = handler
}

// Run polls until ctx is cancelled
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Revocation task worker started", "poll_interval", w.pollInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Revocation task worker stopped")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch claims and executes one batch of due tasks. Exported so
// tests can drive the worker without the polling loop.
func (w *Worker) ProcessBatch(ctx context.Context) {
	tasks, err := w.repository.ClaimDue(ctx, w.batchSize, w.lease)
	if err != nil {
		slog.Error("Failed to claim due tasks", "err", err)
		return
	}

	for _, task := range tasks {
		w.execute(ctx, task)
	}
}

func (w *Worker) execute(ctx context.Context, task *Task) {
	handler, ok := w.handlers[task.Kind]
	if !ok {
		slog.Error("No handler registered for task kind", "kind", task.Kind, "task_id", task.ID)
		if err := w.repository.MarkFailed(ctx, task.ID); err != nil {
			slog.Error("Failed to park task", "err", err, "task_id", task.ID)
		}
		return
	}

	if err := handler(ctx, task.Payload); err != nil {
		attempt := task.RetryCount + 1
		if attempt >= w.maxAttempts {
			slog.Error("Task exhausted its attempts", "err", err, "kind", task.Kind, "task_id", task.ID, "attempts", attempt)
			if err := w.repository.MarkFailed(ctx, task.ID); err != nil {
				slog.Error("Failed to park task", "err", err, "task_id", task.ID)
			}
			return
		}

		// Exponential backoff: base doubles with every attempt
		delay := w.retryBase << (attempt - 1)
		slog.Warn("Task failed, rescheduling", "err", err, "kind", task.Kind, "task_id", task.ID, "attempt", attempt, "retry_in", delay)
		if err := w.repository.Reschedule(ctx, task.ID, attempt, time.Now().UTC().Add(delay)); err != nil {
			slog.Error("Failed to reschedule task", "err", err, "task_id", task.ID)
		}
		return
	}

	if err := w.repository.MarkDone(ctx, task.ID); err != nil {
		// The handler already ran; at-least-once lets the re-run be safe
		slog.Error("Failed to mark task done", "err", err, "task_id", task.ID)
	}
}
