package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTaskRepository implements TaskRepository using PostgreSQL.
// Claiming uses FOR UPDATE SKIP LOCKED plus a lease on next_attempt_at
// so multiple service instances can poll the same table.
type PostgresTaskRepository struct {
	db *pgxpool.Pool
}

// NewPostgresTaskRepository creates a new PostgreSQL task repository
func NewPostgresTaskRepository(db *pgxpool.Pool) (*PostgresTaskRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	return &PostgresTaskRepository{db: db}, nil
}

// Enqueue implements TaskRepository.Enqueue
func (r *PostgresTaskRepository) Enqueue(ctx context.Context, kind string, payload []byte) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO revocation_tasks (id, kind, payload, status, retry_count, next_attempt_at, created_at)
		 VALUES ($1, $2, $3, $4, 0, now(), now())`,
		uuid.New(), kind, payload, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// ClaimDue implements TaskRepository.ClaimDue
func (r *PostgresTaskRepository) ClaimDue(ctx context.Context, limit int, leaseFor time.Duration) ([]*Task, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT id, kind, payload, status, retry_count, next_attempt_at, created_at
		 FROM revocation_tasks
		 WHERE status = $1 AND next_attempt_at <= now()
		 ORDER BY created_at
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due tasks: %w", err)
	}

	var claimed []*Task
	for rows.Next() {
		var t Task
		err := rows.Scan(&t.ID, &t.Kind, &t.Payload, &t.Status, &t.RetryCount, &t.NextAttemptAt, &t.CreatedAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		claimed = append(claimed, &t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read task rows: %w", err)
	}

	for _, t := range claimed {
		_, err := tx.Exec(ctx,
			`UPDATE revocation_tasks SET next_attempt_at = now() + $1 WHERE id = $2`,
			leaseFor, t.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to lease task: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}
	return claimed, nil
}

// MarkDone implements TaskRepository.MarkDone
func (r *PostgresTaskRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE revocation_tasks SET status = $1 WHERE id = $2`, StatusDone, id)
	if err != nil {
		return fmt.Errorf("failed to mark task done: %w", err)
	}
	return nil
}

// Reschedule implements TaskRepository.Reschedule
func (r *PostgresTaskRepository) Reschedule(ctx context.Context, id uuid.UUID, retryCount int, nextAttemptAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE revocation_tasks SET retry_count = $1, next_attempt_at = $2 WHERE id = $3`,
		retryCount, nextAttemptAt, id)
	if err != nil {
		return fmt.Errorf("failed to reschedule task: %w", err)
	}
	return nil
}

// MarkFailed implements TaskRepository.MarkFailed
func (r *PostgresTaskRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE revocation_tasks SET status = $1 WHERE id = $2`, StatusFailed, id)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	return nil
}
