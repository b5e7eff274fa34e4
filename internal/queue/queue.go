// Package queue provides a durable, at-least-once job queue for analysis
// requests, backed by SQLite. Dequeued jobs hold a lease; a worker crash or
// expired lease makes the job deliverable again, so consumers must tolerate
// redelivery.
package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const (
	// DefaultLeaseTimeout is how long a dequeued job stays invisible
	// before it becomes deliverable again.
	DefaultLeaseTimeout = 5 * time.Minute

	// DefaultMaxAttempts is how many deliveries a job gets before it is
	// dead-lettered.
	DefaultMaxAttempts = 5
)

// Job statuses.
const (
	statusReady  = "ready"
	statusLeased = "leased"
	statusDead   = "dead"
)

// Job is one analysis request. It lives only in the queue; successful
// processing removes it.
type Job struct {
	// ID is the job's idempotency token, assigned at enqueue time.
	ID           string   `json:"id"`
	ItemID       int64    `json:"itemId"`
	BlobPointers []string `json:"blobPointers"`
	Description  string   `json:"description,omitempty"`
}

// Delivery is a dequeued job plus the token needed to settle it. The attempt
// number guards against settling a lease that has already expired and been
// handed to another worker.
type Delivery struct {
	Job      Job
	Attempts int
}

// Queue is the job queue contract.
type Queue interface {
	// Enqueue adds a job. The job must carry an ID.
	Enqueue(job Job) error
	// Dequeue leases the oldest ready job, or returns nil, nil when the
	// queue is empty.
	Dequeue() (*Delivery, error)
	// Ack settles a delivery after successful processing, removing the job.
	Ack(d *Delivery) error
	// Nack returns a delivery to the queue for redelivery, or dead-letters
	// it once its attempts are exhausted.
	Nack(d *Delivery) error
	// ReapExpired releases expired leases back to ready (or dead). It
	// returns how many jobs were released.
	ReapExpired() (int64, error)
}

// SQLiteQueue implements Queue on a SQLite database.
type SQLiteQueue struct {
	db           *sql.DB
	leaseTimeout time.Duration
	maxAttempts  int
	mu           sync.Mutex
}

// Option configures a SQLiteQueue.
type Option func(*SQLiteQueue)

// WithLeaseTimeout overrides the lease timeout.
func WithLeaseTimeout(d time.Duration) Option {
	return func(q *SQLiteQueue) { q.leaseTimeout = d }
}

// WithMaxAttempts overrides the delivery limit.
func WithMaxAttempts(n int) Option {
	return func(q *SQLiteQueue) { q.maxAttempts = n }
}

// NewSQLiteQueue opens (and if needed initializes) the queue at dbPath. The
// path may be shared with the item store; WAL mode keeps the two handles
// concurrent.
func NewSQLiteQueue(dbPath string, opts ...Option) (*SQLiteQueue, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	q := &SQLiteQueue{
		db:           db,
		leaseTimeout: DefaultLeaseTimeout,
		maxAttempts:  DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.init(); err != nil {
		db.Close()
		return nil, err
	}

	return q, nil
}

func (q *SQLiteQueue) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS analysis_jobs (
		id TEXT PRIMARY KEY,
		item_id INTEGER NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ready',
		attempts INTEGER NOT NULL DEFAULT 0,
		lease_expires_at DATETIME,
		created_at DATETIME NOT NULL
	);
	`
	if _, err := q.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create analysis_jobs table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}

// Enqueue implements the Queue interface.
func (q *SQLiteQueue) Enqueue(job Job) error {
	if job.ID == "" {
		return fmt.Errorf("job has no id")
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	_, err = q.db.Exec(
		"INSERT INTO analysis_jobs (id, item_id, payload, status, created_at) VALUES (?, ?, ?, ?, ?)",
		job.ID, job.ItemID, string(payload), statusReady, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Info().Str("jobID", job.ID).Int64("itemID", job.ItemID).Int("images", len(job.BlobPointers)).Msg("job enqueued")
	return nil
}

// Dequeue implements the Queue interface.
func (q *SQLiteQueue) Dequeue() (*Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tx, err := q.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin dequeue: %w", err)
	}
	defer tx.Rollback()

	var (
		id       string
		payload  string
		attempts int
	)
	err = tx.QueryRow(
		"SELECT id, payload, attempts FROM analysis_jobs WHERE status = ? ORDER BY created_at, id LIMIT 1",
		statusReady,
	).Scan(&id, &payload, &attempts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select job: %w", err)
	}

	attempts++
	leaseExpiry := time.Now().UTC().Add(q.leaseTimeout)
	_, err = tx.Exec(
		"UPDATE analysis_jobs SET status = ?, attempts = ?, lease_expires_at = ? WHERE id = ?",
		statusLeased, attempts, leaseExpiry, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lease job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dequeue: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}

	return &Delivery{Job: job, Attempts: attempts}, nil
}

// Ack implements the Queue interface. Jobs are not persisted beyond the
// queue, so acking deletes the row.
func (q *SQLiteQueue) Ack(d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	res, err := q.db.Exec(
		"DELETE FROM analysis_jobs WHERE id = ? AND status = ? AND attempts = ?",
		d.Job.ID, statusLeased, d.Attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		// The lease expired and the job was handed elsewhere; the other
		// delivery owns it now.
		log.Warn().Str("jobID", d.Job.ID).Int("attempts", d.Attempts).Msg("ack for stale lease ignored")
	}

	return nil
}

// Nack implements the Queue interface.
func (q *SQLiteQueue) Nack(d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	status := statusReady
	if d.Attempts >= q.maxAttempts {
		status = statusDead
	}

	res, err := q.db.Exec(
		"UPDATE analysis_jobs SET status = ?, lease_expires_at = NULL WHERE id = ? AND status = ? AND attempts = ?",
		status, d.Job.ID, statusLeased, d.Attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to nack job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		log.Warn().Str("jobID", d.Job.ID).Int("attempts", d.Attempts).Msg("nack for stale lease ignored")
		return nil
	}

	if status == statusDead {
		log.Error().Str("jobID", d.Job.ID).Int64("itemID", d.Job.ItemID).Int("attempts", d.Attempts).
			Msg("job dead-lettered after exhausting attempts")
	} else {
		log.Info().Str("jobID", d.Job.ID).Int("attempts", d.Attempts).Msg("job returned for redelivery")
	}

	return nil
}

// ReapExpired implements the Queue interface. Expired leases go back to
// ready, or to dead when the job has exhausted its attempts (a crash on the
// final attempt must not retry forever).
func (q *SQLiteQueue) ReapExpired() (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()

	res, err := q.db.Exec(
		"UPDATE analysis_jobs SET status = ?, lease_expires_at = NULL WHERE status = ? AND lease_expires_at < ? AND attempts >= ?",
		statusDead, statusLeased, now, q.maxAttempts,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to dead-letter expired jobs: %w", err)
	}
	dead, _ := res.RowsAffected()
	if dead > 0 {
		log.Error().Int64("count", dead).Msg("expired jobs dead-lettered")
	}

	res, err = q.db.Exec(
		"UPDATE analysis_jobs SET status = ?, lease_expires_at = NULL WHERE status = ? AND lease_expires_at < ?",
		statusReady, statusLeased, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired leases: %w", err)
	}
	released, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if released > 0 {
		log.Info().Int64("count", released).Msg("expired leases released for redelivery")
	}

	return released + dead, nil
}

// DeadCount returns how many jobs sit in the dead-letter state.
func (q *SQLiteQueue) DeadCount() (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var count int64
	err := q.db.QueryRow("SELECT COUNT(*) FROM analysis_jobs WHERE status = ?", statusDead).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count dead jobs: %w", err)
	}
	return count, nil
}
