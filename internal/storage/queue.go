package storage

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"
)

// EnqueueQueueJob inserts a work item unless an in-flight entry with the
// same dedupe key already exists, in which case the existing entry is
// returned. The returned QueueJob is always the canonical row for the
// dedupe key.
func (s *Store) EnqueueQueueJob(job QueueJob) (QueueJob, error) {
	now := time.Now().UTC()
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC()
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = 3
	}

	tx, err := s.db.Begin()
	if err != nil {
		return QueueJob{}, fmt.Errorf("beginning enqueue transaction: %w", err)
	}
	defer tx.Rollback()

	// INSERT OR IGNORE collides with the partial unique index on
	// dedupe_key when an in-flight entry exists; the follow-up SELECT
	// returns whichever row is canonical.
	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO queue_jobs (id, type, payload_json, dedupe_key, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, job.DedupeKey, job.MaxAttempts,
		runAfter.Format(time.RFC3339), now.Format(time.RFC3339), now.Format(time.RFC3339),
	); err != nil {
		return QueueJob{}, fmt.Errorf("inserting queue job: %w", err)
	}

	canonical, err := scanQueueJob(tx.QueryRow(`
		SELECT id, type, payload_json, dedupe_key, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM queue_jobs
		WHERE dedupe_key = ? AND status IN ('pending', 'running')`, job.DedupeKey))
	if err != nil {
		return QueueJob{}, fmt.Errorf("selecting canonical queue job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return QueueJob{}, fmt.Errorf("committing enqueue: %w", err)
	}
	return canonical, nil
}

// ClaimQueueJob atomically claims the oldest runnable work item of the given
// types. Returns nil when nothing is runnable.
func (s *Store) ClaimQueueJob(types []string) (*QueueJob, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, dedupe_key, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM queue_jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]interface{}, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	j, err := scanQueueJob(tx.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next queue job: %w", err)
	}

	res, err := tx.Exec(`UPDATE queue_jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating queue job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated queue rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = QueueRunning
	return &j, nil
}

// CompleteQueueJob marks a claimed work item done.
func (s *Store) CompleteQueueJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE queue_jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailQueueJob records a failed attempt. The item is retried with
// exponential backoff until max_attempts, then parked as failed.
func (s *Store) FailQueueJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM queue_jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE queue_jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE queue_jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}

	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetQueueJob returns one work item by id.
func (s *Store) GetQueueJob(id string) (QueueJob, error) {
	j, err := scanQueueJob(s.db.QueryRow(`
		SELECT id, type, payload_json, dedupe_key, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM queue_jobs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return QueueJob{}, ErrNotFound
	}
	return j, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueJob(row rowScanner) (QueueJob, error) {
	var j QueueJob
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err := row.Scan(&j.ID, &j.Type, &j.PayloadJSON, &j.DedupeKey, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError)
	if err != nil {
		return QueueJob{}, err
	}
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return QueueJob{}, fmt.Errorf("parsing run_after for queue job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return QueueJob{}, fmt.Errorf("parsing created_at for queue job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return QueueJob{}, fmt.Errorf("parsing updated_at for queue job %s: %w", j.ID, err)
	}
	return j, nil
}
