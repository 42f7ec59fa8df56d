package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateJob inserts a job and its consent record in one transaction, so a
// job can never exist without the consent that authorized it.
func (s *Store) CreateJob(job Job, consent ConsentLog) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	if consent.CreatedAt.IsZero() {
		consent.CreatedAt = job.CreatedAt
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning create transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO jobs (id, target_url, scope, test_profile, owner_id, status, preflight_robots, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`,
		job.ID, job.TargetURL, job.Scope, job.TestProfile, job.OwnerID, job.Status,
		job.CreatedAt.Format(time.RFC3339), job.UpdatedAt.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO consent_logs (id, job_id, owner_id, action, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		consent.ID, consent.JobID, consent.OwnerID, consent.Action, consent.Note,
		consent.CreatedAt.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting consent log: %w", err)
	}

	return tx.Commit()
}

// GetJob returns one job by id.
func (s *Store) GetJob(id string) (Job, error) {
	var j Job
	var allowed sql.NullBool
	var createdAt, updatedAt string
	err := s.db.QueryRow(`
		SELECT id, target_url, scope, test_profile, owner_id, status, preflight_allowed, preflight_robots, created_at, updated_at
		FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.TargetURL, &j.Scope, &j.TestProfile, &j.OwnerID, &j.Status, &allowed, &j.PreflightRobots, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, err
	}
	if allowed.Valid {
		v := allowed.Bool
		j.PreflightAllowed = &v
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Job{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Job{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return j, nil
}

// TransitionJob moves a job from one status to another. The update is
// guarded on the expected current status: if the job has moved on, the call
// fails with ErrStaleStatus instead of clobbering a concurrent transition.
func (s *Store) TransitionJob(id, from, to string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, now, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Distinguish a missing job from a lost race.
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return fmt.Errorf("transitioning job %s from %s to %s: %w", id, from, to, ErrStaleStatus)
}

// SetPreflight records the preflight verdict and robots excerpt for a job.
func (s *Store) SetPreflight(id string, allowed bool, robots string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET preflight_allowed = ?, preflight_robots = ?, updated_at = ? WHERE id = ?`,
		allowed, robots, now, id)
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

// ConsentLogs returns a job's consent records, oldest first.
func (s *Store) ConsentLogs(jobID string) ([]ConsentLog, error) {
	rows, err := s.db.Query(`
		SELECT id, job_id, owner_id, action, note, created_at
		FROM consent_logs WHERE job_id = ? ORDER BY created_at ASC`, jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ConsentLog
	for rows.Next() {
		var c ConsentLog
		var createdAt string
		if err := rows.Scan(&c.ID, &c.JobID, &c.OwnerID, &c.Action, &c.Note, &createdAt); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// RecentJobs returns the newest jobs first.
func (s *Store) RecentJobs(limit int) ([]Job, error) {
	rows, err := s.db.Query(`
		SELECT id, target_url, scope, test_profile, owner_id, status, preflight_allowed, preflight_robots, created_at, updated_at
		FROM jobs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Job
	for rows.Next() {
		var j Job
		var allowed sql.NullBool
		var createdAt, updatedAt string
		if err := rows.Scan(&j.ID, &j.TargetURL, &j.Scope, &j.TestProfile, &j.OwnerID, &j.Status, &allowed, &j.PreflightRobots, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if allowed.Valid {
			v := allowed.Bool
			j.PreflightAllowed = &v
		}
		if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if j.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, j)
	}
	return results, rows.Err()
}
