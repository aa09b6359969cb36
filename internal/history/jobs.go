package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mediaforge/internal/models"
)

type scanner interface {
	Scan(dest ...any) error
}

const jobColumns = `id, operation, status, original_name, input_size, request,
	output_filename, output_size, error_kind, error_message, retry_count,
	created_at, started_at, completed_at, expires_at`

func scanJob(s scanner) (*models.Job, error) {
	var (
		j                  models.Job
		request            string
		created, expires   int64
		started, completed sql.NullInt64
	)
	err := s.Scan(
		&j.ID, &j.Operation, &j.Status, &j.OriginalName, &j.InputSize, &request,
		&j.OutputFilename, &j.OutputSize, &j.ErrorKind, &j.ErrorMessage, &j.RetryCount,
		&created, &started, &completed, &expires,
	)
	if err != nil {
		return nil, err
	}
	j.Request = json.RawMessage(request)
	j.CreatedAt = fromMillis(created)
	j.ExpiresAt = fromMillis(expires)
	j.StartedAt = nullTime(started)
	j.CompletedAt = nullTime(completed)
	return &j, nil
}

type CreateJobParams struct {
	Operation    string
	OriginalName string
	InputSize    int64
	Request      models.JobRequest
}

func (s *Store) CreateJob(ctx context.Context, p CreateJobParams, retention time.Duration) (*models.Job, error) {
	request, err := json.Marshal(p.Request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	id := uuid.New().String()
	now := s.now()
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO jobs (id, operation, status, original_name, input_size, request, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		id, p.Operation, models.StatusPending, p.OriginalName, p.InputSize, string(request),
		toMillis(now), toMillis(now.Add(retention)),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.GetJob(ctx, id)
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

// ClaimJob moves a pending job to processing. It reports false when another
// worker got there first or the job is gone.
func (s *Store) ClaimJob(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE jobs SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`),
		models.StatusProcessing, toMillis(s.now()), id, models.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job %s: %w", id, err)
	}
	return n == 1, nil
}

func (s *Store) CompleteJob(ctx context.Context, id, outputFilename string, outputSize int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE jobs
		SET status = ?, output_filename = ?, output_size = ?, completed_at = ?
		WHERE id = ?`),
		models.StatusCompleted, outputFilename, outputSize, toMillis(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

func (s *Store) FailJob(ctx context.Context, id string, kind models.ErrorKind, message string) error {
	if len(message) > 1000 {
		message = message[:1000] + "…"
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE jobs
		SET status = ?, error_kind = ?, error_message = ?, completed_at = ?
		WHERE id = ?`),
		models.StatusFailed, string(kind), message, toMillis(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return nil
}

// RetryJob puts a job back to pending and returns its new retry count.
func (s *Store) RetryJob(ctx context.Context, id string) (int, error) {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE jobs SET retry_count = retry_count + 1, status = ?, started_at = NULL
		WHERE id = ?`),
		models.StatusPending, id,
	)
	if err != nil {
		return 0, fmt.Errorf("retry job %s: %w", id, err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT retry_count FROM jobs WHERE id = ?`), id).Scan(&count); err != nil {
		return 0, fmt.Errorf("retry job %s: %w", id, err)
	}
	return count, nil
}

func (s *Store) DeleteJob(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM jobs WHERE id = ?`), id)
	if err != nil {
		return false, fmt.Errorf("delete job %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteExpired removes jobs past their expiry and returns their ids so the
// caller can drop the stored files.
func (s *Store) DeleteExpired(ctx context.Context) ([]string, error) {
	cutoff := toMillis(s.now())
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id FROM jobs WHERE expires_at < ?`), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expired job id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM jobs WHERE expires_at < ?`), cutoff); err != nil {
		return nil, fmt.Errorf("delete expired jobs: %w", err)
	}
	return ids, nil
}

// Stats counts jobs by state. QueueLength and StorageUsedMB are filled in by
// the caller.
func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	var st models.Stats
	since := toMillis(s.now().Add(-24 * time.Hour))
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? AND completed_at >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? AND completed_at >= ? THEN 1 ELSE 0 END), 0)
		FROM jobs`),
		models.StatusProcessing,
		models.StatusCompleted, since,
		models.StatusFailed, since,
	).Scan(&st.ActiveJobs, &st.Completed24h, &st.Failed24h)
	if err != nil {
		return st, fmt.Errorf("job stats: %w", err)
	}
	return st, nil
}
