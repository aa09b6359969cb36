package history

import (
	"context"
	"database/sql"
	"fmt"

	"mediaforge/internal/models"
)

// Sources recorded with each entry.
const (
	SourceCLI    = "cli"
	SourceWorker = "worker"
)

// Record appends one finished job and returns its row id.
func (s *Store) Record(ctx context.Context, e models.HistoryEntry) (int64, error) {
	finished := e.FinishedAt
	if finished.IsZero() {
		finished = s.now()
	}
	o := e.Outcome

	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO history (
			job_id, source, operation, input_path, success, output_path,
			input_size, output_size, ratio_percent, error_kind, error_detail, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		e.JobID, e.Source, e.Operation, e.InputPath, o.Success, nullableString(o.Output()),
		nullInt(o.InputSizeBytes), nullInt(o.OutputSizeBytes), nullFloat(o.CompressionRatioPercent),
		nullableString(string(o.Kind())), nullableString(o.Detail()),
		toMillis(finished),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record history: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, job_id, source, operation, input_path, success, output_path,
			input_size, output_size, ratio_percent, error_kind, error_detail, finished_at
		FROM history
		ORDER BY finished_at DESC, id DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var (
			e                  models.HistoryEntry
			outputPath         sql.NullString
			inSize, outSize    sql.NullInt64
			ratio              sql.NullFloat64
			errKind, errDetail sql.NullString
			finished           int64
		)
		if err := rows.Scan(
			&e.ID, &e.JobID, &e.Source, &e.Operation, &e.InputPath, &e.Outcome.Success, &outputPath,
			&inSize, &outSize, &ratio, &errKind, &errDetail, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if outputPath.Valid {
			e.Outcome.OutputPath = &outputPath.String
		}
		if inSize.Valid {
			e.Outcome.InputSizeBytes = &inSize.Int64
		}
		if outSize.Valid {
			e.Outcome.OutputSizeBytes = &outSize.Int64
		}
		if ratio.Valid {
			e.Outcome.CompressionRatioPercent = &ratio.Float64
		}
		if errKind.Valid {
			kind := models.ErrorKind(errKind.String)
			e.Outcome.ErrorKind = &kind
		}
		if errDetail.Valid {
			e.Outcome.ErrorDetail = &errDetail.String
		}
		e.FinishedAt = fromMillis(finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
