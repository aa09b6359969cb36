package models

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var MimeTypes = map[string]string{
	// Images
	"jpeg": "image/jpeg", "jpg": "image/jpeg",
	"png": "image/png", "webp": "image/webp",
	"tiff": "image/tiff", "tif": "image/tiff",
	"gif": "image/gif", "avif": "image/avif",
	"bmp": "image/bmp",
	// Audio
	"mp3": "audio/mpeg", "wav": "audio/wav",
	"flac": "audio/flac", "ogg": "audio/ogg",
	"aac": "audio/aac", "m4a": "audio/mp4",
	"aiff": "audio/aiff", "wma": "audio/x-ms-wma",
	// Video
	"mp4": "video/mp4", "mkv": "video/x-matroska",
	"avi": "video/x-msvideo", "mov": "video/quicktime",
	"flv": "video/x-flv", "wmv": "video/x-ms-wmv",
	// Documents
	"pdf": "application/pdf",
	"zip": "application/zip",
}

func MimeForExtension(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if m, ok := MimeTypes[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

// Job is a request queued through the HTTP service. The CLI never creates one.
type Job struct {
	ID             string
	Operation      string
	Status         string
	OriginalName   string
	InputSize      int64
	Request        json.RawMessage
	OutputFilename sql.NullString
	OutputSize     sql.NullInt64
	ErrorKind      sql.NullString
	ErrorMessage   sql.NullString
	RetryCount     int
	CreatedAt      time.Time
	StartedAt      sql.NullTime
	CompletedAt    sql.NullTime
	ExpiresAt      time.Time
}

func (j *Job) InputExt() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(j.OriginalName)), ".")
}

// ParseRequest decodes the stored request; paths inside are rewritten by the
// worker before dispatch.
func (j *Job) ParseRequest() (JobRequest, error) {
	var r JobRequest
	if len(j.Request) == 0 || string(j.Request) == "null" {
		return r, nil
	}
	err := json.Unmarshal(j.Request, &r)
	return r, err
}

func (j *Job) ToResponse() JobResponse {
	resp := JobResponse{
		ID:           j.ID,
		Operation:    j.Operation,
		Status:       j.Status,
		InputSize:    j.InputSize,
		OriginalName: j.OriginalName,
		CreatedAt:    j.CreatedAt,
	}

	if j.OutputSize.Valid {
		v := j.OutputSize.Int64
		resp.OutputSize = &v
		resp.CompressionRatioPercent = CompressionRatio(&resp.InputSize, &v)
	}
	if j.OutputFilename.Valid {
		v := j.OutputFilename.String
		resp.OutputFilename = &v
	}
	if j.ErrorKind.Valid {
		v := ErrorKind(j.ErrorKind.String)
		resp.ErrorKind = &v
	}
	if j.ErrorMessage.Valid {
		v := j.ErrorMessage.String
		resp.ErrorMessage = &v
	}
	if j.StartedAt.Valid {
		v := j.StartedAt.Time
		resp.StartedAt = &v
	}
	if j.CompletedAt.Valid {
		v := j.CompletedAt.Time
		resp.CompletedAt = &v
	}

	return resp
}

type JobResponse struct {
	ID                      string     `json:"id"`
	Operation               string     `json:"operation"`
	Status                  string     `json:"status"`
	InputSize               int64      `json:"input_size"`
	OutputSize              *int64     `json:"output_size,omitempty"`
	CompressionRatioPercent *float64   `json:"compression_ratio_percent,omitempty"`
	OriginalName            string     `json:"original_name"`
	OutputFilename          *string    `json:"output_filename,omitempty"`
	ErrorKind               *ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage            *string    `json:"error_message,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	StartedAt               *time.Time `json:"started_at,omitempty"`
	CompletedAt             *time.Time `json:"completed_at,omitempty"`
}

type Stats struct {
	QueueLength   int   `json:"queue_length"`
	ActiveJobs    int   `json:"active_jobs"`
	Completed24h  int   `json:"completed_24h"`
	Failed24h     int   `json:"failed_24h"`
	StorageUsedMB int64 `json:"storage_used_mb"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// HistoryEntry is one finished job as recorded by the CLI or the worker.
type HistoryEntry struct {
	ID         int64      `json:"id"`
	JobID      string     `json:"jobId"`
	Source     string     `json:"source"`
	Operation  string     `json:"operation"`
	InputPath  string     `json:"input"`
	Outcome    JobOutcome `json:"outcome"`
	FinishedAt time.Time  `json:"finishedAt"`
}
