package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: dsn, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "history.db")
	for i := 0; i < 2; i++ {
		s, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: dsn, Logger: zerolog.Nop()})
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		s.Close()
	}
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: dsn, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	_, err = Open(context.Background(), Options{Driver: DriverSQLite, DSN: dsn, Logger: zerolog.Nop()})
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Options{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	got := pg.rebind("UPDATE jobs SET a = ?, b = ? WHERE id = ?")
	if got != "UPDATE jobs SET a = $1, b = $2 WHERE id = $3" {
		t.Fatalf("unexpected rebind: %s", got)
	}
	lite := &Store{driver: DriverSQLite}
	if lite.rebind("a = ?") != "a = ?" {
		t.Fatal("sqlite queries must be left alone")
	}
}

func TestJobLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	req := models.JobRequest{Operation: models.OpSlim, InputPath: "clip.mp4", Tier: models.TierExtreme}
	job, err := s.CreateJob(ctx, CreateJobParams{
		Operation:    string(models.OpSlim),
		OriginalName: "clip.mp4",
		InputSize:    1000,
		Request:      req,
	}, time.Hour)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Status != models.StatusPending || job.ID == "" {
		t.Fatalf("unexpected job %+v", job)
	}
	parsed, err := job.ParseRequest()
	if err != nil || parsed.Tier != models.TierExtreme {
		t.Fatalf("request not stored: %+v, %v", parsed, err)
	}

	claimed, err := s.ClaimJob(ctx, job.ID)
	if err != nil || !claimed {
		t.Fatalf("first claim: %v, %v", claimed, err)
	}
	claimed, err = s.ClaimJob(ctx, job.ID)
	if err != nil || claimed {
		t.Fatalf("second claim must lose: %v, %v", claimed, err)
	}

	count, err := s.RetryJob(ctx, job.ID)
	if err != nil || count != 1 {
		t.Fatalf("RetryJob: %d, %v", count, err)
	}
	if claimed, _ := s.ClaimJob(ctx, job.ID); !claimed {
		t.Fatal("retried job must be claimable again")
	}

	if err := s.CompleteJob(ctx, job.ID, "clip_slim.mp4", 400); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	resp := got.ToResponse()
	if resp.Status != models.StatusCompleted || *resp.OutputFilename != "clip_slim.mp4" || *resp.CompressionRatioPercent != 60 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.StartedAt == nil || resp.CompletedAt == nil {
		t.Fatal("timestamps must be set")
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Completed24h != 1 || stats.ActiveJobs != 0 || stats.Failed24h != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	deleted, err := s.DeleteJob(ctx, job.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteJob: %v, %v", deleted, err)
	}
	if _, err := s.GetJob(ctx, job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFailJobKeepsKind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job, err := s.CreateJob(ctx, CreateJobParams{Operation: "upscale", OriginalName: "a.png", InputSize: 1}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.FailJob(ctx, job.ID, models.KindToolMissing, "enhancement tool not found"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetJob(ctx, job.ID)
	resp := got.ToResponse()
	if resp.ErrorKind == nil || *resp.ErrorKind != models.KindToolMissing {
		t.Fatalf("unexpected error kind %+v", resp)
	}
}

func TestDeleteExpired(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return base }

	old, _ := s.CreateJob(ctx, CreateJobParams{Operation: "slim", OriginalName: "a.pdf"}, time.Minute)
	fresh, _ := s.CreateJob(ctx, CreateJobParams{Operation: "slim", OriginalName: "b.pdf"}, 48*time.Hour)

	s.now = func() time.Time { return base.Add(time.Hour) }
	ids, err := s.DeleteExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != old.ID {
		t.Fatalf("expected only %s to expire, got %v", old.ID, ids)
	}
	if _, err := s.GetJob(ctx, fresh.ID); err != nil {
		t.Fatalf("fresh job must survive: %v", err)
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	in, out := int64(100), int64(25)
	ratio := 75.0
	path := "/tmp/photo_slim.jpg"
	ok := models.JobOutcome{Success: true, OutputPath: &path, InputSizeBytes: &in, OutputSizeBytes: &out, CompressionRatioPercent: &ratio}
	failed := models.Failed(models.KindNoImprovement, "already optimal")

	if _, err := s.Record(ctx, models.HistoryEntry{JobID: "a", Source: SourceCLI, Operation: "slim", InputPath: "/tmp/photo.jpg", Outcome: ok, FinishedAt: base}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(ctx, models.HistoryEntry{JobID: "b", Source: SourceWorker, Operation: "slim", InputPath: "/tmp/clip.mp4", Outcome: failed, FinishedAt: base.Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}

	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].JobID != "b" {
		t.Fatalf("expected newest first, got %+v", entries)
	}
	if entries[0].Outcome.Success || entries[0].Outcome.Kind() != models.KindNoImprovement || entries[0].Outcome.Detail() != "already optimal" {
		t.Fatalf("failed outcome not restored: %+v", entries[0].Outcome)
	}
	got := entries[1].Outcome
	if !got.Success || got.Output() != path || *got.CompressionRatioPercent != 75 || *got.OutputSizeBytes != 25 {
		t.Fatalf("success outcome not restored: %+v", got)
	}
	if !entries[1].FinishedAt.Equal(base) {
		t.Fatalf("finished_at = %v, want %v", entries[1].FinishedAt, base)
	}

	limited, _ := s.Recent(ctx, 1)
	if len(limited) != 1 {
		t.Fatalf("limit not applied: %d", len(limited))
	}
}
