package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"mediaforge/internal/config"
	"mediaforge/internal/dispatcher"
	"mediaforge/internal/history"
	"mediaforge/internal/models"
	"mediaforge/internal/queue"
	"mediaforge/internal/storage"
)

type testEnv struct {
	worker  *worker
	history *history.Store
	queue   *queue.Queue
	storage *storage.Storage
	tmpDir  string
}

func newTestEnv(t *testing.T, tools config.ToolPaths) *testEnv {
	t.Helper()
	ctx := context.Background()
	base := t.TempDir()

	cfg := config.Default()
	cfg.Worker.TmpDir = filepath.Join(base, "tmp")
	cfg.Worker.MaxRetries = 1

	store, err := history.Open(ctx, history.Options{
		Driver: history.DriverSQLite,
		DSN:    filepath.Join(base, "history.db"),
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := miniredis.RunT(t)
	q, err := queue.New(ctx, queue.Options{Addr: srv.Addr(), ConnectAttempts: 1, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	t.Cleanup(func() { q.Close() })

	files, err := storage.New(filepath.Join(base, "storage"), bytes.Repeat([]byte{9}, 32))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}

	d := dispatcher.New(dispatcher.Options{Tools: tools, Logger: zerolog.Nop()})
	w := newWorker(&cfg, store, q, files, d, zerolog.Nop())
	w.pollTimeout = 50 * time.Millisecond
	return &testEnv{worker: w, history: store, queue: q, storage: files, tmpDir: cfg.Worker.TmpDir}
}

func (e *testEnv) submit(t *testing.T, name, content string, req models.JobRequest) *models.Job {
	t.Helper()
	ctx := context.Background()
	op, err := dispatcher.Route(req)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	job, err := e.history.CreateJob(ctx, history.CreateJobParams{
		Operation:    op,
		OriginalName: name,
		InputSize:    int64(len(content)),
		Request:      req,
	}, time.Hour)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := e.storage.SaveInput(job.ID, strings.NewReader(content)); err != nil {
		t.Fatalf("SaveInput: %v", err)
	}
	return job
}

func (e *testEnv) job(t *testing.T, id string) *models.Job {
	t.Helper()
	j, err := e.history.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return j
}

func failingTool(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	bin := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\necho 'encoder crashed' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin
}

func TestProcessJobCompletes(t *testing.T) {
	env := newTestEnv(t, config.ToolPaths{})
	job := env.submit(t, "notes.txt", strings.Repeat("meeting notes ", 200), models.JobRequest{Operation: models.OpCompress})

	env.worker.processJob(context.Background(), zerolog.Nop(), job.ID)

	got := env.job(t, job.ID)
	if got.Status != models.StatusCompleted {
		t.Fatalf("status = %s (%s)", got.Status, got.ErrorMessage.String)
	}
	if got.OutputFilename.String != "notes_archive.zip" {
		t.Fatalf("output filename = %q", got.OutputFilename.String)
	}
	if !env.storage.OutputExists(job.ID) {
		t.Fatal("encrypted output must be stored")
	}
	if _, err := os.Stat(filepath.Join(env.tmpDir, job.ID)); !os.IsNotExist(err) {
		t.Fatal("job directory must be removed")
	}

	entries, err := env.history.Recent(context.Background(), 5)
	if err != nil || len(entries) != 1 {
		t.Fatalf("history = %v, %v", entries, err)
	}
	e := entries[0]
	if e.Source != history.SourceWorker || e.InputPath != "notes.txt" || e.Outcome.Output() != "notes_archive.zip" {
		t.Fatalf("history entry = %+v", e)
	}
}

func TestProcessJobRetriesThenFails(t *testing.T) {
	env := newTestEnv(t, config.ToolPaths{FFmpeg: failingTool(t)})
	ctx := context.Background()
	job := env.submit(t, "voice.wav", "RIFF....WAVE", models.JobRequest{Operation: models.OpConvert, TargetFormat: "mp3"})

	env.worker.processJob(ctx, zerolog.Nop(), job.ID)
	if got := env.job(t, job.ID); got.Status != models.StatusPending || got.RetryCount != 1 {
		t.Fatalf("after first failure: status %s, retries %d", got.Status, got.RetryCount)
	}
	if n, _ := env.queue.Length(ctx); n != 1 {
		t.Fatalf("queue length = %d, want requeued job", n)
	}

	env.worker.processJob(ctx, zerolog.Nop(), job.ID)
	got := env.job(t, job.ID)
	if got.Status != models.StatusFailed || got.ErrorKind.String != string(models.KindToolExecutionFailed) {
		t.Fatalf("after second failure: status %s, kind %s", got.Status, got.ErrorKind.String)
	}
	if !strings.Contains(got.ErrorMessage.String, "encoder crashed") {
		t.Fatalf("error message = %q", got.ErrorMessage.String)
	}
}

func TestProcessJobDoesNotRetryUnsupportedInput(t *testing.T) {
	env := newTestEnv(t, config.ToolPaths{})
	job := env.submit(t, "data.xyz", "payload", models.JobRequest{Operation: models.OpSlim})

	env.worker.processJob(context.Background(), zerolog.Nop(), job.ID)

	got := env.job(t, job.ID)
	if got.Status != models.StatusFailed || got.ErrorKind.String != string(models.KindUnsupportedFormat) {
		t.Fatalf("status %s, kind %s", got.Status, got.ErrorKind.String)
	}
	if got.RetryCount != 0 {
		t.Fatalf("retries = %d, want 0", got.RetryCount)
	}
}

func TestProcessJobSkipsClaimedJob(t *testing.T) {
	env := newTestEnv(t, config.ToolPaths{})
	ctx := context.Background()
	job := env.submit(t, "notes.txt", "x", models.JobRequest{Operation: models.OpCompress})
	if ok, err := env.history.ClaimJob(ctx, job.ID); !ok || err != nil {
		t.Fatalf("ClaimJob: %v, %v", ok, err)
	}

	env.worker.processJob(ctx, zerolog.Nop(), job.ID)

	if got := env.job(t, job.ID); got.Status != models.StatusProcessing {
		t.Fatalf("status = %s, want untouched", got.Status)
	}
	if env.storage.OutputExists(job.ID) {
		t.Fatal("a skipped job must not produce output")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t, config.ToolPaths{})
	job := env.submit(t, "notes.txt", "queued", models.JobRequest{Operation: models.OpCompress})
	if err := env.queue.Enqueue(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.worker.run(ctx, 0)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for env.job(t, job.ID).Status != models.StatusCompleted {
		if time.Now().After(deadline) {
			t.Fatal("job was not processed")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestStagedName(t *testing.T) {
	cases := map[string]string{
		"photo.JPG":          "photo.JPG",
		"../../etc/passwd":   "passwd",
		`C:\Users\me\a.docx`: "a.docx",
		"":                   "input.bin",
	}
	for in, want := range cases {
		if got := stagedName(in); got != want {
			t.Errorf("stagedName(%q) = %q, want %q", in, got, want)
		}
	}
}
