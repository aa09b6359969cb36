package processor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
)

func TestRunCommandMissingBinary(t *testing.T) {
	for _, name := range []string{
		"clearly-not-present-binary",
		filepath.Join(t.TempDir(), "absent"),
	} {
		_, err := runCommand(context.Background(), name, "-version")
		if !joberror.Is(err, models.KindToolMissing) {
			t.Fatalf("expected ToolMissing for %q, got %v", name, err)
		}
	}
}

func TestRunCommandFailureCarriesDiagnostics(t *testing.T) {
	bin, _ := writeTool(t, "ffmpeg", "echo 'Invalid data found when processing input' >&2\nexit 3")

	_, err := runCommand(context.Background(), bin, "-i", "in file.mov", "out.mp4")
	if !joberror.Is(err, models.KindToolExecutionFailed) {
		t.Fatalf("expected ToolExecutionFailed, got %v", err)
	}
	var jerr *joberror.Error
	if !errors.As(err, &jerr) {
		t.Fatalf("expected *joberror.Error, got %T", err)
	}
	if !strings.Contains(jerr.Command, `"in file.mov"`) {
		t.Fatalf("expected quoted command line, got %q", jerr.Command)
	}
	msg := err.Error()
	if !strings.Contains(msg, "exited with code 3") || !strings.Contains(msg, "Invalid data found") {
		t.Fatalf("expected exit code and stderr in %q", msg)
	}
}

func TestRunCommandTruncatesLongStderr(t *testing.T) {
	bin, _ := writeTool(t, "gs", "head -c 2000 /dev/zero | tr '\\0' 'x' >&2\nexit 1")
	_, err := runCommand(context.Background(), bin)
	if err == nil {
		t.Fatal("expected failure")
	}
	if n := strings.Count(err.Error(), "x"); n > stderrTail+10 {
		t.Fatalf("stderr not truncated: %d bytes kept", n)
	}
}

func TestRunCommandKilledOnCancel(t *testing.T) {
	bin, _ := writeTool(t, "slow", "exec sleep 30")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runCommand(ctx, bin)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("subprocess was not killed on cancellation")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout detail, got %v", err)
	}
}

func TestRunCommandReturnsStdout(t *testing.T) {
	bin, _ := writeTool(t, "echoer", "echo hello")
	out, err := runCommand(context.Background(), bin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Fatalf("unexpected stdout %q", out)
	}
}
