package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"mediaforge/internal/config"
)

func TestToolPathsCheck(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	dir := t.TempDir()
	present := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	statuses := config.ToolPaths{
		FFmpeg:      present,
		FFprobe:     "clearly-not-present-ffprobe",
		Ghostscript: filepath.Join(dir, "gs"),
	}.Check()

	if len(statuses) != 5 {
		t.Fatalf("expected 5 statuses, got %d", len(statuses))
	}
	byName := map[string]config.ToolStatus{}
	for _, s := range statuses {
		byName[s.Name] = s
	}
	if !byName["ffmpeg"].Available || byName["ffmpeg"].Detail != present {
		t.Fatalf("ffmpeg should be available: %+v", byName["ffmpeg"])
	}
	if byName["ffprobe"].Available || !byName["ffprobe"].Optional {
		t.Fatalf("ffprobe should be missing and optional: %+v", byName["ffprobe"])
	}
	if byName["ghostscript"].Available {
		t.Fatal("ghostscript path does not exist")
	}
	if byName["soffice"].Detail != "command not configured" {
		t.Fatalf("empty command must be reported: %+v", byName["soffice"])
	}
}
