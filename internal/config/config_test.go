package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"mediaforge/internal/config"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	t.Setenv("MEDIAFORGE_CONFIG", "")
	return dir
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Slim.BitratePrecheck {
		t.Fatal("expected bitrate precheck enabled by default")
	}
	if cfg.History.Driver != "sqlite" {
		t.Fatalf("unexpected history driver: %q", cfg.History.Driver)
	}
	want := filepath.Join(home, ".local", "share", "mediaforge", "history.db")
	if cfg.History.DSN != want {
		t.Fatalf("unexpected history dsn: got %q want %q", cfg.History.DSN, want)
	}
	if cfg.TimeoutFor("convert-video") != 30*time.Minute {
		t.Fatalf("unexpected video timeout: %s", cfg.TimeoutFor("convert-video"))
	}
	if cfg.TimeoutFor("unknown") != 5*time.Minute {
		t.Fatalf("unexpected fallback timeout: %s", cfg.TimeoutFor("unknown"))
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := isolate(t)

	path := filepath.Join(dir, "custom.toml")
	contents := `
[tools]
ffmpeg = "/opt/ffmpeg/bin/ffmpeg"

[slim]
bitrate_precheck = false

[log]
level = "DEBUG"
format = "json"

[timeouts]
slim = 60
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MEDIAFORGE_WORKER_CONCURRENCY", "9")
	t.Setenv("MEDIAFORGE_TIMEOUT_CONVERT_IMAGE", "7")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Tools.FFmpeg != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("unexpected ffmpeg: %q", cfg.Tools.FFmpeg)
	}
	if cfg.Slim.BitratePrecheck {
		t.Fatal("expected precheck disabled from file")
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected log config: %+v", cfg.Log)
	}
	if cfg.Worker.Concurrency != 9 {
		t.Fatalf("expected env concurrency 9, got %d", cfg.Worker.Concurrency)
	}
	if cfg.TimeoutFor("slim") != time.Minute {
		t.Fatalf("expected slim timeout from file, got %s", cfg.TimeoutFor("slim"))
	}
	if cfg.TimeoutFor("convert-image") != 7*time.Second {
		t.Fatalf("expected convert-image timeout from env, got %s", cfg.TimeoutFor("convert-image"))
	}
	if cfg.TimeoutFor("upscale") != 15*time.Minute {
		t.Fatalf("expected default upscale timeout to survive, got %s", cfg.TimeoutFor("upscale"))
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	isolate(t)
	t.Setenv("MEDIAFORGE_HISTORY_DRIVER", "mysql")
	if _, err := config.Load(""); err == nil || !strings.Contains(err.Error(), "history.driver") {
		t.Fatalf("expected history driver error, got %v", err)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	if _, err := config.Load("/does/not/exist.toml"); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "sample", "mediaforge.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}

func TestMasterKeyBytes(t *testing.T) {
	cfg := config.Default()
	if _, err := cfg.MasterKeyBytes(); err == nil {
		t.Fatal("expected error for missing key")
	}
	cfg.API.MasterKey = "zz"
	if _, err := cfg.MasterKeyBytes(); err == nil {
		t.Fatal("expected error for invalid hex")
	}
	cfg.API.MasterKey = strings.Repeat("ab", 32)
	key, err := cfg.MasterKeyBytes()
	if err != nil || len(key) != 32 {
		t.Fatalf("expected 32-byte key, got %d (%v)", len(key), err)
	}
}

func writeStub(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
}

func TestResolveToolPathsPriority(t *testing.T) {
	root := t.TempDir()
	exeDir := filepath.Join(root, "app")
	workDir := filepath.Join(root, "src")

	writeStub(t, filepath.Join(exeDir, "resources", "bin", "gs"))
	writeStub(t, filepath.Join(exeDir, "resources", "tools", "realesrgan-ncnn-vulkan"))
	writeStub(t, filepath.Join(workDir, "bin", "ffmpeg"))
	writeStub(t, filepath.Join(workDir, "tools", "realesrgan-ncnn-vulkan"))

	tools := config.Tools{FFprobe: "/explicit/ffprobe"}

	packaged := tools.Resolve(config.Layout{ExeDir: exeDir, WorkDir: workDir, Packaged: true, GOOS: "linux"})
	if packaged.FFprobe != "/explicit/ffprobe" {
		t.Fatalf("explicit path must win, got %q", packaged.FFprobe)
	}
	if packaged.Ghostscript != filepath.Join(exeDir, "resources", "bin", "gs") {
		t.Fatalf("unexpected packaged gs: %q", packaged.Ghostscript)
	}
	if packaged.Upscaler != filepath.Join(exeDir, "resources", "tools", "realesrgan-ncnn-vulkan") {
		t.Fatalf("unexpected packaged upscaler: %q", packaged.Upscaler)
	}
	if packaged.FFmpeg != "ffmpeg" {
		t.Fatalf("packaged layout must ignore the working directory, got %q", packaged.FFmpeg)
	}

	dev := tools.Resolve(config.Layout{ExeDir: exeDir, WorkDir: workDir, Packaged: false, GOOS: "linux"})
	if dev.FFmpeg != filepath.Join(workDir, "bin", "ffmpeg") {
		t.Fatalf("unexpected dev ffmpeg: %q", dev.FFmpeg)
	}
	if dev.Upscaler != filepath.Join(workDir, "tools", "realesrgan-ncnn-vulkan") {
		t.Fatalf("unexpected dev upscaler: %q", dev.Upscaler)
	}
	if dev.Soffice != "soffice" {
		t.Fatalf("expected PATH fallback for soffice, got %q", dev.Soffice)
	}

	win := config.Tools{}.Resolve(config.Layout{GOOS: "windows"})
	if win.FFmpeg != "ffmpeg.exe" || win.Ghostscript != "gs.exe" {
		t.Fatalf("expected .exe names on windows, got %+v", win)
	}
}
