package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Default executable names, looked up on PATH when nothing else matches.
const (
	FFmpegName      = "ffmpeg"
	FFprobeName     = "ffprobe"
	GhostscriptName = "gs"
	UpscalerName    = "realesrgan-ncnn-vulkan"
	SofficeName     = "soffice"
)

// ToolPaths is resolved once at startup and never modified afterwards.
type ToolPaths struct {
	FFmpeg      string
	FFprobe     string
	Ghostscript string
	Upscaler    string
	Soffice     string
}

// Layout is where bundled binaries live relative to the running program.
type Layout struct {
	ExeDir   string
	WorkDir  string
	Packaged bool
	GOOS     string
}

// DetectLayout inspects the running executable and working directory.
func (c *Config) DetectLayout() Layout {
	layout := Layout{GOOS: runtime.GOOS}
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		layout.ExeDir = filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		layout.WorkDir = wd
	}

	if c.Tools.Packaged != nil {
		layout.Packaged = *c.Tools.Packaged
	} else if layout.ExeDir != "" {
		info, err := os.Stat(filepath.Join(layout.ExeDir, "resources"))
		layout.Packaged = err == nil && info.IsDir()
	}
	return layout
}

// ResolveToolPaths applies explicit config, then the bundled location, then
// the bare PATH name.
func (c *Config) ResolveToolPaths() ToolPaths {
	return c.Tools.Resolve(c.DetectLayout())
}

func (t Tools) Resolve(layout Layout) ToolPaths {
	dirs := layout.bundleDirs()
	return ToolPaths{
		FFmpeg:      resolveTool(t.FFmpeg, FFmpegName, dirs, layout.GOOS),
		FFprobe:     resolveTool(t.FFprobe, FFprobeName, dirs, layout.GOOS),
		Ghostscript: resolveTool(t.Ghostscript, GhostscriptName, dirs, layout.GOOS),
		Upscaler:    resolveTool(t.Upscaler, UpscalerName, dirs, layout.GOOS),
		Soffice:     resolveTool(t.Soffice, SofficeName, dirs, layout.GOOS),
	}
}

func (l Layout) bundleDirs() []string {
	if l.Packaged {
		if l.ExeDir == "" {
			return nil
		}
		return []string{
			filepath.Join(l.ExeDir, "resources", "bin"),
			filepath.Join(l.ExeDir, "resources", "tools"),
		}
	}
	if l.WorkDir == "" {
		return nil
	}
	return []string{
		filepath.Join(l.WorkDir, "bin"),
		filepath.Join(l.WorkDir, "tools"),
	}
}

func resolveTool(explicit, name string, dirs []string, goos string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return expandHome(explicit)
	}
	file := executableName(name, goos)
	for _, dir := range dirs {
		candidate := filepath.Join(dir, file)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return file
}

func executableName(base, goos string) string {
	if goos == "windows" && !strings.HasSuffix(strings.ToLower(base), ".exe") {
		return base + ".exe"
	}
	return base
}
