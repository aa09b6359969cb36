package config

import (
	"fmt"
	"os/exec"
	"strings"
)

// ToolStatus reports whether one external tool can be started.
type ToolStatus struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Check looks up every tool. Paths are checked as files, bare names on PATH.
func (t ToolPaths) Check() []ToolStatus {
	reqs := []ToolStatus{
		{Name: "ffmpeg", Command: t.FFmpeg, Description: "video and audio conversion, slimming"},
		{Name: "ffprobe", Command: t.FFprobe, Description: "bitrate pre-check before slimming", Optional: true},
		{Name: "ghostscript", Command: t.Ghostscript, Description: "PDF slimming"},
		{Name: "realesrgan", Command: t.Upscaler, Description: "image upscaling", Optional: true},
		{Name: "soffice", Command: t.Soffice, Description: "office, HTML and text to PDF", Optional: true},
	}

	for i := range reqs {
		cmd := strings.TrimSpace(reqs[i].Command)
		if cmd == "" {
			reqs[i].Detail = "command not configured"
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			reqs[i].Detail = fmt.Sprintf("binary %q not found", cmd)
			continue
		}
		reqs[i].Available = true
		reqs[i].Detail = resolved
	}
	return reqs
}
