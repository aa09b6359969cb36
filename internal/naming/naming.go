// Package naming derives output and temporary paths. Outputs are always
// <base>_<suffix>.<ext> so an input is never overwritten.
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SuffixConverted = "converted"
	SuffixMuted     = "muted"
	SuffixSlim      = "slim"
	SuffixHD        = "hd"
	SuffixArchive   = "archive"

	// GenericArchiveBase names archives built from several inputs.
	GenericArchiveBase = "archive"
)

// Base returns the file name of path without its extension.
func Base(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Dir returns outputDir when set, otherwise the directory holding inputPath.
func Dir(inputPath, outputDir string) string {
	if strings.TrimSpace(outputDir) != "" {
		return outputDir
	}
	return filepath.Dir(inputPath)
}

// OutputPath builds <dir>/<base>_<suffix>.<ext>.
func OutputPath(inputPath, outputDir, suffix, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	name := fmt.Sprintf("%s_%s.%s", Base(inputPath), suffix, ext)
	return filepath.Join(Dir(inputPath, outputDir), name)
}

// ArchivePath names the archive for inputs: a single input gives
// <base>_archive.zip, several give archive.zip.
func ArchivePath(inputs []string, outputDir string) string {
	if len(inputs) == 0 {
		return ""
	}
	first := filepath.Clean(inputs[0])
	dir := Dir(first, outputDir)

	var out string
	if len(inputs) == 1 {
		out = filepath.Join(dir, fmt.Sprintf("%s_%s.zip", archiveBase(first), SuffixArchive))
	} else {
		out = filepath.Join(dir, GenericArchiveBase+".zip")
	}

	for _, in := range inputs {
		if sameFile(in, out) {
			return filepath.Join(dir, fmt.Sprintf("%s_%d.zip", GenericArchiveBase, time.Now().UnixNano()))
		}
	}
	return out
}

// archiveBase keeps a directory's full name; only files lose their extension.
func archiveBase(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Base(path)
	}
	return Base(path)
}

// ExtractDir is outputDir when given, else a directory named after the archive
// next to it.
func ExtractDir(archivePath, outputDir string) string {
	if strings.TrimSpace(outputDir) != "" {
		return outputDir
	}
	return filepath.Join(filepath.Dir(archivePath), Base(archivePath))
}

// TempPath returns a unique hidden path in dir. Concurrent jobs writing to the
// same directory never collide.
func TempPath(dir, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	id := uuid.New().String()[:8]
	return filepath.Join(dir, fmt.Sprintf(".mediaforge-%d-%s.%s", time.Now().UnixNano(), id, ext))
}

// EnsureDir creates dir if missing.
func EnsureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
