// Package classify maps file extensions to processing categories.
package classify

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"mediaforge/internal/models"
)

var categoryExts = map[models.Category][]string{
	models.CategoryImage:   {"jpg", "jpeg", "png", "webp", "gif", "tiff", "tif", "bmp", "avif"},
	models.CategoryVideo:   {"mov", "mkv", "avi", "flv", "wmv", "mp4"},
	models.CategoryAudio:   {"wav", "m4a", "flac", "ogg", "wma", "aac", "aiff", "mp3"},
	models.CategoryPDF:     {"pdf"},
	models.CategoryArchive: {"zip"},
}

// categoryOrder fixes the order in which accepted extensions are reported.
var categoryOrder = []models.Category{
	models.CategoryImage,
	models.CategoryVideo,
	models.CategoryAudio,
	models.CategoryPDF,
	models.CategoryArchive,
}

var byExt = func() map[string]models.Category {
	m := make(map[string]models.Category)
	for cat, exts := range categoryExts {
		for _, ext := range exts {
			if prev, dup := m[ext]; dup {
				panic(fmt.Sprintf("classify: extension %q listed for both %s and %s", ext, prev, cat))
			}
			m[ext] = cat
		}
	}
	return m
}()

// UnsupportedFormatError reports an extension outside every allow-list.
type UnsupportedFormatError struct {
	Ext      string
	Accepted []string
}

func (e *UnsupportedFormatError) Error() string {
	ext := e.Ext
	if ext == "" {
		ext = "(none)"
	} else {
		ext = "." + ext
	}
	return fmt.Sprintf("unsupported input format %s (supported: %s)", ext, strings.Join(e.Accepted, ", "))
}

func (e *UnsupportedFormatError) ErrorKind() models.ErrorKind {
	return models.KindUnsupportedFormat
}

// Ext returns the lower-cased extension of path without the leading dot.
func Ext(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// Classify returns the category for path's extension.
func Classify(path string) (models.Category, error) {
	ext := Ext(path)
	if cat, ok := byExt[ext]; ok && ext != "" {
		return cat, nil
	}
	return "", &UnsupportedFormatError{Ext: ext, Accepted: AllExtensions()}
}

// Extensions returns the allow-list of one category.
func Extensions(cat models.Category) []string {
	return append([]string(nil), categoryExts[cat]...)
}

// AllExtensions lists every accepted extension, grouped by category.
func AllExtensions() []string {
	var out []string
	for _, cat := range categoryOrder {
		out = append(out, categoryExts[cat]...)
	}
	return out
}

// Require checks that path's extension is in allowed and returns it.
func Require(path string, allowed []string) (string, error) {
	ext := Ext(path)
	for _, a := range allowed {
		if ext != "" && ext == a {
			return ext, nil
		}
	}
	accepted := append([]string(nil), allowed...)
	sort.Strings(accepted)
	return "", &UnsupportedFormatError{Ext: ext, Accepted: accepted}
}
