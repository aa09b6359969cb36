package classify

import (
	"mediaforge/internal/models"
)

// Audio conversion also pulls the audio track out of common video containers.
var audioSourceExts = append(Extensions(models.CategoryAudio), "mp4", "mov", "mkv")

var upscaleExts = []string{"png", "jpg", "jpeg", "webp"}

// DocumentKind is the sub-category used when converting to PDF.
type DocumentKind string

const (
	DocImage  DocumentKind = "image"
	DocOffice DocumentKind = "office"
	DocHTML   DocumentKind = "html"
	DocText   DocumentKind = "text"
)

var documentExts = map[DocumentKind][]string{
	DocImage:  {"jpg", "jpeg", "png", "gif", "tiff", "tif"},
	DocOffice: {"doc", "docx", "xls", "xlsx", "ppt", "pptx"},
	DocHTML:   {"html", "htm"},
	DocText:   {"txt"},
}

var documentOrder = []DocumentKind{DocImage, DocOffice, DocHTML, DocText}

func AudioSource(path string) (string, error) {
	return Require(path, audioSourceExts)
}

func VideoSource(path string) (string, error) {
	return Require(path, Extensions(models.CategoryVideo))
}

func UpscaleSource(path string) (string, error) {
	return Require(path, upscaleExts)
}

func ArchiveSource(path string) (string, error) {
	return Require(path, Extensions(models.CategoryArchive))
}

// SlimSource classifies an input for slimming; archives cannot be slimmed.
func SlimSource(path string) (models.Category, error) {
	cat, err := Classify(path)
	if err != nil {
		return "", err
	}
	if cat == models.CategoryArchive {
		var accepted []string
		for _, c := range []models.Category{models.CategoryImage, models.CategoryVideo, models.CategoryAudio, models.CategoryPDF} {
			accepted = append(accepted, categoryExts[c]...)
		}
		return "", &UnsupportedFormatError{Ext: Ext(path), Accepted: accepted}
	}
	return cat, nil
}

// Document returns the convert-to-PDF sub-category of path.
func Document(path string) (DocumentKind, error) {
	ext := Ext(path)
	for _, kind := range documentOrder {
		for _, e := range documentExts[kind] {
			if ext == e {
				return kind, nil
			}
		}
	}
	var accepted []string
	for _, kind := range documentOrder {
		accepted = append(accepted, documentExts[kind]...)
	}
	return "", &UnsupportedFormatError{Ext: ext, Accepted: accepted}
}
